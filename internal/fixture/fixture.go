// Package fixture builds media payloads for tests.
package fixture

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand/v2"

	"golang.org/x/image/tiff"
)

// Image returns a w×h gradient whose top-left pixel is red.
func Image(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(255 * x / max(w, 1)), G: uint8(255 * y / max(h, 1)), B: 128, A: 255})
		}
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	return img
}

func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	must(jpeg.Encode(&buf, Image(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func PNG(w, h int) []byte {
	var buf bytes.Buffer
	must(png.Encode(&buf, Image(w, h)))
	return buf.Bytes()
}

func GIF(w, h int) []byte {
	var buf bytes.Buffer
	must(gif.Encode(&buf, Image(w, h), nil))
	return buf.Bytes()
}

func TIFF(w, h int) []byte {
	var buf bytes.Buffer
	must(tiff.Encode(&buf, Image(w, h), nil))
	return buf.Bytes()
}

// WebPHeader is a RIFF/WEBP header followed by junk. It sniffs as WebP but
// does not decode.
func WebPHeader() []byte {
	b := []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
	return append(b, bytes.Repeat([]byte{0x42}, 64)...)
}

// MP4 is an ISO base media file with an isom ftyp box.
func MP4() []byte {
	var buf bytes.Buffer
	box(&buf, "ftyp", []byte("isom\x00\x00\x02\x00isomiso2avc1mp41"))
	box(&buf, "free", nil)
	box(&buf, "mdat", bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44}, 256))
	return buf.Bytes()
}

// QuickTime is an ISO base media file with a qt ftyp box.
func QuickTime() []byte {
	var buf bytes.Buffer
	box(&buf, "ftyp", []byte("qt  \x20\x05\x03\x00qt  "))
	box(&buf, "wide", nil)
	box(&buf, "mdat", bytes.Repeat([]byte{0x55, 0x66}, 256))
	return buf.Bytes()
}

func PDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

// Random returns n bytes that match no known signature.
func Random(n int) []byte {
	r := rand.New(rand.NewPCG(7, 11))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	copy(b, []byte{0x13, 0x37, 0xC0, 0xDE, 0x00, 0x01})
	return b
}

// Pad appends zero bytes to data until it is size bytes long. Decoders stop
// at the end-of-image marker so padded images remain valid.
func Pad(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

// WithOrientation inserts an EXIF APP1 segment carrying the given
// orientation tag right after the JPEG start-of-image marker.
func WithOrientation(jpg []byte, orientation uint16) []byte {
	var tiffBlock bytes.Buffer
	tiffBlock.WriteString("II")
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint16(0x2A))
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint16(1))      // entries
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint16(0x0112)) // Orientation
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint16(3))      // SHORT
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiffBlock, binary.LittleEndian, orientation)
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiffBlock, binary.LittleEndian, uint32(0)) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiffBlock.Bytes()...)

	var seg bytes.Buffer
	seg.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&seg, binary.BigEndian, uint16(len(payload)+2))
	seg.Write(payload)

	out := make([]byte, 0, len(jpg)+seg.Len())
	out = append(out, jpg[:2]...)
	out = append(out, seg.Bytes()...)
	return append(out, jpg[2:]...)
}

func box(buf *bytes.Buffer, typ string, payload []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(8+len(payload)))
	buf.WriteString(typ)
	buf.Write(payload)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
