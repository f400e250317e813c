package sniff

import (
	"bytes"

	"github.com/civicpulse/upload-service/internal/domain"
)

type signature struct {
	offset int
	magic  []byte
	mime   domain.MIMEType
}

var signatures = []signature{
	{0, []byte{0xFF, 0xD8, 0xFF}, domain.MIMEJPEG},
	{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, domain.MIMEPNG},
	{0, []byte("GIF87a"), domain.MIMEGIF},
	{0, []byte("GIF89a"), domain.MIMEGIF},
	{0, []byte{'I', 'I', 0x2A, 0x00}, domain.MIMETIFF},
	{0, []byte{'M', 'M', 0x00, 0x2A}, domain.MIMETIFF},
	{0, []byte("%PDF-"), domain.MIMEPDF},
}

// ISO base media brands that are plain MPEG-4 video.
var mp4Brands = map[string]bool{
	"isom": true, "iso2": true, "iso3": true, "iso4": true, "iso5": true, "iso6": true,
	"mp41": true, "mp42": true, "avc1": true, "dash": true, "mmp4": true, "M4V ": true,
}

// QuickTime files without an ftyp box start with one of these atoms.
var quickTimeAtoms = [][]byte{[]byte("moov"), []byte("mdat"), []byte("wide"), []byte("free"), []byte("skip")}

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Signatures matches a fixed table of binary signatures.
type Signatures struct{}

func (Signatures) Sniff(data []byte) domain.MIMEType {
	buf := header(data)

	for _, sig := range signatures {
		if hasAt(buf, sig.offset, sig.magic) {
			return sig.mime
		}
	}

	switch {
	case hasAt(buf, 0, []byte("RIFF")):
		return riff(buf)
	case hasAt(buf, 4, []byte("ftyp")):
		return isoBMFF(buf)
	case hasAt(buf, 0, ebmlMagic):
		return ebml(buf)
	}

	for _, atom := range quickTimeAtoms {
		if hasAt(buf, 4, atom) {
			return domain.MIMEQuickTime
		}
	}

	return domain.MIMEUnknown
}

// riff disambiguates RIFF containers by the form type at offset 8.
func riff(buf []byte) domain.MIMEType {
	if hasAt(buf, 8, []byte("WEBP")) {
		return domain.MIMEWebP
	}
	return domain.MIMEUnknown
}

func isoBMFF(buf []byte) domain.MIMEType {
	if len(buf) < 12 {
		return domain.MIMEUnknown
	}
	brand := string(buf[8:12])
	if brand == "qt  " {
		return domain.MIMEQuickTime
	}
	if mp4Brands[brand] {
		return domain.MIMEMP4
	}
	return domain.MIMEUnknown
}

func ebml(buf []byte) domain.MIMEType {
	if bytes.Contains(buf, []byte("webm")) {
		return domain.MIMEWebM
	}
	return domain.MIMEUnknown
}

func hasAt(buf []byte, offset int, magic []byte) bool {
	if len(buf) < offset+len(magic) {
		return false
	}
	return bytes.Equal(buf[offset:offset+len(magic)], magic)
}
