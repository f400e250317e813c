// Package transcode re-encodes accepted images into a single output format,
// dropping anything the original container carried besides pixels.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"

	"github.com/civicpulse/upload-service/internal/domain"
)

type Format string

const (
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
)

func (f Format) MIMEType() domain.MIMEType {
	switch f {
	case FormatWebP:
		return domain.MIMEWebP
	case FormatJPEG:
		return domain.MIMEJPEG
	default:
		return domain.MIMEUnknown
	}
}

const (
	DefaultQuality      = 85
	DefaultMaxDimension = 2048
	DefaultMaxPixels    = 50_000_000
)

var (
	ErrUnsupported   = errors.New("unsupported source type")
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
	ErrInvalidFormat = errors.New("invalid output format")
)

type Options struct {
	Format       Format
	Quality      int
	MaxDimension int
	MaxPixels    int
}

func DefaultOptions() Options {
	return Options{
		Format:       FormatWebP,
		Quality:      DefaultQuality,
		MaxDimension: DefaultMaxDimension,
		MaxPixels:    DefaultMaxPixels,
	}
}

// Result is a transcoded image and its canonical type.
type Result struct {
	Data     []byte
	MIMEType domain.MIMEType
}

// Transcoder turns accepted image bytes into normalized output bytes.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, src domain.MIMEType) (Result, error)
}

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
	// exif is set for containers that may carry an orientation tag.
	exif bool
}

var codecs = map[domain.MIMEType]codec{
	domain.MIMEJPEG: {decode: jpeg.Decode, decodeConfig: jpeg.DecodeConfig, exif: true},
	domain.MIMEPNG:  {decode: png.Decode, decodeConfig: png.DecodeConfig},
	domain.MIMEGIF:  {decode: gif.Decode, decodeConfig: gif.DecodeConfig},
	domain.MIMEWebP: {decode: xwebp.Decode, decodeConfig: xwebp.DecodeConfig},
	domain.MIMETIFF: {decode: tiff.Decode, decodeConfig: tiff.DecodeConfig, exif: true},
}

// Imaging is the default Transcoder. It applies the EXIF orientation, bounds
// the longer edge and encodes to the configured format. It is safe for
// concurrent use.
type Imaging struct {
	opts Options
}

func New(opts Options) (*Imaging, error) {
	if opts.Format.MIMEType() == domain.MIMEUnknown {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, opts.Format)
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", opts.Quality)
	}
	if opts.MaxDimension <= 0 {
		return nil, fmt.Errorf("max dimension must be positive, got %d", opts.MaxDimension)
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Imaging{opts: opts}, nil
}

// Supports reports whether src can be decoded.
func Supports(src domain.MIMEType) bool {
	_, ok := codecs[src]
	return ok
}

func (t *Imaging) Transcode(ctx context.Context, data []byte, src domain.MIMEType) (res Result, err error) {
	c, ok := codecs[src]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, src)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Decoders panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fmt.Errorf("transcode panicked: %v", r)
		}
	}()

	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Result{}, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(t.opts.MaxPixels) {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if c.exif {
		img = orient(img, orientation(data))
	}

	bounds := img.Bounds()
	if bounds.Dx() > t.opts.MaxDimension || bounds.Dy() > t.opts.MaxDimension {
		img = imaging.Fit(img, t.opts.MaxDimension, t.opts.MaxDimension, imaging.Lanczos)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	switch t.opts.Format {
	case FormatWebP:
		err = webp.Encode(&buf, img, webp.Options{Quality: t.opts.Quality, Method: 4})
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.opts.Quality))
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode %s: %w", t.opts.Format, err)
	}

	return Result{Data: buf.Bytes(), MIMEType: t.opts.Format.MIMEType()}, nil
}

// orientation returns the EXIF orientation tag, or 1 when absent or unreadable.
func orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

func orient(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
