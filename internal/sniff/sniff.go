// Package sniff identifies media types from file content alone.
//
// A Sniffer never looks at file names, extensions or client supplied
// Content-Type headers. When nothing matches it returns domain.MIMEUnknown.
package sniff

import (
	"fmt"
	"mime"

	"github.com/gabriel-vasile/mimetype"

	"github.com/civicpulse/upload-service/internal/domain"
)

// HeaderSize is the number of leading bytes inspected.
const HeaderSize = 3072

// Sniffer detects the media type of a byte buffer.
type Sniffer interface {
	Sniff(data []byte) domain.MIMEType
}

// Backend names accepted by New.
const (
	BackendMimetype  = "mimetype"
	BackendSignature = "signature"
)

// New returns the sniffer registered under name.
func New(name string) (Sniffer, error) {
	switch name {
	case "", BackendMimetype:
		return Mimetype{}, nil
	case BackendSignature:
		return Signatures{}, nil
	default:
		return nil, fmt.Errorf("unknown sniff backend %q", name)
	}
}

func header(data []byte) []byte {
	if len(data) > HeaderSize {
		return data[:HeaderSize]
	}
	return data
}

// Mimetype detects types with github.com/gabriel-vasile/mimetype.
type Mimetype struct{}

func (Mimetype) Sniff(data []byte) domain.MIMEType {
	if len(data) == 0 {
		return domain.MIMEUnknown
	}

	detected := mimetype.Detect(header(data))

	for _, known := range domain.KnownMIMETypes() {
		if detected.Is(string(known)) {
			return known
		}
	}

	mediaType, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		return domain.MIMEUnknown
	}
	// octet-stream is the library's "no match"; text/plain means no binary
	// signature matched and the bytes merely looked printable.
	switch mediaType {
	case "application/octet-stream", "text/plain":
		return domain.MIMEUnknown
	}
	return domain.MIMEType(mediaType)
}
