package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/civicpulse/upload-service/internal/domain"
)

var ErrCategoryNotConfigured = errors.New("category has no storage root")

type FileInfo struct {
	Name        string
	Category    domain.Category
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Placer publishes validated bytes under a freshly generated name. A file is
// either fully present under its final name or absent.
type Placer interface {
	Place(ctx context.Context, category domain.Category, data []byte, mimeType domain.MIMEType) (domain.StoredObject, error)
}

// Retriever opens stored files. Names are untrusted and must resolve inside
// the category root; escapes return domain.ErrForbidden.
type Retriever interface {
	Open(ctx context.Context, category domain.Category, name string) (io.ReadSeekCloser, FileInfo, error)
}

type Storage interface {
	Placer
	Retriever
	// Writable reports whether every category root accepts new files.
	Writable(ctx context.Context) error
}
