// Package ingest wires validation, transcoding and storage into the two
// entry points of the upload pipeline.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/civicpulse/upload-service/internal/domain"
	"github.com/civicpulse/upload-service/internal/filename"
	"github.com/civicpulse/upload-service/internal/storage"
	"github.com/civicpulse/upload-service/internal/transcode"
	"github.com/civicpulse/upload-service/internal/validation"
)

// Result is a successful ingest.
type Result struct {
	domain.StoredObject
	// OriginalName is the sanitized client file name.
	OriginalName string `json:"originalName"`
	Transcoded   bool   `json:"transcoded"`
}

type Service struct {
	gate       *validation.Gate
	transcoder transcode.Transcoder
	store      storage.Storage
	logger     *slog.Logger
}

// NewService builds the pipeline. A nil transcoder stores accepted images as
// they arrived.
func NewService(gate *validation.Gate, transcoder transcode.Transcoder, store storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gate:       gate,
		transcoder: transcoder,
		store:      store,
		logger:     logger.With("component", "ingest"),
	}
}

// Ingest validates req, normalizes images and stores the result. Every
// failure is a *domain.IngestError. When only is non-empty, uploads outside
// those categories are rejected as disallowed.
func (s *Service) Ingest(ctx context.Context, req domain.UploadRequest, only ...domain.Category) (Result, error) {
	original := filename.Sanitize(req.OriginalName())

	accepted, err := s.gate.Validate(req, only...)
	if err != nil {
		kind, _ := domain.KindOf(err)
		s.logger.Info("Upload rejected",
			"original_name", original,
			"declared_type", req.Declared().String(),
			"size", req.Size(),
			"kind", kind,
			"error", err,
		)
		return Result{}, err
	}

	data, mimeType := req.Data(), accepted.MIMEType
	transcoded := false
	if accepted.Category == domain.CategoryImage && s.transcoder != nil {
		out, err := s.transcoder.Transcode(ctx, data, accepted.MIMEType)
		if err != nil {
			s.logger.Warn("Transcode failed, storing original",
				"original_name", original,
				"mimetype", accepted.MIMEType,
				"error", err,
			)
		} else {
			data, mimeType, transcoded = out.Data, out.MIMEType, true
		}
	}

	obj, err := s.store.Place(ctx, accepted.Category, data, mimeType)
	if err != nil {
		s.logger.Error("Failed to save file",
			"original_name", original,
			"category", accepted.Category,
			"error", err,
		)
		return Result{}, domain.StorageFailure(err)
	}

	s.logger.Info("File uploaded",
		"original_name", original,
		"category", obj.Category,
		"filename", obj.Filename,
		"mimetype", obj.MIMEType,
		"size", obj.Size,
		"transcoded", transcoded,
	)

	return Result{StoredObject: obj, OriginalName: original, Transcoded: transcoded}, nil
}

// Fetch opens a stored file. category accepts the category name or its
// directory alias. Errors are domain.ErrUnknownCategory, domain.ErrNotFound
// or domain.ErrForbidden.
func (s *Service) Fetch(ctx context.Context, category, name string) (io.ReadSeekCloser, storage.FileInfo, error) {
	c, ok := domain.ParseCategory(category)
	if !ok {
		return nil, storage.FileInfo{}, domain.ErrUnknownCategory
	}

	rc, info, err := s.store.Open(ctx, c, name)
	switch {
	case err == nil:
		return rc, info, nil
	case errors.Is(err, domain.ErrForbidden):
		s.logger.Warn("Blocked file access outside storage root",
			"security_event", "path_confinement",
			"category", c,
			"requested_name", filename.Sanitize(name),
			"error", err,
		)
		return nil, storage.FileInfo{}, domain.ErrForbidden
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Info("File not found", "category", c, "requested_name", filename.Sanitize(name))
		return nil, storage.FileInfo{}, domain.ErrNotFound
	default:
		s.logger.Error("Failed to open file", "category", c, "error", err)
		return nil, storage.FileInfo{}, err
	}
}

// Ready reports whether the storage tree accepts writes.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Writable(ctx)
}
