package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/upload-service/internal/domain"
	"github.com/civicpulse/upload-service/internal/filename"
	"github.com/civicpulse/upload-service/internal/ingest"
	"github.com/civicpulse/upload-service/internal/storage"
)

// multipartOverhead is allowed on top of the file bytes for boundaries and
// part headers.
const multipartOverhead = 1 << 20

// MediaService is the pipeline the HTTP layer drives.
type MediaService interface {
	Ingest(ctx context.Context, req domain.UploadRequest, only ...domain.Category) (ingest.Result, error)
	Fetch(ctx context.Context, category, name string) (io.ReadSeekCloser, storage.FileInfo, error)
	Ready(ctx context.Context) error
}

type Limits struct {
	// MaxFileSize is the largest ceiling of any category.
	MaxFileSize int64
	MaxFiles    int
}

type UploadHandler struct {
	svc           MediaService
	limits        Limits
	publicBaseURL string
	logger        *slog.Logger
}

func NewUploadHandler(svc MediaService, limits Limits, publicBaseURL string, logger *slog.Logger) *UploadHandler {
	if limits.MaxFiles < 1 {
		limits.MaxFiles = 1
	}
	return &UploadHandler{
		svc:           svc,
		limits:        limits,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

type UploadResponse struct {
	ingest.Result
	URL string `json:"url"`
}

type FileError struct {
	OriginalName string `json:"originalName"`
	ErrorResponse
}

type MultipleUploadResponse struct {
	Files  []UploadResponse `json:"files"`
	Errors []FileError      `json:"errors,omitempty"`
}

// Upload ingests the multipart field "file".
func (h *UploadHandler) Upload(c *gin.Context) {
	h.single(c, "file")
}

// UploadAvatar ingests the multipart field "avatar"; only images are accepted.
func (h *UploadHandler) UploadAvatar(c *gin.Context) {
	h.single(c, "avatar", domain.CategoryImage)
}

func (h *UploadHandler) single(c *gin.Context, field string, only ...domain.Category) {
	h.limitBody(c, 1)

	file, err := c.FormFile(field)
	if err != nil {
		h.formError(c, err)
		return
	}

	res, err := h.ingestPart(c.Request.Context(), file, only...)
	if err != nil {
		status, resp := ingestErrorResponse(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, h.response(res))
}

// UploadMultiple ingests every part of the multipart field "files". Each file
// is accepted or rejected on its own.
func (h *UploadHandler) UploadMultiple(c *gin.Context) {
	h.limitBody(c, h.limits.MaxFiles)

	form, err := c.MultipartForm()
	if err != nil {
		h.formError(c, err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No files uploaded"})
		return
	}
	if len(files) > h.limits.MaxFiles {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Too many files",
			Details: fmt.Sprintf("at most %d files per request", h.limits.MaxFiles),
		})
		return
	}

	resp := MultipleUploadResponse{Files: []UploadResponse{}}
	firstStatus := 0
	for _, file := range files {
		res, err := h.ingestPart(c.Request.Context(), file)
		if err != nil {
			status, errResp := ingestErrorResponse(err)
			if firstStatus == 0 {
				firstStatus = status
			}
			resp.Errors = append(resp.Errors, FileError{
				OriginalName:  filename.Sanitize(file.Filename),
				ErrorResponse: errResp,
			})
			continue
		}
		resp.Files = append(resp.Files, h.response(res))
	}

	if len(resp.Files) == 0 {
		c.JSON(firstStatus, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// limitBody bounds the request body before multipart parsing starts.
func (h *UploadHandler) limitBody(c *gin.Context, files int) {
	limit := h.limits.MaxFileSize*int64(files) + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
}

func (h *UploadHandler) formError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.logger.Warn("Request body too large", "limit", maxBytesErr.Limit)
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "File too large",
			Code:  string(domain.KindTooLarge),
		})
		return
	}

	h.logger.Warn("Failed to get file from form", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No file provided"})
}

// ingestPart reads at most one byte past the largest ceiling so oversized
// parts are caught by their actual length without buffering all of them.
func (h *UploadHandler) ingestPart(ctx context.Context, file *multipart.FileHeader, only ...domain.Category) (ingest.Result, error) {
	src, err := file.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", "error", err)
		return ingest.Result{}, domain.StorageFailure(err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.limits.MaxFileSize+1))
	if err != nil {
		h.logger.Error("Failed to read uploaded file", "error", err)
		return ingest.Result{}, domain.StorageFailure(err)
	}

	req := domain.NewUploadRequest(data, domain.Declared(file.Header.Get("Content-Type")), file.Filename, file.Size)
	return h.svc.Ingest(ctx, req, only...)
}

func (h *UploadHandler) response(res ingest.Result) UploadResponse {
	return UploadResponse{Result: res, URL: h.publicBaseURL + res.PublicPath}
}
