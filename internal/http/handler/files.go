package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/upload-service/internal/domain"
)

// cacheControl marks served files immutable; storage names are never reused.
const cacheControl = "public, max-age=31536000, immutable"

type FileHandler struct {
	svc    MediaService
	logger *slog.Logger
}

func NewFileHandler(svc MediaService, logger *slog.Logger) *FileHandler {
	return &FileHandler{svc: svc, logger: logger}
}

// GetFile serves /files/:category/:filename, including HEAD and range requests.
func (h *FileHandler) GetFile(c *gin.Context) {
	rc, info, err := h.svc.Fetch(c.Request.Context(), c.Param("category"), c.Param("filename"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownCategory):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid file type"})
		case errors.Is(err, domain.ErrForbidden):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "Access denied"})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "File not found"})
		default:
			h.logger.Error("Failed to serve file", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Error serving file"})
		}
		return
	}
	defer rc.Close()

	header := c.Writer.Header()
	header.Set("Content-Type", info.ContentType)
	header.Set("Cache-Control", cacheControl)
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Content-Disposition", "inline")

	http.ServeContent(c.Writer, c.Request, info.Name, info.ModTime, rc)
}
