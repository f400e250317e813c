package handler

import (
	"errors"
	"net/http"

	"github.com/civicpulse/upload-service/internal/domain"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var statusByKind = map[domain.ErrorKind]int{
	domain.KindUndetectableType:   http.StatusUnsupportedMediaType,
	domain.KindTypeMismatch:       http.StatusBadRequest,
	domain.KindDisallowedType:     http.StatusUnsupportedMediaType,
	domain.KindTooLarge:           http.StatusRequestEntityTooLarge,
	domain.KindStorageWriteFailed: http.StatusInternalServerError,
}

var messageByKind = map[domain.ErrorKind]string{
	domain.KindUndetectableType:   "Could not detect file type",
	domain.KindTypeMismatch:       "File type mismatch",
	domain.KindDisallowedType:     "File type not allowed",
	domain.KindTooLarge:           "File too large",
	domain.KindStorageWriteFailed: "Failed to save file",
}

// ingestErrorResponse maps an ingest failure to a status and body. Storage
// failures never expose their cause.
func ingestErrorResponse(err error) (int, ErrorResponse) {
	var ie *domain.IngestError
	if !errors.As(err, &ie) {
		return http.StatusInternalServerError, ErrorResponse{Error: "Failed to process file"}
	}

	status, ok := statusByKind[ie.Kind]
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Error: "Failed to process file"}
	}

	resp := ErrorResponse{Error: messageByKind[ie.Kind], Code: string(ie.Kind)}
	if ie.Kind != domain.KindStorageWriteFailed {
		resp.Details = ie.Reason
	}
	return status, resp
}
