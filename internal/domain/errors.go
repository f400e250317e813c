package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of reasons an ingest can fail.
type ErrorKind string

const (
	KindUndetectableType   ErrorKind = "UndetectableType"
	KindTypeMismatch       ErrorKind = "TypeMismatch"
	KindDisallowedType     ErrorKind = "DisallowedType"
	KindTooLarge           ErrorKind = "TooLarge"
	KindStorageWriteFailed ErrorKind = "StorageWriteFailed"
)

var (
	ErrUndetectableType   = errors.New("could not detect file type")
	ErrTypeMismatch       = errors.New("file type mismatch")
	ErrDisallowedType     = errors.New("file type not allowed")
	ErrTooLarge           = errors.New("file size exceeds limit")
	ErrStorageWriteFailed = errors.New("failed to store file")
)

// Fetch errors
var (
	ErrNotFound        = errors.New("file not found")
	ErrForbidden       = errors.New("access denied")
	ErrUnknownCategory = errors.New("invalid file type")
)

var sentinelByKind = map[ErrorKind]error{
	KindUndetectableType:   ErrUndetectableType,
	KindTypeMismatch:       ErrTypeMismatch,
	KindDisallowedType:     ErrDisallowedType,
	KindTooLarge:           ErrTooLarge,
	KindStorageWriteFailed: ErrStorageWriteFailed,
}

// IngestError is returned for every failed ingest. errors.Is matches both the
// kind's sentinel and the wrapped cause, if any.
type IngestError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *IngestError) Unwrap() []error {
	errs := []error{sentinelByKind[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func Reject(kind ErrorKind, format string, args ...any) *IngestError {
	return &IngestError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func StorageFailure(err error) *IngestError {
	return &IngestError{Kind: KindStorageWriteFailed, Reason: "could not write file", Err: err}
}

// KindOf returns the ingest error kind carried by err.
func KindOf(err error) (ErrorKind, bool) {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return "", false
}
