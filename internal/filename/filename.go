// Package filename turns untrusted upload names into safe tokens and
// generates the random names files are stored under.
package filename

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxSanitizedLength bounds Sanitize output so hostile names cannot flood logs.
const MaxSanitizedLength = 128

// tokenLength is the length of a canonical UUID string.
const tokenLength = 36

var (
	ErrInvalidExtension = errors.New("invalid extension")

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	extPattern  = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// Sanitize reduces a client supplied file name to [a-zA-Z0-9._-]. The result
// is for diagnostics only and never becomes a path on disk.
//
//	Sanitize("../../etc/passwd") // "__etc_passwd"
func Sanitize(raw string) string {
	s := raw
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", "")
	}
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	s = unsafeChars.ReplaceAllString(s, "_")

	if len(s) > MaxSanitizedLength {
		s = s[:MaxSanitizedLength]
	}
	if s == "" || s == "." {
		return "unnamed"
	}
	return s
}

// Generate returns a fresh storage name: a random UUID followed by ext.
// ext must be a lowercase extension such as ".webp".
func Generate(ext string) (string, error) {
	if !extPattern.MatchString(ext) {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate storage name: %w", err)
	}
	return id.String() + ext, nil
}

// IsStorageName reports whether name has the exact shape Generate produces.
func IsStorageName(name string) bool {
	ext := path.Ext(name)
	if !extPattern.MatchString(ext) {
		return false
	}
	token := strings.TrimSuffix(name, ext)
	if len(token) != tokenLength {
		return false
	}
	id, err := uuid.Parse(token)
	if err != nil {
		return false
	}
	return id.String() == token
}
