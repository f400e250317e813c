package domain

import (
	"mime"
	"path"
	"strings"
)

// Category selects the size limit, allow-list and storage directory of an upload.
// It is always derived from sniffed content, never taken from the client.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
)

// Categories lists every category in a fixed order.
var Categories = []Category{CategoryImage, CategoryVideo, CategoryDocument}

// Dir returns the directory name the category is stored under.
func (c Category) Dir() string {
	switch c {
	case CategoryImage:
		return "images"
	case CategoryVideo:
		return "videos"
	case CategoryDocument:
		return "documents"
	default:
		return ""
	}
}

func (c Category) Valid() bool {
	return c.Dir() != ""
}

// ParseCategory accepts a category name ("image") or its directory name ("images").
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if s == string(c) || s == c.Dir() {
			return c, true
		}
	}
	return "", false
}

// MIMEType is a canonical media type produced by content sniffing.
// Client supplied types are DeclaredType and never convert to MIMEType.
type MIMEType string

const (
	MIMEUnknown   MIMEType = ""
	MIMEJPEG      MIMEType = "image/jpeg"
	MIMEPNG       MIMEType = "image/png"
	MIMEGIF       MIMEType = "image/gif"
	MIMEWebP      MIMEType = "image/webp"
	MIMETIFF      MIMEType = "image/tiff"
	MIMEMP4       MIMEType = "video/mp4"
	MIMEQuickTime MIMEType = "video/quicktime"
	MIMEWebM      MIMEType = "video/webm"
	MIMEPDF       MIMEType = "application/pdf"
)

var extensionByMIME = map[MIMEType]string{
	MIMEJPEG:      ".jpg",
	MIMEPNG:       ".png",
	MIMEGIF:       ".gif",
	MIMEWebP:      ".webp",
	MIMETIFF:      ".tiff",
	MIMEMP4:       ".mp4",
	MIMEQuickTime: ".mov",
	MIMEWebM:      ".webm",
	MIMEPDF:       ".pdf",
}

// contentTypeByExtension is the only source of Content-Type for served files.
var contentTypeByExtension = map[string]string{
	".jpg":  string(MIMEJPEG),
	".jpeg": string(MIMEJPEG),
	".png":  string(MIMEPNG),
	".gif":  string(MIMEGIF),
	".webp": string(MIMEWebP),
	".tif":  string(MIMETIFF),
	".tiff": string(MIMETIFF),
	".mp4":  string(MIMEMP4),
	".mov":  string(MIMEQuickTime),
	".webm": string(MIMEWebM),
	".pdf":  string(MIMEPDF),
}

// KnownMIMETypes returns every canonical type the pipeline can store.
func KnownMIMETypes() []MIMEType {
	return []MIMEType{MIMEJPEG, MIMEPNG, MIMEGIF, MIMEWebP, MIMETIFF, MIMEMP4, MIMEQuickTime, MIMEWebM, MIMEPDF}
}

func (m MIMEType) Known() bool {
	_, ok := extensionByMIME[m]
	return ok
}

// Extension returns the storage extension (with dot) or "" for unknown types.
func (m MIMEType) Extension() string {
	return extensionByMIME[m]
}

// Category returns the category implied by the type's top-level media type.
func (m MIMEType) Category() (Category, bool) {
	switch {
	case strings.HasPrefix(string(m), "image/"):
		return CategoryImage, true
	case strings.HasPrefix(string(m), "video/"):
		return CategoryVideo, true
	case m == MIMEPDF:
		return CategoryDocument, true
	default:
		return "", false
	}
}

func (m MIMEType) String() string {
	if m == MIMEUnknown {
		return "unknown"
	}
	return string(m)
}

// ContentTypeForName derives a Content-Type from a stored file name's extension.
func ContentTypeForName(name string) string {
	if ct, ok := contentTypeByExtension[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// DeclaredType is the MIME type the client claims for an upload. It is
// untrusted: the only thing it can do is be compared against a sniffed type.
type DeclaredType struct {
	raw string
}

func Declared(raw string) DeclaredType {
	return DeclaredType{raw: raw}
}

// Matches reports whether the declared type names exactly the sniffed type.
// Parameters and case are ignored; aliases such as image/jpg are not.
func (d DeclaredType) Matches(m MIMEType) bool {
	if m == MIMEUnknown {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(d.raw)
	if err != nil {
		return false
	}
	return mediaType == string(m)
}

func (d DeclaredType) String() string {
	return d.raw
}

// UploadRequest is one inbound upload. It is never modified after creation.
type UploadRequest struct {
	data         []byte
	declared     DeclaredType
	originalName string
	declaredSize int64
}

func NewUploadRequest(data []byte, declared DeclaredType, originalName string, declaredSize int64) UploadRequest {
	return UploadRequest{
		data:         data,
		declared:     declared,
		originalName: originalName,
		declaredSize: declaredSize,
	}
}

// Data returns the raw upload bytes. Callers must not modify them.
func (r UploadRequest) Data() []byte           { return r.data }
func (r UploadRequest) Declared() DeclaredType { return r.declared }
func (r UploadRequest) OriginalName() string   { return r.originalName }
func (r UploadRequest) DeclaredSize() int64    { return r.declaredSize }

// Size is the actual byte length, as opposed to DeclaredSize.
func (r UploadRequest) Size() int64 { return int64(len(r.data)) }

// StoredObject describes a placed file.
type StoredObject struct {
	Category   Category `json:"category"`
	Filename   string   `json:"filename"`
	Size       int64    `json:"size"`
	MIMEType   MIMEType `json:"mimetype"`
	PublicPath string   `json:"path"`
}

// PublicPath is the URL path a stored object is served under.
func PublicPath(c Category, filename string) string {
	return "/api/files/" + string(c) + "/" + filename
}
