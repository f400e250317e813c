// Package validation decides whether an upload is accepted, using only facts
// derived from its bytes.
package validation

import (
	"slices"

	"github.com/civicpulse/upload-service/internal/domain"
	"github.com/civicpulse/upload-service/internal/sniff"
)

const (
	MiB = 1 << 20

	DefaultImageMaxSize int64 = 10 * MiB
	DefaultVideoMaxSize int64 = 50 * MiB
)

// Policy holds the per-category allow-lists and size ceilings. A category
// without a positive ceiling accepts nothing.
type Policy struct {
	Allowed map[domain.Category][]domain.MIMEType
	MaxSize map[domain.Category]int64
}

func DefaultPolicy() Policy {
	return Policy{
		Allowed: map[domain.Category][]domain.MIMEType{
			domain.CategoryImage: {domain.MIMEJPEG, domain.MIMEPNG, domain.MIMEGIF, domain.MIMEWebP, domain.MIMETIFF},
			domain.CategoryVideo: {domain.MIMEMP4, domain.MIMEQuickTime},
		},
		MaxSize: map[domain.Category]int64{
			domain.CategoryImage: DefaultImageMaxSize,
			domain.CategoryVideo: DefaultVideoMaxSize,
		},
	}
}

// MaxUploadSize is the largest ceiling across all categories.
func (p Policy) MaxUploadSize() int64 {
	var largest int64
	for _, size := range p.MaxSize {
		largest = max(largest, size)
	}
	return largest
}

// Accepted is a successful validation result.
type Accepted struct {
	Category domain.Category
	MIMEType domain.MIMEType
}

// Gate runs the ordered accept/reject checks. It holds no mutable state and
// is safe for concurrent use.
type Gate struct {
	sniffer sniff.Sniffer
	policy  Policy
}

func NewGate(sniffer sniff.Sniffer, policy Policy) *Gate {
	return &Gate{sniffer: sniffer, policy: policy}
}

func (g *Gate) Policy() Policy {
	return g.policy
}

// Validate checks req and returns either the accepted category and canonical
// type or a *domain.IngestError. When only is non-empty, types outside those
// categories are treated as disallowed.
func (g *Gate) Validate(req domain.UploadRequest, only ...domain.Category) (Accepted, error) {
	detected := g.sniffer.Sniff(req.Data())
	if detected == domain.MIMEUnknown {
		return Accepted{}, domain.Reject(domain.KindUndetectableType, "could not detect file type")
	}

	if !req.Declared().Matches(detected) {
		return Accepted{}, domain.Reject(domain.KindTypeMismatch,
			"detected %s, declared %q", detected, req.Declared().String())
	}

	category, ok := g.categoryFor(detected, only)
	if !ok {
		return Accepted{}, domain.Reject(domain.KindDisallowedType, "%s is not allowed", detected)
	}

	limit := g.policy.MaxSize[category]
	if limit <= 0 {
		return Accepted{}, domain.Reject(domain.KindDisallowedType, "%s uploads are not accepted", category)
	}
	if req.Size() > limit {
		return Accepted{}, domain.Reject(domain.KindTooLarge,
			"maximum %dMB for %ss", limit/MiB, category)
	}

	return Accepted{Category: category, MIMEType: detected}, nil
}

func (g *Gate) categoryFor(detected domain.MIMEType, only []domain.Category) (domain.Category, bool) {
	for _, category := range domain.Categories {
		if len(only) > 0 && !slices.Contains(only, category) {
			continue
		}
		if slices.Contains(g.policy.Allowed[category], detected) {
			return category, true
		}
	}
	return "", false
}
