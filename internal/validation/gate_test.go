package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/upload-service/internal/domain"
	"github.com/civicpulse/upload-service/internal/fixture"
	"github.com/civicpulse/upload-service/internal/sniff"
	"github.com/civicpulse/upload-service/internal/validation"
)

func request(data []byte, declared string) domain.UploadRequest {
	return domain.NewUploadRequest(data, domain.Declared(declared), "upload.bin", int64(len(data)))
}

// countingSniffer records how often it ran.
type countingSniffer struct {
	sniff.Sniffer
	calls int
}

func (c *countingSniffer) Sniff(data []byte) domain.MIMEType {
	c.calls++
	return c.Sniffer.Sniff(data)
}

func TestGate_Validate(t *testing.T) {
	t.Parallel()
	gate := validation.NewGate(sniff.Mimetype{}, validation.DefaultPolicy())

	tests := []struct {
		name     string
		data     []byte
		declared string
		only     []domain.Category
		wantKind domain.ErrorKind
		want     validation.Accepted
	}{
		{
			name:     "jpeg accepted",
			data:     fixture.JPEG(16, 16),
			declared: "image/jpeg",
			want:     validation.Accepted{Category: domain.CategoryImage, MIMEType: domain.MIMEJPEG},
		},
		{
			name:     "declared type with parameters",
			data:     fixture.PNG(16, 16),
			declared: "Image/PNG; name=x.png",
			want:     validation.Accepted{Category: domain.CategoryImage, MIMEType: domain.MIMEPNG},
		},
		{
			name:     "mp4 accepted as video",
			data:     fixture.MP4(),
			declared: "video/mp4",
			want:     validation.Accepted{Category: domain.CategoryVideo, MIMEType: domain.MIMEMP4},
		},
		{
			name:     "random bytes",
			data:     fixture.Random(2048),
			declared: "image/jpeg",
			wantKind: domain.KindUndetectableType,
		},
		{
			name:     "png declared as jpeg",
			data:     fixture.PNG(16, 16),
			declared: "image/jpeg",
			wantKind: domain.KindTypeMismatch,
		},
		{
			name:     "jpeg declared with alias",
			data:     fixture.JPEG(16, 16),
			declared: "image/jpg",
			wantKind: domain.KindTypeMismatch,
		},
		{
			name:     "missing declared type",
			data:     fixture.JPEG(16, 16),
			declared: "",
			wantKind: domain.KindTypeMismatch,
		},
		{
			name:     "pdf is out of policy",
			data:     fixture.PDF(),
			declared: "application/pdf",
			wantKind: domain.KindDisallowedType,
		},
		{
			name:     "video rejected when only images allowed",
			data:     fixture.MP4(),
			declared: "video/mp4",
			only:     []domain.Category{domain.CategoryImage},
			wantKind: domain.KindDisallowedType,
		},
		{
			name:     "image over ceiling",
			data:     fixture.Pad(fixture.PNG(16, 16), 15*validation.MiB),
			declared: "image/png",
			wantKind: domain.KindTooLarge,
		},
		{
			name:     "image exactly at ceiling",
			data:     fixture.Pad(fixture.PNG(16, 16), 10*validation.MiB),
			declared: "image/png",
			want:     validation.Accepted{Category: domain.CategoryImage, MIMEType: domain.MIMEPNG},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := gate.Validate(request(tt.data, tt.declared), tt.only...)
			if tt.wantKind != "" {
				require.Error(t, err)
				kind, ok := domain.KindOf(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantKind, kind)
				assert.Equal(t, validation.Accepted{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_SizeUsesActualLength(t *testing.T) {
	t.Parallel()
	gate := validation.NewGate(sniff.Mimetype{}, validation.DefaultPolicy())

	data := fixture.Pad(fixture.JPEG(8, 8), 11*validation.MiB)
	req := domain.NewUploadRequest(data, domain.Declared("image/jpeg"), "small.jpg", 1024)

	_, err := gate.Validate(req)
	assert.ErrorIs(t, err, domain.ErrTooLarge)
}

func TestGate_ChecksAreOrdered(t *testing.T) {
	t.Parallel()
	gate := validation.NewGate(sniff.Mimetype{}, validation.DefaultPolicy())

	// Oversized and mislabeled: the mismatch is reported first.
	data := fixture.Pad(fixture.PNG(8, 8), 12*validation.MiB)
	_, err := gate.Validate(request(data, "image/gif"))
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)

	// Oversized and out of policy: the policy violation is reported first.
	pdf := fixture.Pad(fixture.PDF(), 60*validation.MiB)
	_, err = gate.Validate(request(pdf, "application/pdf"))
	assert.ErrorIs(t, err, domain.ErrDisallowedType)
}

func TestGate_CategoryWithoutCeiling(t *testing.T) {
	t.Parallel()

	policy := validation.DefaultPolicy()
	policy.Allowed[domain.CategoryDocument] = []domain.MIMEType{domain.MIMEPDF}
	gate := validation.NewGate(sniff.Signatures{}, policy)

	_, err := gate.Validate(request(fixture.PDF(), "application/pdf"))
	assert.ErrorIs(t, err, domain.ErrDisallowedType)

	policy.MaxSize[domain.CategoryDocument] = 5 * validation.MiB
	got, err := validation.NewGate(sniff.Signatures{}, policy).Validate(request(fixture.PDF(), "application/pdf"))
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDocument, got.Category)
}

func TestGate_SniffsOnce(t *testing.T) {
	t.Parallel()
	s := &countingSniffer{Sniffer: sniff.Signatures{}}
	gate := validation.NewGate(s, validation.DefaultPolicy())

	_, err := gate.Validate(request(fixture.GIF(4, 4), "image/gif"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls)
}

func TestPolicy_MaxUploadSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, validation.DefaultVideoMaxSize, validation.DefaultPolicy().MaxUploadSize())
}
