package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parchment-ai/corpusd/internal/domain"
)

// Minimal valid file signatures for sniffing tests.
var (
	pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	pdfHeader = []byte("%PDF-1.4\n%...")
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		filename string
		want     domain.ContentKind
	}{
		{name: "png by signature", raw: pngHeader, filename: "", want: domain.ContentKindImage},
		{name: "pdf by signature", raw: pdfHeader, filename: "", want: domain.ContentKindPDF},
		{name: "pdf signature beats txt extension", raw: pdfHeader, filename: "mislabeled.txt", want: domain.ContentKindPDF},
		{name: "plain text", raw: []byte("Contact us at test@company.com for support."), filename: "note.txt", want: domain.ContentKindText},
		{name: "text without filename", raw: []byte("just some prose with no markers"), filename: "", want: domain.ContentKindText},
		{name: "url reclassified", raw: []byte("https://example.com/docs/page"), filename: "", want: domain.ContentKindURL},
		{name: "url with surrounding whitespace", raw: []byte("  https://example.com \n"), filename: "", want: domain.ContentKindURL},
		{name: "url mid-sentence stays text", raw: []byte("see https://example.com for details"), filename: "", want: domain.ContentKindText},
		{name: "empty content", raw: nil, filename: "empty.txt", want: domain.ContentKindUnknown},
		{name: "binary garbage", raw: []byte{0xff, 0xfe, 0x00, 0x01, 0x02, 0x80, 0x81}, filename: "", want: domain.ContentKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw, tt.filename))
		})
	}
}

func TestClassifyExtensionFallback(t *testing.T) {
	// Bytes that sniff as generic binary but carry a known extension.
	raw := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}
	assert.Equal(t, domain.ContentKindUnknown, Classify(raw, "mystery.bin"))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com"))
	assert.True(t, IsURL("http://example.com/a/b?c=d"))
	assert.True(t, IsURL("  https://example.com  "))
	assert.False(t, IsURL("ftp://example.com"))
	assert.False(t, IsURL("example.com"))
	assert.False(t, IsURL("https:// example.com"))
	assert.False(t, IsURL(""))
}
