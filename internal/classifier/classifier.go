// Package classifier detects the content kind of raw document bytes.
package classifier

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/parchment-ai/corpusd/internal/domain"
)

var urlPattern = regexp.MustCompile(`^https?://\S+$`)

// extensionKinds maps filename extensions to content kinds, used when
// signature detection is inconclusive.
var extensionKinds = map[string]domain.ContentKind{
	".png":  domain.ContentKindImage,
	".jpg":  domain.ContentKindImage,
	".jpeg": domain.ContentKindImage,
	".gif":  domain.ContentKindImage,
	".bmp":  domain.ContentKindImage,
	".tiff": domain.ContentKindImage,
	".tif":  domain.ContentKindImage,
	".webp": domain.ContentKindImage,
	".pdf":  domain.ContentKindPDF,
	".txt":  domain.ContentKindText,
	".md":   domain.ContentKindText,
	".csv":  domain.ContentKindText,
	".html": domain.ContentKindText,
	".htm":  domain.ContentKindText,
	".docx": domain.ContentKindDocument,
	".doc":  domain.ContentKindDocument,
	".odt":  domain.ContentKindDocument,
	".rtf":  domain.ContentKindDocument,
	".pptx": domain.ContentKindDocument,
	".xlsx": domain.ContentKindDocument,
}

// Classify determines the content kind of raw bytes, optionally guided by a
// filename. Signature detection runs first; the filename extension is only a
// fallback. Plain text whose entire content is a single URL is reclassified
// as a URL submission. Empty or undecodable content classifies as unknown,
// which the pipeline treats as a permanent failure.
func Classify(raw []byte, filename string) domain.ContentKind {
	if len(raw) == 0 {
		return domain.ContentKindUnknown
	}

	mime := mimetype.Detect(raw)
	if kind, ok := kindFromMIME(mime); ok {
		if kind == domain.ContentKindText {
			return reclassifyText(raw)
		}
		return kind
	}

	if filename != "" {
		ext := strings.ToLower(filepath.Ext(filename))
		if kind, ok := extensionKinds[ext]; ok {
			if kind == domain.ContentKindText {
				return reclassifyText(raw)
			}
			return kind
		}
	}

	// Last resort: anything that decodes as UTF-8 and carries no NUL bytes
	// is treated as text.
	if utf8.Valid(raw) && !bytes.Contains(raw, []byte{0}) {
		return reclassifyText(raw)
	}

	return domain.ContentKindUnknown
}

// IsURL reports whether text is a single absolute HTTP(S) URL. Used both at
// classification time and by reconciliation to catch URLs stored as text.
func IsURL(text string) bool {
	return urlPattern.MatchString(strings.TrimSpace(text))
}

func kindFromMIME(mime *mimetype.MIME) (domain.ContentKind, bool) {
	switch {
	case mime.Is("application/pdf"):
		return domain.ContentKindPDF, true
	case strings.HasPrefix(mime.String(), "image/"):
		return domain.ContentKindImage, true
	case mime.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
		mime.Is("application/vnd.openxmlformats-officedocument.presentationml.presentation"),
		mime.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
		mime.Is("application/vnd.oasis.opendocument.text"),
		mime.Is("application/msword"),
		mime.Is("application/rtf"), mime.Is("text/rtf"):
		return domain.ContentKindDocument, true
	case mime.Is("text/html"), mime.Is("text/xml"):
		return domain.ContentKindText, true
	case strings.HasPrefix(mime.String(), "text/"):
		return domain.ContentKindText, true
	}
	return domain.ContentKindUnknown, false
}

func reclassifyText(raw []byte) domain.ContentKind {
	if !utf8.Valid(raw) {
		return domain.ContentKindUnknown
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return domain.ContentKindUnknown
	}
	if IsURL(text) {
		return domain.ContentKindURL
	}
	return domain.ContentKindText
}
