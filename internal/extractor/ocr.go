package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dslipak/pdf"
	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/parchment-ai/corpusd/internal/domain"
)

const (
	defaultOCRWorkers  = 8
	defaultPageTimeout = 30 * time.Second
	nativeTextTimeout  = 10 * time.Second
)

// OCREngine recognizes text in a PNG-encoded page image.
type OCREngine interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// GosseractEngine runs tesseract via gosseract. A fresh client is created
// per call because gosseract clients are not safe for concurrent use.
type GosseractEngine struct {
	languages []string
}

func NewGosseractEngine(languages ...string) *GosseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &GosseractEngine{languages: languages}
}

func (e *GosseractEngine) Recognize(ctx context.Context, img []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("failed to load page image: %w", err)
	}
	return client.Text()
}

// PageRenderer rasterizes PDF pages to images for the scanned-document path.
type PageRenderer interface {
	RenderPages(raw []byte) ([]image.Image, error)
}

// FitzRenderer renders PDF pages with MuPDF.
type FitzRenderer struct{}

func (r *FitzRenderer) RenderPages(raw []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf for rendering: %w", err)
	}
	defer doc.Close()

	images := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.Image(n)
		if err != nil {
			// A single unrenderable page must not sink the document.
			log.Printf("extractor: failed to render pdf page %d: %v", n+1, err)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

// OCRStrategy extracts text from images and PDFs. PDFs are tried with their
// embedded text layer first; scanned PDFs fall back to per-page rendering
// and OCR on a bounded worker pool.
type OCRStrategy struct {
	engine      OCREngine
	renderer    PageRenderer
	workers     int
	pageTimeout time.Duration
}

func NewOCRStrategy(engine OCREngine) *OCRStrategy {
	return &OCRStrategy{
		engine:      engine,
		renderer:    &FitzRenderer{},
		workers:     defaultOCRWorkers,
		pageTimeout: defaultPageTimeout,
	}
}

func (s *OCRStrategy) Extract(ctx context.Context, raw []byte, filename string) (*Result, error) {
	if len(raw) == 0 {
		return nil, domain.ErrNoExtractableText
	}
	if bytes.HasPrefix(raw, []byte("%PDF")) {
		return s.extractPDF(ctx, raw)
	}
	return s.extractImage(ctx, raw)
}

func (s *OCRStrategy) extractImage(ctx context.Context, raw []byte) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
			"failed to decode image", err)
	}

	text, err := s.ocrPage(ctx, img)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
			"failed to recognize image text", err)
	}
	if text == "" {
		return nil, domain.ErrNoExtractableText
	}

	return &Result{
		Text:     text,
		Metadata: map[string]string{MetaStrategy: "ocr"},
	}, nil
}

func (s *OCRStrategy) extractPDF(ctx context.Context, raw []byte) (*Result, error) {
	if text, pages, err := nativePDFText(raw); err == nil && text != "" {
		return &Result{
			Text: text,
			Metadata: map[string]string{
				MetaStrategy:  "pdf-native",
				MetaPageCount: strconv.Itoa(pages),
			},
		}, nil
	}

	images, err := s.renderer.RenderPages(raw)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
			"failed to rasterize pdf", err)
	}
	if len(images) == 0 {
		return nil, domain.ErrNoExtractableText
	}

	texts := s.ocrPages(ctx, images)
	joined := joinPages(texts)
	if joined == "" {
		return nil, domain.ErrNoExtractableText
	}

	return &Result{
		Text: joined,
		Metadata: map[string]string{
			MetaStrategy:  "pdf-ocr",
			MetaPageCount: strconv.Itoa(len(images)),
		},
	}, nil
}

// ocrPages recognizes pages concurrently. A failed page contributes empty
// text rather than failing the document.
func (s *OCRStrategy) ocrPages(ctx context.Context, images []image.Image) []string {
	texts := make([]string, len(images))

	size := s.workers
	if len(images) < size {
		size = len(images)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		for i, img := range images {
			texts[i] = s.ocrPageAbsorbed(ctx, i, img)
		}
		return texts
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, img := range images {
		i, img := i, img
		wg.Add(1)
		task := func() {
			defer wg.Done()
			texts[i] = s.ocrPageAbsorbed(ctx, i, img)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			texts[i] = s.ocrPageAbsorbed(ctx, i, img)
		}
	}
	wg.Wait()
	return texts
}

func (s *OCRStrategy) ocrPageAbsorbed(ctx context.Context, page int, img image.Image) string {
	text, err := s.ocrPage(ctx, img)
	if err != nil {
		log.Printf("extractor: ocr failed on page %d: %v", page+1, err)
		return ""
	}
	return text
}

func (s *OCRStrategy) ocrPage(ctx context.Context, img image.Image) (string, error) {
	processed := Preprocess(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, processed); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.pageTimeout)
	defer cancel()

	text, err := s.engine.Recognize(ctx, buf.Bytes())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// nativePDFText pulls the embedded text layer out of a PDF. The parser is
// known to panic on malformed files, so the whole pass is recover-guarded.
func nativePDFText(raw []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("pdf parser panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to open pdf: %w", err)
	}

	pages = reader.NumPage()
	pageTexts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := guardedPageText(page)
		if err != nil {
			log.Printf("extractor: failed to read pdf page %d text: %v", i, err)
			continue
		}
		pageTexts = append(pageTexts, content)
	}
	return joinPages(pageTexts), pages, nil
}

// guardedPageText bounds a single page's text extraction, which can hang or
// panic on pathological content streams.
func guardedPageText(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{"", fmt.Errorf("page text extraction panicked: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(nativeTextTimeout):
		return "", fmt.Errorf("page text extraction timed out after %s", nativeTextTimeout)
	}
}

func joinPages(pages []string) string {
	nonEmpty := make([]string, 0, len(pages))
	for _, p := range pages {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			nonEmpty = append(nonEmpty, trimmed)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
