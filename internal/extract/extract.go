// Package extract turns uploaded course files into normalized plain text.
// PDFs are read from their text layer first and fall back to page-by-page OCR
// when the layer is empty; images go straight to OCR.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/qcm/internal/model"
)

const (
	// DefaultMaxFileSize is the largest accepted upload.
	DefaultMaxFileSize = 500 << 20
	// DefaultLang is the tesseract language used when none is configured.
	DefaultLang = "fra"
	// LowConfidenceThreshold flags OCR results below this mean confidence.
	LowConfidenceThreshold = 60.0

	minNativeTextLen = 50
	defaultWorkers   = 4
)

// Method records how the text was obtained.
type Method string

const (
	MethodPDFText  Method = "pdf_text"
	MethodPDFOCR   Method = "pdf_ocr"
	MethodImageOCR Method = "image_ocr"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".bmp": true, ".gif": true, ".webp": true,
}

// Supported reports whether a file name has an extension the pipeline accepts.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pdf" || imageExts[ext]
}

// ErrRasterizerUnavailable is returned by a Rasterizer whose backing tool is
// not installed.
var ErrRasterizerUnavailable = errors.New("rasterizer unavailable")

// OCRResult is the recognized text of one image.
type OCRResult struct {
	Text       string
	Confidence float64 // 0..100
}

// OCREngine recognizes text in an image file.
type OCREngine interface {
	Recognize(ctx context.Context, path, lang string) (OCRResult, error)
}

// PDFReader reads the embedded text layer of a PDF. It returns the text and
// the number of pages.
type PDFReader interface {
	ReadText(ctx context.Context, data []byte) (string, int, error)
}

// Rasterizer renders every page of a PDF to an image file in outDir and
// returns the image paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// Result is the outcome of one extraction.
type Result struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
	Method        Method  `json:"method"`
	Pages         int     `json:"pages"`
}

// Config tunes a Pipeline. Zero values select the defaults.
type Config struct {
	Lang        string
	MaxFileSize int64
	Workers     int
	TempDir     string
}

// Pipeline extracts text from PDFs and images.
type Pipeline struct {
	ocr    OCREngine
	pdf    PDFReader
	raster Rasterizer
	cfg    Config
}

// NewPipeline creates a pipeline. raster may be nil, in which case scanned
// PDFs are refused with model.ErrScannedUnsupported.
func NewPipeline(ocr OCREngine, pdf PDFReader, raster Rasterizer, cfg Config) *Pipeline {
	if cfg.Lang == "" {
		cfg.Lang = DefaultLang
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Pipeline{ocr: ocr, pdf: pdf, raster: raster, cfg: cfg}
}

// Extract reads the file at path and returns its normalized text.
func (p *Pipeline) Extract(ctx context.Context, path string) (Result, error) {
	if err := p.checkFile(path); err != nil {
		return Result{}, err
	}
	if strings.ToLower(filepath.Ext(path)) == ".pdf" {
		return p.extractPDF(ctx, path)
	}
	return p.extractImage(ctx, path)
}

func (p *Pipeline) checkFile(path string) error {
	if !Supported(path) {
		return fmt.Errorf("unsupported file type %q: %w", filepath.Ext(path), model.ErrExtraction)
	}
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("stat upload", "file", filepath.Base(path), "error", err)
		return fmt.Errorf("file %s is not readable: %w", filepath.Base(path), model.ErrExtraction)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", filepath.Base(path), model.ErrExtraction)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty: %w", filepath.Base(path), model.ErrExtraction)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return fmt.Errorf("file %s is %d bytes, limit is %d: %w",
			filepath.Base(path), info.Size(), p.cfg.MaxFileSize, model.ErrExtraction)
	}
	return nil
}

func (p *Pipeline) extractImage(ctx context.Context, path string) (Result, error) {
	res, err := p.ocr.Recognize(ctx, path, p.cfg.Lang)
	if err != nil {
		slog.Error("ocr failed", "file", filepath.Base(path), "error", err)
		return Result{}, fmt.Errorf("ocr failed on %s: %w", filepath.Base(path), model.ErrExtraction)
	}
	out := Result{
		Text:       Normalize(res.Text),
		Confidence: res.Confidence,
		Method:     MethodImageOCR,
		Pages:      1,
	}
	if out.Text == "" {
		return Result{}, fmt.Errorf("no text recognized in %s: %w", filepath.Base(path), model.ErrExtraction)
	}
	p.flagConfidence(&out, path)
	return out, nil
}

func (p *Pipeline) extractPDF(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("read pdf", "file", filepath.Base(path), "error", err)
		return Result{}, fmt.Errorf("file %s is not readable: %w", filepath.Base(path), model.ErrExtraction)
	}
	text, pages, err := p.pdf.ReadText(ctx, data)
	if err != nil {
		slog.Warn("pdf text layer unreadable, trying ocr", "file", filepath.Base(path), "error", err)
	}
	text = Normalize(text)
	if utf8.RuneCountInString(text) >= minNativeTextLen {
		return Result{Text: text, Confidence: 100, Method: MethodPDFText, Pages: pages}, nil
	}

	slog.Info("pdf has no usable text layer, running ocr", "file", filepath.Base(path), "text_len", len(text))
	return p.extractScanned(ctx, path)
}

func (p *Pipeline) extractScanned(ctx context.Context, path string) (Result, error) {
	if p.raster == nil {
		return Result{}, fmt.Errorf("%s: no rasterizer configured: %w", filepath.Base(path), model.ErrScannedUnsupported)
	}
	dir, err := os.MkdirTemp(p.cfg.TempDir, "qcm-pages-*")
	if err != nil {
		slog.Error("create page dir", "error", err)
		return Result{}, fmt.Errorf("page conversion failed for %s: %w", filepath.Base(path), model.ErrExtraction)
	}
	defer os.RemoveAll(dir)

	images, err := p.raster.Rasterize(ctx, path, dir)
	if errors.Is(err, ErrRasterizerUnavailable) {
		slog.Warn("rasterizer unavailable", "file", filepath.Base(path), "error", err)
		return Result{}, fmt.Errorf("%s: page conversion unavailable: %w", filepath.Base(path), model.ErrScannedUnsupported)
	}
	if err != nil {
		slog.Error("rasterize failed", "file", filepath.Base(path), "error", err)
		return Result{}, fmt.Errorf("page conversion failed for %s: %w", filepath.Base(path), model.ErrExtraction)
	}
	if len(images) == 0 {
		return Result{}, fmt.Errorf("rasterize %s: no pages: %w", filepath.Base(path), model.ErrExtraction)
	}

	pages := make([]OCRResult, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, img := range images {
		g.Go(func() error {
			res, err := p.ocr.Recognize(gctx, img, p.cfg.Lang)
			if err != nil {
				slog.Error("ocr failed", "file", filepath.Base(path), "page", i+1, "error", err)
				return &pageError{page: i + 1}
			}
			pages[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var pe *pageError
		if errors.As(err, &pe) {
			return Result{}, fmt.Errorf("ocr failed on %s page %d: %w", filepath.Base(path), pe.page, model.ErrExtraction)
		}
		return Result{}, fmt.Errorf("ocr failed on %s: %w", filepath.Base(path), model.ErrExtraction)
	}

	var sb strings.Builder
	var sum float64
	for i, pg := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pg.Text)
		sum += pg.Confidence
	}
	out := Result{
		Text:       Normalize(sb.String()),
		Confidence: sum / float64(len(pages)),
		Method:     MethodPDFOCR,
		Pages:      len(pages),
	}
	if out.Text == "" {
		return Result{}, fmt.Errorf("no text recognized in %s: %w", filepath.Base(path), model.ErrExtraction)
	}
	p.flagConfidence(&out, path)
	return out, nil
}

// pageError marks the first page whose OCR failed. The engine error itself is
// logged, never returned, since it can carry tool output and server paths.
type pageError struct{ page int }

func (e *pageError) Error() string { return fmt.Sprintf("page %d", e.page) }

func (p *Pipeline) flagConfidence(r *Result, path string) {
	if r.Confidence < LowConfidenceThreshold {
		r.LowConfidence = true
		slog.Warn("low ocr confidence", "file", filepath.Base(path), "confidence", r.Confidence)
	}
}
