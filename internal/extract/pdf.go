package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads PDF text with ledongthuc/pdf.
type TextLayer struct{}

// ReadText implements PDFReader. Pages without content are skipped.
func (TextLayer) ReadText(ctx context.Context, data []byte) (text string, pages int, err error) {
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(t)
	}
	return sb.String(), pages, nil
}

var rePageImage = regexp.MustCompile(`^page-\d+\.png$`)

// Pdftoppm renders PDF pages to PNG with poppler's pdftoppm.
type Pdftoppm struct {
	Bin     string
	DPI     int
	Timeout time.Duration
}

// NewPdftoppm returns a rasterizer using the given binary, "pdftoppm" when
// empty.
func NewPdftoppm(bin string) *Pdftoppm {
	if bin == "" {
		bin = "pdftoppm"
	}
	return &Pdftoppm{Bin: bin, DPI: 300, Timeout: 10 * time.Minute}
}

// Rasterize implements Rasterizer.
func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	if _, err := exec.LookPath(p.Bin); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRasterizerUnavailable, p.Bin, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	dpi := p.DPI
	if dpi <= 0 {
		dpi = 300
	}
	cmd := exec.CommandContext(ctx, p.Bin, "-r", strconv.Itoa(dpi), "-png", pdfPath, filepath.Join(outDir, "page"))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}
	return pageImages(outDir)
}

// pageImages lists the rendered pages in page order. pdftoppm zero-pads page
// numbers to a common width, so a lexical sort is enough.
func pageImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && rePageImage.MatchString(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
