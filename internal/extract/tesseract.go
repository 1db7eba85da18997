package extract

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Tesseract runs the tesseract CLI and reads its TSV output, which carries a
// confidence per recognized word.
type Tesseract struct {
	Bin     string
	Timeout time.Duration
}

// NewTesseract returns an engine using the given binary, "tesseract" when
// empty.
func NewTesseract(bin string) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	return &Tesseract{Bin: bin, Timeout: 5 * time.Minute}
}

// Recognize implements OCREngine.
func (t *Tesseract) Recognize(ctx context.Context, path, lang string) (OCRResult, error) {
	if _, err := exec.LookPath(t.Bin); err != nil {
		return OCRResult{}, fmt.Errorf("tesseract not found: %w", err)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, t.Bin, path, "stdout", "-l", lang, "tsv")
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return OCRResult{}, fmt.Errorf("tesseract failed: %w; stderr=%s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return OCRResult{}, fmt.Errorf("tesseract failed: %w", err)
	}
	return ParseTSV(string(out))
}

// ParseTSV rebuilds text from tesseract TSV output. Words on the same line are
// joined by a space, lines by a newline and paragraphs by an empty line. The
// confidence is the mean over recognized words.
func ParseTSV(tsv string) (OCRResult, error) {
	type lineKey struct{ page, block, par, line int }

	var sb strings.Builder
	var prev lineKey
	var sum float64
	words := 0
	sc := bufio.NewScanner(strings.NewReader(tsv))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for first := true; sc.Scan(); {
		fields := strings.Split(sc.Text(), "\t")
		if first {
			first = false
			if len(fields) > 0 && fields[0] == "level" {
				continue
			}
		}
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		var k lineKey
		k.page, _ = strconv.Atoi(fields[1])
		k.block, _ = strconv.Atoi(fields[2])
		k.par, _ = strconv.Atoi(fields[3])
		k.line, _ = strconv.Atoi(fields[4])

		switch {
		case words == 0:
		case k.page != prev.page || k.block != prev.block || k.par != prev.par:
			sb.WriteString("\n\n")
		case k.line != prev.line:
			sb.WriteByte('\n')
		default:
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
		prev = k
		sum += conf
		words++
	}
	if err := sc.Err(); err != nil {
		return OCRResult{}, fmt.Errorf("read tsv: %w", err)
	}
	if words == 0 {
		return OCRResult{}, nil
	}
	return OCRResult{Text: sb.String(), Confidence: sum / float64(words)}, nil
}
