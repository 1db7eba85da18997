// Package generate turns course text into multiple-choice items with a
// language model. A failed or malformed generation never fails the caller: it
// degrades to deterministic placeholder items and says so.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/qcm/internal/llm/prompts"
	"github.com/pavelanni/qcm/internal/model"
)

const (
	// MinTextRunes is the shortest course text accepted for generation.
	MinTextRunes = 50
	// MaxCount is the largest batch a single request may ask for.
	MaxCount = 10
	// MaxTitleRunes bounds inferred titles.
	MaxTitleRunes = 60
)

// ErrInsufficientContent is returned when the course text is too short.
var ErrInsufficientContent = fmt.Errorf("course text shorter than %d characters: %w", MinTextRunes, model.ErrValidation)

// Completer is a language model endpoint.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Batch is the result of one generation request.
type Batch struct {
	Items          []model.Item `json:"items"`
	FallbackUsed   bool         `json:"fallback_used"`
	FallbackReason string       `json:"fallback_reason,omitempty"`
}

// Generator produces items and titles from course text.
type Generator struct {
	llm  Completer
	lang string
}

// New creates a generator writing prompts for the given locale.
func New(llm Completer, lang string) (*Generator, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &Generator{llm: llm, lang: lang}, nil
}

// ValidateRequest checks the inputs of Generate without calling the model.
func ValidateRequest(text string, count int) error {
	if count < 1 || count > MaxCount {
		return fmt.Errorf("count %d outside [1, %d]: %w", count, MaxCount, model.ErrValidation)
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextRunes {
		return ErrInsufficientContent
	}
	return nil
}

// Generate asks the model for exactly count items. Input errors are returned;
// every model-side failure yields a fallback batch instead.
func (g *Generator) Generate(ctx context.Context, text string, count int) (Batch, error) {
	if err := ValidateRequest(text, count); err != nil {
		return Batch{}, err
	}
	prompt, err := prompts.BuildGeneratePrompt(text, count, g.lang)
	if err != nil {
		return Batch{}, fmt.Errorf("build prompt: %v: %w", err, model.ErrInternal)
	}

	raw, err := g.llm.CompleteJSON(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Batch{}, ctx.Err()
		}
		return fallbackBatch(count, fmt.Sprintf("provider error: %v", err)), nil
	}
	items, err := ParseBatch(raw, count)
	if err != nil {
		slog.Debug("rejected generation response", "raw", raw)
		return fallbackBatch(count, err.Error()), nil
	}
	return Batch{Items: items}, nil
}

func fallbackBatch(count int, reason string) Batch {
	slog.Warn("question generation fell back to placeholders", "count", count, "reason", reason)
	return Batch{Items: Fallback(count), FallbackUsed: true, FallbackReason: reason}
}

// Fallback returns count deterministic placeholder items.
func Fallback(count int) []model.Item {
	items := make([]model.Item, 0, count)
	for k := 1; k <= count; k++ {
		items = append(items, model.Item{
			Question:      fmt.Sprintf("auto-generated placeholder #%d", k),
			Options:       [model.NumOptions]string{"Option A", "Option B", "Option C", "Option D"},
			CorrectOption: 1,
			Status:        model.ItemPending,
		})
	}
	return items
}

var (
	reQuotes     = regexp.MustCompile(`["“”«»]`)
	reTitleLabel = regexp.MustCompile(`(?i)^\s*(title|titre)\s*:\s*`)
)

// InferTitle asks the model for a short course title. It never fails: any
// problem yields model.DefaultTitle.
func (g *Generator) InferTitle(ctx context.Context, text string) string {
	prompt, err := prompts.BuildTitlePrompt(text, g.lang)
	if err != nil {
		slog.Warn("build title prompt", "error", err)
		return model.DefaultTitle
	}
	raw, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		slog.Warn("title inference failed", "error", err)
		return model.DefaultTitle
	}
	return CleanTitle(raw)
}

// CleanTitle strips quotes and a leading label from a model reply, keeps the
// first line and truncates to MaxTitleRunes.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = reQuotes.ReplaceAllString(title, "")
	title = reTitleLabel.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > MaxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:MaxTitleRunes]))
	}
	if title == "" {
		return model.DefaultTitle
	}
	return title
}
