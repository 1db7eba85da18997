package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// Templates holds the built-in prompt templates.
//
//go:embed templates/*.txt
var Templates embed.FS

var courseTextRegex = regexp.MustCompile(`(?i)</?\s*course-text\b[^>]*>`)

const (
	// MaxCourseRunes bounds the course text sent for generation.
	MaxCourseRunes = 12000
	// TitleRunes is how much of the text is used to infer a title.
	TitleRunes = 1000
)

var (
	loadOnce      sync.Once
	loadErr       error
	generateTmpl  *template.Template
	titleTmpl     *template.Template
	languageNames = map[string]string{"en": "English", "fr": "French"}
)

// GenerateData holds template data for question generation prompts.
type GenerateData struct {
	Count    int
	Language string
	Text     string
}

// TitleData holds template data for title prompts.
type TitleData struct {
	Language string
	Text     string
}

// Load parses the prompt templates from fsys, usually Templates.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		generateTmpl, loadErr = parse(fsys, "templates/generate.txt")
		if loadErr != nil {
			return
		}
		titleTmpl, loadErr = parse(fsys, "templates/title.txt")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// LanguageName maps a locale tag to the language name used in prompts.
func LanguageName(lang string) string {
	if name, ok := languageNames[strings.ToLower(lang)]; ok {
		return name
	}
	return languageNames["fr"]
}

// BuildGeneratePrompt builds the prompt asking for count questions.
func BuildGeneratePrompt(text string, count int, lang string) (string, error) {
	if generateTmpl == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	return execute(generateTmpl, GenerateData{
		Count:    count,
		Language: LanguageName(lang),
		Text:     sanitizeText(text, MaxCourseRunes),
	})
}

// BuildTitlePrompt builds the prompt asking for a course title.
func BuildTitlePrompt(text, lang string) (string, error) {
	if titleTmpl == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	return execute(titleTmpl, TitleData{
		Language: LanguageName(lang),
		Text:     sanitizeText(text, TitleRunes),
	})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeText removes tags that would let the course text escape its
// delimiters and truncates it to max runes.
func sanitizeText(text string, max int) string {
	text = courseTextRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > max {
		runes := []rune(text)
		text = string(runes[:max])
	}
	return text
}
