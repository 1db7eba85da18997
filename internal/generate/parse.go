package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pavelanni/qcm/internal/model"
)

const batchSchemaJSON = `{
  "type": "object",
  "required": ["qcm"],
  "properties": {
    "qcm": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "option_1", "option_2", "option_3", "option_4", "correctOptionIndex"],
        "properties": {
          "question": {"type": "string", "pattern": "\\S"},
          "option_1": {"type": "string", "pattern": "\\S"},
          "option_2": {"type": "string", "pattern": "\\S"},
          "option_3": {"type": "string", "pattern": "\\S"},
          "option_4": {"type": "string", "pattern": "\\S"},
          "correctOptionIndex": {"type": "integer", "minimum": 1, "maximum": 4}
        }
      }
    }
  }
}`

var batchSchema = mustSchema(batchSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

var errNoJSON = errors.New("no JSON object in response")

type rawItem struct {
	Question string  `json:"question"`
	Option1  string  `json:"option_1"`
	Option2  string  `json:"option_2"`
	Option3  string  `json:"option_3"`
	Option4  string  `json:"option_4"`
	Correct  float64 `json:"correctOptionIndex"`
}

// ParseBatch extracts exactly count items from a model response. Any schema
// violation, or fewer than count items, rejects the whole batch. Extra items
// are dropped.
func ParseBatch(raw string, count int) ([]model.Item, error) {
	obj := FirstJSONObject(raw)
	if obj == "" {
		return nil, errNoJSON
	}
	result, err := batchSchema.Validate(gojsonschema.NewStringLoader(obj))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}

	var payload struct {
		QCM []rawItem `json:"qcm"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.QCM) < count {
		return nil, fmt.Errorf("got %d items, want %d", len(payload.QCM), count)
	}

	items := make([]model.Item, 0, count)
	for i, r := range payload.QCM[:count] {
		opts := [model.NumOptions]string{r.Option1, r.Option2, r.Option3, r.Option4}
		if a, b, dup := repeatedOption(opts); dup {
			return nil, fmt.Errorf("item %d: option_%d repeats option_%d", i+1, b+1, a+1)
		}
		items = append(items, model.Item{
			Question: strings.TrimSpace(r.Question),
			Options: [model.NumOptions]string{
				strings.TrimSpace(r.Option1),
				strings.TrimSpace(r.Option2),
				strings.TrimSpace(r.Option3),
				strings.TrimSpace(r.Option4),
			},
			CorrectOption: int(r.Correct),
			Status:        model.ItemPending,
		})
	}
	return items, nil
}

// repeatedOption reports the first pair of options that are equal once
// trimmed, ignoring case.
func repeatedOption(opts [model.NumOptions]string) (int, int, bool) {
	for i := range opts {
		for j := i + 1; j < len(opts); j++ {
			if strings.EqualFold(strings.TrimSpace(opts[i]), strings.TrimSpace(opts[j])) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// FirstJSONObject returns the first balanced JSON object in s, or "" when
// there is none. Braces inside strings are ignored.
func FirstJSONObject(s string) string {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 {
			return s[start : end+1]
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			return ""
		}
		start += next + 1
	}
	return ""
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
