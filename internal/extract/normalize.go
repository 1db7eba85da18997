package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reHorizontalSpace = regexp.MustCompile(`[ \t\p{Zs}]+`)
	reSpaceAroundLF   = regexp.MustCompile(` *\n *`)
	reManyNewlines    = regexp.MustCompile(`\n{3,}`)
	reDigitLetter     = regexp.MustCompile(`(\d)(\p{L})`)
	reLetterDigit     = regexp.MustCompile(`(\p{L})(\d)`)
	reLowerUpper      = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	reSpaceBeforePunc = regexp.MustCompile(` +([,.;:!?)])`)
	rePuncLetter      = regexp.MustCompile(`([,;:!?])(\p{L})`)
)

// Normalize cleans OCR and PDF text: control characters other than newline
// and tab are dropped, runs of blanks collapse to one space, at most one empty
// line is kept between paragraphs, glued words are split at digit/letter and
// lower/upper boundaries, and spacing around punctuation is fixed.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)

	s = reHorizontalSpace.ReplaceAllString(s, " ")
	s = reDigitLetter.ReplaceAllString(s, "$1 $2")
	s = reLetterDigit.ReplaceAllString(s, "$1 $2")
	s = reLowerUpper.ReplaceAllString(s, "$1 $2")
	s = reSpaceBeforePunc.ReplaceAllString(s, "$1")
	s = rePuncLetter.ReplaceAllString(s, "$1 $2")
	s = reSpaceAroundLF.ReplaceAllString(s, "\n")
	s = reManyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
