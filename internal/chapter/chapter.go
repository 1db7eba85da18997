// Package chapter encodes curriculum program and grade level into the single
// chapter identifier carried by documents and items.
package chapter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTag is returned when a string was not produced by Encode.
var ErrMalformedTag = errors.New("malformed chapter tag")

const (
	examPrefix = "EXAM_"
	suppPrefix = "SUPP_"
)

// ProgramType is the content track a chapter belongs to.
type ProgramType string

const (
	// Normal is the regular curriculum of a class.
	Normal ProgramType = "normal"
	// ExamPrep is final-year exam preparation content.
	ExamPrep ProgramType = "exam_prep"
	// Supplementary is level-specific extra content.
	Supplementary ProgramType = "supplementary"
)

// ParseProgramType validates a program type name.
func ParseProgramType(s string) (ProgramType, error) {
	switch p := ProgramType(strings.ToLower(strings.TrimSpace(s))); p {
	case Normal, ExamPrep, Supplementary:
		return p, nil
	}
	return "", fmt.Errorf("unknown program type %q", s)
}

// Grade is a lower-secondary class level.
type Grade string

const (
	// NoGrade marks a tag without a level segment.
	NoGrade Grade = ""
	Grade6  Grade = "6e"
	Grade5  Grade = "5e"
	Grade4  Grade = "4e"
	Grade3  Grade = "3e"
)

// GradeExamPrep is the only level allowed to see exam-prep content.
const GradeExamPrep = Grade3

// Grades lists every level from youngest to oldest.
var Grades = []Grade{Grade6, Grade5, Grade4, Grade3}

// ParseGrade validates a level name.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToLower(strings.TrimSpace(s)))
	if g.Valid() {
		return g, nil
	}
	return NoGrade, fmt.Errorf("unknown grade %q", s)
}

// Valid reports whether g is one of the known levels.
func (g Grade) Valid() bool {
	switch g {
	case Grade6, Grade5, Grade4, Grade3:
		return true
	}
	return false
}

// Rank orders levels from 1 (6e) to 4 (3e); 0 for unknown.
func (g Grade) Rank() int {
	for i, v := range Grades {
		if v == g {
			return i + 1
		}
	}
	return 0
}

// Tag is the decoded form of a chapter identifier.
type Tag struct {
	Program ProgramType
	Grade   Grade
	Base    string
}

// Encode builds the chapter identifier for a program, optional grade and base name.
func Encode(program ProgramType, grade Grade, base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("%w: empty chapter name", ErrMalformedTag)
	}
	switch program {
	case Normal:
		if grade != NoGrade {
			return "", fmt.Errorf("%w: normal chapters carry no grade", ErrMalformedTag)
		}
		if hasReservedPrefix(base) {
			return "", fmt.Errorf("%w: chapter name %q uses a reserved prefix", ErrMalformedTag, base)
		}
		return base, nil
	case ExamPrep:
		if grade != NoGrade {
			return "", fmt.Errorf("%w: exam-prep chapters carry no grade", ErrMalformedTag)
		}
		return examPrefix + base, nil
	case Supplementary:
		if !grade.Valid() {
			return "", fmt.Errorf("%w: supplementary chapters need a grade, got %q", ErrMalformedTag, grade)
		}
		return suppPrefix + string(grade) + "_" + base, nil
	}
	return "", fmt.Errorf("%w: unknown program type %q", ErrMalformedTag, program)
}

// Decode parses an identifier produced by Encode.
func Decode(s string) (Tag, error) {
	switch {
	case s == "":
		return Tag{}, fmt.Errorf("%w: empty tag", ErrMalformedTag)
	case strings.HasPrefix(s, examPrefix):
		base := strings.TrimPrefix(s, examPrefix)
		if err := checkBase(s, base); err != nil {
			return Tag{}, err
		}
		return Tag{Program: ExamPrep, Base: base}, nil
	case strings.HasPrefix(s, suppPrefix):
		rest := strings.TrimPrefix(s, suppPrefix)
		gradePart, base, ok := strings.Cut(rest, "_")
		if !ok {
			return Tag{}, fmt.Errorf("%w: %q has no grade segment", ErrMalformedTag, s)
		}
		g := Grade(gradePart)
		if !g.Valid() {
			return Tag{}, fmt.Errorf("%w: %q has unknown grade %q", ErrMalformedTag, s, gradePart)
		}
		if err := checkBase(s, base); err != nil {
			return Tag{}, err
		}
		return Tag{Program: Supplementary, Grade: g, Base: base}, nil
	}
	if err := checkBase(s, s); err != nil {
		return Tag{}, err
	}
	return Tag{Program: Normal, Base: s}, nil
}

// checkBase rejects chapter names Encode never emits.
func checkBase(tag, base string) error {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return fmt.Errorf("%w: %q has no chapter name", ErrMalformedTag, tag)
	}
	if trimmed != base {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrMalformedTag, tag)
	}
	return nil
}

// Matches reports whether s decodes to the given program. The grade is only
// compared for supplementary tags, and only when it is set.
func Matches(s string, program ProgramType, grade Grade) bool {
	t, err := Decode(s)
	if err != nil || t.Program != program {
		return false
	}
	if program == Supplementary && grade != NoGrade {
		return t.Grade == grade
	}
	return true
}

// VisibleTo reports whether a class of the given grade may see chapter s.
func VisibleTo(s string, grade Grade) bool {
	t, err := Decode(s)
	if err != nil {
		return false
	}
	switch t.Program {
	case ExamPrep:
		return grade == GradeExamPrep
	case Supplementary:
		return t.Grade == grade
	}
	return true
}

// String returns the encoded identifier.
func (t Tag) String() string {
	s, err := Encode(t.Program, t.Grade, t.Base)
	if err != nil {
		return ""
	}
	return s
}

// Display returns an English label for the tag.
func (t Tag) Display() string {
	switch t.Program {
	case ExamPrep:
		return "Exam prep - " + t.Base
	case Supplementary:
		return "Supplementary " + string(t.Grade) + " - " + t.Base
	}
	return t.Base
}

func hasReservedPrefix(s string) bool {
	return strings.HasPrefix(s, examPrefix) || strings.HasPrefix(s, suppPrefix)
}
