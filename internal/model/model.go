package model

import (
	"context"
	"time"

	"github.com/pavelanni/qcm/internal/chapter"
)

// UserRole represents the caller's role as supplied by the upstream layer.
type UserRole string

const (
	// UserRoleStudent is a student caller.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher caller.
	UserRoleTeacher UserRole = "teacher"
)

// Identity is the authenticated caller handed to the core by the upstream layer.
type Identity struct {
	ID   int64
	Role UserRole
}

type identityCtxKey struct{}

// ContextWithIdentity stores the caller identity in the request context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// ItemStatus is the validation state of a generated item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemValidated ItemStatus = "validated"
)

// NumOptions is the fixed number of options of every item.
const NumOptions = 4

// DefaultTitle is used when no title was given and none could be inferred.
const DefaultTitle = "Untitled course"

// Document is a teacher-uploaded course document.
type Document struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	Title         string    `json:"title"`
	Subject       string    `json:"subject"`
	ChapterTag    string    `json:"chapter_tag"`
	FilePath      string    `json:"file_path,omitempty"`
	ExtractedText string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasText reports whether extracted text is cached on the document.
func (d Document) HasText() bool { return d.ExtractedText != "" }

// Item is a generated multiple-choice question.
type Item struct {
	ID            int64              `json:"id"`
	DocumentID    *int64             `json:"document_id,omitempty"`
	OwnerID       int64              `json:"owner_id"`
	ChapterTag    string             `json:"chapter_tag"`
	Question      string             `json:"question"`
	Options       [NumOptions]string `json:"options"`
	CorrectOption int                `json:"correct_option"` // 1-based
	Status        ItemStatus         `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// StudentItem is the student-facing projection of a validated item. It never
// carries the correct option.
type StudentItem struct {
	ID          int64              `json:"id"`
	ChapterTag  string             `json:"chapter_tag"`
	Question    string             `json:"question"`
	Options     [NumOptions]string `json:"options"`
	Answered    bool               `json:"answered"`
	LastCorrect *bool              `json:"last_correct,omitempty"`
}

// Answer is one entry of the answer ledger.
type Answer struct {
	ID           int64     `json:"id"`
	StudentID    int64     `json:"student_id"`
	ItemID       int64     `json:"item_id"`
	Chosen       int       `json:"chosen"`
	IsCorrect    bool      `json:"is_correct"`
	ResponseTime *int      `json:"response_time_seconds,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Class is a group of students at one grade level.
type Class struct {
	ID    int64         `json:"id"`
	Name  string        `json:"name"`
	Grade chapter.Grade `json:"grade"`
}

// Student belongs to at most one class.
type Student struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	ClassID    *int64    `json:"class_id,omitempty"`
	FirstLogin bool      `json:"first_login"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidOption reports whether i is a valid 1-based option index.
func ValidOption(i int) bool { return i >= 1 && i <= NumOptions }

// ItemEdits holds the fields a teacher changes when accepting an item. Nil
// fields are left untouched.
type ItemEdits struct {
	Question      *string             `json:"question,omitempty"`
	Options       [NumOptions]*string `json:"options"`
	CorrectOption *int                `json:"correct_option,omitempty"`
}

// Empty reports whether no field is set.
func (e ItemEdits) Empty() bool {
	if e.Question != nil || e.CorrectOption != nil {
		return false
	}
	for _, o := range e.Options {
		if o != nil {
			return false
		}
	}
	return true
}
