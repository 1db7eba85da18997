// Package analytics computes mastery, progress and dashboard aggregates over
// the answer ledger. Every computation is a pure function of the facts loaded
// through a Source; the SQLite store and in-memory fakes both implement it.
package analytics

import (
	"context"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

// AnswerFact is one ledger entry joined with its item.
type AnswerFact struct {
	StudentID    int64
	ItemID       int64
	OwnerID      int64
	ChapterTag   string
	Question     string
	Correct      bool
	ResponseTime *int
	At           time.Time
}

// ItemFact is the analytics view of an item.
type ItemFact struct {
	ID         int64
	OwnerID    int64
	ChapterTag string
	Status     model.ItemStatus
	CreatedAt  time.Time
}

// DocumentFact is the analytics view of a course document.
type DocumentFact struct {
	ID         int64
	OwnerID    int64
	ChapterTag string
}

// AnswerFilter narrows the ledger. Zero fields match everything.
type AnswerFilter struct {
	OwnerID   int64
	StudentID int64
}

// ItemFilter narrows items. Zero fields match everything.
type ItemFilter struct {
	OwnerID       int64
	ValidatedOnly bool
}

// Source provides typed read access to the facts the aggregations need.
type Source interface {
	DocumentFacts(ctx context.Context, ownerID int64) ([]DocumentFact, error)
	ItemFacts(ctx context.Context, f ItemFilter) ([]ItemFact, error)
	AnswerFacts(ctx context.Context, f AnswerFilter) ([]AnswerFact, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
	ListClasses(ctx context.Context) ([]model.Class, error)
}
