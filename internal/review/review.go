// Package review implements the teacher validation workflow over generated
// items and the student-facing views of validated items.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/generate"
	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/store"
)

// RevisionLimit bounds the revision list.
const RevisionLimit = 20

// Processor runs extraction and generation for a document.
type Processor interface {
	Process(ctx context.Context, ownerID, docID int64, count int) (model.ProcessResult, error)
}

// Service validates items and serves them to students.
type Service struct {
	store *store.Store
	proc  Processor
}

// New creates a review service.
func New(st *store.Store, proc Processor) *Service {
	return &Service{store: st, proc: proc}
}

// Accept marks a pending item of ownerID as validated.
func (s *Service) Accept(ctx context.Context, ownerID, itemID int64) error {
	ok, err := s.store.ValidateItem(ctx, ownerID, itemID)
	if err != nil {
		return fmt.Errorf("accept item %d: %w", itemID, err)
	}
	if !ok {
		return fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}
	slog.Info("item accepted", "id", itemID, "owner", ownerID)
	return nil
}

// AcceptWithEdits applies edits to an item and marks it validated. Already
// validated items may be edited again.
func (s *Service) AcceptWithEdits(ctx context.Context, ownerID, itemID int64, e model.ItemEdits) error {
	e, err := cleanEdits(e)
	if err != nil {
		return err
	}
	ok, err := s.store.EditAndValidateItem(ctx, ownerID, itemID, e)
	if err != nil {
		return fmt.Errorf("edit item %d: %w", itemID, err)
	}
	if !ok {
		return fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}
	slog.Info("item accepted with edits", "id", itemID, "owner", ownerID)
	return nil
}

func cleanEdits(e model.ItemEdits) (model.ItemEdits, error) {
	if e.Empty() {
		return e, fmt.Errorf("no edits given: %w", model.ErrValidation)
	}
	if e.CorrectOption != nil && !model.ValidOption(*e.CorrectOption) {
		return e, fmt.Errorf("correct option %d outside [1, %d]: %w", *e.CorrectOption, model.NumOptions, model.ErrValidation)
	}
	if e.Question != nil {
		q := strings.TrimSpace(*e.Question)
		if q == "" {
			return e, fmt.Errorf("question is blank: %w", model.ErrValidation)
		}
		e.Question = &q
	}
	for i, o := range e.Options {
		if o == nil {
			continue
		}
		v := strings.TrimSpace(*o)
		if v == "" {
			return e, fmt.Errorf("option %d is blank: %w", i+1, model.ErrValidation)
		}
		e.Options[i] = &v
	}
	return e, nil
}

// Reject deletes an item of ownerID.
func (s *Service) Reject(ctx context.Context, ownerID, itemID int64) error {
	ok, err := s.store.DeleteItem(ctx, ownerID, itemID)
	if err != nil {
		return fmt.Errorf("reject item %d: %w", itemID, err)
	}
	if !ok {
		return fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}
	slog.Info("item rejected", "id", itemID, "owner", ownerID)
	return nil
}

// Regenerate replaces the pending items of the document's chapter with a
// fresh batch. Validated items are kept as they are. The old pending items
// are only dropped once the new batch is stored, so a failed run leaves the
// chapter as it was.
func (s *Service) Regenerate(ctx context.Context, ownerID, docID int64, count int) (model.ProcessResult, error) {
	if count < 1 || count > generate.MaxCount {
		return model.ProcessResult{}, fmt.Errorf("count %d outside [1, %d]: %w", count, generate.MaxCount, model.ErrValidation)
	}
	d, err := s.store.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return model.ProcessResult{}, err
	}
	pending, err := s.store.ListPendingItems(ctx, ownerID)
	if err != nil {
		return model.ProcessResult{}, fmt.Errorf("list pending items: %w", err)
	}
	var lastID int64
	for _, it := range pending {
		if it.ChapterTag == d.ChapterTag && it.ID > lastID {
			lastID = it.ID
		}
	}

	res, err := s.proc.Process(ctx, ownerID, docID, count)
	if err != nil || lastID == 0 {
		return res, err
	}
	n, err := s.store.DeletePendingItems(ctx, ownerID, d.ChapterTag, lastID)
	if err != nil {
		return res, fmt.Errorf("drop pending items: %w", err)
	}
	slog.Info("dropped pending items", "chapter", d.ChapterTag, "owner", ownerID, "count", n)
	res.ReplacedItems = n
	return res, nil
}

// ListPending returns the pending items of ownerID, newest first.
func (s *Service) ListPending(ctx context.Context, ownerID int64) ([]model.Item, error) {
	items, err := s.store.ListPendingItems(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	if items == nil {
		items = []model.Item{}
	}
	return items, nil
}

// studentGrade returns the grade of the student's class, or chapter.NoGrade
// when the student has not chosen a class yet.
func (s *Service) studentGrade(ctx context.Context, studentID int64) (chapter.Grade, error) {
	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return chapter.NoGrade, err
	}
	if st.ClassID == nil {
		return chapter.NoGrade, nil
	}
	c, err := s.store.GetClass(ctx, *st.ClassID)
	if err != nil {
		return chapter.NoGrade, err
	}
	return c.Grade, nil
}

// StudentItems returns the validated items of one chapter as the student sees
// them. Chapters outside the student's level yield an empty list.
func (s *Service) StudentItems(ctx context.Context, studentID int64, chapterTag string) ([]model.StudentItem, error) {
	if _, err := chapter.Decode(chapterTag); err != nil {
		return nil, fmt.Errorf("%v: %w", err, model.ErrValidation)
	}
	grade, err := s.studentGrade(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !chapter.VisibleTo(chapterTag, grade) {
		return []model.StudentItem{}, nil
	}
	items, err := s.store.StudentItems(ctx, studentID, chapterTag)
	if err != nil {
		return nil, fmt.Errorf("list student items: %w", err)
	}
	if items == nil {
		items = []model.StudentItem{}
	}
	return items, nil
}

// ChapterItems groups the items of one chapter.
type ChapterItems struct {
	Chapter string              `json:"chapter"`
	Label   string              `json:"label"`
	Items   []model.StudentItem `json:"items"`
}

// ItemsByProgram returns the validated items of a program visible to the
// student's level, grouped by chapter.
func (s *Service) ItemsByProgram(ctx context.Context, studentID int64, program chapter.ProgramType) ([]ChapterItems, error) {
	grade, err := s.studentGrade(ctx, studentID)
	if err != nil {
		return nil, err
	}
	validated, err := s.store.ListValidatedItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list validated items: %w", err)
	}

	var tags []string
	seen := make(map[string]bool)
	for _, it := range validated {
		if seen[it.ChapterTag] {
			continue
		}
		seen[it.ChapterTag] = true
		if chapter.Matches(it.ChapterTag, program, grade) && chapter.VisibleTo(it.ChapterTag, grade) {
			tags = append(tags, it.ChapterTag)
		}
	}

	out := []ChapterItems{}
	for _, tag := range tags {
		items, err := s.store.StudentItems(ctx, studentID, tag)
		if err != nil {
			return nil, fmt.Errorf("list student items: %w", err)
		}
		t, _ := chapter.Decode(tag)
		out = append(out, ChapterItems{Chapter: tag, Label: t.Display(), Items: items})
	}
	return out, nil
}

// Revision returns the items the student answered wrongly, most recent
// first. An empty chapterTag covers every chapter.
func (s *Service) Revision(ctx context.Context, studentID int64, chapterTag string) ([]model.StudentItem, error) {
	if chapterTag != "" {
		if _, err := chapter.Decode(chapterTag); err != nil {
			return nil, fmt.Errorf("%v: %w", err, model.ErrValidation)
		}
	}
	items, err := s.store.RevisionItems(ctx, studentID, chapterTag, RevisionLimit)
	if err != nil {
		return nil, fmt.Errorf("list revision items: %w", err)
	}
	if items == nil {
		items = []model.StudentItem{}
	}
	return items, nil
}
