// Package scoring records student answers and grades them against the
// validated item.
package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/store"
)

// Outcome is the graded result of one submission.
type Outcome struct {
	AnswerID           int64 `json:"answer_id"`
	IsCorrect          bool  `json:"is_correct"`
	CorrectOptionIndex int   `json:"correct_option_index"`
}

// Service grades submissions.
type Service struct {
	store *store.Store
}

// New creates a scoring service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Submit records the chosen option of a student for a validated item. Each
// student answers an item at most once; later submissions fail with
// model.ErrDuplicateSubmission.
func (s *Service) Submit(ctx context.Context, studentID, itemID int64, chosen int, responseTime *int) (Outcome, error) {
	if !model.ValidOption(chosen) {
		return Outcome{}, fmt.Errorf("chosen option %d outside [1, %d]: %w", chosen, model.NumOptions, model.ErrValidation)
	}
	if responseTime != nil && *responseTime < 0 {
		return Outcome{}, fmt.Errorf("negative response time: %w", model.ErrValidation)
	}

	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return Outcome{}, err
	}
	if it.Status != model.ItemValidated {
		return Outcome{}, fmt.Errorf("item %d is not published: %w", itemID, model.ErrNotFound)
	}

	if _, found, err := s.store.FindAnswer(ctx, studentID, itemID); err != nil {
		return Outcome{}, fmt.Errorf("look up answer: %w", err)
	} else if found {
		return Outcome{}, fmt.Errorf("student %d item %d: %w", studentID, itemID, model.ErrDuplicateSubmission)
	}

	correct := chosen == it.CorrectOption
	id, err := s.store.InsertAnswer(ctx, model.Answer{
		StudentID:    studentID,
		ItemID:       itemID,
		Chosen:       chosen,
		IsCorrect:    correct,
		ResponseTime: responseTime,
	})
	if err != nil {
		return Outcome{}, err
	}
	slog.Debug("answer recorded", "student", studentID, "item", itemID, "correct", correct)
	return Outcome{AnswerID: id, IsCorrect: correct, CorrectOptionIndex: it.CorrectOption}, nil
}
