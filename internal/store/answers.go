package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

// InsertAnswer appends an answer to the ledger. A second answer for the same
// (student, item) pair is refused by the UNIQUE constraint and reported as
// model.ErrDuplicateSubmission.
func (s *Store) InsertAnswer(ctx context.Context, a model.Answer) (int64, error) {
	var rt any
	if a.ResponseTime != nil {
		rt = *a.ResponseTime
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (student_id, item_id, chosen, is_correct, response_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(student_id, item_id) DO NOTHING`,
		a.StudentID, a.ItemID, a.Chosen, a.IsCorrect, rt, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("student %d item %d: %w", a.StudentID, a.ItemID, model.ErrDuplicateSubmission)
	}
	return res.LastInsertId()
}

// FindAnswer returns the answer of a student for an item. found is false when
// the student has not answered yet; err is only set on store failures.
func (s *Store) FindAnswer(ctx context.Context, studentID, itemID int64) (a model.Answer, found bool, err error) {
	var rt sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, student_id, item_id, chosen, is_correct, response_time, created_at
		 FROM answers WHERE student_id = ? AND item_id = ?`, studentID, itemID,
	).Scan(&a.ID, &a.StudentID, &a.ItemID, &a.Chosen, &a.IsCorrect, &rt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Answer{}, false, nil
	}
	if err != nil {
		return model.Answer{}, false, err
	}
	if rt.Valid {
		v := int(rt.Int64)
		a.ResponseTime = &v
	}
	return a, true, nil
}

// AnswerCount returns the number of answers recorded for a student and item.
func (s *Store) AnswerCount(ctx context.Context, studentID, itemID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE student_id = ? AND item_id = ?`, studentID, itemID,
	).Scan(&count)
	return count, err
}
