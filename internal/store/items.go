package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

const itemColumns = `id, document_id, owner_id, chapter_tag, question, option_1, option_2, option_3, option_4, correct_option, status, created_at`

func scanItem(row interface{ Scan(...any) error }) (model.Item, error) {
	var it model.Item
	var docID sql.NullInt64
	err := row.Scan(&it.ID, &docID, &it.OwnerID, &it.ChapterTag, &it.Question,
		&it.Options[0], &it.Options[1], &it.Options[2], &it.Options[3],
		&it.CorrectOption, &it.Status, &it.CreatedAt)
	if docID.Valid {
		it.DocumentID = &docID.Int64
	}
	return it, err
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertItems stores a batch of items in one transaction and returns them
// with their IDs set.
func (s *Store) InsertItems(ctx context.Context, items []model.Item) ([]model.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.Status == "" {
			it.Status = model.ItemPending
		}
		var docID any
		if it.DocumentID != nil {
			docID = *it.DocumentID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items (document_id, owner_id, chapter_tag, question, option_1, option_2, option_3, option_4,
			                    correct_option, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			docID, it.OwnerID, it.ChapterTag, it.Question,
			it.Options[0], it.Options[1], it.Options[2], it.Options[3],
			it.CorrectOption, it.Status, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert item: %w", err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		it.CreatedAt = now
		out = append(out, it)
	}
	return out, tx.Commit()
}

// GetItem returns an item by ID regardless of owner, or model.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id int64) (model.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return it, fmt.Errorf("item %d: %w", id, model.ErrNotFound)
	}
	return it, err
}

// ValidateItem marks an owned item as validated. It reports false when no
// such item exists for the owner.
func (s *Store) ValidateItem(ctx context.Context, ownerID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		model.ItemValidated, time.Now(), id, ownerID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// EditAndValidateItem applies edits and marks the item validated in a single
// statement.
func (s *Store) EditAndValidateItem(ctx context.Context, ownerID, id int64, e model.ItemEdits) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{model.ItemValidated, time.Now()}
	if e.Question != nil {
		sets = append(sets, "question = ?")
		args = append(args, *e.Question)
	}
	for i, o := range e.Options {
		if o != nil {
			sets = append(sets, fmt.Sprintf("option_%d = ?", i+1))
			args = append(args, *o)
		}
	}
	if e.CorrectOption != nil {
		sets = append(sets, "correct_option = ?")
		args = append(args, *e.CorrectOption)
	}
	args = append(args, id, ownerID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`, args...,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteItem removes an owned item. It reports false when nothing was deleted.
func (s *Store) DeleteItem(ctx context.Context, ownerID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeletePendingItems removes the pending items of an owner for one chapter
// whose id is at most maxID. Items stored after maxID was read are kept.
func (s *Store) DeletePendingItems(ctx context.Context, ownerID int64, chapterTag string, maxID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE owner_id = ? AND chapter_tag = ? AND status = ? AND id <= ?`,
		ownerID, chapterTag, model.ItemPending, maxID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPendingItems returns the pending items of an owner, newest first.
func (s *Store) ListPendingItems(ctx context.Context, ownerID int64) ([]model.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE owner_id = ? AND status = ? ORDER BY created_at DESC, id DESC`,
		ownerID, model.ItemPending,
	)
}

// ListValidatedItems returns every validated item ordered by chapter.
func (s *Store) ListValidatedItems(ctx context.Context) ([]model.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE status = ? ORDER BY chapter_tag, id`,
		model.ItemValidated,
	)
}

// StudentItems returns the validated items of a chapter with the student's
// answer state. Correct options are never selected.
func (s *Store) StudentItems(ctx context.Context, studentID int64, chapterTag string) ([]model.StudentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.chapter_tag, i.question, i.option_1, i.option_2, i.option_3, i.option_4, a.is_correct
		 FROM items i
		 LEFT JOIN answers a ON a.item_id = i.id AND a.student_id = ?
		 WHERE i.chapter_tag = ? AND i.status = ?
		 ORDER BY i.id`,
		studentID, chapterTag, model.ItemValidated,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StudentItem
	for rows.Next() {
		var si model.StudentItem
		var correct sql.NullBool
		if err := rows.Scan(&si.ID, &si.ChapterTag, &si.Question,
			&si.Options[0], &si.Options[1], &si.Options[2], &si.Options[3], &correct); err != nil {
			return nil, err
		}
		if correct.Valid {
			si.Answered = true
			c := correct.Bool
			si.LastCorrect = &c
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

// RevisionItems returns validated items the student answered wrongly, most
// recent first, optionally restricted to one chapter.
func (s *Store) RevisionItems(ctx context.Context, studentID int64, chapterTag string, limit int) ([]model.StudentItem, error) {
	query := `SELECT i.id, i.chapter_tag, i.question, i.option_1, i.option_2, i.option_3, i.option_4
		 FROM answers a
		 JOIN items i ON i.id = a.item_id
		 WHERE a.student_id = ? AND a.is_correct = 0 AND i.status = ?`
	args := []any{studentID, model.ItemValidated}
	if chapterTag != "" {
		query += ` AND i.chapter_tag = ?`
		args = append(args, chapterTag)
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StudentItem
	for rows.Next() {
		si := model.StudentItem{Answered: true}
		if err := rows.Scan(&si.ID, &si.ChapterTag, &si.Question,
			&si.Options[0], &si.Options[1], &si.Options[2], &si.Options[3]); err != nil {
			return nil, err
		}
		wrong := false
		si.LastCorrect = &wrong
		out = append(out, si)
	}
	return out, rows.Err()
}
