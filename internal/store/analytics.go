package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pavelanni/qcm/internal/analytics"
)

// DocumentFacts returns the chapter of every document of ownerID. A zero
// ownerID returns all documents.
func (s *Store) DocumentFacts(ctx context.Context, ownerID int64) ([]analytics.DocumentFact, error) {
	query := `SELECT id, owner_id, chapter_tag FROM documents`
	var args []any
	if ownerID != 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []analytics.DocumentFact
	for rows.Next() {
		var d analytics.DocumentFact
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.ChapterTag); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ItemFacts returns the items matching f.
func (s *Store) ItemFacts(ctx context.Context, f analytics.ItemFilter) ([]analytics.ItemFact, error) {
	var where []string
	var args []any
	if f.OwnerID != 0 {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.ValidatedOnly {
		where = append(where, "status = 'validated'")
	}
	query := `SELECT id, owner_id, chapter_tag, status, created_at FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []analytics.ItemFact
	for rows.Next() {
		var it analytics.ItemFact
		if err := rows.Scan(&it.ID, &it.OwnerID, &it.ChapterTag, &it.Status, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AnswerFacts returns ledger entries joined with their item. Answers whose
// item was deleted are skipped.
func (s *Store) AnswerFacts(ctx context.Context, f analytics.AnswerFilter) ([]analytics.AnswerFact, error) {
	var where []string
	var args []any
	if f.OwnerID != 0 {
		where = append(where, "i.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.StudentID != 0 {
		where = append(where, "a.student_id = ?")
		args = append(args, f.StudentID)
	}
	query := `SELECT a.student_id, a.item_id, i.owner_id, i.chapter_tag, i.question, a.is_correct, a.response_time, a.created_at
		 FROM answers a
		 JOIN items i ON i.id = a.item_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY a.created_at, a.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []analytics.AnswerFact
	for rows.Next() {
		var a analytics.AnswerFact
		var rt sql.NullInt64
		if err := rows.Scan(&a.StudentID, &a.ItemID, &a.OwnerID, &a.ChapterTag, &a.Question, &a.Correct, &rt, &a.At); err != nil {
			return nil, err
		}
		if rt.Valid {
			v := int(rt.Int64)
			a.ResponseTime = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ analytics.Source = (*Store)(nil)
