package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

const documentColumns = `id, owner_id, title, subject, chapter_tag, file_path, COALESCE(extracted_text, ''), created_at`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Subject, &d.ChapterTag, &d.FilePath, &d.ExtractedText, &d.CreatedAt)
	return d, err
}

// CreateDocument stores a new course document.
func (s *Store) CreateDocument(ctx context.Context, d model.Document) (int64, error) {
	var text any
	if d.ExtractedText != "" {
		text = d.ExtractedText
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (owner_id, title, subject, chapter_tag, file_path, extracted_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.OwnerID, d.Title, d.Subject, d.ChapterTag, d.FilePath, text, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDocument returns a document owned by ownerID, or model.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, ownerID, id int64) (model.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND owner_id = ?`, id, ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	return d, err
}

// ListDocuments returns the documents of an owner, newest first.
func (s *Store) ListDocuments(ctx context.Context, ownerID int64) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetExtractedTextIfEmpty caches extracted text on a document unless text is
// already present. It reports whether the write happened. Empty text is never
// written.
func (s *Store) SetExtractedTextIfEmpty(ctx context.Context, id int64, text string) (bool, error) {
	if text == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET extracted_text = ?
		 WHERE id = ? AND (extracted_text IS NULL OR extracted_text = '')`,
		text, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetDocumentTitle updates the title of a document.
func (s *Store) SetDocumentTitle(ctx context.Context, id int64, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET title = ? WHERE id = ?`, title, id)
	return err
}

// DocumentCount returns the number of documents of an owner.
func (s *Store) DocumentCount(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}
