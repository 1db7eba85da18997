package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

// SaveJob upserts a job record.
func (s *Store) SaveJob(ctx context.Context, j model.Job) error {
	var result any
	if j.Result != nil {
		b, err := json.Marshal(j.Result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		result = string(b)
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, owner_id, document_id, status, result, error_kind, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, result = excluded.result,
		   error_kind = excluded.error_kind, error = excluded.error, updated_at = excluded.updated_at`,
		j.ID, j.OwnerID, j.DocumentID, j.Status, result, j.ErrorKind, j.Error, now, now,
	)
	return err
}

// GetJob returns a job owned by ownerID, or model.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, ownerID int64, id string) (model.Job, error) {
	var j model.Job
	var result sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, document_id, status, result, error_kind, error, created_at, updated_at
		 FROM jobs WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&j.ID, &j.OwnerID, &j.DocumentID, &j.Status, &result, &j.ErrorKind, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return j, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return j, err
	}
	if result.Valid && result.String != "" {
		var r model.ProcessResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return j, fmt.Errorf("decode job result: %w", err)
		}
		j.Result = &r
	}
	return j, nil
}

// FailInterruptedJobs marks jobs left queued or running by a previous process
// as failed. It returns the number of jobs updated.
func (s *Store) FailInterruptedJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_kind = 'internal', error = 'interrupted', updated_at = ?
		 WHERE status IN (?, ?)`,
		model.JobFailed, time.Now(), model.JobQueued, model.JobRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
