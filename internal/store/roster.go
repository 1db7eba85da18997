package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

// CreateClass inserts a class.
func (s *Store) CreateClass(ctx context.Context, c model.Class) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO classes (name, grade) VALUES (?, ?)`, c.Name, c.Grade)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetClass returns a class by ID, or model.ErrNotFound.
func (s *Store) GetClass(ctx context.Context, id int64) (model.Class, error) {
	var c model.Class
	err := s.db.QueryRowContext(ctx, `SELECT id, name, grade FROM classes WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Grade)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("class %d: %w", id, model.ErrNotFound)
	}
	return c, err
}

// ListClasses returns all classes.
func (s *Store) ListClasses(ctx context.Context) ([]model.Class, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, grade FROM classes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var classes []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Grade); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// CreateStudent inserts a student with the first-login flag set.
func (s *Store) CreateStudent(ctx context.Context, st model.Student) (int64, error) {
	var classID any
	if st.ClassID != nil {
		classID = *st.ClassID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO students (first_name, last_name, class_id, first_login, created_at) VALUES (?, ?, ?, 1, ?)`,
		st.FirstName, st.LastName, classID, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create student", "name", st.FirstName+" "+st.LastName, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created student", "id", id, "class_id", classID)
	return id, nil
}

func scanStudent(row interface{ Scan(...any) error }) (model.Student, error) {
	var st model.Student
	var classID sql.NullInt64
	err := row.Scan(&st.ID, &st.FirstName, &st.LastName, &classID, &st.FirstLogin, &st.CreatedAt)
	if classID.Valid {
		st.ClassID = &classID.Int64
	}
	return st, err
}

// GetStudent returns a student by ID, or model.ErrNotFound.
func (s *Store) GetStudent(ctx context.Context, id int64) (model.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, class_id, first_login, created_at FROM students WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("student %d: %w", id, model.ErrNotFound)
	}
	return st, err
}

// ListStudents returns all students.
func (s *Store) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, class_id, first_login, created_at FROM students ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// AssignFirstClass sets the class of a student and clears the first-login
// flag. It reports false when the flag was already cleared.
func (s *Store) AssignFirstClass(ctx context.Context, studentID, classID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET class_id = ?, first_login = 0 WHERE id = ? AND first_login = 1`,
		classID, studentID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
