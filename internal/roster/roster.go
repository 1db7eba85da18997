// Package roster manages classes and the students enrolled in them.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/store"
)

// Service manages the class roster.
type Service struct {
	store *store.Store
}

// New creates a roster service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateClass adds a class at one grade level.
func (s *Service) CreateClass(ctx context.Context, name string, grade chapter.Grade) (model.Class, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Class{}, fmt.Errorf("class name is blank: %w", model.ErrValidation)
	}
	if !grade.Valid() {
		return model.Class{}, fmt.Errorf("unknown grade %q: %w", grade, model.ErrValidation)
	}
	c := model.Class{Name: name, Grade: grade}
	id, err := s.store.CreateClass(ctx, c)
	if err != nil {
		return model.Class{}, fmt.Errorf("create class: %w", err)
	}
	c.ID = id
	slog.Info("created class", "id", id, "name", name, "grade", grade)
	return c, nil
}

// ListClasses returns every class.
func (s *Service) ListClasses(ctx context.Context) ([]model.Class, error) {
	classes, err := s.store.ListClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	if classes == nil {
		classes = []model.Class{}
	}
	return classes, nil
}

// CreateStudent adds a student, optionally already placed in a class.
func (s *Service) CreateStudent(ctx context.Context, firstName, lastName string, classID *int64) (model.Student, error) {
	st := model.Student{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		ClassID:   classID,
	}
	if st.FirstName == "" || st.LastName == "" {
		return model.Student{}, fmt.Errorf("student name is blank: %w", model.ErrValidation)
	}
	if classID != nil {
		if _, err := s.store.GetClass(ctx, *classID); err != nil {
			return model.Student{}, err
		}
	}
	id, err := s.store.CreateStudent(ctx, st)
	if err != nil {
		return model.Student{}, fmt.Errorf("create student: %w", err)
	}
	return s.store.GetStudent(ctx, id)
}

// ListStudents returns the students of a class, or every student when
// classID is 0.
func (s *Service) ListStudents(ctx context.Context, classID int64) ([]model.Student, error) {
	all, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := []model.Student{}
	for _, st := range all {
		if classID == 0 || (st.ClassID != nil && *st.ClassID == classID) {
			out = append(out, st)
		}
	}
	return out, nil
}

// Student returns one student.
func (s *Service) Student(ctx context.Context, id int64) (model.Student, error) {
	return s.store.GetStudent(ctx, id)
}

// ChooseClass places a student in a class on first login. Once chosen, the
// class can no longer be changed by the student.
func (s *Service) ChooseClass(ctx context.Context, studentID, classID int64) (model.Student, error) {
	if _, err := s.store.GetClass(ctx, classID); err != nil {
		return model.Student{}, err
	}
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return model.Student{}, err
	}
	ok, err := s.store.AssignFirstClass(ctx, studentID, classID)
	if err != nil {
		return model.Student{}, fmt.Errorf("assign class: %w", err)
	}
	if !ok {
		return model.Student{}, fmt.Errorf("student %d already chose a class: %w", studentID, model.ErrValidation)
	}
	slog.Info("student chose class", "student", studentID, "class", classID)
	return s.store.GetStudent(ctx, studentID)
}
