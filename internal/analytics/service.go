package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

// Service loads facts from a Source and runs the aggregations over them.
type Service struct {
	src Source
	now func() time.Time
}

// NewService creates an analytics service reading from src.
func NewService(src Source) *Service {
	return &Service{src: src, now: time.Now}
}

// TeacherDashboard returns the dashboard of the teacher ownerID.
func (s *Service) TeacherDashboard(ctx context.Context, ownerID int64) (TeacherDashboard, error) {
	docs, err := s.src.DocumentFacts(ctx, ownerID)
	if err != nil {
		return TeacherDashboard{}, fmt.Errorf("loading documents: %w", err)
	}
	items, err := s.src.ItemFacts(ctx, ItemFilter{OwnerID: ownerID})
	if err != nil {
		return TeacherDashboard{}, fmt.Errorf("loading items: %w", err)
	}
	answers, err := s.src.AnswerFacts(ctx, AnswerFilter{OwnerID: ownerID})
	if err != nil {
		return TeacherDashboard{}, fmt.Errorf("loading answers: %w", err)
	}
	return BuildTeacherDashboard(s.now(), docs, items, answers), nil
}

// StudentDashboard returns the personal overview of studentID.
func (s *Service) StudentDashboard(ctx context.Context, studentID int64) (StudentDashboard, error) {
	validated, answers, err := s.studentFacts(ctx, studentID)
	if err != nil {
		return StudentDashboard{}, err
	}
	return BuildStudentDashboard(validated, answers), nil
}

// StudentDetail returns the teacher's detail view of studentID.
func (s *Service) StudentDetail(ctx context.Context, studentID int64) (StudentDetail, error) {
	validated, answers, err := s.studentFacts(ctx, studentID)
	if err != nil {
		return StudentDetail{}, err
	}
	return BuildStudentDetail(s.now(), validated, answers), nil
}

func (s *Service) studentFacts(ctx context.Context, studentID int64) ([]ItemFact, []AnswerFact, error) {
	if studentID <= 0 {
		return nil, nil, fmt.Errorf("student id %d: %w", studentID, model.ErrValidation)
	}
	validated, err := s.src.ItemFacts(ctx, ItemFilter{ValidatedOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("loading items: %w", err)
	}
	answers, err := s.src.AnswerFacts(ctx, AnswerFilter{StudentID: studentID})
	if err != nil {
		return nil, nil, fmt.Errorf("loading answers: %w", err)
	}
	return validated, answers, nil
}

type rosterFacts struct {
	classes  []model.Class
	students []model.Student
	answers  []AnswerFact
}

func (s *Service) roster(ctx context.Context, ownerID int64) (rosterFacts, error) {
	var r rosterFacts
	var err error
	if r.classes, err = s.src.ListClasses(ctx); err != nil {
		return r, fmt.Errorf("loading classes: %w", err)
	}
	if r.students, err = s.src.ListStudents(ctx); err != nil {
		return r, fmt.Errorf("loading students: %w", err)
	}
	if r.answers, err = s.src.AnswerFacts(ctx, AnswerFilter{OwnerID: ownerID}); err != nil {
		return r, fmt.Errorf("loading answers: %w", err)
	}
	return r, nil
}

// CompareClasses compares classes on the items of ownerID. A zero ownerID
// covers every item.
func (s *Service) CompareClasses(ctx context.Context, ownerID int64) (ClassComparison, error) {
	r, err := s.roster(ctx, ownerID)
	if err != nil {
		return ClassComparison{}, err
	}
	return CompareClasses(s.now(), r.classes, r.students, r.answers), nil
}

// GradeReport returns per-grade statistics on the items of ownerID.
func (s *Service) GradeReport(ctx context.Context, ownerID int64) (GradeReport, error) {
	r, err := s.roster(ctx, ownerID)
	if err != nil {
		return GradeReport{}, err
	}
	return BuildGradeReport(s.now(), r.classes, r.students, r.answers), nil
}

// FollowUp returns the student follow-up list on the items of ownerID,
// optionally restricted to one class.
func (s *Service) FollowUp(ctx context.Context, ownerID, classID int64) (FollowUp, error) {
	r, err := s.roster(ctx, ownerID)
	if err != nil {
		return FollowUp{}, err
	}
	return BuildFollowUp(s.now(), r.classes, r.students, r.answers, classID), nil
}
