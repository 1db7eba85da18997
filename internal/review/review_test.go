package review

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/store"
)

// fakeProcessor stores count pending items for the document's chapter.
type fakeProcessor struct {
	store *store.Store
	err   error
	calls int
}

func (f *fakeProcessor) Process(ctx context.Context, ownerID, docID int64, count int) (model.ProcessResult, error) {
	f.calls++
	if f.err != nil {
		return model.ProcessResult{DocumentID: docID}, f.err
	}
	d, err := f.store.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return model.ProcessResult{}, err
	}
	items := make([]model.Item, count)
	for i := range items {
		items[i] = model.Item{
			DocumentID:    &d.ID,
			OwnerID:       ownerID,
			ChapterTag:    d.ChapterTag,
			Question:      "Regenerated?",
			Options:       [4]string{"a", "b", "c", "d"},
			CorrectOption: 1,
		}
	}
	if _, err := f.store.InsertItems(ctx, items); err != nil {
		return model.ProcessResult{}, err
	}
	return model.ProcessResult{DocumentID: docID, Generated: count}, nil
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeProcessor) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	proc := &fakeProcessor{store: st}
	return New(st, proc), st, proc
}

func insertItems(t *testing.T, st *store.Store, owner int64, tag string, n int) []model.Item {
	t.Helper()
	items := make([]model.Item, n)
	for i := range items {
		items[i] = model.Item{
			OwnerID:       owner,
			ChapterTag:    tag,
			Question:      "Combien font 2 + 2 ?",
			Options:       [4]string{"3", "4", "5", "22"},
			CorrectOption: 2,
		}
	}
	out, err := st.InsertItems(context.Background(), items)
	if err != nil {
		t.Fatalf("InsertItems: %v", err)
	}
	return out
}

// newStudent creates a student in a class of the given grade, or without a
// class when grade is empty.
func newStudent(t *testing.T, st *store.Store, grade chapter.Grade) int64 {
	t.Helper()
	ctx := context.Background()
	var classID *int64
	if grade != chapter.NoGrade {
		id, err := st.CreateClass(ctx, model.Class{Name: string(grade) + " A", Grade: grade})
		if err != nil {
			t.Fatalf("CreateClass: %v", err)
		}
		classID = &id
	}
	id, err := st.CreateStudent(ctx, model.Student{FirstName: "Lea", LastName: "Martin", ClassID: classID})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	return id
}

func TestValidationFlowStudentView(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	items := insertItems(t, st, 1, "Fractions", 3)

	if err := svc.Accept(ctx, 1, items[0].ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := svc.Accept(ctx, 1, items[1].ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := svc.Reject(ctx, 1, items[2].ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	student := newStudent(t, st, chapter.Grade5)
	got, err := svc.StudentItems(ctx, student, "Fractions")
	if err != nil {
		t.Fatalf("StudentItems: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("student sees %d items, want 2", len(got))
	}
	for _, si := range got {
		if si.Answered || si.LastCorrect != nil {
			t.Errorf("item %d marked answered", si.ID)
		}
	}
	pending, _ := svc.ListPending(ctx, 1)
	if len(pending) != 0 {
		t.Errorf("expected no pending items, got %d", len(pending))
	}
}

func TestOwnershipAndMissing(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	items := insertItems(t, st, 1, "Fractions", 1)
	q := "Autre ?"

	tests := []struct {
		name string
		fn   func() error
	}{
		{"accept other owner", func() error { return svc.Accept(ctx, 2, items[0].ID) }},
		{"reject other owner", func() error { return svc.Reject(ctx, 2, items[0].ID) }},
		{"edit other owner", func() error { return svc.AcceptWithEdits(ctx, 2, items[0].ID, model.ItemEdits{Question: &q}) }},
		{"accept missing", func() error { return svc.Accept(ctx, 1, 999) }},
		{"reject missing", func() error { return svc.Reject(ctx, 1, 999) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}

	it, _ := st.GetItem(ctx, items[0].ID)
	if it.Status != model.ItemPending || it.Question != items[0].Question {
		t.Errorf("item changed by another owner: %+v", it)
	}
}

func TestAcceptWithEdits(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	items := insertItems(t, st, 1, "Fractions", 1)
	id := items[0].ID

	blank := "   "
	five := 5
	tests := []struct {
		name  string
		edits model.ItemEdits
	}{
		{"empty", model.ItemEdits{}},
		{"index out of range", model.ItemEdits{CorrectOption: &five}},
		{"blank question", model.ItemEdits{Question: &blank}},
		{"blank option", model.ItemEdits{Options: [4]*string{nil, &blank, nil, nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.AcceptWithEdits(ctx, 1, id, tt.edits); !errors.Is(err, model.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	q := "  Combien font 3 + 3 ?  "
	opt := "6"
	three := 3
	if err := svc.AcceptWithEdits(ctx, 1, id, model.ItemEdits{
		Question:      &q,
		Options:       [4]*string{nil, nil, &opt, nil},
		CorrectOption: &three,
	}); err != nil {
		t.Fatalf("AcceptWithEdits: %v", err)
	}
	it, _ := st.GetItem(ctx, id)
	want := [4]string{"3", "4", "6", "22"}
	if it.Status != model.ItemValidated || it.Question != "Combien font 3 + 3 ?" || it.Options != want || it.CorrectOption != 3 {
		t.Errorf("unexpected item after edit: %+v", it)
	}

	// Editing a validated item keeps it validated.
	one := 1
	if err := svc.AcceptWithEdits(ctx, 1, id, model.ItemEdits{CorrectOption: &one}); err != nil {
		t.Fatalf("second AcceptWithEdits: %v", err)
	}
	it, _ = st.GetItem(ctx, id)
	if it.Status != model.ItemValidated || it.CorrectOption != 1 {
		t.Errorf("unexpected item after second edit: %+v", it)
	}
}

func TestRegenerate(t *testing.T) {
	svc, st, proc := newTestService(t)
	ctx := context.Background()
	docID, err := st.CreateDocument(ctx, model.Document{OwnerID: 1, ChapterTag: "Fractions", ExtractedText: "texte"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	items := insertItems(t, st, 1, "Fractions", 3)
	svc.Accept(ctx, 1, items[0].ID)
	other := insertItems(t, st, 2, "Fractions", 1)

	res, err := svc.Regenerate(ctx, 1, docID, 4)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if res.ReplacedItems != 2 || res.Generated != 4 {
		t.Errorf("unexpected result: %+v", res)
	}
	pending, _ := svc.ListPending(ctx, 1)
	if len(pending) != 4 {
		t.Errorf("expected 4 pending items, got %d", len(pending))
	}
	for _, it := range pending {
		if it.Question != "Regenerated?" {
			t.Errorf("old pending item survived: %+v", it)
		}
	}
	if it, err := st.GetItem(ctx, items[0].ID); err != nil || it.Status != model.ItemValidated {
		t.Errorf("validated item touched: %+v, %v", it, err)
	}
	if _, err := st.GetItem(ctx, other[0].ID); err != nil {
		t.Errorf("other owner's pending item removed: %v", err)
	}

	t.Run("failed run keeps pending items", func(t *testing.T) {
		proc.err = fmt.Errorf("no text: %w", model.ErrExtraction)
		defer func() { proc.err = nil }()
		if _, err := svc.Regenerate(ctx, 1, docID, 2); !errors.Is(err, model.ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		after, _ := svc.ListPending(ctx, 1)
		if len(after) != 4 {
			t.Errorf("expected the 4 pending items to survive, got %d", len(after))
		}
	})
	t.Run("invalid count", func(t *testing.T) {
		if _, err := svc.Regenerate(ctx, 1, docID, 0); !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
	t.Run("other owner", func(t *testing.T) {
		calls := proc.calls
		if _, err := svc.Regenerate(ctx, 2, docID, 2); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if proc.calls != calls {
			t.Error("processor called for a foreign document")
		}
	})
}

func TestItemsByProgram(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	for _, tag := range []string{"Fractions", "EXAM_Algebra", "SUPP_4e_Vectors", "SUPP_6e_Angles"} {
		for _, it := range insertItems(t, st, 1, tag, 2) {
			if err := svc.Accept(ctx, 1, it.ID); err != nil {
				t.Fatalf("Accept: %v", err)
			}
		}
	}
	insertItems(t, st, 1, "Geometry", 1)

	third := newStudent(t, st, chapter.Grade3)
	fourth := newStudent(t, st, chapter.Grade4)
	noClass := newStudent(t, st, chapter.NoGrade)

	tests := []struct {
		name    string
		student int64
		program chapter.ProgramType
		want    []string
	}{
		{"normal", fourth, chapter.Normal, []string{"Fractions"}},
		{"exam prep for 3e", third, chapter.ExamPrep, []string{"EXAM_Algebra"}},
		{"exam prep hidden from 4e", fourth, chapter.ExamPrep, nil},
		{"supplementary for 4e", fourth, chapter.Supplementary, []string{"SUPP_4e_Vectors"}},
		{"supplementary without class", noClass, chapter.Supplementary, nil},
		{"normal without class", noClass, chapter.Normal, []string{"Fractions"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ItemsByProgram(ctx, tt.student, tt.program)
			if err != nil {
				t.Fatalf("ItemsByProgram: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chapters, want %v", len(got), tt.want)
			}
			for i, ch := range got {
				if ch.Chapter != tt.want[i] {
					t.Errorf("chapter %d = %q, want %q", i, ch.Chapter, tt.want[i])
				}
				if len(ch.Items) != 2 {
					t.Errorf("chapter %q has %d items, want 2", ch.Chapter, len(ch.Items))
				}
			}
		})
	}

	items, err := svc.StudentItems(ctx, fourth, "EXAM_Algebra")
	if err != nil {
		t.Fatalf("StudentItems: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("4e student sees %d exam-prep items", len(items))
	}
	if _, err := svc.StudentItems(ctx, fourth, "SUPP_Vectors"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for malformed tag, got %v", err)
	}
	if _, err := svc.StudentItems(ctx, 999, "Fractions"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown student, got %v", err)
	}
}

func TestRevision(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	items := insertItems(t, st, 1, "Fractions", 3)
	for _, it := range items {
		svc.Accept(ctx, 1, it.ID)
	}
	student := newStudent(t, st, chapter.Grade5)
	for i, chosen := range []int{1, 2, 3} {
		if _, err := st.InsertAnswer(ctx, model.Answer{
			StudentID: student, ItemID: items[i].ID, Chosen: chosen, IsCorrect: chosen == 2,
		}); err != nil {
			t.Fatalf("InsertAnswer: %v", err)
		}
	}

	got, err := svc.Revision(ctx, student, "")
	if err != nil {
		t.Fatalf("Revision: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 revision items, got %d", len(got))
	}
	if got[0].ID != items[2].ID {
		t.Errorf("most recent wrong answer first: got item %d", got[0].ID)
	}
	other, _ := svc.Revision(ctx, student, "Geometry")
	if len(other) != 0 {
		t.Errorf("expected no revision items for Geometry, got %d", len(other))
	}
	if _, err := svc.Revision(ctx, student, "SUPP_"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
