package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/qcm/internal/analytics"
	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestItems(t *testing.T, s *Store, owner int64, tag string, n int) []model.Item {
	t.Helper()
	var items []model.Item
	for i := range n {
		items = append(items, model.Item{
			OwnerID:       owner,
			ChapterTag:    tag,
			Question:      "Question " + string(rune('A'+i)),
			Options:       [4]string{"w", "x", "y", "z"},
			CorrectOption: 2,
		})
	}
	out, err := s.InsertItems(context.Background(), items)
	if err != nil {
		t.Fatalf("insertTestItems: %v", err)
	}
	return out
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.DocumentCount(ctx, 1)
	if err != nil {
		t.Fatalf("DocumentCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 documents, got %d", count)
	}

	id, err := s.CreateDocument(ctx, model.Document{OwnerID: 1, Title: "Fractions", ChapterTag: "Fractions"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	d, err := s.GetDocument(ctx, 1, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if d.Title != "Fractions" || d.HasText() {
		t.Errorf("unexpected document: %+v", d)
	}

	// Another owner cannot see it.
	if _, err := s.GetDocument(ctx, 2, id); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}

	second, _ := s.CreateDocument(ctx, model.Document{OwnerID: 1, Title: "Vectors", ChapterTag: "SUPP_4e_Vectors"})
	docs, err := s.ListDocuments(ctx, 1)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != second {
		t.Errorf("expected newest first, got %+v", docs)
	}

	if err := s.SetDocumentTitle(ctx, id, "Renamed"); err != nil {
		t.Fatalf("SetDocumentTitle: %v", err)
	}
	d, _ = s.GetDocument(ctx, 1, id)
	if d.Title != "Renamed" {
		t.Errorf("expected title Renamed, got %q", d.Title)
	}
}

func TestSetExtractedTextIfEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.CreateDocument(ctx, model.Document{OwnerID: 1, ChapterTag: "Fractions"})

	wrote, err := s.SetExtractedTextIfEmpty(ctx, id, "")
	if err != nil || wrote {
		t.Fatalf("empty text: wrote=%v err=%v", wrote, err)
	}

	wrote, err = s.SetExtractedTextIfEmpty(ctx, id, "first text")
	if err != nil || !wrote {
		t.Fatalf("first write: wrote=%v err=%v", wrote, err)
	}
	wrote, err = s.SetExtractedTextIfEmpty(ctx, id, "second text")
	if err != nil || wrote {
		t.Fatalf("second write: wrote=%v err=%v", wrote, err)
	}

	d, _ := s.GetDocument(ctx, 1, id)
	if d.ExtractedText != "first text" {
		t.Errorf("expected cached text to be kept, got %q", d.ExtractedText)
	}
}

func TestItemLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := insertTestItems(t, s, 1, "Fractions", 3)
	for _, it := range items {
		if it.Status != model.ItemPending || it.ID == 0 {
			t.Fatalf("expected pending item with ID, got %+v", it)
		}
	}

	// Wrong owner changes nothing.
	ok, err := s.ValidateItem(ctx, 2, items[0].ID)
	if err != nil || ok {
		t.Fatalf("ValidateItem wrong owner: ok=%v err=%v", ok, err)
	}
	ok, err = s.ValidateItem(ctx, 1, items[0].ID)
	if err != nil || !ok {
		t.Fatalf("ValidateItem: ok=%v err=%v", ok, err)
	}

	q := "Edited?"
	opt := "new option"
	idx := 4
	ok, err = s.EditAndValidateItem(ctx, 1, items[1].ID, model.ItemEdits{
		Question:      &q,
		Options:       [4]*string{nil, nil, &opt, nil},
		CorrectOption: &idx,
	})
	if err != nil || !ok {
		t.Fatalf("EditAndValidateItem: ok=%v err=%v", ok, err)
	}
	edited, err := s.GetItem(ctx, items[1].ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if edited.Question != q || edited.Options[2] != opt || edited.Options[0] != "w" || edited.CorrectOption != 4 {
		t.Errorf("unexpected edited item: %+v", edited)
	}
	if edited.Status != model.ItemValidated {
		t.Errorf("expected validated, got %q", edited.Status)
	}

	pending, err := s.ListPendingItems(ctx, 1)
	if err != nil {
		t.Fatalf("ListPendingItems: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != items[2].ID {
		t.Errorf("expected one pending item, got %+v", pending)
	}

	newer, err := s.InsertItems(ctx, []model.Item{{
		OwnerID: 1, ChapterTag: "Fractions", Question: "Q?", Options: [4]string{"a", "b", "c", "d"}, CorrectOption: 1,
	}})
	if err != nil {
		t.Fatalf("InsertItems: %v", err)
	}
	n, err := s.DeletePendingItems(ctx, 1, "Fractions", items[2].ID)
	if err != nil || n != 1 {
		t.Fatalf("DeletePendingItems: n=%d err=%v", n, err)
	}
	if _, err := s.GetItem(ctx, newer[0].ID); err != nil {
		t.Errorf("pending item newer than the bound was removed: %v", err)
	}
	validated, _ := s.ListValidatedItems(ctx)
	if len(validated) != 2 {
		t.Errorf("expected validated items untouched, got %d", len(validated))
	}

	ok, err = s.DeleteItem(ctx, 1, items[0].ID)
	if err != nil || !ok {
		t.Fatalf("DeleteItem: ok=%v err=%v", ok, err)
	}
	if _, err := s.GetItem(ctx, items[0].ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	ok, _ = s.DeleteItem(ctx, 1, items[0].ID)
	if ok {
		t.Error("second delete reported success")
	}
}

func TestStudentItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	items := insertTestItems(t, s, 1, "Fractions", 3)
	s.ValidateItem(ctx, 1, items[0].ID)
	s.ValidateItem(ctx, 1, items[1].ID)

	if _, err := s.InsertAnswer(ctx, model.Answer{StudentID: 9, ItemID: items[0].ID, Chosen: 1, IsCorrect: false}); err != nil {
		t.Fatalf("InsertAnswer: %v", err)
	}

	got, err := s.StudentItems(ctx, 9, "Fractions")
	if err != nil {
		t.Fatalf("StudentItems: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 validated items, got %d", len(got))
	}
	if !got[0].Answered || got[0].LastCorrect == nil || *got[0].LastCorrect {
		t.Errorf("expected first item answered wrongly, got %+v", got[0])
	}
	if got[1].Answered || got[1].LastCorrect != nil {
		t.Errorf("expected second item unanswered, got %+v", got[1])
	}

	revision, err := s.RevisionItems(ctx, 9, "", 20)
	if err != nil {
		t.Fatalf("RevisionItems: %v", err)
	}
	if len(revision) != 1 || revision[0].ID != items[0].ID {
		t.Errorf("unexpected revision items: %+v", revision)
	}
	revision, _ = s.RevisionItems(ctx, 9, "Vectors", 20)
	if len(revision) != 0 {
		t.Errorf("expected no revision items for other chapter, got %d", len(revision))
	}
}

func TestInsertAnswerDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rt := 12

	_, found, err := s.FindAnswer(ctx, 3, 42)
	if err != nil || found {
		t.Fatalf("FindAnswer before insert: found=%v err=%v", found, err)
	}

	id, err := s.InsertAnswer(ctx, model.Answer{StudentID: 3, ItemID: 42, Chosen: 2, IsCorrect: true, ResponseTime: &rt})
	if err != nil {
		t.Fatalf("InsertAnswer: %v", err)
	}
	_, err = s.InsertAnswer(ctx, model.Answer{StudentID: 3, ItemID: 42, Chosen: 1})
	if !errors.Is(err, model.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	a, found, err := s.FindAnswer(ctx, 3, 42)
	if err != nil || !found {
		t.Fatalf("FindAnswer: found=%v err=%v", found, err)
	}
	if a.ID != id || !a.IsCorrect || a.Chosen != 2 || a.ResponseTime == nil || *a.ResponseTime != 12 {
		t.Errorf("unexpected answer: %+v", a)
	}
	count, _ := s.AnswerCount(ctx, 3, 42)
	if count != 1 {
		t.Errorf("expected 1 answer, got %d", count)
	}
}

func TestAssignFirstClass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateClass(ctx, model.Class{Name: "3eA", Grade: chapter.Grade3})
	b, _ := s.CreateClass(ctx, model.Class{Name: "3eB", Grade: chapter.Grade3})
	sid, err := s.CreateStudent(ctx, model.Student{FirstName: "Ada", LastName: "L"})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}

	ok, err := s.AssignFirstClass(ctx, sid, a)
	if err != nil || !ok {
		t.Fatalf("first assignment: ok=%v err=%v", ok, err)
	}
	ok, _ = s.AssignFirstClass(ctx, sid, b)
	if ok {
		t.Fatal("second assignment succeeded")
	}
	st, err := s.GetStudent(ctx, sid)
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if st.FirstLogin || st.ClassID == nil || *st.ClassID != a {
		t.Errorf("unexpected student: %+v", st)
	}

	c, err := s.GetClass(ctx, a)
	if err != nil || c.Grade != chapter.Grade3 {
		t.Errorf("GetClass: %+v %v", c, err)
	}
	if _, err := s.GetClass(ctx, 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyticsFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateDocument(ctx, model.Document{OwnerID: 1, ChapterTag: "Fractions"})
	s.CreateDocument(ctx, model.Document{OwnerID: 2, ChapterTag: "Vectors"})
	mine := insertTestItems(t, s, 1, "Fractions", 2)
	theirs := insertTestItems(t, s, 2, "Vectors", 1)
	s.ValidateItem(ctx, 1, mine[0].ID)
	s.ValidateItem(ctx, 2, theirs[0].ID)
	s.InsertAnswer(ctx, model.Answer{StudentID: 5, ItemID: mine[0].ID, Chosen: 2, IsCorrect: true})
	s.InsertAnswer(ctx, model.Answer{StudentID: 5, ItemID: theirs[0].ID, Chosen: 1})
	s.InsertAnswer(ctx, model.Answer{StudentID: 6, ItemID: mine[0].ID, Chosen: 1})

	docs, err := s.DocumentFacts(ctx, 1)
	if err != nil || len(docs) != 1 {
		t.Fatalf("DocumentFacts: %v %v", docs, err)
	}
	items, err := s.ItemFacts(ctx, analytics.ItemFilter{OwnerID: 1})
	if err != nil || len(items) != 2 {
		t.Fatalf("ItemFacts by owner: %v %v", items, err)
	}
	validated, _ := s.ItemFacts(ctx, analytics.ItemFilter{ValidatedOnly: true})
	if len(validated) != 2 {
		t.Errorf("expected 2 validated items across owners, got %d", len(validated))
	}

	byOwner, err := s.AnswerFacts(ctx, analytics.AnswerFilter{OwnerID: 1})
	if err != nil {
		t.Fatalf("AnswerFacts: %v", err)
	}
	if len(byOwner) != 2 {
		t.Errorf("expected 2 answers on owner 1 items, got %d", len(byOwner))
	}
	byStudent, _ := s.AnswerFacts(ctx, analytics.AnswerFilter{StudentID: 5})
	if len(byStudent) != 2 {
		t.Errorf("expected 2 answers for student 5, got %d", len(byStudent))
	}
	for _, a := range byStudent {
		if a.ItemID == mine[0].ID && (!a.Correct || a.ChapterTag != "Fractions" || a.OwnerID != 1) {
			t.Errorf("unexpected fact: %+v", a)
		}
	}
}

func TestJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := model.Job{ID: "job-1", OwnerID: 1, DocumentID: 7, Status: model.JobQueued}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	job.Status = model.JobSucceeded
	job.Result = &model.ProcessResult{DocumentID: 7, Generated: 5, FallbackUsed: true}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got, err := s.GetJob(ctx, 1, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobSucceeded || got.Result == nil || got.Result.Generated != 5 || !got.Result.FallbackUsed {
		t.Errorf("unexpected job: %+v", got)
	}
	if _, err := s.GetJob(ctx, 2, "job-1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}

	s.SaveJob(ctx, model.Job{ID: "job-2", OwnerID: 1, DocumentID: 8, Status: model.JobRunning})
	n, err := s.FailInterruptedJobs(ctx)
	if err != nil || n != 1 {
		t.Fatalf("FailInterruptedJobs: n=%d err=%v", n, err)
	}
	got, _ = s.GetJob(ctx, 1, "job-2")
	if got.Status != model.JobFailed || got.ErrorKind != "internal" {
		t.Errorf("expected interrupted job failed, got %+v", got)
	}
}
