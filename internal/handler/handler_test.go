package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qcm/internal/analytics"
	"github.com/pavelanni/qcm/internal/course"
	"github.com/pavelanni/qcm/internal/extract"
	"github.com/pavelanni/qcm/internal/generate"
	appI18n "github.com/pavelanni/qcm/internal/i18n"
	"github.com/pavelanni/qcm/internal/jobs"
	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/review"
	"github.com/pavelanni/qcm/internal/roster"
	"github.com/pavelanni/qcm/internal/scoring"
	"github.com/pavelanni/qcm/internal/store"
)

const courseText = "Une fraction represente une partie d'un tout. Le numerateur est au-dessus du denominateur."

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string) (extract.Result, error) {
	return extract.Result{}, fmt.Errorf("scan.pdf: %w", model.ErrScannedUnsupported)
}

type stubCompleter struct{}

func (stubCompleter) Complete(context.Context, string) (string, error) { return "Les fractions", nil }

func (stubCompleter) CompleteJSON(context.Context, string) (string, error) {
	var items []string
	for i := 1; i <= 10; i++ {
		items = append(items, fmt.Sprintf(`{"question":"Q%d?","option_1":"a","option_2":"b","option_3":"c","option_4":"d","correctOptionIndex":2}`, i))
	}
	return `{"qcm":[` + strings.Join(items, ",") + `]}`, nil
}

type testServer struct {
	srv   *httptest.Server
	store *store.Store
	jobs  *jobs.Runner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, stubExtractor{})
}

func newTestServerWith(t *testing.T, ext course.Extractor) *testServer {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	gen, err := generate.New(stubCompleter{}, "fr")
	if err != nil {
		t.Fatalf("generate.New: %v", err)
	}
	courses := course.New(st, ext, gen, t.TempDir(), 1<<20)
	runner := jobs.NewRunner(st, 1)
	h := New(Deps{
		Courses:   courses,
		Review:    review.New(st, courses),
		Scoring:   scoring.New(st),
		Analytics: analytics.NewService(st),
		Roster:    roster.New(st),
		Jobs:      runner,
		MaxUpload: 1 << 20,
	})
	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		runner.Shutdown(context.Background())
		st.Close()
	})
	return &testServer{srv: srv, store: st, jobs: runner}
}

type actor struct {
	id   int64
	role string
}

var (
	teacher = actor{id: 1, role: "teacher"}
	other   = actor{id: 2, role: "teacher"}
)

func (ts *testServer) do(t *testing.T, c actor, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+"/api"+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.id != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(c.id))
		req.Header.Set("X-User-Role", c.role)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func TestEndToEndFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, teacher, http.MethodPost, "/documents", map[string]any{
		"chapter": "Fractions", "text": courseText,
	})
	expectStatus(t, resp, http.StatusCreated)
	doc := decode[documentResponse](t, resp)

	resp = ts.do(t, teacher, http.MethodPost, fmt.Sprintf("/documents/%d/process", doc.ID), map[string]int{"count": 3})
	expectStatus(t, resp, http.StatusAccepted)
	job := decode[model.Job](t, resp)
	ts.jobs.Wait()

	resp = ts.do(t, teacher, http.MethodGet, "/jobs/"+job.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	status := decode[jobResponse](t, resp)
	if status.Status != model.JobSucceeded || status.Result.Generated != 3 || status.Message != "3 questions generated" {
		t.Fatalf("unexpected job status: %+v", status)
	}
	expectStatus(t, ts.do(t, other, http.MethodGet, "/jobs/"+job.ID, nil), http.StatusNotFound)

	resp = ts.do(t, teacher, http.MethodGet, "/items/pending", nil)
	expectStatus(t, resp, http.StatusOK)
	pending := decode[[]model.Item](t, resp)
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending items, got %d", len(pending))
	}
	expectStatus(t, ts.do(t, teacher, http.MethodPost, fmt.Sprintf("/items/%d/accept", pending[0].ID), nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, teacher, http.MethodPut, fmt.Sprintf("/items/%d", pending[1].ID), map[string]any{"correct_option": 4}), http.StatusNoContent)
	expectStatus(t, ts.do(t, teacher, http.MethodDelete, fmt.Sprintf("/items/%d", pending[2].ID), nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, other, http.MethodDelete, fmt.Sprintf("/items/%d", pending[0].ID), nil), http.StatusNotFound)

	resp = ts.do(t, teacher, http.MethodPost, "/classes", map[string]string{"name": "5e A", "grade": "5e"})
	expectStatus(t, resp, http.StatusCreated)
	class := decode[model.Class](t, resp)
	resp = ts.do(t, teacher, http.MethodPost, "/students", map[string]string{"first_name": "Lea", "last_name": "Martin"})
	expectStatus(t, resp, http.StatusCreated)
	student := actor{id: decode[model.Student](t, resp).ID, role: "student"}

	expectStatus(t, ts.do(t, student, http.MethodPost, "/me/class", map[string]int64{"class_id": class.ID}), http.StatusOK)
	expectStatus(t, ts.do(t, student, http.MethodPost, "/me/class", map[string]int64{"class_id": class.ID}), http.StatusBadRequest)

	resp = ts.do(t, student, http.MethodGet, "/me/items?chapter=Fractions", nil)
	expectStatus(t, resp, http.StatusOK)
	raw := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, resp)
	if len(raw.Items) != 2 {
		t.Fatalf("student sees %d items, want 2", len(raw.Items))
	}
	for _, it := range raw.Items {
		if _, ok := it["correct_option"]; ok {
			t.Error("student item exposes the correct option")
		}
	}

	resp = ts.do(t, student, http.MethodPost, "/me/answers", map[string]any{"item_id": pending[1].ID, "chosen": 4, "response_time_seconds": 9})
	expectStatus(t, resp, http.StatusCreated)
	out := decode[scoring.Outcome](t, resp)
	if !out.IsCorrect || out.CorrectOptionIndex != 4 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	resp = ts.do(t, student, http.MethodPost, "/me/answers", map[string]any{"item_id": pending[1].ID, "chosen": 1})
	expectStatus(t, resp, http.StatusConflict)
	if e := decode[map[string]errorBody](t, resp)["error"]; e.Kind != "duplicate_submission" {
		t.Errorf("unexpected error body: %+v", e)
	}

	resp = ts.do(t, student, http.MethodGet, "/me/dashboard", nil)
	expectStatus(t, resp, http.StatusOK)
	dash := decode[struct {
		Data   analytics.StudentDashboard `json:"data"`
		Labels map[string]string          `json:"labels"`
	}](t, resp)
	if dash.Data.Mastery.Total != 1 || dash.Labels["Level.expert"] != "Expert" {
		t.Errorf("unexpected student dashboard: %+v", dash)
	}

	resp = ts.do(t, teacher, http.MethodGet, "/dashboard", nil)
	expectStatus(t, resp, http.StatusOK)
	tdash := decode[struct {
		Data analytics.TeacherDashboard `json:"data"`
	}](t, resp)
	if tdash.Data.Documents != 1 || tdash.Data.ValidatedItems != 2 || tdash.Data.TotalAnswers != 1 {
		t.Errorf("unexpected teacher dashboard: %+v", tdash.Data)
	}

	expectStatus(t, ts.do(t, teacher, http.MethodGet, fmt.Sprintf("/analytics/students/%d", student.id), nil), http.StatusOK)
	expectStatus(t, ts.do(t, teacher, http.MethodGet, "/analytics/classes", nil), http.StatusOK)
	expectStatus(t, ts.do(t, teacher, http.MethodGet, "/analytics/grades", nil), http.StatusOK)
	expectStatus(t, ts.do(t, teacher, http.MethodGet, fmt.Sprintf("/analytics/students?class_id=%d", class.ID), nil), http.StatusOK)
}

func TestAccessControl(t *testing.T) {
	ts := newTestServer(t)
	student := actor{id: 5, role: "student"}

	tests := []struct {
		name   string
		c      actor
		method string
		path   string
		want   int
	}{
		{"no identity", actor{}, http.MethodGet, "/classes", http.StatusUnauthorized},
		{"unknown role", actor{id: 1, role: "admin"}, http.MethodGet, "/classes", http.StatusUnauthorized},
		{"student on teacher route", student, http.MethodGet, "/items/pending", http.StatusForbidden},
		{"teacher on student route", teacher, http.MethodGet, "/me/dashboard", http.StatusForbidden},
		{"any role lists classes", student, http.MethodGet, "/classes", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.c, tt.method, tt.path, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		c    actor
		path string
		body any
		want int
		kind string
	}{
		{"malformed tag", teacher, "/documents", map[string]string{"chapter": "SUPP_", "text": courseText}, http.StatusBadRequest, "validation"},
		{"unknown field", teacher, "/documents", map[string]string{"chapitre": "x"}, http.StatusBadRequest, "validation"},
		{"missing document", teacher, "/documents/99/process", nil, http.StatusNotFound, "not_found"},
		{"bad count", teacher, "/documents/1/process", map[string]int{"count": 11}, http.StatusBadRequest, "validation"},
		{"bad option", actor{id: 5, role: "student"}, "/me/answers", map[string]int{"item_id": 1, "chosen": 9}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.c, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status %d, want %d", resp.StatusCode, tt.want)
			}
			e := decode[map[string]errorBody](t, resp)["error"]
			if e.Kind != tt.kind || e.Message == "" {
				t.Errorf("unexpected error body: %+v", e)
			}
		})
	}
}

func (ts *testServer) upload(t *testing.T, fields map[string]string, name, content string) documentResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, _ := mw.CreateFormFile("file", name)
	fw.Write([]byte(content))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", fmt.Sprint(teacher.id))
	req.Header.Set("X-User-Role", teacher.role)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	return decode[documentResponse](t, resp)
}

func TestScannedUploadJobFails(t *testing.T) {
	ts := newTestServer(t)

	doc := ts.upload(t, map[string]string{"chapter": "Vectors", "program": "supplementary", "grade": "4e"},
		"scan.pdf", "%PDF-1.4 scanned")
	if doc.ChapterTag != "SUPP_4e_Vectors" || doc.Label != "Supplementary 4e - Vectors" {
		t.Errorf("unexpected document: %+v", doc)
	}

	resp := ts.do(t, teacher, http.MethodPost, fmt.Sprintf("/documents/%d/process", doc.ID), nil)
	expectStatus(t, resp, http.StatusAccepted)
	job := decode[model.Job](t, resp)
	ts.jobs.Wait()

	got, err := ts.jobs.Status(context.Background(), teacher.id, job.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != model.JobFailed || got.ErrorKind != "scanned_document_unsupported" {
		t.Errorf("unexpected job: %+v", got)
	}
}

type brokenOCR struct{}

func (brokenOCR) Recognize(context.Context, string, string) (extract.OCRResult, error) {
	return extract.OCRResult{}, errors.New("tesseract failed: exit status 1; stderr=Error opening data file /usr/share/tessdata/fra.traineddata")
}

func TestOCRFailureJobHidesToolOutput(t *testing.T) {
	ts := newTestServerWith(t, extract.NewPipeline(brokenOCR{}, extract.TextLayer{}, nil, extract.Config{}))

	doc := ts.upload(t, map[string]string{"chapter": "Fractions"}, "board.png", "not really a png")
	resp := ts.do(t, teacher, http.MethodPost, fmt.Sprintf("/documents/%d/process", doc.ID), nil)
	expectStatus(t, resp, http.StatusAccepted)
	job := decode[model.Job](t, resp)
	ts.jobs.Wait()

	resp = ts.do(t, teacher, http.MethodGet, "/jobs/"+job.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, `"error_kind":"extraction"`) {
		t.Errorf("job is not an extraction failure: %s", body)
	}
	for _, leak := range []string{"stderr", "tessdata", "exit status"} {
		if strings.Contains(body, leak) {
			t.Errorf("job response exposes %q: %s", leak, body)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		"validation":                   http.StatusBadRequest,
		"not_found":                    http.StatusNotFound,
		"extraction":                   http.StatusUnprocessableEntity,
		"scanned_document_unsupported": http.StatusUnprocessableEntity,
		"duplicate_submission":         http.StatusConflict,
		"internal":                     http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestInternalErrorHidden(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, errors.New("dial tcp 10.0.0.3:443: provider key sk-123 rejected"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-123") {
		t.Errorf("internal detail leaked: %s", rec.Body.String())
	}
}
