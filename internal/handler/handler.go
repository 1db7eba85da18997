package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qcm/internal/analytics"
	"github.com/pavelanni/qcm/internal/course"
	appI18n "github.com/pavelanni/qcm/internal/i18n"
	"github.com/pavelanni/qcm/internal/jobs"
	"github.com/pavelanni/qcm/internal/model"
	"github.com/pavelanni/qcm/internal/review"
	"github.com/pavelanni/qcm/internal/roster"
	"github.com/pavelanni/qcm/internal/scoring"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	courses   *course.Service
	review    *review.Service
	scoring   *scoring.Service
	analytics *analytics.Service
	roster    *roster.Service
	jobs      *jobs.Runner
	maxUpload int64
}

// Deps lists the services served over HTTP.
type Deps struct {
	Courses   *course.Service
	Review    *review.Service
	Scoring   *scoring.Service
	Analytics *analytics.Service
	Roster    *roster.Service
	Jobs      *jobs.Runner
	// MaxUpload bounds multipart uploads in bytes.
	MaxUpload int64
}

// New creates a new Handler.
func New(d Deps) *Handler {
	return &Handler{
		courses:   d.Courses,
		review:    d.Review,
		scoring:   d.Scoring,
		analytics: d.Analytics,
		roster:    d.Roster,
		jobs:      d.Jobs,
		maxUpload: d.MaxUpload,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(appI18n.Middleware())
	r.Use(identity)

	r.Get("/classes", h.handleListClasses)

	r.Group(func(r chi.Router) {
		r.Use(requireRole(model.UserRoleTeacher))

		r.Post("/documents", h.handleCreateDocument)
		r.Get("/documents", h.handleListDocuments)
		r.Get("/documents/{docID}", h.handleGetDocument)
		r.Post("/documents/{docID}/process", h.handleProcess)
		r.Post("/documents/{docID}/regenerate", h.handleRegenerate)
		r.Get("/jobs/{jobID}", h.handleJobStatus)

		r.Get("/items/pending", h.handleListPending)
		r.Post("/items/{itemID}/accept", h.handleAccept)
		r.Put("/items/{itemID}", h.handleAcceptWithEdits)
		r.Delete("/items/{itemID}", h.handleReject)

		r.Get("/dashboard", h.handleTeacherDashboard)
		r.Get("/analytics/classes", h.handleCompareClasses)
		r.Get("/analytics/grades", h.handleGradeReport)
		r.Get("/analytics/students", h.handleFollowUp)
		r.Get("/analytics/students/{studentID}", h.handleStudentDetail)

		r.Post("/classes", h.handleCreateClass)
		r.Get("/students", h.handleListStudents)
		r.Post("/students", h.handleCreateStudent)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(requireRole(model.UserRoleStudent))

		r.Get("/", h.handleMe)
		r.Post("/class", h.handleChooseClass)
		r.Get("/items", h.handleStudentItems)
		r.Get("/programs/{program}", h.handleItemsByProgram)
		r.Get("/revision", h.handleRevision)
		r.Post("/answers", h.handleSubmitAnswer)
		r.Get("/dashboard", h.handleStudentDashboard)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "extraction", "scanned_document_unsupported":
		return http.StatusUnprocessableEntity
	case "duplicate_submission":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status code and a localized message. Details are
// only returned for client errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.Kind(err)
	body := errorBody{Kind: kind, Message: appI18n.Label(r.Context(), "Error", kind)}
	if model.IsClientError(err) {
		body.Detail = err.Error()
	} else {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, statusFor(kind), map[string]errorBody{"error": body})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: %v: %w", err, model.ErrValidation)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, chi.URLParam(r, name), model.ErrValidation)
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, model.ErrValidation)
	}
	return id, nil
}
