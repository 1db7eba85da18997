package handler

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/course"
	"github.com/pavelanni/qcm/internal/generate"
	appI18n "github.com/pavelanni/qcm/internal/i18n"
	"github.com/pavelanni/qcm/internal/model"
)

// defaultCount is the batch size used when a process request names none.
const defaultCount = 5

type documentResponse struct {
	course.View
	Label string `json:"label"`
}

func documentOut(ctx context.Context, v course.View) documentResponse {
	return documentResponse{View: v, Label: appI18n.Chapter(ctx, v.ChapterTag)}
}

func (h *Handler) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var nd course.NewDocument
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		if nd, err = h.readUpload(w, r); err != nil {
			writeError(w, r, err)
			return
		}
	} else if err := decodeJSON(w, r, &nd); err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.courses.Create(r.Context(), caller(r).ID, nd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentOut(r.Context(), v))
}

// readUpload stores the uploaded file and returns the document described by
// the remaining form fields.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (course.NewDocument, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return course.NewDocument{}, fmt.Errorf("read upload: %v: %w", err, model.ErrValidation)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return course.NewDocument{}, fmt.Errorf("no file uploaded: %w", model.ErrValidation)
	}
	defer file.Close()

	path, err := h.courses.SaveUpload(header.Filename, file)
	if err != nil {
		return course.NewDocument{}, err
	}
	slog.Info("stored upload", "filename", header.Filename, "size", header.Size)

	nd := course.NewDocument{
		Title:    r.FormValue("title"),
		Subject:  r.FormValue("subject"),
		Chapter:  r.FormValue("chapter"),
		FilePath: path,
	}
	if p := r.FormValue("program"); p != "" {
		if nd.Program, err = chapter.ParseProgramType(p); err != nil {
			return nd, fmt.Errorf("%v: %w", err, model.ErrValidation)
		}
	}
	if g := r.FormValue("grade"); g != "" {
		if nd.Grade, err = chapter.ParseGrade(g); err != nil {
			return nd, fmt.Errorf("%v: %w", err, model.ErrValidation)
		}
	}
	return nd, nil
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var program chapter.ProgramType
	grade := chapter.NoGrade
	var err error
	if p := q.Get("program"); p != "" {
		if program, err = chapter.ParseProgramType(p); err != nil {
			writeError(w, r, fmt.Errorf("%v: %w", err, model.ErrValidation))
			return
		}
	}
	if g := q.Get("grade"); g != "" {
		if grade, err = chapter.ParseGrade(g); err != nil {
			writeError(w, r, fmt.Errorf("%v: %w", err, model.ErrValidation))
			return
		}
	}

	docs, err := h.courses.ListByProgram(r.Context(), caller(r).ID, program, grade)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentOut(r.Context(), d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "docID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.courses.Get(r.Context(), caller(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentOut(r.Context(), v))
}

type countRequest struct {
	Count int `json:"count"`
}

func (h *Handler) readCount(w http.ResponseWriter, r *http.Request) (int64, int, error) {
	id, err := pathID(r, "docID")
	if err != nil {
		return 0, 0, err
	}
	req := countRequest{Count: defaultCount}
	if err := decodeJSON(w, r, &req); err != nil {
		return 0, 0, err
	}
	if req.Count < 1 || req.Count > generate.MaxCount {
		return 0, 0, fmt.Errorf("count %d outside [1, %d]: %w", req.Count, generate.MaxCount, model.ErrValidation)
	}
	return id, req.Count, nil
}

// handleProcess starts extraction and generation for a document and returns
// the job to poll.
func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	docID, count, err := h.readCount(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner := caller(r).ID
	// Fail fast on bad input instead of queuing a job bound to fail.
	if _, err := h.courses.Get(r.Context(), owner, docID); err != nil {
		writeError(w, r, err)
		return
	}

	j, err := h.jobs.Submit(r.Context(), owner, docID, func(ctx context.Context) (model.ProcessResult, error) {
		return h.courses.Process(ctx, owner, docID, count)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	docID, count, err := h.readCount(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner := caller(r).ID
	if _, err := h.courses.Get(r.Context(), owner, docID); err != nil {
		writeError(w, r, err)
		return
	}

	j, err := h.jobs.Submit(r.Context(), owner, docID, func(ctx context.Context) (model.ProcessResult, error) {
		return h.review.Regenerate(ctx, owner, docID, count)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

type jobResponse struct {
	model.Job
	Message string `json:"message,omitempty"`
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Status(r.Context(), caller(r).ID, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := jobResponse{Job: j}
	switch {
	case j.Status == model.JobSucceeded && j.Result != nil:
		out.Message = appI18n.Tp(r.Context(), "ItemsGenerated", j.Result.Generated)
	case j.Status == model.JobFailed:
		out.Message = appI18n.Label(r.Context(), "Error", j.ErrorKind)
	}
	writeJSON(w, http.StatusOK, out)
}
