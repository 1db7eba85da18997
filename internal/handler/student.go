package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qcm/internal/chapter"
	appI18n "github.com/pavelanni/qcm/internal/i18n"
	"github.com/pavelanni/qcm/internal/model"
)

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	st, err := h.roster.Student(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type chooseClassRequest struct {
	ClassID int64 `json:"class_id"`
}

func (h *Handler) handleChooseClass(w http.ResponseWriter, r *http.Request) {
	var req chooseClassRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.roster.ChooseClass(r.Context(), caller(r).ID, req.ClassID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleStudentItems(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("chapter")
	items, err := h.review.StudentItems(r.Context(), caller(r).ID, tag)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chapter": tag,
		"label":   appI18n.Chapter(r.Context(), tag),
		"items":   items,
	})
}

func (h *Handler) handleItemsByProgram(w http.ResponseWriter, r *http.Request) {
	program, err := chapter.ParseProgramType(chi.URLParam(r, "program"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%v: %w", err, model.ErrValidation))
		return
	}
	groups, err := h.review.ItemsByProgram(r.Context(), caller(r).ID, program)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range groups {
		groups[i].Label = appI18n.Chapter(r.Context(), groups[i].Chapter)
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) handleRevision(w http.ResponseWriter, r *http.Request) {
	items, err := h.review.Revision(r.Context(), caller(r).ID, r.URL.Query().Get("chapter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type answerRequest struct {
	ItemID       int64 `json:"item_id"`
	Chosen       int   `json:"chosen"`
	ResponseTime *int  `json:"response_time_seconds,omitempty"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.scoring.Submit(r.Context(), caller(r).ID, req.ItemID, req.Chosen, req.ResponseTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleStudentDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.analytics.StudentDashboard(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l := newLabels()
	l.add(r.Context(), "Level", string(d.Mastery.Level))
	for _, c := range d.Chapters {
		l.chapter(r.Context(), c.ChapterTag)
		l.add(r.Context(), "Status", string(c.Status))
	}
	for _, e := range d.RecentActivity {
		l.chapter(r.Context(), e.ChapterTag)
	}
	writeJSON(w, http.StatusOK, labeled{Data: d, Labels: l})
}
