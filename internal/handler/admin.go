package handler

import (
	"fmt"
	"net/http"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/model"
)

func (h *Handler) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.roster.ListClasses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

type createClassRequest struct {
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

func (h *Handler) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	grade, err := chapter.ParseGrade(req.Grade)
	if err != nil {
		writeError(w, r, fmt.Errorf("%v: %w", err, model.ErrValidation))
		return
	}
	c, err := h.roster.CreateClass(r.Context(), req.Name, grade)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	classID, err := queryID(r, "class_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	students, err := h.roster.ListStudents(r.Context(), classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

type createStudentRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ClassID   *int64 `json:"class_id,omitempty"`
}

func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.roster.CreateStudent(r.Context(), req.FirstName, req.LastName, req.ClassID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}
