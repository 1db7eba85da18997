package handler

import (
	"net/http"

	"github.com/pavelanni/qcm/internal/model"
)

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.review.ListPending(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.review.Accept(r.Context(), caller(r).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAcceptWithEdits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var edits model.ItemEdits
	if err := decodeJSON(w, r, &edits); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.review.AcceptWithEdits(r.Context(), caller(r).ID, id, edits); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.review.Reject(r.Context(), caller(r).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
