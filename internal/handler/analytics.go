package handler

import (
	"context"
	"net/http"

	appI18n "github.com/pavelanni/qcm/internal/i18n"
)

// labels maps enumerated values and chapter tags found in a response to
// their localized text, keyed as "group.value".
type labels map[string]string

func newLabels() labels { return labels{} }

func (l labels) add(ctx context.Context, group, value string) {
	if value == "" {
		return
	}
	l[group+"."+value] = appI18n.Label(ctx, group, value)
}

func (l labels) chapter(ctx context.Context, tag string) {
	l["Chapter."+tag] = appI18n.Chapter(ctx, tag)
}

type labeled struct {
	Data   any    `json:"data"`
	Labels labels `json:"labels"`
}

func (h *Handler) handleTeacherDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.analytics.TeacherDashboard(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l := newLabels()
	for _, a := range d.Alerts {
		l["Alert."+string(a.Kind)] = appI18n.Tp(r.Context(), "Alert_"+string(a.Kind), a.Count)
	}
	for _, c := range d.TopChapters {
		l.chapter(r.Context(), c.ChapterTag)
	}
	writeJSON(w, http.StatusOK, labeled{Data: d, Labels: l})
}

func (h *Handler) handleCompareClasses(w http.ResponseWriter, r *http.Request) {
	c, err := h.analytics.CompareClasses(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l := newLabels()
	for _, ch := range c.Chapters {
		l.chapter(r.Context(), ch.ChapterTag)
	}
	writeJSON(w, http.StatusOK, labeled{Data: c, Labels: l})
}

func (h *Handler) handleGradeReport(w http.ResponseWriter, r *http.Request) {
	g, err := h.analytics.GradeReport(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l := newLabels()
	l.add(r.Context(), "Trend", string(g.Trend))
	writeJSON(w, http.StatusOK, labeled{Data: g, Labels: l})
}

func (h *Handler) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	classID, err := queryID(r, "class_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.analytics.FollowUp(r.Context(), caller(r).ID, classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) handleStudentDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "studentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.roster.Student(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.analytics.StudentDetail(r.Context(), id)
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
	for _, rec := range d.Recommendations {
		l.add(r.Context(), "Recommend", string(rec))
	}
	writeJSON(w, http.StatusOK, labeled{Data: d, Labels: l})
}
