package analytics

import (
	"sort"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

const (
	day              = 24 * time.Hour
	activityWindow   = 7 * day
	staleAfter       = 3 * day
	topChapterLimit  = 5
	evolutionWindow  = 30 * day
	problematicLimit = 10
)

// AlertKind identifies a dashboard alert.
type AlertKind string

const (
	AlertStrugglingStudents AlertKind = "struggling_students"
	AlertStalePending       AlertKind = "stale_pending_items"
)

// Alert is a dashboard notification.
type Alert struct {
	Kind  AlertKind `json:"kind"`
	Count int       `json:"count"`
	IDs   []int64   `json:"ids,omitempty"`
}

// DayActivity counts answers and distinct active students on one day.
type DayActivity struct {
	Date     string `json:"date"`
	Answers  int    `json:"answers"`
	Students int    `json:"students"`
}

// ChapterActivity summarizes the answers given on one chapter.
type ChapterActivity struct {
	ChapterTag  string  `json:"chapter_tag"`
	Answers     int     `json:"answers"`
	Students    int     `json:"students"`
	SuccessRate float64 `json:"success_rate"`
}

// TeacherDashboard is the teacher's overview of content and activity.
type TeacherDashboard struct {
	Documents            int               `json:"documents"`
	GeneratedItems       int               `json:"generated_items"`
	ValidatedItems       int               `json:"validated_items"`
	PendingItems         int               `json:"pending_items"`
	ValidationRate       float64           `json:"validation_rate"`
	TotalAnswers         int               `json:"total_answers"`
	RecentActivity       []DayActivity     `json:"recent_activity"`
	TopChapters          []ChapterActivity `json:"top_chapters"`
	Alerts               []Alert           `json:"alerts"`
	ChaptersWithoutItems int               `json:"chapters_without_items"`
}

// BuildTeacherDashboard computes the dashboard of one teacher from their
// documents, their items and the answers given on those items.
func BuildTeacherDashboard(now time.Time, docs []DocumentFact, items []ItemFact, answers []AnswerFact) TeacherDashboard {
	d := TeacherDashboard{
		Documents:      len(docs),
		GeneratedItems: len(items),
		TotalAnswers:   len(answers),
		RecentActivity: Activity(now, answers, activityWindow),
		TopChapters:    ChapterActivities(answers),
		Alerts:         []Alert{},
	}

	itemChapters := make(map[string]bool)
	var stale []int64
	for _, it := range items {
		itemChapters[it.ChapterTag] = true
		switch it.Status {
		case model.ItemValidated:
			d.ValidatedItems++
		case model.ItemPending:
			d.PendingItems++
			if it.CreatedAt.Before(now.Add(-staleAfter)) {
				stale = append(stale, it.ID)
			}
		}
	}
	d.ValidationRate = Rate(d.ValidatedItems, d.GeneratedItems)

	sort.SliceStable(d.TopChapters, func(i, j int) bool { return d.TopChapters[i].Answers > d.TopChapters[j].Answers })
	if len(d.TopChapters) > topChapterLimit {
		d.TopChapters = d.TopChapters[:topChapterLimit]
	}

	if struggling := StrugglingStudents(answers, difficultyRate); len(struggling) > 0 {
		d.Alerts = append(d.Alerts, Alert{Kind: AlertStrugglingStudents, Count: len(struggling), IDs: struggling})
	}
	if len(stale) > 0 {
		d.Alerts = append(d.Alerts, Alert{Kind: AlertStalePending, Count: len(stale), IDs: stale})
	}

	seen := make(map[string]bool)
	for _, doc := range docs {
		if seen[doc.ChapterTag] {
			continue
		}
		seen[doc.ChapterTag] = true
		if !itemChapters[doc.ChapterTag] {
			d.ChaptersWithoutItems++
		}
	}
	return d
}

// StrugglingStudents returns the students with more than five answers and a
// success rate below threshold, in ascending ID order.
func StrugglingStudents(answers []AnswerFact, threshold float64) []int64 {
	type tally struct{ total, correct int }
	per := make(map[int64]*tally)
	for _, a := range answers {
		t, ok := per[a.StudentID]
		if !ok {
			t = &tally{}
			per[a.StudentID] = t
		}
		t.total++
		if a.Correct {
			t.correct++
		}
	}
	var ids []int64
	for id, t := range per {
		if t.total > difficultyMinSeen && Rate(t.correct, t.total) < threshold {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Activity groups answers newer than window by calendar day, newest day first.
func Activity(now time.Time, answers []AnswerFact, window time.Duration) []DayActivity {
	since := now.Add(-window)
	type bucket struct {
		answers  int
		students map[int64]bool
	}
	days := make(map[string]*bucket)
	for _, a := range answers {
		if a.At.Before(since) {
			continue
		}
		key := a.At.In(now.Location()).Format(time.DateOnly)
		b, ok := days[key]
		if !ok {
			b = &bucket{students: make(map[int64]bool)}
			days[key] = b
		}
		b.answers++
		b.students[a.StudentID] = true
	}
	out := make([]DayActivity, 0, len(days))
	for k, b := range days {
		out = append(out, DayActivity{Date: k, Answers: b.answers, Students: len(b.students)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// ChapterActivities groups answers by chapter, ordered by chapter tag.
func ChapterActivities(answers []AnswerFact) []ChapterActivity {
	type tally struct {
		answers, correct int
		students         map[int64]bool
	}
	per := make(map[string]*tally)
	for _, a := range answers {
		t, ok := per[a.ChapterTag]
		if !ok {
			t = &tally{students: make(map[int64]bool)}
			per[a.ChapterTag] = t
		}
		t.answers++
		t.students[a.StudentID] = true
		if a.Correct {
			t.correct++
		}
	}
	out := make([]ChapterActivity, 0, len(per))
	for tag, t := range per {
		out = append(out, ChapterActivity{
			ChapterTag:  tag,
			Answers:     t.answers,
			Students:    len(t.students),
			SuccessRate: Rate(t.correct, t.answers),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterTag < out[j].ChapterTag })
	return out
}
