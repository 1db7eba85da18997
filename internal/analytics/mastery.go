package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/pavelanni/qcm/internal/model"
)

// Level is the badge awarded for an overall success rate.
type Level string

const (
	LevelExpert      Level = "expert"
	LevelAdvanced    Level = "advanced"
	LevelConfirmed   Level = "confirmed"
	LevelProgressing Level = "progressing"
	LevelBeginner    Level = "beginner"
)

// ChapterStatus buckets a student's progress on one chapter.
type ChapterStatus string

const (
	StatusNotStarted  ChapterStatus = "not_started"
	StatusInProgress  ChapterStatus = "in_progress"
	StatusMastered    ChapterStatus = "mastered"
	StatusAcquired    ChapterStatus = "acquired"
	StatusNeedsReview ChapterStatus = "needs_review"
)

const (
	difficultyRate    = 50.0
	difficultyMinSeen = 5
	masteredRate      = 80.0
	acquiredRate      = 60.0
)

// Rate returns correct/total as a percentage rounded to one decimal, 0 when
// total is 0.
func Rate(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round1(float64(correct) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// LevelFor maps a success rate to a level badge.
func LevelFor(rate float64) Level {
	switch {
	case rate >= 90:
		return LevelExpert
	case rate >= 80:
		return LevelAdvanced
	case rate >= 70:
		return LevelConfirmed
	case rate >= 60:
		return LevelProgressing
	}
	return LevelBeginner
}

// InDifficulty reports whether a student with these totals should be flagged.
func InDifficulty(correct, total int) bool {
	return total > difficultyMinSeen && Rate(correct, total) < difficultyRate
}

// ChapterStatusFor classifies progress on a chapter with total validated items.
func ChapterStatusFor(answered, total, correct int) ChapterStatus {
	switch {
	case answered == 0:
		return StatusNotStarted
	case answered < total:
		return StatusInProgress
	}
	rate := float64(correct) / float64(answered) * 100
	switch {
	case rate >= masteredRate:
		return StatusMastered
	case rate >= acquiredRate:
		return StatusAcquired
	}
	return StatusNeedsReview
}

// Mastery summarizes one student's answers.
type Mastery struct {
	Total       int     `json:"total"`
	Correct     int     `json:"correct"`
	SuccessRate float64 `json:"success_rate"`
	Difficulty  bool    `json:"difficulty"`
	Level       Level   `json:"level"`
}

// StudentMastery computes the mastery summary of a set of answers.
func StudentMastery(answers []AnswerFact) Mastery {
	m := Mastery{Total: len(answers)}
	for _, a := range answers {
		if a.Correct {
			m.Correct++
		}
	}
	m.SuccessRate = Rate(m.Correct, m.Total)
	m.Difficulty = InDifficulty(m.Correct, m.Total)
	m.Level = LevelFor(m.SuccessRate)
	return m
}

// ChapterProgress is one row of a student's per-chapter progress.
type ChapterProgress struct {
	ChapterTag  string        `json:"chapter_tag"`
	Total       int           `json:"total"`
	Answered    int           `json:"answered"`
	Correct     int           `json:"correct"`
	Completion  float64       `json:"completion"`
	SuccessRate float64       `json:"success_rate"`
	Status      ChapterStatus `json:"status"`
}

// Progress computes per-chapter progress for a student from the validated
// items and the student's answers. Answers on items that are no longer
// validated are ignored.
func Progress(validated []ItemFact, answers []AnswerFact) []ChapterProgress {
	byChapter := make(map[string]*ChapterProgress)
	itemChapter := make(map[int64]string, len(validated))
	for _, it := range validated {
		if it.Status != model.ItemValidated {
			continue
		}
		itemChapter[it.ID] = it.ChapterTag
		row, ok := byChapter[it.ChapterTag]
		if !ok {
			row = &ChapterProgress{ChapterTag: it.ChapterTag}
			byChapter[it.ChapterTag] = row
		}
		row.Total++
	}
	for _, a := range answers {
		tag, ok := itemChapter[a.ItemID]
		if !ok {
			continue
		}
		row := byChapter[tag]
		row.Answered++
		if a.Correct {
			row.Correct++
		}
	}

	out := make([]ChapterProgress, 0, len(byChapter))
	for _, row := range byChapter {
		row.Completion = Rate(row.Answered, row.Total)
		row.SuccessRate = Rate(row.Correct, row.Answered)
		row.Status = ChapterStatusFor(row.Answered, row.Total, row.Correct)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterTag < out[j].ChapterTag })
	return out
}

// ReviewEntry is an answered item shown in a student's activity lists.
type ReviewEntry struct {
	ItemID     int64     `json:"item_id"`
	Question   string    `json:"question"`
	ChapterTag string    `json:"chapter_tag"`
	Correct    bool      `json:"correct"`
	At         time.Time `json:"at"`
}

// StudentDashboard is the student's personal overview.
type StudentDashboard struct {
	Mastery        Mastery           `json:"mastery"`
	ToReview       []ReviewEntry     `json:"to_review"`
	Chapters       []ChapterProgress `json:"chapters"`
	RecentActivity []ReviewEntry     `json:"recent_activity"`
}

const studentListLimit = 10

// BuildStudentDashboard assembles a student's overview.
func BuildStudentDashboard(validated []ItemFact, answers []AnswerFact) StudentDashboard {
	recent := newestFirst(answers)
	d := StudentDashboard{
		Mastery:        StudentMastery(answers),
		Chapters:       Progress(validated, answers),
		ToReview:       []ReviewEntry{},
		RecentActivity: []ReviewEntry{},
	}
	for _, a := range recent {
		if !a.Correct && len(d.ToReview) < studentListLimit {
			d.ToReview = append(d.ToReview, reviewEntry(a))
		}
		if len(d.RecentActivity) < studentListLimit {
			d.RecentActivity = append(d.RecentActivity, reviewEntry(a))
		}
	}
	return d
}

func reviewEntry(a AnswerFact) ReviewEntry {
	return ReviewEntry{ItemID: a.ItemID, Question: a.Question, ChapterTag: a.ChapterTag, Correct: a.Correct, At: a.At}
}

func newestFirst(answers []AnswerFact) []AnswerFact {
	out := make([]AnswerFact, len(answers))
	copy(out, answers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}
