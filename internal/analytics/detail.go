package analytics

import (
	"sort"
	"time"
)

// Recommendation is an action suggested to the teacher about one student.
type Recommendation string

const (
	RecommendUrgent       Recommendation = "urgent_support"
	RecommendAttention    Recommendation = "needs_attention"
	RecommendSlow         Recommendation = "slow_answers"
	RecommendWeakChapters Recommendation = "weak_chapters"
	RecommendRevision     Recommendation = "revision_session"
)

const (
	urgentRate      = 50.0
	attentionRate   = 70.0
	slowMeanSeconds = 60.0
	revisionAfter   = 5
)

// ProblematicItem is an item a student failed, with how often.
type ProblematicItem struct {
	ItemID     int64     `json:"item_id"`
	Question   string    `json:"question"`
	ChapterTag string    `json:"chapter_tag"`
	Failures   int       `json:"failures"`
	LastAt     time.Time `json:"last_at"`
}

// DaySuccess is the success rate of a student on one day.
type DaySuccess struct {
	Date        string  `json:"date"`
	Answers     int     `json:"answers"`
	SuccessRate float64 `json:"success_rate"`
}

// StudentDetail is the teacher's view of one student.
type StudentDetail struct {
	Mastery         Mastery           `json:"mastery"`
	MeanResponse    float64           `json:"mean_response_seconds"`
	Chapters        []ChapterProgress `json:"chapters"`
	Problematic     []ProblematicItem `json:"problematic"`
	Evolution       []DaySuccess      `json:"evolution"`
	WeakChapters    []string          `json:"weak_chapters"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// BuildStudentDetail computes the detail view from the validated items and
// one student's answers.
func BuildStudentDetail(now time.Time, validated []ItemFact, answers []AnswerFact) StudentDetail {
	d := StudentDetail{
		Mastery:         StudentMastery(answers),
		MeanResponse:    meanResponse(answers),
		Chapters:        Progress(validated, answers),
		Problematic:     problematic(answers),
		Evolution:       evolution(now, answers),
		WeakChapters:    []string{},
		Recommendations: []Recommendation{},
	}
	for _, c := range d.Chapters {
		if c.Answered > 0 && c.SuccessRate < acquiredRate {
			d.WeakChapters = append(d.WeakChapters, c.ChapterTag)
		}
	}
	d.Recommendations = recommend(d)
	return d
}

func recommend(d StudentDetail) []Recommendation {
	recs := []Recommendation{}
	if d.Mastery.Total == 0 {
		return recs
	}
	switch {
	case d.Mastery.SuccessRate < urgentRate:
		recs = append(recs, RecommendUrgent)
	case d.Mastery.SuccessRate < attentionRate:
		recs = append(recs, RecommendAttention)
	}
	if d.MeanResponse > slowMeanSeconds {
		recs = append(recs, RecommendSlow)
	}
	if len(d.WeakChapters) > 0 {
		recs = append(recs, RecommendWeakChapters)
	}
	if len(d.Problematic) > revisionAfter {
		recs = append(recs, RecommendRevision)
	}
	return recs
}

func meanResponse(answers []AnswerFact) float64 {
	var sum, n int
	for _, a := range answers {
		if a.ResponseTime != nil {
			sum += *a.ResponseTime
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round1(float64(sum) / float64(n))
}

func problematic(answers []AnswerFact) []ProblematicItem {
	per := make(map[int64]*ProblematicItem)
	for _, a := range answers {
		if a.Correct {
			continue
		}
		p, ok := per[a.ItemID]
		if !ok {
			p = &ProblematicItem{ItemID: a.ItemID, Question: a.Question, ChapterTag: a.ChapterTag}
			per[a.ItemID] = p
		}
		p.Failures++
		if a.At.After(p.LastAt) {
			p.LastAt = a.At
		}
	}
	out := make([]ProblematicItem, 0, len(per))
	for _, p := range per {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		if !out[i].LastAt.Equal(out[j].LastAt) {
			return out[i].LastAt.After(out[j].LastAt)
		}
		return out[i].ItemID < out[j].ItemID
	})
	if len(out) > problematicLimit {
		out = out[:problematicLimit]
	}
	return out
}

// evolution returns the daily success rate over the last 30 days, oldest first.
func evolution(now time.Time, answers []AnswerFact) []DaySuccess {
	since := now.Add(-evolutionWindow)
	type tally struct{ total, correct int }
	days := make(map[string]*tally)
	for _, a := range answers {
		if a.At.Before(since) {
			continue
		}
		key := a.At.In(now.Location()).Format(time.DateOnly)
		t, ok := days[key]
		if !ok {
			t = &tally{}
			days[key] = t
		}
		t.total++
		if a.Correct {
			t.correct++
		}
	}
	out := make([]DaySuccess, 0, len(days))
	for k, t := range days {
		out = append(out, DaySuccess{Date: k, Answers: t.total, SuccessRate: Rate(t.correct, t.total)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
