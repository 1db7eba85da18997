package analytics

import (
	"sort"
	"time"

	"github.com/pavelanni/qcm/internal/chapter"
	"github.com/pavelanni/qcm/internal/model"
)

// ClassStats summarizes participation and success of one class.
type ClassStats struct {
	ClassID        int64         `json:"class_id"`
	Name           string        `json:"name"`
	Grade          chapter.Grade `json:"grade"`
	Students       int           `json:"students"`
	Answers        int           `json:"answers"`
	Correct        int           `json:"correct"`
	MeanSuccess    float64       `json:"mean_success"`
	ActiveStudents int           `json:"active_students_7d"`
}

// ChapterDifficulty ranks a chapter by mean success.
type ChapterDifficulty struct {
	ChapterTag   string  `json:"chapter_tag"`
	Participants int     `json:"participants"`
	Answers      int     `json:"answers"`
	MeanSuccess  float64 `json:"mean_success"`
}

// ClassComparison compares classes and ranks chapters by difficulty.
type ClassComparison struct {
	Classes  []ClassStats        `json:"classes"`
	Best     *ClassStats         `json:"best,omitempty"`
	Most     *ClassStats         `json:"most_active,omitempty"`
	Chapters []ChapterDifficulty `json:"chapters"`
	Hardest  *ChapterDifficulty  `json:"hardest_chapter,omitempty"`
}

type classTally struct {
	stats    ClassStats
	students map[int64]bool
	active   map[int64]bool
}

func tallyClasses(now time.Time, classes []model.Class, students []model.Student, answers []AnswerFact) map[int64]*classTally {
	per := make(map[int64]*classTally, len(classes))
	for _, c := range classes {
		per[c.ID] = &classTally{
			stats:    ClassStats{ClassID: c.ID, Name: c.Name, Grade: c.Grade},
			students: make(map[int64]bool),
			active:   make(map[int64]bool),
		}
	}
	classOf := make(map[int64]int64, len(students))
	for _, st := range students {
		if st.ClassID == nil {
			continue
		}
		t, ok := per[*st.ClassID]
		if !ok {
			continue
		}
		classOf[st.ID] = *st.ClassID
		t.students[st.ID] = true
	}
	since := now.Add(-activityWindow)
	for _, a := range answers {
		cid, ok := classOf[a.StudentID]
		if !ok {
			continue
		}
		t := per[cid]
		t.stats.Answers++
		if a.Correct {
			t.stats.Correct++
		}
		if !a.At.Before(since) {
			t.active[a.StudentID] = true
		}
	}
	for _, t := range per {
		t.stats.Students = len(t.students)
		t.stats.ActiveStudents = len(t.active)
		t.stats.MeanSuccess = Rate(t.stats.Correct, t.stats.Answers)
	}
	return per
}

// CompareClasses ranks classes with at least one student by mean success and
// chapters by ascending mean success.
func CompareClasses(now time.Time, classes []model.Class, students []model.Student, answers []AnswerFact) ClassComparison {
	cmp := ClassComparison{Classes: []ClassStats{}, Chapters: []ChapterDifficulty{}}
	for _, t := range tallyClasses(now, classes, students, answers) {
		if t.stats.Students > 0 {
			cmp.Classes = append(cmp.Classes, t.stats)
		}
	}
	sort.Slice(cmp.Classes, func(i, j int) bool {
		a, b := cmp.Classes[i], cmp.Classes[j]
		if a.MeanSuccess != b.MeanSuccess {
			return a.MeanSuccess > b.MeanSuccess
		}
		return a.ClassID < b.ClassID
	})
	if len(cmp.Classes) > 0 {
		best := cmp.Classes[0]
		cmp.Best = &best
		most := cmp.Classes[0]
		for _, c := range cmp.Classes[1:] {
			if c.ActiveStudents > most.ActiveStudents {
				most = c
			}
		}
		cmp.Most = &most
	}

	for _, ca := range ChapterActivities(answers) {
		cmp.Chapters = append(cmp.Chapters, ChapterDifficulty{
			ChapterTag:   ca.ChapterTag,
			Participants: ca.Students,
			Answers:      ca.Answers,
			MeanSuccess:  ca.SuccessRate,
		})
	}
	sort.SliceStable(cmp.Chapters, func(i, j int) bool { return cmp.Chapters[i].MeanSuccess < cmp.Chapters[j].MeanSuccess })
	if len(cmp.Chapters) > 0 {
		hardest := cmp.Chapters[0]
		cmp.Hardest = &hardest
	}
	return cmp
}

// Trend labels the overall success across grades.
type Trend string

const (
	TrendExcellent  Trend = "excellent"
	TrendGood       Trend = "good"
	TrendStable     Trend = "stable"
	TrendConcerning Trend = "concerning"
)

// GradeRow summarizes one grade level.
type GradeRow struct {
	Grade          chapter.Grade `json:"grade"`
	Students       int           `json:"students"`
	Answers        int           `json:"answers"`
	MeanSuccess    float64       `json:"mean_success"`
	ActiveStudents int           `json:"active_students_7d"`
}

// GradeReport groups class statistics by grade and adds exam-prep figures for
// the final year.
type GradeReport struct {
	Grades          []GradeRow      `json:"grades"`
	ExamPrepAnswers int             `json:"exam_prep_answers"`
	ExamPrepSuccess float64         `json:"exam_prep_success"`
	MostActive      *GradeRow       `json:"most_active,omitempty"`
	Struggling      []chapter.Grade `json:"struggling"`
	Trend           Trend           `json:"trend"`
}

// BuildGradeReport computes per-grade statistics.
func BuildGradeReport(now time.Time, classes []model.Class, students []model.Student, answers []AnswerFact) GradeReport {
	per := tallyClasses(now, classes, students, answers)
	rows := make(map[chapter.Grade]*GradeRow)
	correct := make(map[chapter.Grade]int)
	for _, t := range per {
		g := t.stats.Grade
		row, ok := rows[g]
		if !ok {
			row = &GradeRow{Grade: g}
			rows[g] = row
		}
		row.Students += t.stats.Students
		row.Answers += t.stats.Answers
		row.ActiveStudents += t.stats.ActiveStudents
		correct[g] += t.stats.Correct
	}

	r := GradeReport{Grades: []GradeRow{}, Struggling: []chapter.Grade{}, Trend: TrendStable}
	for _, g := range chapter.Grades {
		row, ok := rows[g]
		if !ok || row.Students == 0 {
			continue
		}
		row.MeanSuccess = Rate(correct[g], row.Answers)
		r.Grades = append(r.Grades, *row)
	}

	gradeOf := make(map[int64]chapter.Grade)
	for _, st := range students {
		if st.ClassID == nil {
			continue
		}
		if t, ok := per[*st.ClassID]; ok {
			gradeOf[st.ID] = t.stats.Grade
		}
	}
	examCorrect := 0
	for _, a := range answers {
		if gradeOf[a.StudentID] != chapter.GradeExamPrep || !chapter.Matches(a.ChapterTag, chapter.ExamPrep, chapter.NoGrade) {
			continue
		}
		r.ExamPrepAnswers++
		if a.Correct {
			examCorrect++
		}
	}
	r.ExamPrepSuccess = Rate(examCorrect, r.ExamPrepAnswers)

	if len(r.Grades) == 0 {
		return r
	}
	var sum float64
	for i, row := range r.Grades {
		sum += row.MeanSuccess
		if r.MostActive == nil || row.ActiveStudents > r.MostActive.ActiveStudents {
			r.MostActive = &r.Grades[i]
		}
		if row.MeanSuccess < acquiredRate && row.Answers > 20 {
			r.Struggling = append(r.Struggling, row.Grade)
		}
	}
	switch mean := sum / float64(len(r.Grades)); {
	case mean > 75:
		r.Trend = TrendExcellent
	case mean > 65:
		r.Trend = TrendGood
	case mean < 50:
		r.Trend = TrendConcerning
	}
	return r
}

// StudentRow is one line of a teacher's student follow-up list.
type StudentRow struct {
	StudentID    int64         `json:"student_id"`
	Name         string        `json:"name"`
	ClassName    string        `json:"class_name,omitempty"`
	Grade        chapter.Grade `json:"grade,omitempty"`
	Answers      int           `json:"answers"`
	Correct      int           `json:"correct"`
	SuccessRate  float64       `json:"success_rate"`
	LastActivity *time.Time    `json:"last_activity,omitempty"`
}

// FollowUp lists students with their results on a teacher's items.
type FollowUp struct {
	Students   []StudentRow `json:"students"`
	Struggling []StudentRow `json:"struggling"`
	Inactive   []StudentRow `json:"inactive"`
}

// BuildFollowUp computes the follow-up list, weakest students first. When
// classID is non-zero only that class is listed.
func BuildFollowUp(now time.Time, classes []model.Class, students []model.Student, answers []AnswerFact, classID int64) FollowUp {
	classByID := make(map[int64]model.Class, len(classes))
	for _, c := range classes {
		classByID[c.ID] = c
	}
	rows := make(map[int64]*StudentRow)
	for _, st := range students {
		if classID != 0 && (st.ClassID == nil || *st.ClassID != classID) {
			continue
		}
		row := &StudentRow{StudentID: st.ID, Name: st.FirstName + " " + st.LastName}
		if st.ClassID != nil {
			if c, ok := classByID[*st.ClassID]; ok {
				row.ClassName = c.Name
				row.Grade = c.Grade
			}
		}
		rows[st.ID] = row
	}
	for _, a := range answers {
		row, ok := rows[a.StudentID]
		if !ok {
			continue
		}
		row.Answers++
		if a.Correct {
			row.Correct++
		}
		if row.LastActivity == nil || a.At.After(*row.LastActivity) {
			at := a.At
			row.LastActivity = &at
		}
	}

	f := FollowUp{Students: []StudentRow{}, Struggling: []StudentRow{}, Inactive: []StudentRow{}}
	for _, row := range rows {
		row.SuccessRate = Rate(row.Correct, row.Answers)
		f.Students = append(f.Students, *row)
	}
	sort.Slice(f.Students, func(i, j int) bool {
		a, b := f.Students[i], f.Students[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate < b.SuccessRate
		}
		if a.Answers != b.Answers {
			return a.Answers > b.Answers
		}
		return a.StudentID < b.StudentID
	})
	since := now.Add(-activityWindow)
	for _, row := range f.Students {
		if row.Answers > difficultyMinSeen && row.SuccessRate < acquiredRate {
			f.Struggling = append(f.Struggling, row)
		}
		if row.LastActivity == nil || row.LastActivity.Before(since) {
			f.Inactive = append(f.Inactive, row)
		}
	}
	return f
}
