package exam

import "github.com/mind-engage/mindengage-exams/internal/grading"

// Question types accepted on create. "desc" is an alias for essay.
const (
	TypeMCQ   = grading.TypeMCQ
	TypeEssay = grading.TypeEssay
	typeDesc  = "desc"
)

type Exam struct {
	ID                     int64  `json:"id"`
	Title                  string `json:"title"`
	TeacherID              int64  `json:"teacher_id"`
	IsPublished            bool   `json:"is_published"`
	ShowResultsImmediately bool   `json:"show_results_immediately"`
	ResultsPublished       bool   `json:"results_published"`
	CreatedAt              int64  `json:"created_at"`
}

// ResultsVisible reports whether a student may see a score right after grading.
func (e Exam) ResultsVisible() bool {
	return e.ShowResultsImmediately && e.ResultsPublished
}

type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Question is the teacher view: choices carry their flags and the key is exposed.
type Question struct {
	ID              int64    `json:"id"`
	ExamID          int64    `json:"exam_id"`
	Text            string   `json:"text"`
	Type            string   `json:"type"`
	Score           float64  `json:"score"`
	CreatedAt       int64    `json:"created_at"`
	Choices         []Choice `json:"choices"`
	CorrectChoiceID *int64   `json:"correct_choice_id,omitempty"`
}

type StudentChoice struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// StudentQuestion is what a student sees. It has no field that could carry the key.
type StudentQuestion struct {
	ID               int64           `json:"id"`
	ExamID           int64           `json:"exam_id"`
	Text             string          `json:"text"`
	Type             string          `json:"type"`
	Score            float64         `json:"score"`
	Choices          []StudentChoice `json:"choices"`
	SelectedChoiceID *int64          `json:"selected_choice_id,omitempty"`
}

func (q Question) StudentView() StudentQuestion {
	out := StudentQuestion{
		ID:      q.ID,
		ExamID:  q.ExamID,
		Text:    q.Text,
		Type:    q.Type,
		Score:   q.Score,
		Choices: make([]StudentChoice, 0, len(q.Choices)),
	}
	for _, c := range q.Choices {
		out.Choices = append(out.Choices, StudentChoice{ID: c.ID, Text: c.Text})
	}
	return out
}

type StudentAnswer struct {
	ID               int64 `json:"id"`
	StudentID        int64 `json:"student_id"`
	QuestionID       int64 `json:"question_id"`
	SelectedChoiceID int64 `json:"selected_choice_id"`
	UpdatedAt        int64 `json:"updated_at"`
}

type ExamResult struct {
	ID             int64   `json:"id"`
	StudentID      int64   `json:"student_id"`
	ExamID         int64   `json:"exam_id"`
	Score          float64 `json:"score"`
	TotalScore     float64 `json:"total_score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
	GradedAt       int64   `json:"graded_at"`
}

// NewQuestion is the create payload. For MCQ the choice at CorrectIndex becomes the key.
type NewQuestion struct {
	ExamID       int64
	Type         string
	Text         string
	Score        *float64
	Choices      []string
	CorrectIndex *int
}

// ExamPatch updates only the non-nil fields.
type ExamPatch struct {
	Title                  *string
	IsPublished            *bool
	ShowResultsImmediately *bool
	ResultsPublished       *bool
}

func (p ExamPatch) Empty() bool {
	return p.Title == nil && p.IsPublished == nil && p.ShowResultsImmediately == nil && p.ResultsPublished == nil
}

func (p ExamPatch) apply(e *Exam) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.IsPublished != nil {
		e.IsPublished = *p.IsPublished
	}
	if p.ShowResultsImmediately != nil {
		e.ShowResultsImmediately = *p.ShowResultsImmediately
	}
	if p.ResultsPublished != nil {
		e.ResultsPublished = *p.ResultsPublished
	}
}
