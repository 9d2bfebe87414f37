package grading

// Question types known to the engine. Anything else is graded like an MCQ:
// correctness only depends on the presence of an answer key entry.
const (
	TypeMCQ   = "mcq"
	TypeEssay = "essay"
)

// Item is a minimal view of a question needed for grading.
type Item struct {
	QuestionID int64
	Type       string
	Points     float64
}

// Detail is the per-question outcome.
type Detail struct {
	QuestionID       int64   `json:"question_id"`
	Type             string  `json:"type"`
	SelectedChoiceID *int64  `json:"selected_choice_id"`
	CorrectChoiceID  *int64  `json:"correct_choice_id"`
	IsCorrect        bool    `json:"is_correct"`
	Earned           float64 `json:"earned"`
	Max              float64 `json:"max"`
	NeedsManual      bool    `json:"needs_manual,omitempty"`
}

// Summary is what gets persisted per (student, exam).
type Summary struct {
	Score          float64 `json:"score"`
	TotalScore     float64 `json:"total_score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
}

type Result struct {
	Summary
	Details []Detail `json:"details"`
}

// Engine options

type Option func(*config)

type config struct {
	ExcludeEssaysFromTotal bool
}

// WithEssaysExcludedFromTotal keeps essay questions out of TotalScore.
// They still count toward TotalQuestions.
func WithEssaysExcludedFromTotal(b bool) Option {
	return func(c *config) { c.ExcludeEssaysFromTotal = b }
}

type Engine struct {
	cfg config
}

func NewEngine(opts ...Option) *Engine {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	return &Engine{cfg: cfg}
}

// Score joins the catalog with the student's answers and the answer key.
// A question is correct iff both lookups succeed and the choice ids match.
// Missing keys in either map mean "not attempted" and "not gradable".
func (e *Engine) Score(items []Item, answers, key map[int64]int64) Result {
	res := Result{Details: make([]Detail, 0, len(items))}
	for _, it := range items {
		d := Detail{
			QuestionID:  it.QuestionID,
			Type:        it.Type,
			Max:         it.Points,
			NeedsManual: it.Type == TypeEssay,
		}
		chosen, answered := answers[it.QuestionID]
		if answered {
			d.SelectedChoiceID = ptr(chosen)
		}
		correct, keyed := key[it.QuestionID]
		if keyed {
			d.CorrectChoiceID = ptr(correct)
		}
		if answered && keyed && chosen == correct {
			d.IsCorrect = true
			d.Earned = it.Points
			res.Score += it.Points
			res.CorrectCount++
		}

		res.TotalQuestions++
		if !(e.cfg.ExcludeEssaysFromTotal && it.Type == TypeEssay) {
			res.TotalScore += it.Points
		}
		res.Details = append(res.Details, d)
	}
	return res
}

func ptr(v int64) *int64 { return &v }
