package exam

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/grading"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200

	HiddenResultsMessage  = "Your answers were submitted. Results will be available once the teacher publishes them."
	UnsavedResultsMessage = "Your answers were submitted but the result could not be saved. Please request grading again."
)

// EventSink receives domain events. *syncx.EventRepo satisfies it.
type EventSink interface {
	Append(ctx context.Context, e syncx.Event) error
}

type Service struct {
	store  Store
	engine *grading.Engine
	events EventSink
}

type ServiceOption func(*Service)

func WithEngine(e *grading.Engine) ServiceOption {
	return func(s *Service) { s.engine = e }
}

func WithEvents(sink EventSink) ServiceOption {
	return func(s *Service) { s.events = sink }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, engine: grading.NewEngine()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return ErrStoreUnavailable
	}
	return s.store.Ping(ctx)
}

/* ---------- teacher: exams ---------- */

func (s *Service) CreateExam(ctx context.Context, title string, teacherID int64) (Exam, error) {
	title = strings.TrimSpace(title)
	if title == "" || teacherID <= 0 {
		return Exam{}, fmt.Errorf("%w: title and teacher_id are required", ErrInvalidInput)
	}
	return s.store.CreateExam(ctx, Exam{Title: title, TeacherID: teacherID})
}

func (s *Service) GetExam(ctx context.Context, id int64) (Exam, error) {
	return s.store.GetExam(ctx, id)
}

func (s *Service) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	return s.store.ListExams(ctx, opts)
}

func (s *Service) UpdateExam(ctx context.Context, id int64, p ExamPatch) (Exam, error) {
	if p.Empty() {
		return Exam{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return Exam{}, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		p.Title = &t
	}
	return s.store.UpdateExam(ctx, id, p)
}

// PublishResults makes stored results visible to students.
func (s *Service) PublishResults(ctx context.Context, examID int64) (Exam, error) {
	yes := true
	return s.store.UpdateExam(ctx, examID, ExamPatch{ResultsPublished: &yes})
}

func (s *Service) ExamResults(ctx context.Context, examID int64) ([]ExamResult, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.store.ListResults(ctx, examID)
}

/* ---------- teacher: questions ---------- */

func (s *Service) TeacherQuestions(ctx context.Context, examID int64) ([]Question, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, examID)
}

// CreateQuestion normalizes the type ("desc" becomes essay), applies the
// default score and checks the MCQ shape before anything is written.
func (s *Service) CreateQuestion(ctx context.Context, nq NewQuestion) (Question, error) {
	nq.Type = strings.ToLower(strings.TrimSpace(nq.Type))
	switch nq.Type {
	case "":
		nq.Type = TypeMCQ
	case typeDesc:
		nq.Type = TypeEssay
	}
	nq.Text = strings.TrimSpace(nq.Text)
	if nq.Text == "" {
		return Question{}, fmt.Errorf("%w: text is required", ErrInvalidQuestion)
	}
	if nq.Score == nil {
		one := 1.0
		nq.Score = &one
	}
	if *nq.Score < 0 {
		return Question{}, fmt.Errorf("%w: score must be >= 0", ErrInvalidQuestion)
	}

	switch nq.Type {
	case TypeMCQ:
		choices := make([]string, 0, len(nq.Choices))
		for _, c := range nq.Choices {
			if c = strings.TrimSpace(c); c != "" {
				choices = append(choices, c)
			}
		}
		if len(choices) < 2 {
			return Question{}, fmt.Errorf("%w: mcq needs at least 2 choices", ErrInvalidQuestion)
		}
		if nq.CorrectIndex == nil || *nq.CorrectIndex < 0 || *nq.CorrectIndex >= len(choices) {
			return Question{}, fmt.Errorf("%w: correct_index out of range", ErrInvalidQuestion)
		}
		nq.Choices = choices
	case TypeEssay:
		nq.Choices = nil
		nq.CorrectIndex = nil
	default:
		return Question{}, fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, nq.Type)
	}
	return s.store.CreateQuestion(ctx, nq)
}

func (s *Service) DeleteQuestion(ctx context.Context, id int64) error {
	return s.store.DeleteQuestion(ctx, id)
}

// AddChoice only accepts choices on MCQ questions so essays never get a key.
func (s *Service) AddChoice(ctx context.Context, c Choice) (Choice, error) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return Choice{}, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	q, err := s.store.GetQuestion(ctx, c.QuestionID)
	if err != nil {
		return Choice{}, err
	}
	if q.Type != TypeMCQ {
		return Choice{}, fmt.Errorf("%w: choices are only allowed on mcq questions", ErrInvalidQuestion)
	}
	c.ID = 0
	return s.store.AddChoice(ctx, c)
}

func (s *Service) DeleteChoice(ctx context.Context, id int64) error {
	return s.store.DeleteChoice(ctx, id)
}

/* ---------- student ---------- */

// StudentQuestions returns the exam's questions without any key information.
// When studentID > 0 the student's current selections are filled in.
func (s *Service) StudentQuestions(ctx context.Context, examID, studentID int64) ([]StudentQuestion, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	qs, err := s.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]StudentQuestion, 0, len(qs))
	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.StudentView())
		ids = append(ids, q.ID)
	}
	if studentID <= 0 || len(ids) == 0 {
		return out, nil
	}
	selected, err := s.store.StudentAnswers(ctx, studentID, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if cid, ok := selected[out[i].ID]; ok {
			out[i].SelectedChoiceID = &cid
		}
	}
	return out, nil
}

func (s *Service) SubmitAnswer(ctx context.Context, a StudentAnswer) (StudentAnswer, bool, error) {
	if a.StudentID <= 0 || a.QuestionID <= 0 || a.SelectedChoiceID <= 0 {
		return StudentAnswer{}, false, fmt.Errorf("%w: student_id, question_id and selected_choice_id are required", ErrInvalidInput)
	}
	c, err := s.store.GetChoice(ctx, a.SelectedChoiceID)
	if err != nil {
		return StudentAnswer{}, false, err
	}
	if c.QuestionID != a.QuestionID {
		return StudentAnswer{}, false, ErrChoiceMismatch
	}
	saved, updated, err := s.store.UpsertAnswer(ctx, a)
	if err != nil {
		return StudentAnswer{}, false, err
	}
	s.emit(ctx, syncx.EventAnswerSubmitted, fmt.Sprintf("%d:%d", a.StudentID, a.QuestionID), saved)
	return saved, updated, nil
}

// Graded is the outcome of one grading run.
type Graded struct {
	ExamID    int64
	StudentID int64
	grading.Result
	// Saved is false when the result row could not be written.
	Saved bool
	// Visible is false when the exam gates results from the student.
	Visible bool
}

// Grade scores the student's stored answers against the exam key and
// persists the summary. The score is always computed and stored; whether the
// caller may show it is reported in Visible.
func (s *Service) Grade(ctx context.Context, studentID, examID int64) (Graded, error) {
	if studentID <= 0 || examID <= 0 {
		return Graded{}, fmt.Errorf("%w: student_id and exam_id are required", ErrInvalidInput)
	}
	ex, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Graded{}, err
	}

	items, err := s.store.QuestionCatalog(ctx, examID)
	if err != nil {
		return Graded{}, fmt.Errorf("read questions: %w", err)
	}
	answers := map[int64]int64{}
	key := map[int64]int64{}
	if len(items) > 0 {
		ids := make([]int64, len(items))
		for i, it := range items {
			ids[i] = it.QuestionID
		}
		if answers, err = s.store.StudentAnswers(ctx, studentID, ids); err != nil {
			return Graded{}, fmt.Errorf("read answers: %w", err)
		}
		if key, err = s.store.AnswerKey(ctx, ids); err != nil {
			return Graded{}, fmt.Errorf("read answer key: %w", err)
		}
	}

	res := s.engine.Score(items, answers, key)
	out := Graded{
		ExamID:    examID,
		StudentID: studentID,
		Result:    res,
		Saved:     true,
		Visible:   ex.ResultsVisible(),
	}

	_, err = s.store.SaveResult(ctx, ExamResult{
		StudentID:      studentID,
		ExamID:         examID,
		Score:          res.Score,
		TotalScore:     res.TotalScore,
		CorrectCount:   res.CorrectCount,
		TotalQuestions: res.TotalQuestions,
	})
	if err != nil {
		log.Printf("grade: save result student=%d exam=%d: %v", studentID, examID, err)
		out.Saved = false
	}

	s.emit(ctx, syncx.EventExamGraded, fmt.Sprintf("%d:%d", studentID, examID), map[string]any{
		"student_id": studentID,
		"exam_id":    examID,
		"summary":    res.Summary,
		"saved":      out.Saved,
	})
	return out, nil
}

// StudentResult returns the stored result and whether the student may see it.
func (s *Service) StudentResult(ctx context.Context, studentID, examID int64) (ExamResult, bool, error) {
	if studentID <= 0 || examID <= 0 {
		return ExamResult{}, false, fmt.Errorf("%w: student_id and exam_id are required", ErrInvalidInput)
	}
	ex, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return ExamResult{}, false, err
	}
	r, err := s.store.GetResult(ctx, studentID, examID)
	if err != nil {
		return ExamResult{}, false, err
	}
	return r, ex.ResultsPublished, nil
}

// emit appends an event; failures are logged and never reach the caller.
func (s *Service) emit(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	ev, err := syncx.NewEvent(typ, key, data)
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		log.Printf("eventlog: append %s %s: %v", typ, key, err)
	}
}
