package exam_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

/* ---------------- fakes ---------------- */

type recordingSink struct {
	events []syncx.Event
	err    error
}

func (r *recordingSink) Append(_ context.Context, e syncx.Event) error {
	r.events = append(r.events, e)
	return r.err
}

// brokenResults fails every result write and delegates everything else.
type brokenResults struct {
	exam.Store
}

func (brokenResults) SaveResult(context.Context, exam.ExamResult) (exam.ExamResult, error) {
	return exam.ExamResult{}, errors.New("disk full")
}

// failingReads fails one grading read and delegates everything else.
type failingReads struct {
	exam.Store
	op  string
	err error
}

func (f failingReads) QuestionCatalog(ctx context.Context, examID int64) ([]grading.Item, error) {
	if f.op == "catalog" {
		return nil, f.err
	}
	return f.Store.QuestionCatalog(ctx, examID)
}

func (f failingReads) StudentAnswers(ctx context.Context, studentID int64, ids []int64) (map[int64]int64, error) {
	if f.op == "answers" {
		return nil, f.err
	}
	return f.Store.StudentAnswers(ctx, studentID, ids)
}

func (f failingReads) AnswerKey(ctx context.Context, ids []int64) (map[int64]int64, error) {
	if f.op == "key" {
		return nil, f.err
	}
	return f.Store.AnswerKey(ctx, ids)
}

func setFlags(t *testing.T, svc *exam.Service, examID int64, immediate, published bool) {
	t.Helper()
	if _, err := svc.UpdateExam(context.Background(), examID, exam.ExamPatch{
		ShowResultsImmediately: &immediate,
		ResultsPublished:       &published,
	}); err != nil {
		t.Fatalf("set flags: %v", err)
	}
}

func answer(t *testing.T, svc *exam.Service, student int64, q exam.Question, c exam.Choice) {
	t.Helper()
	if _, _, err := svc.SubmitAnswer(context.Background(), exam.StudentAnswer{
		StudentID: student, QuestionID: q.ID, SelectedChoiceID: c.ID,
	}); err != nil {
		t.Fatalf("submit answer: %v", err)
	}
}

/* ---------------- grading ---------------- */

func TestGradeScenarios(t *testing.T) {
	tests := []struct {
		name        string
		immediate   bool
		published   bool
		answerQ2    bool
		wantVisible bool
	}{
		{name: "wrong second answer, results visible", immediate: true, published: true, answerQ2: true, wantVisible: true},
		{name: "second question unanswered", immediate: true, published: true, answerQ2: false, wantVisible: true},
		{name: "results gated", immediate: false, published: true, answerQ2: true, wantVisible: false},
		{name: "results not yet published", immediate: true, published: false, answerQ2: true, wantVisible: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := exam.NewInMemoryStore()
			svc := exam.NewService(store)
			f := seedScenario(t, store)
			setFlags(t, svc, f.ex.ID, tc.immediate, tc.published)

			answer(t, svc, f.studentID, f.q1, f.c1a)
			if tc.answerQ2 {
				answer(t, svc, f.studentID, f.q2, f.c2a)
			}

			got, err := svc.Grade(ctx, f.studentID, f.ex.ID)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			want := grading.Summary{Score: 2, TotalScore: 5, CorrectCount: 1, TotalQuestions: 2}
			if got.Summary != want {
				t.Fatalf("summary = %+v, want %+v", got.Summary, want)
			}
			if got.Visible != tc.wantVisible || !got.Saved {
				t.Fatalf("visible=%v saved=%v", got.Visible, got.Saved)
			}

			// gated or not, the row is written
			stored, err := store.GetResult(ctx, f.studentID, f.ex.ID)
			if err != nil {
				t.Fatalf("stored result: %v", err)
			}
			if stored.Score != 2 || stored.TotalScore != 5 || stored.CorrectCount != 1 || stored.TotalQuestions != 2 {
				t.Fatalf("stored = %+v", stored)
			}
		})
	}
}

func TestGradeZeroQuestions(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	svc := exam.NewService(store)
	ex, err := svc.CreateExam(ctx, "Empty", 1)
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}

	got, err := svc.Grade(ctx, 5, ex.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if got.Summary != (grading.Summary{}) || len(got.Details) != 0 || !got.Saved {
		t.Fatalf("graded = %+v", got)
	}
	if _, err := store.GetResult(ctx, 5, ex.ID); err != nil {
		t.Fatalf("zero result should be persisted: %v", err)
	}
}

func TestGradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	svc := exam.NewService(store)
	f := seedScenario(t, store)
	answer(t, svc, f.studentID, f.q1, f.c1a)

	first, err := svc.Grade(ctx, f.studentID, f.ex.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	second, err := svc.Grade(ctx, f.studentID, f.ex.ID)
	if err != nil {
		t.Fatalf("grade again: %v", err)
	}
	if first.Summary != second.Summary {
		t.Fatalf("summaries differ: %+v vs %+v", first.Summary, second.Summary)
	}
	all, _ := store.ListResults(ctx, f.ex.ID)
	if len(all) != 1 {
		t.Fatalf("results = %d, want 1", len(all))
	}
}

func TestGradeReplacesPreviousResult(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	svc := exam.NewService(store)
	f := seedScenario(t, store)

	answer(t, svc, f.studentID, f.q1, f.c1b)
	if _, err := svc.Grade(ctx, f.studentID, f.ex.ID); err != nil {
		t.Fatalf("grade: %v", err)
	}
	answer(t, svc, f.studentID, f.q1, f.c1a)
	answer(t, svc, f.studentID, f.q2, f.c2b)
	if _, err := svc.Grade(ctx, f.studentID, f.ex.ID); err != nil {
		t.Fatalf("regrade: %v", err)
	}

	r, _ := store.GetResult(ctx, f.studentID, f.ex.ID)
	if r.Score != 5 || r.CorrectCount != 2 {
		t.Fatalf("result = %+v, want full marks without accumulation", r)
	}
}

func TestGradeSaveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	mem := exam.NewInMemoryStore()
	f := seedScenario(t, mem)
	svc := exam.NewService(brokenResults{mem})
	answer(t, svc, f.studentID, f.q1, f.c1a)

	got, err := svc.Grade(ctx, f.studentID, f.ex.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if got.Saved {
		t.Fatalf("expected saved=false")
	}
	if got.Score != 2 || got.TotalScore != 5 {
		t.Fatalf("score should still be computed: %+v", got.Summary)
	}
}

func TestGradeErrors(t *testing.T) {
	svc := exam.NewService(exam.NewInMemoryStore())
	ctx := context.Background()

	if _, err := svc.Grade(ctx, 0, 1); !errors.Is(err, exam.ErrInvalidInput) {
		t.Fatalf("missing student err = %v", err)
	}
	if _, err := svc.Grade(ctx, 1, 404); !errors.Is(err, exam.ErrExamNotFound) {
		t.Fatalf("unknown exam err = %v", err)
	}
}

func TestGradeStoreReadFailures(t *testing.T) {
	for _, op := range []string{"catalog", "answers", "key"} {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			mem := exam.NewInMemoryStore()
			f := seedScenario(t, mem)
			storeErr := errors.New("connection reset")
			svc := exam.NewService(failingReads{Store: mem, op: op, err: storeErr})
			answer(t, svc, f.studentID, f.q1, f.c1a)

			_, err := svc.Grade(ctx, f.studentID, f.ex.ID)
			if !errors.Is(err, storeErr) {
				t.Fatalf("err = %v, want wrapped store error", err)
			}
			if _, err := mem.GetResult(ctx, f.studentID, f.ex.ID); !errors.Is(err, exam.ErrResultNotFound) {
				t.Fatalf("result written despite failure: %v", err)
			}
		})
	}
}

func TestGradeEmitsEventAndIgnoresSinkErrors(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	sink := &recordingSink{err: errors.New("event log offline")}
	svc := exam.NewService(store, exam.WithEvents(sink))
	f := seedScenario(t, store)

	if _, err := svc.Grade(ctx, f.studentID, f.ex.ID); err != nil {
		t.Fatalf("grade should ignore sink errors: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Type != syncx.EventExamGraded || !strings.HasPrefix(ev.Key, "42:") {
		t.Fatalf("event = %+v", ev)
	}
	if !strings.Contains(string(ev.Data), `"saved":true`) {
		t.Fatalf("event data = %s", ev.Data)
	}
}

/* ---------------- answers ---------------- */

func TestSubmitAnswer(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	sink := &recordingSink{}
	svc := exam.NewService(store, exam.WithEvents(sink))
	f := seedScenario(t, store)

	_, updated, err := svc.SubmitAnswer(ctx, exam.StudentAnswer{StudentID: 42, QuestionID: f.q1.ID, SelectedChoiceID: f.c1a.ID})
	if err != nil || updated {
		t.Fatalf("insert: updated=%v err=%v", updated, err)
	}
	_, updated, err = svc.SubmitAnswer(ctx, exam.StudentAnswer{StudentID: 42, QuestionID: f.q1.ID, SelectedChoiceID: f.c1b.ID})
	if err != nil || !updated {
		t.Fatalf("update: updated=%v err=%v", updated, err)
	}
	if len(sink.events) != 2 || sink.events[0].Type != syncx.EventAnswerSubmitted {
		t.Fatalf("events = %+v", sink.events)
	}

	_, _, err = svc.SubmitAnswer(ctx, exam.StudentAnswer{StudentID: 42, QuestionID: f.q1.ID, SelectedChoiceID: f.c2a.ID})
	if !errors.Is(err, exam.ErrChoiceMismatch) {
		t.Fatalf("foreign choice err = %v", err)
	}
	_, _, err = svc.SubmitAnswer(ctx, exam.StudentAnswer{StudentID: 42, QuestionID: f.q1.ID, SelectedChoiceID: 9999})
	if !errors.Is(err, exam.ErrChoiceNotFound) {
		t.Fatalf("unknown choice err = %v", err)
	}
	_, _, err = svc.SubmitAnswer(ctx, exam.StudentAnswer{QuestionID: f.q1.ID, SelectedChoiceID: f.c1a.ID})
	if !errors.Is(err, exam.ErrInvalidInput) {
		t.Fatalf("missing student err = %v", err)
	}
}

func TestStudentQuestionsNeverExposeKey(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	svc := exam.NewService(store)
	f := seedScenario(t, store)
	answer(t, svc, f.studentID, f.q2, f.c2a)

	qs, err := svc.StudentQuestions(ctx, f.ex.ID, f.studentID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 2 || len(qs[0].Choices) != 2 {
		t.Fatalf("questions = %+v", qs)
	}
	if qs[0].SelectedChoiceID != nil || qs[1].SelectedChoiceID == nil || *qs[1].SelectedChoiceID != f.c2a.ID {
		t.Fatalf("selections = %v / %v", qs[0].SelectedChoiceID, qs[1].SelectedChoiceID)
	}

	b, _ := json.Marshal(qs)
	for _, leak := range []string{"is_correct", "correct_choice_id", "correct_answer"} {
		if strings.Contains(string(b), leak) {
			t.Fatalf("student payload leaks %q: %s", leak, b)
		}
	}
}

/* ---------------- teacher ---------------- */

func TestCreateQuestionValidation(t *testing.T) {
	ctx := context.Background()
	svc := exam.NewService(exam.NewInMemoryStore())
	ex, _ := svc.CreateExam(ctx, "Validation", 1)

	idx := func(i int) *int { return &i }
	neg := -1.0
	tests := []struct {
		name string
		in   exam.NewQuestion
	}{
		{"empty text", exam.NewQuestion{Type: "mcq", Choices: []string{"a", "b"}, CorrectIndex: idx(0)}},
		{"one choice", exam.NewQuestion{Type: "mcq", Text: "q", Choices: []string{"a", " "}, CorrectIndex: idx(0)}},
		{"index out of range", exam.NewQuestion{Type: "mcq", Text: "q", Choices: []string{"a", "b"}, CorrectIndex: idx(2)}},
		{"missing index", exam.NewQuestion{Type: "mcq", Text: "q", Choices: []string{"a", "b"}}},
		{"negative score", exam.NewQuestion{Type: "essay", Text: "q", Score: &neg}},
		{"unknown type", exam.NewQuestion{Type: "matching", Text: "q"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.ExamID = ex.ID
			if _, err := svc.CreateQuestion(ctx, tc.in); !errors.Is(err, exam.ErrInvalidQuestion) {
				t.Fatalf("err = %v, want ErrInvalidQuestion", err)
			}
		})
	}
}

func TestCreateQuestionNormalizes(t *testing.T) {
	ctx := context.Background()
	svc := exam.NewService(exam.NewInMemoryStore())
	ex, _ := svc.CreateExam(ctx, "Normalize", 1)

	q, err := svc.CreateQuestion(ctx, exam.NewQuestion{ExamID: ex.ID, Type: "DESC", Text: " Explain. ", Choices: []string{"ignored"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.Type != exam.TypeEssay || q.Score != 1 || q.Text != "Explain." || len(q.Choices) != 0 || q.CorrectChoiceID != nil {
		t.Fatalf("question = %+v", q)
	}

	if _, err := svc.AddChoice(ctx, exam.Choice{QuestionID: q.ID, Text: "x", IsCorrect: true}); !errors.Is(err, exam.ErrInvalidQuestion) {
		t.Fatalf("choice on essay err = %v", err)
	}
}

func TestUpdateExamRejectsEmptyPatch(t *testing.T) {
	ctx := context.Background()
	svc := exam.NewService(exam.NewInMemoryStore())
	ex, _ := svc.CreateExam(ctx, "Patch", 1)

	if _, err := svc.UpdateExam(ctx, ex.ID, exam.ExamPatch{}); !errors.Is(err, exam.ErrInvalidInput) {
		t.Fatalf("empty patch err = %v", err)
	}
	got, err := svc.PublishResults(ctx, ex.ID)
	if err != nil || !got.ResultsPublished || got.ShowResultsImmediately {
		t.Fatalf("publish = %+v, %v", got, err)
	}
}

func TestStudentResultVisibility(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	svc := exam.NewService(store)
	f := seedScenario(t, store)

	if _, _, err := svc.StudentResult(ctx, f.studentID, f.ex.ID); !errors.Is(err, exam.ErrResultNotFound) {
		t.Fatalf("ungraded err = %v", err)
	}
	if _, err := svc.Grade(ctx, f.studentID, f.ex.ID); err != nil {
		t.Fatalf("grade: %v", err)
	}
	_, visible, err := svc.StudentResult(ctx, f.studentID, f.ex.ID)
	if err != nil || visible {
		t.Fatalf("before publish: visible=%v err=%v", visible, err)
	}
	if _, err := svc.PublishResults(ctx, f.ex.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	r, visible, err := svc.StudentResult(ctx, f.studentID, f.ex.ID)
	if err != nil || !visible || r.TotalScore != 5 {
		t.Fatalf("after publish: %+v visible=%v err=%v", r, visible, err)
	}
}
