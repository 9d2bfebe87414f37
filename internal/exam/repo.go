package exam

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrChoiceNotFound   = errors.New("choice not found")
	ErrResultNotFound   = errors.New("result not found")
	ErrChoiceMismatch   = errors.New("selected choice does not belong to question")
	ErrInvalidQuestion  = errors.New("invalid question")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type ListOpts struct {
	TeacherID int64 // 0 = all teachers
	Limit     int
}

type Store interface {
	CreateExam(ctx context.Context, e Exam) (Exam, error)
	GetExam(ctx context.Context, id int64) (Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]Exam, error)
	UpdateExam(ctx context.Context, id int64, p ExamPatch) (Exam, error)

	// CreateQuestion writes the question, its choices and its key atomically.
	CreateQuestion(ctx context.Context, q NewQuestion) (Question, error)
	GetQuestion(ctx context.Context, id int64) (Question, error)
	// ListQuestions returns the full teacher view ordered by id.
	ListQuestions(ctx context.Context, examID int64) ([]Question, error)
	DeleteQuestion(ctx context.Context, id int64) error

	// AddChoice inserts a choice. When it is correct, sibling flags are cleared
	// and the question's key is moved to it in the same transaction.
	AddChoice(ctx context.Context, c Choice) (Choice, error)
	GetChoice(ctx context.Context, id int64) (Choice, error)
	DeleteChoice(ctx context.Context, id int64) error

	// UpsertAnswer reports updated=true when a row for (student, question) already existed.
	UpsertAnswer(ctx context.Context, a StudentAnswer) (StudentAnswer, bool, error)

	// Grading reads.
	QuestionCatalog(ctx context.Context, examID int64) ([]grading.Item, error)
	StudentAnswers(ctx context.Context, studentID int64, questionIDs []int64) (map[int64]int64, error)
	AnswerKey(ctx context.Context, questionIDs []int64) (map[int64]int64, error)

	SaveResult(ctx context.Context, r ExamResult) (ExamResult, error)
	GetResult(ctx context.Context, studentID, examID int64) (ExamResult, error)
	ListResults(ctx context.Context, examID int64) ([]ExamResult, error)

	Ping(ctx context.Context) error
}
