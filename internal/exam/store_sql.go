package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// SQLStore works against both SQLite (modernc) and Postgres (pgx). All queries
// use $N placeholders, numbered in order of appearance.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	return s.db.PingContext(ctx)
}

/* ---------- exams ---------- */

const examCols = `id, title, teacher_id, is_published, show_results_immediately, results_published, created_at`

func scanExam(sc interface{ Scan(...any) error }) (Exam, error) {
	var e Exam
	err := sc.Scan(&e.ID, &e.Title, &e.TeacherID, &e.IsPublished, &e.ShowResultsImmediately, &e.ResultsPublished, &e.CreatedAt)
	return e, err
}

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) (Exam, error) {
	e.CreatedAt = time.Now().Unix()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO exams (title, teacher_id, is_published, show_results_immediately, results_published, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		e.Title, e.TeacherID, e.IsPublished, e.ShowResultsImmediately, e.ResultsPublished, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id int64) (Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx, `SELECT `+examCols+` FROM exams WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrExamNotFound
	}
	return e, err
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + examCols + ` FROM exams`)
	if opts.TeacherID > 0 {
		args = append(args, opts.TeacherID)
		sb.WriteString(fmt.Sprintf(` WHERE teacher_id=$%d`, len(args)))
	}
	sb.WriteString(` ORDER BY id DESC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sb.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateExam(ctx context.Context, id int64, p ExamPatch) (Exam, error) {
	if p.Empty() {
		return s.GetExam(ctx, id)
	}
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.IsPublished != nil {
		set("is_published", *p.IsPublished)
	}
	if p.ShowResultsImmediately != nil {
		set("show_results_immediately", *p.ShowResultsImmediately)
	}
	if p.ResultsPublished != nil {
		set("results_published", *p.ResultsPublished)
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE exams SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return Exam{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Exam{}, ErrExamNotFound
	}
	return s.GetExam(ctx, id)
}

/* ---------- questions & choices ---------- */

func (s *SQLStore) CreateQuestion(ctx context.Context, nq NewQuestion) (Question, error) {
	score := 1.0
	if nq.Score != nil {
		score = *nq.Score
	}
	q := Question{
		ExamID:    nq.ExamID,
		Text:      nq.Text,
		Type:      nq.Type,
		Score:     score,
		CreatedAt: time.Now().Unix(),
		Choices:   []Choice{},
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, nq.ExamID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrExamNotFound
			}
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO questions (exam_id, text, type, score, created_at) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			q.ExamID, q.Text, q.Type, q.Score, q.CreatedAt,
		).Scan(&q.ID); err != nil {
			return err
		}

		for i, text := range nq.Choices {
			c := Choice{QuestionID: q.ID, Text: text}
			c.IsCorrect = q.Type == TypeMCQ && nq.CorrectIndex != nil && *nq.CorrectIndex == i
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO choices (question_id, text, is_correct) VALUES ($1,$2,$3) RETURNING id`,
				c.QuestionID, c.Text, c.IsCorrect,
			).Scan(&c.ID); err != nil {
				return err
			}
			if c.IsCorrect {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO correct_answers (question_id, correct_choice_id) VALUES ($1,$2)`,
					q.ID, c.ID); err != nil {
					return err
				}
				id := c.ID
				q.CorrectChoiceID = &id
			}
			q.Choices = append(q.Choices, c)
		}
		return nil
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id int64) (Question, error) {
	var q Question
	err := s.db.QueryRowContext(ctx,
		`SELECT id, exam_id, text, type, score, created_at FROM questions WHERE id=$1`, id,
	).Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Score, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, err
	}
	qs, err := s.attachChoices(ctx, []Question{q})
	if err != nil {
		return Question{}, err
	}
	return qs[0], nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, examID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exam_id, text, type, score, created_at FROM questions WHERE exam_id=$1 ORDER BY id`, examID)
	if err != nil {
		return nil, err
	}
	qs := []Question{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Score, &q.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		qs = append(qs, q)
	}
	// close before the next query; SQLite runs on a single connection
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.attachChoices(ctx, qs)
}

// attachChoices loads choices and keys for qs in two queries.
func (s *SQLStore) attachChoices(ctx context.Context, qs []Question) ([]Question, error) {
	if len(qs) == 0 {
		return qs, nil
	}
	ids := make([]int64, len(qs))
	pos := make(map[int64]int, len(qs))
	for i := range qs {
		ids[i] = qs[i].ID
		pos[qs[i].ID] = i
		qs[i].Choices = []Choice{}
	}

	in, args := inList(1, ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, text, is_correct FROM choices WHERE question_id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect); err != nil {
			rows.Close()
			return nil, err
		}
		i := pos[c.QuestionID]
		qs[i].Choices = append(qs[i].Choices, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	key, err := s.AnswerKey(ctx, ids)
	if err != nil {
		return nil, err
	}
	for qid, cid := range key {
		qs[pos[qid]].CorrectChoiceID = &cid
	}
	return qs, nil
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func (s *SQLStore) AddChoice(ctx context.Context, c Choice) (Choice, error) {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM questions WHERE id=$1`, c.QuestionID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrQuestionNotFound
			}
			return err
		}
		if c.IsCorrect {
			if _, err := tx.ExecContext(ctx,
				`UPDATE choices SET is_correct=$1 WHERE question_id=$2`, false, c.QuestionID); err != nil {
				return err
			}
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO choices (question_id, text, is_correct) VALUES ($1,$2,$3) RETURNING id`,
			c.QuestionID, c.Text, c.IsCorrect,
		).Scan(&c.ID); err != nil {
			return err
		}
		if !c.IsCorrect {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO correct_answers (question_id, correct_choice_id) VALUES ($1,$2)
			 ON CONFLICT (question_id) DO UPDATE SET correct_choice_id=EXCLUDED.correct_choice_id`,
			c.QuestionID, c.ID)
		return err
	})
	if err != nil {
		return Choice{}, err
	}
	return c, nil
}

func (s *SQLStore) GetChoice(ctx context.Context, id int64) (Choice, error) {
	var c Choice
	err := s.db.QueryRowContext(ctx,
		`SELECT id, question_id, text, is_correct FROM choices WHERE id=$1`, id,
	).Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect)
	if errors.Is(err, sql.ErrNoRows) {
		return Choice{}, ErrChoiceNotFound
	}
	return c, err
}

// DeleteChoice relies on ON DELETE CASCADE to drop a key row or answers pointing at the choice.
func (s *SQLStore) DeleteChoice(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM choices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChoiceNotFound
	}
	return nil
}

/* ---------- answers ---------- */

func (s *SQLStore) UpsertAnswer(ctx context.Context, a StudentAnswer) (StudentAnswer, bool, error) {
	a.UpdatedAt = time.Now().Unix()
	var updated bool
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM student_answers WHERE student_id=$1 AND question_id=$2`,
			a.StudentID, a.QuestionID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			updated = false
		case err != nil:
			return err
		default:
			updated = true
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO student_answers (student_id, question_id, selected_choice_id, updated_at)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (student_id, question_id) DO UPDATE SET
			   selected_choice_id=EXCLUDED.selected_choice_id,
			   updated_at=EXCLUDED.updated_at
			 RETURNING id`,
			a.StudentID, a.QuestionID, a.SelectedChoiceID, a.UpdatedAt,
		).Scan(&a.ID)
	})
	if err != nil {
		return StudentAnswer{}, false, err
	}
	return a, updated, nil
}

/* ---------- grading reads ---------- */

func (s *SQLStore) QuestionCatalog(ctx context.Context, examID int64) ([]grading.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, score FROM questions WHERE exam_id=$1 ORDER BY id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []grading.Item{}
	for rows.Next() {
		var it grading.Item
		if err := rows.Scan(&it.QuestionID, &it.Type, &it.Points); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLStore) StudentAnswers(ctx context.Context, studentID int64, questionIDs []int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	if len(questionIDs) == 0 {
		return out, nil
	}
	in, args := inList(2, questionIDs)
	args = append([]any{studentID}, args...)
	return s.pairs(ctx,
		`SELECT question_id, selected_choice_id FROM student_answers WHERE student_id=$1 AND question_id IN (`+in+`)`,
		args, out)
}

func (s *SQLStore) AnswerKey(ctx context.Context, questionIDs []int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	if len(questionIDs) == 0 {
		return out, nil
	}
	in, args := inList(1, questionIDs)
	return s.pairs(ctx,
		`SELECT question_id, correct_choice_id FROM correct_answers WHERE question_id IN (`+in+`)`,
		args, out)
}

func (s *SQLStore) pairs(ctx context.Context, q string, args []any, out map[int64]int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

/* ---------- results ---------- */

const resultCols = `id, student_id, exam_id, score, total_score, correct_count, total_questions, graded_at`

func scanResult(sc interface{ Scan(...any) error }) (ExamResult, error) {
	var r ExamResult
	err := sc.Scan(&r.ID, &r.StudentID, &r.ExamID, &r.Score, &r.TotalScore, &r.CorrectCount, &r.TotalQuestions, &r.GradedAt)
	return r, err
}

func (s *SQLStore) SaveResult(ctx context.Context, r ExamResult) (ExamResult, error) {
	r.GradedAt = time.Now().Unix()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO exam_results (student_id, exam_id, score, total_score, correct_count, total_questions, graded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (student_id, exam_id) DO UPDATE SET
		   score=EXCLUDED.score,
		   total_score=EXCLUDED.total_score,
		   correct_count=EXCLUDED.correct_count,
		   total_questions=EXCLUDED.total_questions,
		   graded_at=EXCLUDED.graded_at
		 RETURNING id`,
		r.StudentID, r.ExamID, r.Score, r.TotalScore, r.CorrectCount, r.TotalQuestions, r.GradedAt,
	).Scan(&r.ID)
	if err != nil {
		return ExamResult{}, err
	}
	return r, nil
}

func (s *SQLStore) GetResult(ctx context.Context, studentID, examID int64) (ExamResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM exam_results WHERE student_id=$1 AND exam_id=$2`, studentID, examID))
	if errors.Is(err, sql.ErrNoRows) {
		return ExamResult{}, ErrResultNotFound
	}
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context, examID int64) ([]ExamResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultCols+` FROM exam_results WHERE exam_id=$1 ORDER BY student_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExamResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// inList renders "$start,$start+1,..." for ids.
func inList(start int, ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(ph, ","), args
}
