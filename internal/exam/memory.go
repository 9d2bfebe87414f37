package exam

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type answerKey struct{ studentID, questionID int64 }
type resultKey struct{ studentID, examID int64 }

// memoryStore mirrors the SQL schema, cascades included. Used with DB_DRIVER=memory and in tests.
type memoryStore struct {
	mu     sync.RWMutex
	nextID int64

	exams     map[int64]Exam
	questions map[int64]Question // Choices/CorrectChoiceID unused here
	choices   map[int64]Choice
	keys      map[int64]int64 // question -> choice
	answers   map[answerKey]StudentAnswer
	results   map[resultKey]ExamResult
}

func NewInMemoryStore() Store {
	return &memoryStore{
		exams:     map[int64]Exam{},
		questions: map[int64]Question{},
		choices:   map[int64]Choice{},
		keys:      map[int64]int64{},
		answers:   map[answerKey]StudentAnswer{},
		results:   map[resultKey]ExamResult{},
	}
}

func (m *memoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *memoryStore) CreateExam(_ context.Context, e Exam) (Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	e.CreatedAt = time.Now().Unix()
	m.exams[e.ID] = e
	return e, nil
}

func (m *memoryStore) GetExam(_ context.Context, id int64) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	return e, nil
}

func (m *memoryStore) ListExams(_ context.Context, opts ListOpts) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Exam{}
	for _, e := range m.exams {
		if opts.TeacherID > 0 && e.TeacherID != opts.TeacherID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) UpdateExam(_ context.Context, id int64, p ExamPatch) (Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	p.apply(&e)
	m.exams[id] = e
	return e, nil
}

func (m *memoryStore) CreateQuestion(_ context.Context, nq NewQuestion) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[nq.ExamID]; !ok {
		return Question{}, ErrExamNotFound
	}
	score := 1.0
	if nq.Score != nil {
		score = *nq.Score
	}
	q := Question{ID: m.id(), ExamID: nq.ExamID, Text: nq.Text, Type: nq.Type, Score: score, CreatedAt: time.Now().Unix()}
	m.questions[q.ID] = q

	for i, text := range nq.Choices {
		c := Choice{ID: m.id(), QuestionID: q.ID, Text: text}
		c.IsCorrect = q.Type == TypeMCQ && nq.CorrectIndex != nil && *nq.CorrectIndex == i
		m.choices[c.ID] = c
		if c.IsCorrect {
			m.keys[q.ID] = c.ID
		}
	}
	return m.questionView(q), nil
}

// questionView assembles choices and key; caller holds the lock.
func (m *memoryStore) questionView(q Question) Question {
	q.Choices = []Choice{}
	for _, c := range m.choices {
		if c.QuestionID == q.ID {
			q.Choices = append(q.Choices, c)
		}
	}
	sort.Slice(q.Choices, func(i, j int) bool { return q.Choices[i].ID < q.Choices[j].ID })
	q.CorrectChoiceID = nil
	if cid, ok := m.keys[q.ID]; ok {
		q.CorrectChoiceID = &cid
	}
	return q
}

func (m *memoryStore) GetQuestion(_ context.Context, id int64) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	return m.questionView(q), nil
}

func (m *memoryStore) examQuestions(examID int64) []Question {
	out := []Question{}
	for _, q := range m.questions {
		if q.ExamID == examID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryStore) ListQuestions(_ context.Context, examID int64) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qs := m.examQuestions(examID)
	for i := range qs {
		qs[i] = m.questionView(qs[i])
	}
	return qs, nil
}

func (m *memoryStore) DeleteQuestion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrQuestionNotFound
	}
	delete(m.questions, id)
	delete(m.keys, id)
	for cid, c := range m.choices {
		if c.QuestionID == id {
			delete(m.choices, cid)
		}
	}
	for k := range m.answers {
		if k.questionID == id {
			delete(m.answers, k)
		}
	}
	return nil
}

func (m *memoryStore) AddChoice(_ context.Context, c Choice) (Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[c.QuestionID]; !ok {
		return Choice{}, ErrQuestionNotFound
	}
	if c.IsCorrect {
		for id, sib := range m.choices {
			if sib.QuestionID == c.QuestionID && sib.IsCorrect {
				sib.IsCorrect = false
				m.choices[id] = sib
			}
		}
	}
	c.ID = m.id()
	m.choices[c.ID] = c
	if c.IsCorrect {
		m.keys[c.QuestionID] = c.ID
	}
	return c, nil
}

func (m *memoryStore) GetChoice(_ context.Context, id int64) (Choice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.choices[id]
	if !ok {
		return Choice{}, ErrChoiceNotFound
	}
	return c, nil
}

func (m *memoryStore) DeleteChoice(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.choices[id]
	if !ok {
		return ErrChoiceNotFound
	}
	delete(m.choices, id)
	if m.keys[c.QuestionID] == id {
		delete(m.keys, c.QuestionID)
	}
	for k, a := range m.answers {
		if a.SelectedChoiceID == id {
			delete(m.answers, k)
		}
	}
	return nil
}

func (m *memoryStore) UpsertAnswer(_ context.Context, a StudentAnswer) (StudentAnswer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[a.QuestionID]; !ok {
		return StudentAnswer{}, false, ErrQuestionNotFound
	}
	if _, ok := m.choices[a.SelectedChoiceID]; !ok {
		return StudentAnswer{}, false, ErrChoiceNotFound
	}
	k := answerKey{a.StudentID, a.QuestionID}
	prev, updated := m.answers[k]
	if updated {
		a.ID = prev.ID
	} else {
		a.ID = m.id()
	}
	a.UpdatedAt = time.Now().Unix()
	m.answers[k] = a
	return a, updated, nil
}

func (m *memoryStore) QuestionCatalog(_ context.Context, examID int64) ([]grading.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qs := m.examQuestions(examID)
	items := make([]grading.Item, 0, len(qs))
	for _, q := range qs {
		items = append(items, grading.Item{QuestionID: q.ID, Type: q.Type, Points: q.Score})
	}
	return items, nil
}

func (m *memoryStore) StudentAnswers(_ context.Context, studentID int64, questionIDs []int64) (map[int64]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[int64]int64{}
	for _, qid := range questionIDs {
		if a, ok := m.answers[answerKey{studentID, qid}]; ok {
			out[qid] = a.SelectedChoiceID
		}
	}
	return out, nil
}

func (m *memoryStore) AnswerKey(_ context.Context, questionIDs []int64) (map[int64]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[int64]int64{}
	for _, qid := range questionIDs {
		if cid, ok := m.keys[qid]; ok {
			out[qid] = cid
		}
	}
	return out, nil
}

func (m *memoryStore) SaveResult(_ context.Context, r ExamResult) (ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[r.ExamID]; !ok {
		return ExamResult{}, ErrExamNotFound
	}
	k := resultKey{r.StudentID, r.ExamID}
	if prev, ok := m.results[k]; ok {
		r.ID = prev.ID
	} else {
		r.ID = m.id()
	}
	r.GradedAt = time.Now().Unix()
	m.results[k] = r
	return r, nil
}

func (m *memoryStore) GetResult(_ context.Context, studentID, examID int64) (ExamResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[resultKey{studentID, examID}]
	if !ok {
		return ExamResult{}, ErrResultNotFound
	}
	return r, nil
}

func (m *memoryStore) ListResults(_ context.Context, examID int64) ([]ExamResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ExamResult{}
	for _, r := range m.results {
		if r.ExamID == examID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}
