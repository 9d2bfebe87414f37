package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type submitAnswerRequest struct {
	StudentID        int64 `json:"student_id" validate:"required,gt=0"`
	QuestionID       int64 `json:"question_id" validate:"required,gt=0"`
	SelectedChoiceID int64 `json:"selected_choice_id" validate:"required,gt=0"`
}

type submitAnswerResponse struct {
	Answer  exam.StudentAnswer `json:"answer"`
	Updated bool               `json:"updated"`
}

// StudentQuestionsHandler serves the student view; answer keys never leave the server here.
func StudentQuestionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := queryID(r, "exam_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var studentID int64
		if r.URL.Query().Get("student_id") != "" {
			if studentID, err = queryID(r, "student_id"); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		qs, err := svc.StudentQuestions(r.Context(), examID, studentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exam_id": examID, "questions": qs})
	}
}

// SubmitAnswerHandler returns 201 for a first answer and 200 when it replaced one.
func SubmitAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitAnswerRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		a, updated, err := svc.SubmitAnswer(r.Context(), exam.StudentAnswer{
			StudentID:        req.StudentID,
			QuestionID:       req.QuestionID,
			SelectedChoiceID: req.SelectedChoiceID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		status := http.StatusCreated
		if updated {
			status = http.StatusOK
		}
		writeJSON(w, status, submitAnswerResponse{Answer: a, Updated: updated})
	}
}
