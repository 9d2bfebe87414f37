package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type createQuestionRequest struct {
	ExamID       int64    `json:"exam_id" validate:"required,gt=0"`
	Type         string   `json:"type"`
	Text         string   `json:"text" validate:"required"`
	Score        *float64 `json:"score" validate:"omitempty,gte=0"`
	Choices      []string `json:"choices"`
	CorrectIndex *int     `json:"correct_index"`
}

type addChoiceRequest struct {
	QuestionID int64  `json:"question_id" validate:"required,gt=0"`
	Text       string `json:"text" validate:"required"`
	IsCorrect  bool   `json:"is_correct"`
}

// TeacherQuestionsHandler lists an exam's questions with flags and keys.
func TeacherQuestionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := queryID(r, "exam_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		qs, err := svc.TeacherQuestions(r.Context(), examID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exam_id": examID, "questions": qs})
	}
}

func CreateQuestionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createQuestionRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		q, err := svc.CreateQuestion(r.Context(), exam.NewQuestion{
			ExamID:       req.ExamID,
			Type:         req.Type,
			Text:         req.Text,
			Score:        req.Score,
			Choices:      req.Choices,
			CorrectIndex: req.CorrectIndex,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"question": q})
	}
}

func DeleteQuestionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "questionID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := svc.DeleteQuestion(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func AddChoiceHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addChoiceRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		c, err := svc.AddChoice(r.Context(), exam.Choice{
			QuestionID: req.QuestionID,
			Text:       req.Text,
			IsCorrect:  req.IsCorrect,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"choice": c})
	}
}

func DeleteChoiceHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "choiceID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := svc.DeleteChoice(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
