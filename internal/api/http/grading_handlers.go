package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type gradeRequest struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
	ExamID    int64 `json:"exam_id" validate:"required,gt=0"`
}

type gradeResponse struct {
	ExamID         int64            `json:"exam_id"`
	StudentID      int64            `json:"student_id"`
	Score          float64          `json:"score"`
	TotalScore     float64          `json:"total_score"`
	CorrectCount   int              `json:"correct_count"`
	TotalQuestions int              `json:"total_questions"`
	Saved          bool             `json:"saved"`
	Details        []grading.Detail `json:"details"`
}

type hiddenResultResponse struct {
	ExamID    int64  `json:"exam_id"`
	StudentID int64  `json:"student_id"`
	Hidden    bool   `json:"hidden"`
	Saved     bool   `json:"saved"`
	Message   string `json:"message"`
}

// hidden omits every score field. An unsaved result gets its own message.
func hidden(examID, studentID int64, saved bool) hiddenResultResponse {
	msg := exam.HiddenResultsMessage
	if !saved {
		msg = exam.UnsavedResultsMessage
	}
	return hiddenResultResponse{
		ExamID:    examID,
		StudentID: studentID,
		Hidden:    true,
		Saved:     saved,
		Message:   msg,
	}
}

// GradeExamHandler grades and persists; the score is only echoed back when
// the exam shows results immediately and they are published.
func GradeExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		g, err := svc.Grade(r.Context(), req.StudentID, req.ExamID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !g.Visible {
			writeJSON(w, http.StatusOK, hidden(g.ExamID, g.StudentID, g.Saved))
			return
		}
		writeJSON(w, http.StatusOK, gradeResponse{
			ExamID:         g.ExamID,
			StudentID:      g.StudentID,
			Score:          g.Score,
			TotalScore:     g.TotalScore,
			CorrectCount:   g.CorrectCount,
			TotalQuestions: g.TotalQuestions,
			Saved:          g.Saved,
			Details:        g.Details,
		})
	}
}

// StudentResultHandler returns the stored result once results are published.
func StudentResultHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := queryID(r, "student_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		examID, err := queryID(r, "exam_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, visible, err := svc.StudentResult(r.Context(), studentID, examID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !visible {
			writeJSON(w, http.StatusOK, hidden(examID, studentID, true))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": res})
	}
}
