package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type createExamRequest struct {
	Title     string `json:"title" validate:"required"`
	TeacherID int64  `json:"teacher_id" validate:"required,gt=0"`
}

type patchExamRequest struct {
	Title                  *string `json:"title"`
	IsPublished            *bool   `json:"is_published"`
	ShowResultsImmediately *bool   `json:"show_results_immediately"`
	ResultsPublished       *bool   `json:"results_published"`
}

func (p patchExamRequest) patch() exam.ExamPatch {
	return exam.ExamPatch{
		Title:                  p.Title,
		IsPublished:            p.IsPublished,
		ShowResultsImmediately: p.ShowResultsImmediately,
		ResultsPublished:       p.ResultsPublished,
	}
}

type examSettingsRequest struct {
	ExamID                 int64 `json:"exam_id" validate:"required,gt=0"`
	ShowResultsImmediately *bool `json:"show_results_immediately"`
	ResultsPublished       *bool `json:"results_published"`
}

type examIDRequest struct {
	ExamID int64 `json:"exam_id" validate:"required,gt=0"`
}

type examResponse struct {
	Exam exam.Exam `json:"exam"`
}

func CreateExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createExamRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		e, err := svc.CreateExam(r.Context(), req.Title, req.TeacherID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, examResponse{Exam: e})
	}
}

func ListExamsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := exam.ListOpts{Limit: parseIntDefault(r.URL.Query().Get("limit"), exam.DefaultListLimit)}
		if r.URL.Query().Get("teacher_id") != "" {
			id, err := queryID(r, "teacher_id")
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			opts.TeacherID = id
		}
		list, err := svc.ListExams(r.Context(), opts)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exams": list})
	}
}

func GetExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "examID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		e, err := svc.GetExam(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, examResponse{Exam: e})
	}
}

func PatchExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "examID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var req patchExamRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		e, err := svc.UpdateExam(r.Context(), id, req.patch())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, examResponse{Exam: e})
	}
}

// ExamSettingsHandler toggles the two result-visibility flags.
func ExamSettingsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req examSettingsRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		e, err := svc.UpdateExam(r.Context(), req.ExamID, exam.ExamPatch{
			ShowResultsImmediately: req.ShowResultsImmediately,
			ResultsPublished:       req.ResultsPublished,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, examResponse{Exam: e})
	}
}

func PublishResultsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req examIDRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		e, err := svc.PublishResults(r.Context(), req.ExamID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, examResponse{Exam: e})
	}
}

func ExamResultsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "examID")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		results, err := svc.ExamResults(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exam_id": id, "results": results})
	}
}
