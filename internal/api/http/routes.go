package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// EventFeed is the read side of the event log. *syncx.EventRepo satisfies it.
type EventFeed interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// Routes builds the /api subtree. events may be nil when the event log is off.
func Routes(svc *exam.Service, events EventFeed) chi.Router {
	r := chi.NewRouter()

	r.Route("/teacher", func(tr chi.Router) {
		tr.Post("/exams", CreateExamHandler(svc))
		tr.Get("/exams", ListExamsHandler(svc))
		tr.Post("/exams/settings", ExamSettingsHandler(svc))
		tr.Post("/exams/publish", PublishResultsHandler(svc))
		tr.Get("/exams/{examID}", GetExamHandler(svc))
		tr.Patch("/exams/{examID}", PatchExamHandler(svc))
		tr.Get("/exams/{examID}/results", ExamResultsHandler(svc))

		tr.Get("/questions", TeacherQuestionsHandler(svc))
		tr.Post("/questions", CreateQuestionHandler(svc))
		tr.Delete("/questions/{questionID}", DeleteQuestionHandler(svc))

		tr.Post("/choices", AddChoiceHandler(svc))
		tr.Delete("/choices/{choiceID}", DeleteChoiceHandler(svc))
	})

	r.Route("/student", func(sr chi.Router) {
		sr.Get("/questions", StudentQuestionsHandler(svc))
		sr.Post("/answers", SubmitAnswerHandler(svc))
		sr.Post("/grade", GradeExamHandler(svc))
		sr.Get("/results", StudentResultHandler(svc))
	})

	if events != nil {
		r.Get("/sync/events", EventsHandler(events))
	}
	return r
}

// HealthHandler always answers 200.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler pings the store.
func ReadyHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// EventsHandler pages through the event log: ?after=<seq>&limit=<n>.
func EventsHandler(feed EventFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after := int64(parseIntDefault(r.URL.Query().Get("after"), 0))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		evs, err := feed.Since(r.Context(), after, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		next := after
		if n := len(evs); n > 0 {
			next = evs[n-1].Seq
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": evs, "next": next})
	}
}
