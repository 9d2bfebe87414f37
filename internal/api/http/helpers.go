package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain and driver errors to a status code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrExamNotFound),
		errors.Is(err, exam.ErrQuestionNotFound),
		errors.Is(err, exam.ErrChoiceNotFound),
		errors.Is(err, exam.ErrResultNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exam.ErrInvalidInput),
		errors.Is(err, exam.ErrInvalidQuestion),
		errors.Is(err, exam.ErrChoiceMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exam.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		if status, ok := constraintStatus(err); ok {
			writeError(w, status, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// constraintStatus recognizes integrity violations from either driver.
func constraintStatus(err error) (int, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return http.StatusConflict, true
		case "23503", "23502", "23514": // foreign_key, not_null, check
			return http.StatusBadRequest, true
		}
		return 0, false
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return http.StatusConflict, true
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return http.StatusBadRequest, true
		}
		if strings.Contains(strings.ToLower(sqlErr.Error()), "constraint failed") {
			return http.StatusBadRequest, true
		}
	}
	return 0, false
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}

// decodeRequest decodes the body into dst and validates it. On failure the
// 400 response has already been written.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func urlID(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name), name)
}

func queryID(r *http.Request, name string) (int64, error) {
	return parseID(r.URL.Query().Get(name), name)
}

func parseID(raw, name string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
