package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventAnswerSubmitted = "AnswerSubmitted"
	EventExamGraded      = "ExamGraded"
)

type Event struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"event_id"` // uuid, unique across sites
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// NewEvent marshals data into an Event of the given type.
func NewEvent(typ, key string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Key: key, Data: b}, nil
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if r == nil || r.db == nil {
		return errors.New("eventlog: no database")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("null")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (event_id, site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.SiteID, e.Type, e.Key, string(e.Data), time.Now().Unix())
	return err
}

// Since returns events with seq > after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, event_id, site_id, typ, key, data, created_at
		 FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
