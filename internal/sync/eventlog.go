package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one row of the append-only event_log, keyed by the attempt it
// describes.
type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"` // e.g., AttemptCompleted
	Key       string          `json:"key"`  // natural key: attemptID
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

const DefaultSiteID = "local"

// NewEvent marshals data into an event payload.
func NewEvent(typ, key string, data any, at time.Time) (Event, error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", typ, err)
	}
	return Event{SiteID: DefaultSiteID, Type: typ, Key: key, Data: buf, CreatedAt: at.Unix()}, nil
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type EventRepo struct{ db Execer }

func NewEventRepo(db Execer) *EventRepo { return &EventRepo{db: db} }

// With returns a repo bound to another executor, typically a transaction.
func (r *EventRepo) With(ex Execer) *EventRepo { return &EventRepo{db: ex} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	site := e.SiteID
	if site == "" {
		site = DefaultSiteID
	}
	created := e.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Key, string(e.Data), created)
	return err
}

// ListByKey returns the events for one key in append order.
func (r *EventRepo) ListByKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
