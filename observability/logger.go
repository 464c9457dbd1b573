// CLAUDE:SUMMARY Best-effort business event log (preview resolutions, uploads, attachments) with retention cleanup.
// Package observability records what happened in eCabinet into SQLite:
// domain events (document previewed, uploaded, attached) and HTTP request
// logs. Writes are best-effort; a failing event store never blocks a request.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/ecabinet/idgen"
)

// BusinessEvent represents a domain-level event to record.
type BusinessEvent struct {
	EventType   string `json:"event_type"` // "preview.resolved", "document.uploaded", "meeting.document_attached"
	ServiceName string `json:"service_name"`
	EntityType  string `json:"entity_type,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Action      string `json:"action"`
	Details     string `json:"details,omitempty"` // optional JSON
	Success     bool   `json:"success"`
}

// StoredEvent is a BusinessEvent read back from the log.
type StoredEvent struct {
	BusinessEvent
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EventLogger writes business events and manages retention cleanup.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithClock sets the clock used for created_at.
func WithClock(now func() time.Time) EventLoggerOption {
	return func(l *EventLogger) { l.now = now }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records a business event. Errors are logged via slog and dropped.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	if event.ServiceName == "" {
		event.ServiceName = "ecabinet"
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			user_id, action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.ServiceName, event.EntityType, event.EntityID,
		event.UserID, event.Action, event.Details, event.Success, l.now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// Recent returns the latest events for an entity, newest first.
func (l *EventLogger) Recent(ctx context.Context, entityType, entityID string, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, service_name, COALESCE(entity_type, ''), COALESCE(entity_id, ''),
		       COALESCE(user_id, ''), action, COALESCE(details, ''), success, created_at
		FROM business_event_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			e       StoredEvent
			created int64
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &e.ServiceName, &e.EntityType, &e.EntityID,
			&e.UserID, &e.Action, &e.Details, &e.Success, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Outcome aggregates the preview resolutions of one document for one strategy.
type Outcome struct {
	Strategy    string    `json:"strategy"`
	Resolutions int       `json:"resolutions"`
	Failures    int       `json:"failures"`
	LastAt      time.Time `json:"last_at"`
}

// PreviewOutcomes reads the preview_outcomes view for documentID, most
// used strategy first.
func (l *EventLogger) PreviewOutcomes(ctx context.Context, documentID string) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT strategy, resolutions, failures, last_at
		FROM preview_outcomes
		WHERE document_id = ?
		ORDER BY resolutions DESC, strategy`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o    Outcome
			last int64
		)
		if err := rows.Scan(&o.Strategy, &o.Resolutions, &o.Failures, &last); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.LastAt = time.Unix(last, 0)
		out = append(out, o)
	}
	return out, rows.Err()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	HTTPLogsDays   int  `yaml:"http_logs_days"`
	EventLogsDays  int  `yaml:"event_logs_days"`
	RunVacuumAfter bool `yaml:"vacuum"`
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()

	targets := []struct {
		query string
		days  int
	}{
		{"DELETE FROM http_request_logs WHERE created_at < ?", cfg.HTTPLogsDays},
		{"DELETE FROM business_event_logs WHERE created_at < ?", cfg.EventLogsDays},
	}
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days*86400)
		if _, err := db.ExecContext(ctx, t.query, cutoff); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
