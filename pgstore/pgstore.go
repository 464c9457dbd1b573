// CLAUDE:SUMMARY Postgres implementation of backend.Store over pgxpool; change events via trigger-fed change_log and LISTEN ecabinet_changes.
// CLAUDE:DEPENDS backend
// Package pgstore is the hosted backend: documents and meetings in
// Postgres, change notifications pushed through LISTEN/NOTIFY instead of
// polled.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/document"
)

// Channel is the NOTIFY channel the triggers publish on.
const Channel = "ecabinet_changes"

// Schema creates the tables, the change_log and the notify triggers.
// Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	size_label TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT '',
	owner_id   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meetings (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	room_id      TEXT NOT NULL DEFAULT '',
	host_id      TEXT NOT NULL DEFAULT '',
	start_time   TEXT NOT NULL DEFAULT '',
	end_time     TEXT NOT NULL DEFAULT '',
	date         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'upcoming',
	participants JSONB NOT NULL DEFAULT '[]',
	document_ids JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS change_log (
	seq        BIGSERIAL PRIMARY KEY,
	tbl        TEXT NOT NULL,
	op         TEXT NOT NULL,
	row_id     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION ecabinet_notify_change() RETURNS trigger AS $$
DECLARE
	rid TEXT;
	s   BIGINT;
BEGIN
	IF TG_OP = 'DELETE' THEN rid := OLD.id; ELSE rid := NEW.id; END IF;
	INSERT INTO change_log (tbl, op, row_id) VALUES (TG_TABLE_NAME, lower(TG_OP), rid)
		RETURNING seq INTO s;
	PERFORM pg_notify('ecabinet_changes',
		json_build_object('seq', s, 'table', TG_TABLE_NAME, 'op', lower(TG_OP), 'id', rid)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_documents_change ON documents;
CREATE TRIGGER trg_documents_change AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION ecabinet_notify_change();

DROP TRIGGER IF EXISTS trg_meetings_change ON meetings;
CREATE TRIGGER trg_meetings_change AFTER INSERT OR UPDATE OR DELETE ON meetings
	FOR EACH ROW EXECUTE FUNCTION ecabinet_notify_change();
`

// Config configures a Store.
type Config struct {
	Demo document.DemoSet // default: document.DefaultDemoIDs
	// Buffer is the per-subscriber channel capacity. Default: 64.
	Buffer int
	// Backoff is the wait before re-listening after a lost connection. Default: 1s.
	Backoff time.Duration
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Demo == nil {
		c.Demo = document.NewDemoSet(document.DefaultDemoIDs...)
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store is the Postgres backend.Store.
type Store struct {
	DB  *pgxpool.Pool
	cfg Config
}

var _ backend.Store = (*Store)(nil)

// Connect opens a pool on connStr and applies Schema.
func Connect(ctx context.Context, connStr string, cfg Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s, err := New(ctx, pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New applies Schema on an existing pool.
func New(ctx context.Context, pool *pgxpool.Pool, cfg Config) (*Store, error) {
	cfg.defaults()
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}
	return &Store{DB: pool, cfg: cfg}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.DB.Close() }

const documentCols = `id, name, type, url, size_label, updated_at, owner_id`

// ListDocuments returns every document, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]document.Ref, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+documentCols+` FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list documents: %w", err)
	}
	defer rows.Close()

	var out []document.Ref
	for rows.Next() {
		r, err := s.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan document: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDocument returns one document or backend.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (document.Ref, error) {
	r, err := s.scanDocument(s.DB.QueryRow(ctx, `SELECT `+documentCols+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Ref{}, fmt.Errorf("pgstore: document %s: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return document.Ref{}, fmt.Errorf("pgstore: get document %s: %w", id, err)
	}
	return r, nil
}

// InsertDocument stores ref. Type is derived from the name when empty.
func (s *Store) InsertDocument(ctx context.Context, ref document.Ref) error {
	if ref.Type == "" {
		ref.Type = document.DetectType(ref.Name)
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO documents (id, name, type, url, size_label, updated_at, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ref.ID, ref.Name, string(ref.Type), ref.RemoteURL, ref.SizeLabel, ref.UpdatedAt, ref.OwnerID)
	if err != nil {
		return fmt.Errorf("pgstore: insert document %s: %w", ref.ID, err)
	}
	return nil
}

// DeleteDocument removes a document. Missing ids return backend.ErrNotFound.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: document %s: %w", id, backend.ErrNotFound)
	}
	return nil
}

func (s *Store) scanDocument(row pgx.Row) (document.Ref, error) {
	var r document.Ref
	var typ string
	if err := row.Scan(&r.ID, &r.Name, &typ, &r.RemoteURL, &r.SizeLabel, &r.UpdatedAt, &r.OwnerID); err != nil {
		return document.Ref{}, err
	}
	r.Type = document.Type(typ)
	r.Origin = r.Classify(s.cfg.Demo)
	return r, nil
}

const meetingCols = `id, title, room_id, host_id, start_time, end_time, date, status, participants, document_ids`

// ListMeetings returns every meeting ordered by date and start time.
func (s *Store) ListMeetings(ctx context.Context) ([]backend.Meeting, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+meetingCols+` FROM meetings ORDER BY date, start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list meetings: %w", err)
	}
	defer rows.Close()

	var out []backend.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan meeting: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMeeting returns one meeting or backend.ErrNotFound.
func (s *Store) GetMeeting(ctx context.Context, id string) (backend.Meeting, error) {
	m, err := scanMeeting(s.DB.QueryRow(ctx, `SELECT `+meetingCols+` FROM meetings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.Meeting{}, fmt.Errorf("pgstore: meeting %s: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return backend.Meeting{}, fmt.Errorf("pgstore: get meeting %s: %w", id, err)
	}
	return m, nil
}

// InsertMeeting stores m.
func (s *Store) InsertMeeting(ctx context.Context, m backend.Meeting) error {
	parts, docs, err := encodeLists(m)
	if err != nil {
		return err
	}
	if m.Status == "" {
		m.Status = backend.StatusUpcoming
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO meetings (`+meetingCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb)`,
		m.ID, m.Title, m.RoomID, m.HostID, m.StartTime, m.EndTime, m.Date, m.Status, parts, docs)
	if err != nil {
		return fmt.Errorf("pgstore: insert meeting %s: %w", m.ID, err)
	}
	return nil
}

// UpdateMeeting replaces the stored meeting. Missing ids return backend.ErrNotFound.
func (s *Store) UpdateMeeting(ctx context.Context, m backend.Meeting) error {
	parts, docs, err := encodeLists(m)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
		UPDATE meetings SET title = $2, room_id = $3, host_id = $4, start_time = $5, end_time = $6,
			date = $7, status = $8, participants = $9::jsonb, document_ids = $10::jsonb
		WHERE id = $1`,
		m.ID, m.Title, m.RoomID, m.HostID, m.StartTime, m.EndTime, m.Date, m.Status, parts, docs)
	if err != nil {
		return fmt.Errorf("pgstore: update meeting %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: meeting %s: %w", m.ID, backend.ErrNotFound)
	}
	return nil
}

func encodeLists(m backend.Meeting) (string, string, error) {
	parts, err := json.Marshal(nonNil(m.Participants))
	if err != nil {
		return "", "", fmt.Errorf("pgstore: encode participants: %w", err)
	}
	docs, err := json.Marshal(nonNil(m.DocumentIDs))
	if err != nil {
		return "", "", fmt.Errorf("pgstore: encode document ids: %w", err)
	}
	return string(parts), string(docs), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanMeeting(row pgx.Row) (backend.Meeting, error) {
	var m backend.Meeting
	var parts, docs []byte
	if err := row.Scan(&m.ID, &m.Title, &m.RoomID, &m.HostID, &m.StartTime, &m.EndTime,
		&m.Date, &m.Status, &parts, &docs); err != nil {
		return backend.Meeting{}, err
	}
	if err := json.Unmarshal(parts, &m.Participants); err != nil {
		return backend.Meeting{}, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal(docs, &m.DocumentIDs); err != nil {
		return backend.Meeting{}, fmt.Errorf("decode document ids: %w", err)
	}
	return m, nil
}
