// CLAUDE:SUMMARY SQLite implementation of backend.Store: documents, meetings (JSON list columns), change feed via trigger-fed change_log.
// CLAUDE:DEPENDS backend, feed, dbopen
// Package store persists eCabinet documents and meetings in SQLite.
// Every write lands a row in change_log through triggers; Subscribe tails
// it with the feed package.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/dbopen"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/feed"
)

// Config configures a Store.
type Config struct {
	// Demo classifies loaded refs. Default: document.DefaultDemoIDs.
	Demo document.DemoSet
	// FeedInterval is the change_log polling frequency. Default: 500ms.
	FeedInterval time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

func (c *Config) defaults() {
	if c.Demo == nil {
		c.Demo = document.NewDemoSet(document.DefaultDemoIDs...)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store is the SQLite backend.Store.
type Store struct {
	db   *sql.DB
	cfg  Config
	feed *feed.Feed
}

var _ backend.Store = (*Store)(nil)

// New applies Schema to db and returns a Store.
func New(db *sql.DB, cfg Config) (*Store, error) {
	cfg.defaults()
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{
		db:   db,
		cfg:  cfg,
		feed: feed.New(db, feed.Options{Interval: cfg.FeedInterval, Logger: cfg.Logger}),
	}, nil
}

// Feed exposes the underlying change feed.
func (s *Store) Feed() *feed.Feed { return s.feed }

const documentCols = `id, name, type, url, size_label, updated_at, owner_id`

// ListDocuments returns every document, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]document.Ref, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var out []document.Ref
	for rows.Next() {
		r, err := s.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDocument returns one document or backend.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (document.Ref, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentCols+` FROM documents WHERE id = ?`, id)
	r, err := s.scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Ref{}, fmt.Errorf("store: document %s: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return document.Ref{}, fmt.Errorf("store: get document %s: %w", id, err)
	}
	return r, nil
}

// InsertDocument stores ref. Type is derived from the name when empty.
func (s *Store) InsertDocument(ctx context.Context, ref document.Ref) error {
	if ref.Type == "" {
		ref.Type = document.DetectType(ref.Name)
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO documents (id, name, type, url, size_label, updated_at, owner_id, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		ref.ID, ref.Name, string(ref.Type), ref.RemoteURL, ref.SizeLabel, ref.UpdatedAt, ref.OwnerID,
		s.cfg.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert document %s: %w", ref.ID, err)
	}
	return nil
}

// DeleteDocument removes a document. Missing ids return backend.ErrNotFound.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: document %s: %w", id, backend.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanDocument(sc scanner) (document.Ref, error) {
	var r document.Ref
	var typ string
	if err := sc.Scan(&r.ID, &r.Name, &typ, &r.RemoteURL, &r.SizeLabel, &r.UpdatedAt, &r.OwnerID); err != nil {
		return document.Ref{}, err
	}
	r.Type = document.Type(typ)
	r.Origin = r.Classify(s.cfg.Demo)
	return r, nil
}

const meetingCols = `id, title, room_id, host_id, start_time, end_time, date, status, participants, document_ids`

// ListMeetings returns every meeting ordered by date and start time.
func (s *Store) ListMeetings(ctx context.Context) ([]backend.Meeting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+meetingCols+` FROM meetings ORDER BY date, start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list meetings: %w", err)
	}
	defer rows.Close()

	var out []backend.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan meeting: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMeeting returns one meeting or backend.ErrNotFound.
func (s *Store) GetMeeting(ctx context.Context, id string) (backend.Meeting, error) {
	m, err := scanMeeting(s.db.QueryRowContext(ctx, `SELECT `+meetingCols+` FROM meetings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Meeting{}, fmt.Errorf("store: meeting %s: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return backend.Meeting{}, fmt.Errorf("store: get meeting %s: %w", id, err)
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
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT INTO meetings (`+meetingCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Title, m.RoomID, m.HostID, m.StartTime, m.EndTime, m.Date, m.Status, parts, docs)
	if err != nil {
		return fmt.Errorf("store: insert meeting %s: %w", m.ID, err)
	}
	return nil
}

// UpdateMeeting replaces the stored meeting. Missing ids return backend.ErrNotFound.
func (s *Store) UpdateMeeting(ctx context.Context, m backend.Meeting) error {
	parts, docs, err := encodeLists(m)
	if err != nil {
		return err
	}
	res, err := dbopen.Exec(ctx, s.db, `
		UPDATE meetings SET title = ?, room_id = ?, host_id = ?, start_time = ?, end_time = ?,
			date = ?, status = ?, participants = ?, document_ids = ?
		WHERE id = ?`,
		m.Title, m.RoomID, m.HostID, m.StartTime, m.EndTime, m.Date, m.Status, parts, docs, m.ID)
	if err != nil {
		return fmt.Errorf("store: update meeting %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: meeting %s: %w", m.ID, backend.ErrNotFound)
	}
	return nil
}

// Subscribe streams document and meeting changes made after the call.
func (s *Store) Subscribe(ctx context.Context) (<-chan backend.Event, error) {
	return s.feed.Subscribe(ctx)
}

func encodeLists(m backend.Meeting) (string, string, error) {
	parts, err := json.Marshal(nonNil(m.Participants))
	if err != nil {
		return "", "", fmt.Errorf("store: encode participants: %w", err)
	}
	docs, err := json.Marshal(nonNil(m.DocumentIDs))
	if err != nil {
		return "", "", fmt.Errorf("store: encode document ids: %w", err)
	}
	return string(parts), string(docs), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanMeeting(sc scanner) (backend.Meeting, error) {
	var m backend.Meeting
	var parts, docs string
	if err := sc.Scan(&m.ID, &m.Title, &m.RoomID, &m.HostID, &m.StartTime, &m.EndTime,
		&m.Date, &m.Status, &parts, &docs); err != nil {
		return backend.Meeting{}, err
	}
	if err := json.Unmarshal([]byte(parts), &m.Participants); err != nil {
		return backend.Meeting{}, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(docs), &m.DocumentIDs); err != nil {
		return backend.Meeting{}, fmt.Errorf("decode document ids: %w", err)
	}
	return m, nil
}
