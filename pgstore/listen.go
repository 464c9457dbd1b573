package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hazyhaar/ecabinet/backend"
)

// Subscribe holds one pooled connection on LISTEN ecabinet_changes and
// streams the decoded notifications until ctx is cancelled. A lost
// connection is re-acquired after Config.Backoff; notifications sent while
// disconnected are not replayed.
func (s *Store) Subscribe(ctx context.Context) (<-chan backend.Event, error) {
	conn, err := s.DB.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pgstore: listen: %w", err)
	}

	ch := make(chan backend.Event, s.cfg.Buffer)
	go func() {
		defer close(ch)
		for {
			err := s.listen(ctx, conn.Conn(), ch)
			conn.Release()
			if ctx.Err() != nil {
				return
			}
			s.cfg.Logger.Warn("pgstore: listener lost, reconnecting", "error", err)
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.Backoff):
				}
				if conn, err = s.DB.Acquire(ctx); err == nil {
					if _, err = conn.Exec(ctx, "LISTEN "+Channel); err == nil {
						break
					}
					conn.Release()
				}
				s.cfg.Logger.Warn("pgstore: re-listen failed", "error", err)
			}
		}
	}()
	return ch, nil
}

type notifier interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

func (s *Store) listen(ctx context.Context, conn notifier, ch chan<- backend.Event) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		e, err := decodeEvent(n.Payload)
		if err != nil {
			s.cfg.Logger.Warn("pgstore: bad notification payload", "error", err, "payload", n.Payload)
			continue
		}
		select {
		case ch <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeEvent(payload string) (backend.Event, error) {
	var e backend.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return backend.Event{}, err
	}
	if e.Table == "" || e.ID == "" {
		return backend.Event{}, fmt.Errorf("missing table or id")
	}
	return e, nil
}
