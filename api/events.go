package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/idgen"
)

// ChangeEvent encodes a store change as a CloudEvent:
// type com.ecabinet.<table>.<op>, subject = row id, data = the change.
func ChangeEvent(e backend.Event, now time.Time) (cloudevents.Event, error) {
	ev := cloudevents.NewEvent()
	id := strconv.FormatInt(e.Seq, 10)
	if e.Seq == 0 {
		id = idgen.New()
	}
	ev.SetID(id)
	ev.SetSource("/ecabinet/" + e.Table)
	ev.SetType("com.ecabinet." + e.Table + "." + e.Op)
	ev.SetSubject(e.ID)
	ev.SetTime(now)
	if err := ev.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return ev, err
	}
	return ev, ev.Validate()
}

// events streams store changes as server-sent CloudEvents until the client
// disconnects.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ch, err := s.cfg.Store.Subscribe(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server WriteTimeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	rc.Flush()

	tick := time.NewTicker(s.cfg.Keepalive)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			fmt.Fprint(w, ": keepalive\n\n")
		case e, ok := <-ch:
			if !ok {
				return
			}
			ev, err := ChangeEvent(e, time.Now())
			if err != nil {
				s.cfg.Logger.Warn("api: encode change event", "error", err, "seq", e.Seq)
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.cfg.Logger.Warn("api: marshal change event", "error", err, "seq", e.Seq)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID(), ev.Type(), data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
