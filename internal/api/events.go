package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// events streams session snapshots as server-sent events. The current state
// is sent first so a fresh page does not wait for the next mutation.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sessionID(r)

	st, updates, cancel, err := s.studio.Watch(ctx, id)
	if err != nil {
		s.writeStudioError(w, r, err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Warn("encode sse frame", "session", id, "err", err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(st) {
		return
	}
	sent := st.Version

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case next, ok := <-updates:
			if !ok {
				return
			}
			if next.Version <= sent {
				continue
			}
			if !send(next) {
				return
			}
			sent = next.Version
		}
	}
}
