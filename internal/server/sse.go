// ABOUTME: SSE change stream pushing table invalidations to workspace clients
// ABOUTME: One subscription per requested table, torn down when the client disconnects

package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/luminahq/livedesk/internal/store"
)

// sseHeartbeatInterval keeps intermediary proxies from dropping idle streams.
const sseHeartbeatInterval = 30 * time.Second

// knownTables are the change-feed keys clients may subscribe to.
var knownTables = map[string]bool{
	store.TableRooms:      true,
	store.TableMessages:   true,
	store.TableAttendants: true,
}

// handleEvents handles GET /api/events: an SSE stream of table invalidations.
// ?tables=rooms,messages narrows the stream; the default is every table.
// Events carry only the table name; clients refetch what they care about,
// which keeps the stream idempotent under reconnects and duplicate delivery.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	tables, err := requestedTables(r.URL.Query().Get("tables"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Buffered so a burst between writes never blocks the feed goroutines.
	changes := make(chan string, 64)
	for _, table := range tables {
		t := table
		sub := s.deps.Bridge.Subscribe(t, func() {
			select {
			case changes <- t:
			default:
				// Client is behind; it will catch up on the next event.
			}
		})
		defer sub.Cancel()
	}

	s.deps.Metrics.SSEClientConnected(1)
	defer s.deps.Metrics.SSEClientConnected(-1)
	s.logger.Debug("SSE client connected", "tables", tables, "remote", r.RemoteAddr)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "remote", r.RemoteAddr)
			return
		case table := <-changes:
			fmt.Fprintf(w, "event: change\ndata: {\"table\":%q}\n\n", table)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// requestedTables parses the tables query parameter.
func requestedTables(raw string) ([]string, error) {
	if raw == "" {
		return []string{store.TableRooms, store.TableMessages, store.TableAttendants}, nil
	}
	var tables []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if !knownTables[t] {
			return nil, fmt.Errorf("unknown table %q", t)
		}
		tables = append(tables, t)
	}
	return tables, nil
}
