package api

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"ropa-suggestions/internal/domain/ports/adapter"
	"ropa-suggestions/internal/infra/logging"
	"ropa-suggestions/internal/usecase"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	streamBuffer = 16
)

// StreamMessage is one frame on /api/v1/stream.
type StreamMessage struct {
	Type         string                      `json:"type"` // snapshot | notification
	Snapshot     *usecase.SuggestionSnapshot `json:"snapshot,omitempty"`
	Notification *adapter.Notification       `json:"notification,omitempty"`
}

// upgrader accepts the API's own host plus AllowedOrigins, given as a full
// origin or a bare host.
func (s *Server) upgrader() websocket.Upgrader {
	u := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}
	if len(s.opts.AllowedOrigins) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			o, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if strings.EqualFold(o.Host, r.Host) {
				return true
			}
			return slices.ContainsFunc(s.opts.AllowedOrigins, func(allowed string) bool {
				allowed = strings.TrimSuffix(allowed, "/")
				return allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, o.Host)
			})
		}
	}
	return u
}

// handleStream pushes snapshots (latest first) and notifications until the
// client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.With(r.Context(), s.log).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	snaps, cancelSnaps := s.uc.Subscribe(streamBuffer)
	defer cancelSnaps()

	var notes <-chan adapter.Notification
	if s.notes != nil {
		ch, cancelNotes := s.notes.Subscribe(streamBuffer)
		defer cancelNotes()
		notes = ch
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logging.With(r.Context(), s.log).Debug().Err(err).Msg("stream closed unexpectedly")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func(msg StreamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg) == nil
	}

	for {
		select {
		case <-done:
			return
		case snap, ok := <-snaps:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if !send(StreamMessage{Type: "snapshot", Snapshot: &snap}) {
				return
			}
		case note, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			if !send(StreamMessage{Type: "notification", Notification: &note}) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
