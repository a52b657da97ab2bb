package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopforge/shopforge/internal/events"
)

const (
	socketWriteTimeout = 10 * time.Second
	socketPingInterval = 30 * time.Second
)

// jobSocket streams job state transitions to admin UI clients over a
// websocket. Each client gets its own bus subscription; a slow client only
// loses its own events.
type jobSocket struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
}

func newJobSocket(bus *events.Bus) *jobSocket {
	return &jobSocket{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS middleware upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *jobSocket) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch, cancel := s.bus.Subscribe(events.JobCompleted, events.JobFailed)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(socketPingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
