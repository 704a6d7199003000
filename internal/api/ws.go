package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Progress streams are consumed by internal tools; origin checks are
	// handled at the network boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RunEventsWS streams run progress events over a WebSocket until the run
// finishes or the peer goes away.
func (s *Server) RunEventsWS(w http.ResponseWriter, r *http.Request, p Principal, runID string) {
	if _, err := s.Store.GetRun(r.Context(), p.Tenant, runID); err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)

	// Reader pump: detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case evt, open := <-ch:
			if !open {
				return
			}
			payload := map[string]any{"type": evt.Type, "data": evt.Data}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
			if evt.Type == "completed" || evt.Type == "cancelled" {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}
