package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunEvents handles GET /v1/runs/{id}/events, streaming a run's state
// transitions over a websocket until the run terminates or the client
// disconnects.
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	events, cancel, err := h.engine.WatchRun(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade failed for run %s: %v", runID, err)
		return
	}
	defer conn.Close()

	// Drain client frames so we notice a disconnect.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("[api] run %s event write failed: %v", runID, err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
