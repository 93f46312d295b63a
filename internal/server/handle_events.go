package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/playperu/escaperoom/internal/game"
)

// handleEvents streams a session's events. The first event is the current
// state so a reconnecting client never starts blank.
func handleEvents(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := controllerFrom(r)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := broker.Subscribe(c.ID())
		defer broker.Unsubscribe(c.ID(), ch)

		s := c.Snapshot().Session
		first, _ := json.Marshal(game.Event{
			Type:          game.EventState,
			SessionID:     s.ID,
			CurrentStage:  s.CurrentStage,
			TimeRemaining: s.TimeRemaining,
		})
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", game.EventState, first)
		flusher.Flush()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				var ev struct {
					Type string `json:"type"`
				}
				json.Unmarshal(data, &ev)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
