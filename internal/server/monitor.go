package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/game"
)

// MonitorFrame is pushed to the admin dashboard on every interval.
type MonitorFrame struct {
	At       time.Time        `json:"at"`
	Live     int              `json:"live"`
	Sessions []SessionSummary `json:"sessions"`
}

// handleMonitor pushes the active-session list over a websocket until the
// client goes away.
func handleMonitor(logger *slog.Logger, svc *admin.Service, games *game.Manager, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 4*time.Hour)
		defer cancel()
		// The dashboard never sends; CloseRead handles pings and close frames.
		ctx = conn.CloseRead(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			frame := MonitorFrame{
				At:       time.Now().UTC(),
				Live:     games.Live(),
				Sessions: liveSummaries(r.WithContext(ctx), svc, games, true),
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				logger.Debug("monitor write ended", "error", err)
				return
			}

			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case <-ticker.C:
			}
		}
	}
}
