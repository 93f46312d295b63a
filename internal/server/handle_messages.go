package server

import (
	"net/http"
	"time"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/storage"
)

// handleMessages returns the advisory inbox: hints and broadcasts sent by the
// game master. ?since= (RFC 3339) returns only newer messages.
func handleMessages(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
				return
			}
			since = t
		}

		rec := storage.FromSession(controllerFrom(r).Snapshot().Session)
		out := []MessageResponse{}
		for _, a := range svc.Messages(r.Context(), rec) {
			if a.Timestamp.After(since) {
				out = append(out, messageView(a))
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
