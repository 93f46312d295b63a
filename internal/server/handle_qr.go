package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 320

// handleQR renders the resume link of a session as a PNG so a team can pick
// the game up on another device.
func handleQR(logger *slog.Logger, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		png, err := qrcode.Encode(resumeURL(publicURL, id), qrcode.Medium, qrSize)
		if err != nil {
			logger.Error("encoding qr code", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
