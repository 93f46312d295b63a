package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/escaperoom/internal/settings"
)

// handleAdminPutSettings replaces the site settings. The body's version must
// match the current one; send 0 to overwrite unconditionally.
func handleAdminPutSettings(logger *slog.Logger, reg *settings.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settings.Settings
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		next, err := reg.Update(r.Context(), req)
		switch {
		case errors.Is(err, settings.ErrInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, settings.ErrVersionConflict):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			logger.Error("updating settings failed", "admin", adminFrom(r).Email, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, next)
	}
}
