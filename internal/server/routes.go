package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	tr := d.Translator

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Escape Room API", "/openapi.json", "/docs"))
	if d.Mount != nil {
		d.Mount(r)
	}

	// Player routes. The session id is the only credential a player holds.
	r.Get("/api/themes", handleThemes())
	r.Get("/api/settings", handleSettings(d.Settings))
	r.Post("/api/sessions", handleCreateSession(d.Games, tr, d.PublicURL))

	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Get("/qr", handleQR(logger, d.PublicURL))

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware(d.Games))
			r.Get("/", handleGetSession(tr))
			r.Post("/end", handleEndSession(tr))
			r.Post("/hints", handleUseHint(tr))
			r.Post("/navigate", handleNavigate(tr))
			r.Get("/certificate", handleCertificate(d.Settings))
			r.Get("/messages", handleMessages(d.Admin))
			r.Get("/events", handleEvents(d.Broker))

			r.Get("/stages/{stage}", handleGetStage(tr))
			r.Post("/stages/{stage}/answer", handleAnswer(tr))
			r.Post("/stages/{stage}/reveal", handleReveal(tr))
			r.Post("/stages/{stage}/progress", handleProgress(tr))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", handleAdminLogin(logger, d.Auth))
		r.Post("/logout", handleAdminLogout(logger, d.Auth))

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(logger, d.Auth))
			adminRoutes(r, logger, d)
		})
	})

	if d.SPADir != "" {
		if info, err := os.Stat(d.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", d.SPADir)
			r.NotFound(handleSPA(d.SPADir))
		}
	}
}

func adminRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/me", handleAdminMe())
	r.Get("/sessions", handleAdminSessions(d.Admin, d.Games))
	r.Get("/monitor", handleMonitor(logger, d.Admin, d.Games, d.MonitorInterval))
	r.Get("/actions", handleAdminActions(d.Admin))
	r.Post("/broadcast", handleAdminBroadcast(d.Admin))

	r.Post("/teams/{teamID}/hint", handleAdminHint(d.Admin))
	r.Post("/teams/{teamID}/difficulty", handleAdminDifficulty(d.Admin))
	r.Post("/teams/{teamID}/time", handleAdminTime(d.Admin))

	r.Get("/content/export", handleAdminExportContent(d.Admin))
	r.Post("/content/import", handleAdminImportContent(d.Admin))
	r.Get("/content/{theme}", handleAdminGetContent(d.Admin))
	r.Put("/content/{theme}", handleAdminPutContent(d.Admin))
	r.Delete("/content/{theme}", handleAdminResetContent(d.Admin))

	r.Get("/settings", handleSettings(d.Settings))
	r.Put("/settings", handleAdminPutSettings(logger, d.Settings))
}
