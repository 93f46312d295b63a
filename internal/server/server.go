package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/locale"
	"github.com/playperu/escaperoom/internal/settings"
)

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Games    *game.Manager
	Admin    *admin.Service
	Auth     AdminStore
	Settings *settings.Registry
	Broker   *Broker
	// Publisher fans out events beyond this process. Defaults to Broker.
	Publisher  Publisher
	Translator *locale.Translator

	PublicURL       string
	SPADir          string
	MonitorInterval time.Duration

	// Mount adds infrastructure routes such as /healthz.
	Mount func(r chi.Router)
}

type Server struct {
	srv         *http.Server
	logger      *slog.Logger
	unsubscribe func()
}

func New(addr string, logger *slog.Logger, deps Deps) *Server {
	if deps.Publisher == nil {
		deps.Publisher = deps.Broker
	}
	if deps.MonitorInterval <= 0 {
		deps.MonitorInterval = 2 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, deps)

	pub := deps.Publisher
	unsubscribe := deps.Settings.Subscribe(func(s settings.Settings) {
		pub.Broadcast(game.Event{Type: game.EventSettingsUpdated})
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger:      logger,
		unsubscribe: unsubscribe,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
