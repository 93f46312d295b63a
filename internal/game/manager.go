package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/playperu/escaperoom/internal/clock"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/storage"
)

var ErrInvalidSessionID = errors.New("invalid session id")

// Manager is the registry of live session controllers.
type Manager struct {
	deps controllerDeps

	mu          sync.RWMutex
	controllers map[string]*Controller
}

func NewManager(repo *storage.Repository, content *ContentService, sched clock.Scheduler, pub Publisher, logger *slog.Logger, opts Options) *Manager {
	if pub == nil {
		pub = nopPublisher{}
	}
	m := &Manager{controllers: make(map[string]*Controller)}
	m.deps = controllerDeps{
		repo:    repo,
		content: content,
		sched:   sched,
		pub:     pub,
		logger:  logger,
		opts:    opts.withDefaults(),
		onDone:  m.release,
	}
	return m
}

func (m *Manager) Content() *ContentService { return m.deps.content }

// Create starts a new session. A persistence failure does not stop the game;
// the returned status says where the first write landed.
func (m *Manager) Create(ctx context.Context, cfg escaperoom.Config) (*Controller, Result, error) {
	s, err := escaperoom.NewSession(uuid.NewString(), cfg, m.deps.sched.Now())
	if err != nil {
		return nil, Result{}, err
	}
	c := newController(s, storage.SessionRecord{}, m.deps)
	res := c.Sync(ctx)

	m.mu.Lock()
	m.controllers[s.ID] = c
	m.mu.Unlock()

	c.start()
	m.deps.logger.Info("session started",
		"session_id", s.ID, "team_id", s.TeamID, "theme", s.Theme,
		"difficulty", s.Difficulty, "sync", res.Sync)
	return c, res, nil
}

// Get returns the live controller for id, loading it from the repository if
// needed. A well-formed id that no store knows gets a demo session.
func (m *Manager) Get(ctx context.Context, id string) (*Controller, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSessionID
	}

	m.mu.RLock()
	c, ok := m.controllers[id]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	rec, src := m.deps.repo.LoadSession(ctx, id)
	s := rec.Session()
	last := rec
	if src == storage.SourceDefault {
		last = storage.SessionRecord{}
	}
	c = newController(s, last, m.deps)
	if src == storage.SourceDefault {
		c.Sync(ctx)
		m.deps.logger.Info("synthesized demo session", "session_id", id)
	}

	m.mu.Lock()
	// Double-check after acquiring write lock.
	if existing, ok := m.controllers[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.controllers[id] = c
	m.mu.Unlock()

	c.start()
	return c, nil
}

// Peek returns the controller for id if it is loaded, without touching the
// repository.
func (m *Manager) Peek(id string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[id]
	return c, ok
}

// Live returns how many controllers are loaded.
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.controllers)
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.controllers, id)
	m.mu.Unlock()
}

// Close stops every controller.
func (m *Manager) Close() error {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.controllers))
	for id, c := range m.controllers {
		controllers = append(controllers, c)
		delete(m.controllers, id)
	}
	m.mu.Unlock()

	for _, c := range controllers {
		c.Stop()
	}
	return nil
}
