package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/storage"
)

// ContentService owns the active resolver. Readers never block; edits build a
// new resolver and swap it in.
type ContentService struct {
	repo     *storage.Repository
	logger   *slog.Logger
	mu       sync.Mutex
	resolver atomic.Pointer[escaperoom.Resolver]
}

func NewContentService(ctx context.Context, repo *storage.Repository, logger *slog.Logger) *ContentService {
	s := &ContentService{repo: repo, logger: logger}
	s.Reload(ctx)
	return s
}

// Reload replaces the overrides with what the repository holds. Once
// loaded, overrides are only replaced by a read the primary store answered;
// during an outage the fallback copy may be older than what is served.
func (s *ContentService) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	overrides, src := s.repo.LoadContent(ctx)
	if s.resolver.Load() != nil && s.repo.HasPrimary() && src != storage.SourcePrimary {
		s.logger.Debug("keeping custom content", "source", src)
		return
	}
	s.resolver.Store(escaperoom.NewResolver(escaperoom.Builtin(), overrides))
	s.logger.Debug("custom content loaded", "source", src, "themes", len(overrides))
}

// Watch reloads the overrides every interval until ctx is done, so edits
// made by roomctl or another server reach players here.
func (s *ContentService) Watch(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Reload(ctx)
		}
	}
}

func (s *ContentService) Resolver() *escaperoom.Resolver { return s.resolver.Load() }

func (s *ContentService) Resolve(theme escaperoom.Theme, stage int) escaperoom.Puzzle {
	return s.Resolver().Resolve(theme, stage)
}

func (s *ContentService) Overrides() escaperoom.CustomContent {
	return s.Resolver().Overrides()
}

// Save replaces every override of theme with stages.
func (s *ContentService) Save(ctx context.Context, theme escaperoom.Theme, stages map[int]escaperoom.Override) (storage.SyncStatus, error) {
	valid, err := escaperoom.ValidateCustomContent(map[escaperoom.Theme]map[int]escaperoom.Override{theme: stages})
	if err != nil {
		return "", err
	}
	return s.apply(ctx, valid), nil
}

// Reset drops every override of theme.
func (s *ContentService) Reset(ctx context.Context, theme escaperoom.Theme) (storage.SyncStatus, error) {
	if !escaperoom.Builtin().Has(theme) {
		return "", fmt.Errorf("%w: unknown theme %q", escaperoom.ErrInvalidContent, theme)
	}
	return s.apply(ctx, escaperoom.CustomContent{theme: nil}), nil
}

// Import applies an exported document. Themes it names are replaced; other
// themes keep their overrides. Nothing is applied if the document is invalid.
func (s *ContentService) Import(ctx context.Context, data []byte) (storage.SyncStatus, error) {
	c, err := escaperoom.ParseCustomContent(data)
	if err != nil {
		return "", err
	}
	return s.apply(ctx, c), nil
}

func (s *ContentService) Export() ([]byte, error) {
	return json.MarshalIndent(s.Overrides(), "", "  ")
}

func (s *ContentService) apply(ctx context.Context, changes escaperoom.CustomContent) storage.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := storage.SyncSynced
	next := s.Resolver().Overrides()
	for theme, stages := range changes {
		st := s.repo.SaveContent(ctx, theme, stages)
		status = status.Worse(st)
		if len(stages) == 0 {
			delete(next, theme)
		} else {
			next[theme] = stages
		}
	}
	s.resolver.Store(escaperoom.NewResolver(escaperoom.Builtin(), next))
	return status
}
