// Package settings holds the site branding shown on every screen and on the
// certificate. Settings are a versioned value: every update bumps the version
// and is pushed to subscribers.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"sync"

	"github.com/playperu/escaperoom/internal/storage"
)

var (
	ErrVersionConflict = errors.New("settings were changed by someone else")
	ErrInvalid         = errors.New("invalid settings")
)

type Settings struct {
	Version           int64  `json:"version"`
	SiteName          string `json:"siteName"`
	Tagline           string `json:"tagline"`
	PrimaryColor      string `json:"primaryColor"`
	SupportEmail      string `json:"supportEmail"`
	CertificateFooter string `json:"certificateFooter"`
}

func Defaults() Settings {
	return Settings{
		Version:           1,
		SiteName:          "PlayPeru Escape Rooms",
		Tagline:           "Six rooms. One clock. No way out but forward.",
		PrimaryColor:      "#8b1e3f",
		CertificateFooter: "Thank you for playing.",
	}
}

var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (s *Settings) normalize() error {
	s.SiteName = strings.TrimSpace(s.SiteName)
	s.Tagline = strings.TrimSpace(s.Tagline)
	s.PrimaryColor = strings.TrimSpace(s.PrimaryColor)
	s.SupportEmail = strings.TrimSpace(s.SupportEmail)
	s.CertificateFooter = strings.TrimSpace(s.CertificateFooter)

	if s.SiteName == "" {
		return fmt.Errorf("%w: siteName is required", ErrInvalid)
	}
	if !colorRe.MatchString(s.PrimaryColor) {
		return fmt.Errorf("%w: primaryColor must be a hex color like #8b1e3f", ErrInvalid)
	}
	if s.SupportEmail != "" {
		if _, err := mail.ParseAddress(s.SupportEmail); err != nil {
			return fmt.Errorf("%w: supportEmail: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Store persists the current settings document.
type Store interface {
	LoadSettings(ctx context.Context) (int64, []byte, error)
	SaveSettings(ctx context.Context, version int64, data []byte) error
}

type Registry struct {
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	cur    Settings
	subs   map[int]func(Settings)
	nextID int
}

// NewRegistry loads the stored settings. store may be nil, in which case
// settings live only in memory. A store that cannot be read leaves the
// defaults in place.
func NewRegistry(ctx context.Context, store Store, logger *slog.Logger) *Registry {
	r := &Registry{store: store, logger: logger, cur: Defaults(), subs: make(map[int]func(Settings))}
	if store == nil {
		return r
	}

	version, data, err := store.LoadSettings(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		logger.Warn("loading settings failed, using defaults", "error", err)
	default:
		var s Settings
		if err := json.Unmarshal(data, &s); err != nil {
			logger.Warn("corrupt settings document, using defaults", "error", err)
			break
		}
		s.Version = version
		r.cur = s
	}
	return r
}

func (r *Registry) Current() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// Update replaces the settings. A non-zero next.Version must match the
// current version. The stored version is always the current one plus one.
func (r *Registry) Update(ctx context.Context, next Settings) (Settings, error) {
	if err := next.normalize(); err != nil {
		return Settings{}, err
	}

	r.mu.Lock()
	if next.Version != 0 && next.Version != r.cur.Version {
		r.mu.Unlock()
		return Settings{}, ErrVersionConflict
	}
	next.Version = r.cur.Version + 1

	if r.store != nil {
		data, err := json.Marshal(next)
		if err == nil {
			err = r.store.SaveSettings(ctx, next.Version, data)
		}
		if err != nil {
			r.mu.Unlock()
			return Settings{}, fmt.Errorf("saving settings: %w", err)
		}
	}
	r.cur = next
	subs := make([]func(Settings), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	r.logger.Info("settings updated", "version", next.Version)
	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

// Subscribe calls fn after every successful update until the returned func
// is called.
func (r *Registry) Subscribe(fn func(Settings)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}
