package settings

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/playperu/escaperoom/internal/database"
	"github.com/playperu/escaperoom/internal/storage"
)

func newStore(t *testing.T) *storage.DocStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	docs, err := storage.NewDocStore(ctx, db)
	if err != nil {
		t.Fatalf("init doc store: %v", err)
	}
	return docs
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(context.Background(), newStore(t), slog.Default())
	if got := r.Current(); got != Defaults() {
		t.Fatalf("got %+v", got)
	}
}

func TestRegistryUpdatePersists(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	r := NewRegistry(ctx, store, slog.Default())

	next := r.Current()
	next.SiteName = "  Lima Escapes "
	next.SupportEmail = "help@playperu.com"
	got, err := r.Update(ctx, next)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Version != 2 || got.SiteName != "Lima Escapes" {
		t.Fatalf("got %+v", got)
	}

	reloaded := NewRegistry(ctx, store, slog.Default()).Current()
	if reloaded != got {
		t.Fatalf("reloaded %+v, want %+v", reloaded, got)
	}
}

func TestRegistryRejects(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(ctx, nil, slog.Default())

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   error
	}{
		{"blank name", func(s *Settings) { s.SiteName = " " }, ErrInvalid},
		{"bad color", func(s *Settings) { s.PrimaryColor = "red" }, ErrInvalid},
		{"bad email", func(s *Settings) { s.SupportEmail = "not-an-email" }, ErrInvalid},
		{"stale version", func(s *Settings) { s.Version = 7 }, ErrVersionConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := r.Current()
			tt.mutate(&s)
			if _, err := r.Update(ctx, s); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if r.Current().Version != 1 {
				t.Fatal("rejected update changed the version")
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(ctx, nil, slog.Default())

	var seen []int64
	unsubscribe := r.Subscribe(func(s Settings) { seen = append(seen, s.Version) })

	s := r.Current()
	s.Tagline = "New tagline"
	s.Version = 0
	if _, err := r.Update(ctx, s); err != nil {
		t.Fatalf("update: %v", err)
	}
	unsubscribe()
	unsubscribe()
	if _, err := r.Update(ctx, s); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(seen) != 1 || seen[0] != 2 {
		t.Fatalf("seen = %v", seen)
	}
	if r.Current().Version != 3 {
		t.Fatalf("version = %d", r.Current().Version)
	}
}
