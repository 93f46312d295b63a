package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playperu/escaperoom/internal/database"
	"github.com/playperu/escaperoom/internal/escaperoom"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newDocStore(t *testing.T) *DocStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewDocStore(ctx, db)
	if err != nil {
		t.Fatalf("init doc store: %v", err)
	}
	return store
}

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenLocal(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open local db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewLocalStore(ctx, db)
	if err != nil {
		t.Fatalf("init local store: %v", err)
	}
	return store
}

func newSession(t *testing.T, id string) *escaperoom.Session {
	t.Helper()
	s, err := escaperoom.NewSession(id, escaperoom.Config{
		Theme:      "ancient-tomb",
		Difficulty: escaperoom.DifficultyMedium,
		TeamName:   "Los Incas",
	}, t0)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

var errOutage = errors.New("connection refused")

// flakyPrimary fails every call while down is set.
type flakyPrimary struct {
	PrimaryStore
	down atomic.Bool
}

func (f *flakyPrimary) err() error {
	if f.down.Load() {
		return errOutage
	}
	return nil
}

func (f *flakyPrimary) PutSession(ctx context.Context, rec SessionRecord) (SessionRecord, error) {
	if err := f.err(); err != nil {
		return SessionRecord{}, err
	}
	return f.PrimaryStore.PutSession(ctx, rec)
}

func (f *flakyPrimary) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	if err := f.err(); err != nil {
		return SessionRecord{}, err
	}
	return f.PrimaryStore.GetSession(ctx, id)
}

func (f *flakyPrimary) GetSessionByTeam(ctx context.Context, id string) (SessionRecord, error) {
	if err := f.err(); err != nil {
		return SessionRecord{}, err
	}
	return f.PrimaryStore.GetSessionByTeam(ctx, id)
}

func (f *flakyPrimary) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.PrimaryStore.ListSessions(ctx)
}

func (f *flakyPrimary) ReplaceContent(ctx context.Context, theme escaperoom.Theme, stages map[int]escaperoom.Override) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.PrimaryStore.ReplaceContent(ctx, theme, stages)
}

func (f *flakyPrimary) LoadContent(ctx context.Context) (escaperoom.CustomContent, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.PrimaryStore.LoadContent(ctx)
}

func (f *flakyPrimary) AppendAction(ctx context.Context, a AdminAction) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.PrimaryStore.AppendAction(ctx, a)
}

func (f *flakyPrimary) ListActions(ctx context.Context, filter ActionFilter) ([]AdminAction, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.PrimaryStore.ListActions(ctx, filter)
}

type brokenFallback struct{ FallbackStore }

func (brokenFallback) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestRecordRoundTrip(t *testing.T) {
	s := newSession(t, "rt-1")
	s.TeamID = "team-1"
	p := escaperoom.Builtin()
	p1, _ := p.Puzzle(s.Theme, 1)
	s.SubmitAnswer(p1, 1, "ankh", t0)
	s.AdvanceFrom(1)
	s.UseHint()
	s.RevealAnswer(2, t0)
	s.UpdateProgress(3, 40)

	got := FromSession(s).Session()
	if got.TeamID != "team-1" || got.ID != "rt-1" || got.Theme != "ancient-tomb" {
		t.Fatalf("identity lost: %+v", got)
	}
	if !got.IsSolved(1) || !got.IsSolved(2) || got.Progress[3] != 40 {
		t.Errorf("progress = %v", got.Progress)
	}
	if !got.IsRevealed(2) || got.IsRevealed(1) {
		t.Errorf("revealed = %v", got.RevealedStages())
	}
	if got.StageHints[2] != 1 || got.HintsUsed != 1 || got.HintBudget != 3 {
		t.Errorf("hints: stage %v used %d budget %d", got.StageHints, got.HintsUsed, got.HintBudget)
	}
	if got.CurrentStage != 2 || !got.StartTime.Equal(t0) {
		t.Errorf("stage %d start %v", got.CurrentStage, got.StartTime)
	}
}

func TestDocStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := newDocStore(t)

	rec := FromSession(newSession(t, "sess-1"))
	stored, err := store.PutSession(ctx, rec)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected a team id to be assigned")
	}

	// Writing again without the id keeps the assigned one.
	rec.CurrentStage = 2
	rec.Stages = []StageRecord{{StageNumber: 1, ProgressPercentage: 100, IsCompleted: true}}
	again, err := store.PutSession(ctx, rec)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if again.ID != stored.ID {
		t.Fatalf("team id changed: %q -> %q", stored.ID, again.ID)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStage != 2 || len(got.Stages) != 1 || !got.Stages[0].IsCompleted {
		t.Errorf("unexpected record %+v", got)
	}

	byTeam, err := store.GetSessionByTeam(ctx, stored.ID)
	if err != nil || byTeam.SessionID != "sess-1" {
		t.Fatalf("by team: %+v %v", byTeam, err)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.PutSession(ctx, FromSession(newSession(t, "sess-2"))); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	all, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
	for _, r := range all {
		if r.SessionID == "sess-1" && len(r.Stages) != 1 {
			t.Errorf("stages not attached in list: %+v", r)
		}
	}
}

func TestDocStoreContentReplace(t *testing.T) {
	ctx := context.Background()
	store := newDocStore(t)
	title := "A Quiet Supper"
	back := "It rained."

	err := store.ReplaceContent(ctx, "murder-mystery", map[int]escaperoom.Override{
		1: {Title: &title},
		2: {Backstory: &back},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.ReplaceContent(ctx, "ancient-tomb", map[int]escaperoom.Override{4: {Title: &title}}); err != nil {
		t.Fatalf("replace tomb: %v", err)
	}
	if err := store.ReplaceContent(ctx, "murder-mystery", map[int]escaperoom.Override{3: {Title: &title}}); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	c, err := store.LoadContent(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c["murder-mystery"]) != 1 {
		t.Fatalf("expected delete-then-insert, got %v", c["murder-mystery"])
	}
	o := c["murder-mystery"][3]
	if o.Title == nil || *o.Title != title || o.Description != nil {
		t.Errorf("override = %+v", o)
	}
	if _, ok := c["ancient-tomb"][4]; !ok {
		t.Error("other theme was touched")
	}

	if err := store.ReplaceContent(ctx, "murder-mystery", nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	c, _ = store.LoadContent(ctx)
	if _, ok := c["murder-mystery"]; ok {
		t.Error("reset left entries behind")
	}
}

func TestDocStoreActions(t *testing.T) {
	ctx := context.Background()
	store := newDocStore(t)

	for i, a := range []AdminAction{
		{ID: "a1", TeamID: "t1", Type: ActionHint, Message: "look left"},
		{ID: "a2", TeamID: "t2", Type: ActionTime, Data: []byte(`{"minutes":5}`)},
		{ID: "a3", TeamID: "t1", Type: ActionBroadcast, Message: "ten minutes"},
		{ID: "a4", TeamID: "t1", Type: ActionDifficulty},
	} {
		a.Timestamp = t0.Add(time.Duration(i) * time.Minute)
		if err := store.AppendAction(ctx, a); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.ListActions(ctx, ActionFilter{
		TeamIDs: []string{"t1"},
		Types:   []ActionType{ActionHint, ActionBroadcast},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a3" {
		t.Fatalf("unexpected actions %+v", got)
	}

	last, _ := store.ListActions(ctx, ActionFilter{Limit: 2})
	if len(last) != 2 || last[0].ID != "a3" || last[1].ID != "a4" {
		t.Fatalf("limit should keep the newest, oldest first: %+v", last)
	}
	if string(last[0].Data) != "{}" {
		t.Errorf("default action data = %s", last[0].Data)
	}
}

func TestDocStoreAdmins(t *testing.T) {
	ctx := context.Background()
	store := newDocStore(t)

	if err := store.EnsureAdmin(ctx, "admin@playperu.com", "hash-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := store.EnsureAdmin(ctx, "admin@playperu.com", "hash-2"); err != nil {
		t.Fatalf("ensure twice: %v", err)
	}
	id, hash, err := store.AdminByEmail(ctx, "admin@playperu.com")
	if err != nil || hash != "hash-1" {
		t.Fatalf("admin = %q %q %v", id, hash, err)
	}

	sid, err := store.CreateAdminSession(ctx, id)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	as, err := store.AdminFromSession(ctx, sid)
	if err != nil || as.Email != "admin@playperu.com" {
		t.Fatalf("from session = %+v %v", as, err)
	}
	store.DeleteAdminSession(ctx, sid)
	if _, err := store.AdminFromSession(ctx, sid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after logout, got %v", err)
	}
}

func TestDocStoreSettings(t *testing.T) {
	ctx := context.Background()
	store := newDocStore(t)

	if _, _, err := store.LoadSettings(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SaveSettings(ctx, 3, []byte(`{"siteName":"Escape"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, data, err := store.LoadSettings(ctx)
	if err != nil || v != 3 || string(data) != `{"siteName":"Escape"}` {
		t.Fatalf("load = %d %s %v", v, data, err)
	}
}

func TestFallbackStores(t *testing.T) {
	stores := map[string]FallbackStore{
		"sqlite": newLocalStore(t),
		"memory": NewMemoryStore(),
	}
	for name, fb := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := fb.Get(ctx, "team_x"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			fb.Put(ctx, "team_b", []byte(`"b"`))
			fb.Put(ctx, "team_a", []byte(`"a"`))
			fb.Put(ctx, "custom_content", []byte(`{}`))
			fb.Put(ctx, "team_a", []byte(`"a2"`))

			v, err := fb.Get(ctx, "team_a")
			if err != nil || string(v) != `"a2"` {
				t.Fatalf("get = %s %v", v, err)
			}
			vals, err := fb.Scan(ctx, "team_")
			if err != nil || len(vals) != 2 || string(vals[0]) != `"a2"` {
				t.Fatalf("scan = %q %v", vals, err)
			}
			fb.Delete(ctx, "team_a")
			vals, _ = fb.Scan(ctx, "team_")
			if len(vals) != 1 {
				t.Fatalf("after delete = %q", vals)
			}
		})
	}
}

// hangingPrimary never answers; every call returns once its context is done.
type hangingPrimary struct {
	PrimaryStore
}

func (hangingPrimary) PutSession(ctx context.Context, _ SessionRecord) (SessionRecord, error) {
	<-ctx.Done()
	return SessionRecord{}, ctx.Err()
}

func (hangingPrimary) GetSession(ctx context.Context, _ string) (SessionRecord, error) {
	<-ctx.Done()
	return SessionRecord{}, ctx.Err()
}

func (hangingPrimary) GetSessionByTeam(ctx context.Context, _ string) (SessionRecord, error) {
	<-ctx.Done()
	return SessionRecord{}, ctx.Err()
}

func (hangingPrimary) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingPrimary) AppendAction(ctx context.Context, _ AdminAction) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingPrimary) ListActions(ctx context.Context, _ ActionFilter) ([]AdminAction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConnectPrimary(t *testing.T) {
	ctx := context.Background()

	// A path below a regular file can never be opened.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		path      string
		wantStore bool
		wantCheck bool
	}{
		{"local-only", "", false, true},
		{"reachable", filepath.Join(t.TempDir(), "primary.db"), true, true},
		{"unreachable", filepath.Join(blocker, "primary.db"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ConnectPrimary(ctx, tt.path, "", slog.Default())
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			defer p.Close()

			if got := p.Store() != nil; got != tt.wantStore {
				t.Errorf("store present = %v, want %v", got, tt.wantStore)
			}
			if got := p.Check(ctx) == nil; got != tt.wantCheck {
				t.Errorf("healthy = %v, want %v", got, tt.wantCheck)
			}
			// Admin accounts work whether or not the primary is there.
			if err := p.Docs.EnsureAdmin(ctx, "admin@playperu.com", "hash"); err != nil {
				t.Fatalf("ensure admin: %v", err)
			}
			if _, _, err := p.Docs.AdminByEmail(ctx, "admin@playperu.com"); err != nil {
				t.Fatalf("admin lookup: %v", err)
			}
		})
	}
}
