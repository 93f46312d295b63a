package admin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/escaperoom/internal/database"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/storage"
)

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events map[string][]game.Event
}

func (r *recorder) Publish(sessionID string, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][]game.Event)
	}
	r.events[sessionID] = append(r.events[sessionID], ev)
}

func (r *recorder) count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[sessionID])
}

func newService(t *testing.T) (*Service, *storage.Repository, *recorder) {
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
	clock := func() time.Time { return now }
	repo := storage.NewRepository(docs, storage.NewMemoryStore(), slog.Default(), clock)
	content := game.NewContentService(ctx, repo, slog.Default())
	pub := &recorder{}
	return NewService(repo, content, pub, slog.Default(), clock), repo, pub
}

func seedTeam(t *testing.T, repo *storage.Repository, name string, d escaperoom.Difficulty) storage.SessionRecord {
	t.Helper()
	s, err := escaperoom.NewSession(uuid.NewString(), escaperoom.Config{
		Theme:      "space-station",
		Difficulty: d,
		TeamName:   name,
	}, now)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	rec, st := repo.SaveSession(context.Background(), storage.FromSession(s))
	if st != storage.SyncSynced || rec.ID == "" {
		t.Fatalf("seed %q: %q", name, st)
	}
	return rec
}

func TestSendHintLeavesBudget(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()
	team := seedTeam(t, repo, "Los Incas", escaperoom.DifficultyMedium)

	st, err := svc.SendHint(ctx, team.ID, "  Check the logbook dates. ")
	if err != nil || st != storage.SyncSynced {
		t.Fatalf("send hint: %q %v", st, err)
	}

	rec, _ := repo.LoadSession(ctx, team.SessionID)
	if rec.HintsAvailable != 3 || rec.HintBudget != 3 || rec.Revision != team.Revision {
		t.Errorf("session changed: %+v", rec)
	}
	msgs := svc.Messages(ctx, rec)
	if len(msgs) != 1 || msgs[0].Message != "Check the logbook dates." || msgs[0].Type != storage.ActionHint {
		t.Fatalf("messages = %+v", msgs)
	}
	if pub.count(team.SessionID) != 1 {
		t.Error("hint not pushed")
	}

	if _, err := svc.SendHint(ctx, team.ID, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank hint err = %v", err)
	}
	if _, err := svc.SendHint(ctx, "nope", "hello"); !errors.Is(err, ErrTeamNotFound) {
		t.Errorf("unknown team err = %v", err)
	}
}

func TestAdjustDifficulty(t *testing.T) {
	tests := []struct {
		name      string
		start     escaperoom.Difficulty
		dir       escaperoom.Direction
		want      escaperoom.Difficulty
		changed   bool
		wantHints int
	}{
		{"medium to easy grants", escaperoom.DifficultyMedium, escaperoom.DirectionEasier, escaperoom.DifficultyEasy, true, 5},
		{"hard to easier grants", escaperoom.DifficultyHard, escaperoom.DirectionEasier, escaperoom.DifficultyMedium, true, 3},
		{"medium to hard grants none", escaperoom.DifficultyMedium, escaperoom.DirectionHarder, escaperoom.DifficultyHard, true, 3},
		{"easy stays easy", escaperoom.DifficultyEasy, escaperoom.DirectionEasier, escaperoom.DifficultyEasy, false, 5},
		{"hard stays hard", escaperoom.DifficultyHard, escaperoom.DirectionHarder, escaperoom.DifficultyHard, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newService(t)
			ctx := context.Background()
			team := seedTeam(t, repo, "Team", tt.start)

			ch, err := svc.AdjustDifficulty(ctx, team.ID, tt.dir)
			if err != nil {
				t.Fatalf("adjust: %v", err)
			}
			if ch.Changed != tt.changed {
				t.Fatalf("changed = %v", ch.Changed)
			}
			rec, _ := repo.LoadSession(ctx, team.SessionID)
			if rec.Difficulty != string(tt.want) || rec.HintsAvailable != tt.wantHints {
				t.Errorf("got %s with %d hints", rec.Difficulty, rec.HintsAvailable)
			}
			if rec.HintsUsed+rec.HintsAvailable != rec.HintBudget {
				t.Errorf("budget broken: %+v", rec)
			}

			logged := svc.Actions(ctx, storage.ActionFilter{Types: []storage.ActionType{storage.ActionDifficulty}})
			if want := map[bool]int{true: 1, false: 0}[tt.changed]; len(logged) != want {
				t.Errorf("logged %d difficulty actions", len(logged))
			}
		})
	}
}

func TestExtendTime(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	team := seedTeam(t, repo, "Los Incas", escaperoom.DifficultyMedium)

	ch, err := svc.ExtendTime(ctx, team.ID, 10)
	if err != nil || !ch.Changed {
		t.Fatalf("extend: %+v %v", ch, err)
	}
	if ch.Team.TimeRemaining != 3600+600 || ch.Team.Revision != team.Revision+1 {
		t.Errorf("team = %+v", ch.Team)
	}

	if _, err := svc.ExtendTime(ctx, team.ID, 0); !errors.Is(err, ErrInvalidMinutes) {
		t.Errorf("zero minutes err = %v", err)
	}

	s := ch.Team.Session()
	s.End(now)
	ended := storage.FromSession(s)
	ended.Revision = ch.Team.Revision
	repo.SaveSession(ctx, ended)

	if _, err := svc.ExtendTime(ctx, team.ID, 5); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("ended session err = %v", err)
	}
	if _, err := svc.AdjustDifficulty(ctx, team.ID, escaperoom.DirectionEasier); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("ended session err = %v", err)
	}
}

func TestBroadcastSkipsFinishedTeams(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()
	a := seedTeam(t, repo, "Alpha", escaperoom.DifficultyEasy)
	b := seedTeam(t, repo, "Bravo", escaperoom.DifficultyMedium)
	done := seedTeam(t, repo, "Charlie", escaperoom.DifficultyHard)

	s := done.Session()
	for stage := 1; stage <= escaperoom.TotalStages; stage++ {
		s.RevealAnswer(stage, now)
		s.AdvanceFrom(stage)
	}
	if !s.IsCompleted() {
		t.Fatal("setup: session not completed")
	}
	finished := storage.FromSession(s)
	finished.Revision = done.Revision
	repo.SaveSession(ctx, finished)

	n, st, err := svc.BroadcastMessage(ctx, "Ten minutes until the doors open.")
	if err != nil || n != 2 || st != storage.SyncSynced {
		t.Fatalf("broadcast: %d %q %v", n, st, err)
	}
	for _, team := range []storage.SessionRecord{a, b} {
		if msgs := svc.Messages(ctx, team); len(msgs) != 1 || msgs[0].Type != storage.ActionBroadcast {
			t.Errorf("%s messages = %+v", team.TeamName, msgs)
		}
		if pub.count(team.SessionID) != 1 {
			t.Errorf("%s not pushed", team.TeamName)
		}
	}
	if msgs := svc.Messages(ctx, done); len(msgs) != 0 {
		t.Errorf("finished team got %+v", msgs)
	}

	active, _ := svc.Sessions(ctx, true)
	all, _ := svc.Sessions(ctx, false)
	if len(active) != 2 || len(all) != 3 {
		t.Errorf("sessions: %d active, %d total", len(active), len(all))
	}
}

func TestContentEditsAreAudited(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	title := "Docking Ring"

	if _, err := svc.SaveContent(ctx, "space-station", map[int]escaperoom.Override{2: {Title: &title}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if p := svc.Content().Resolve("space-station", 2); p.Title != title {
		t.Fatalf("title = %q", p.Title)
	}
	if _, err := svc.SaveContent(ctx, "space-station", map[int]escaperoom.Override{7: {Title: &title}}); !errors.Is(err, escaperoom.ErrInvalidContent) {
		t.Fatalf("bad stage err = %v", err)
	}
	if _, err := svc.ResetContent(ctx, "space-station"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	logged := svc.Actions(ctx, storage.ActionFilter{})
	if len(logged) != 2 {
		t.Fatalf("logged %d actions", len(logged))
	}
	if logged[0].Type != storage.ActionContentSave || logged[1].Type != storage.ActionContentReset {
		t.Errorf("types = %s, %s", logged[0].Type, logged[1].Type)
	}
}
