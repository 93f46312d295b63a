// Package admin is the out-of-band control surface over persisted sessions.
// It never holds a session of its own: every change is a read-modify-write
// of the stored record that the team's controller adopts on its next sync.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/storage"
)

var (
	ErrSessionFinished = errors.New("session is no longer active")
	ErrTeamNotFound    = errors.New("team not found")
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrInvalidMinutes  = errors.New("minutes must be positive")
)

// MaxMessageLength bounds hint and broadcast text.
const MaxMessageLength = 500

type Service struct {
	repo    *storage.Repository
	content *game.ContentService
	pub     game.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the admin service. pub may be nil when no player is
// listening in this process (the CLI).
func NewService(repo *storage.Repository, content *game.ContentService, pub game.Publisher, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, content: content, pub: pub, logger: logger, now: now}
}

// Change is the outcome of a mutation of a team's session.
type Change struct {
	Team    storage.SessionRecord
	Sync    storage.SyncStatus
	Changed bool
	// HintsGranted is set when moving easier raised the hint budget.
	HintsGranted int
}

func cleanMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if len(text) > MaxMessageLength {
		return "", fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, MaxMessageLength)
	}
	return text, nil
}

func (s *Service) team(ctx context.Context, teamID string) (storage.SessionRecord, error) {
	rec, _, err := s.repo.LoadByTeam(ctx, teamID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.SessionRecord{}, ErrTeamNotFound
	}
	return rec, err
}

// SendHint leaves an advisory message for a team. The hint budget is not
// touched; only the player spends hints.
func (s *Service) SendHint(ctx context.Context, teamID, text string) (storage.SyncStatus, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return "", err
	}
	rec, err := s.team(ctx, teamID)
	if err != nil {
		return "", err
	}
	st := s.record(ctx, rec.Key(), storage.ActionHint, text, nil)
	s.publish(rec.SessionID, game.Event{Type: game.EventMessage, Message: text})
	s.logger.Info("hint sent", "team_id", rec.Key(), "sync", st)
	return st, nil
}

// AdjustDifficulty moves a team one difficulty step. Moving easier grants the
// difference in hint budget; past either end nothing changes.
func (s *Service) AdjustDifficulty(ctx context.Context, teamID string, dir escaperoom.Direction) (Change, error) {
	var granted int
	var from escaperoom.Difficulty
	ch, err := s.mutate(ctx, teamID, func(sess *escaperoom.Session) bool {
		from = sess.Difficulty
		var changed bool
		granted, changed = sess.AdjustDifficulty(dir)
		return changed
	})
	if err != nil || !ch.Changed {
		return ch, err
	}
	ch.HintsGranted = granted

	data := map[string]any{
		"direction":     dir,
		"from":          from,
		"to":            ch.Team.Difficulty,
		"hints_granted": granted,
	}
	msg := fmt.Sprintf("difficulty changed from %s to %s", from, ch.Team.Difficulty)
	ch.Sync = ch.Sync.Worse(s.record(ctx, ch.Team.Key(), storage.ActionDifficulty, msg, data))
	s.logger.Info("difficulty adjusted", "team_id", ch.Team.Key(), "from", from, "to", ch.Team.Difficulty, "sync", ch.Sync)
	return ch, nil
}

// ExtendTime adds minutes to a team's countdown. There is no upper bound.
func (s *Service) ExtendTime(ctx context.Context, teamID string, minutes int) (Change, error) {
	if minutes <= 0 {
		return Change{}, ErrInvalidMinutes
	}
	ch, err := s.mutate(ctx, teamID, func(sess *escaperoom.Session) bool {
		return sess.ExtendTime(minutes * 60)
	})
	if err != nil || !ch.Changed {
		return ch, err
	}

	data := map[string]any{"minutes": minutes, "time_remaining": ch.Team.TimeRemaining}
	msg := fmt.Sprintf("%d minutes added", minutes)
	ch.Sync = ch.Sync.Worse(s.record(ctx, ch.Team.Key(), storage.ActionTime, msg, data))
	s.logger.Info("time extended", "team_id", ch.Team.Key(), "minutes", minutes, "sync", ch.Sync)
	return ch, nil
}

// mutate loads the team's stored session, applies fn and writes it back on
// top of the revision it read.
func (s *Service) mutate(ctx context.Context, teamID string, fn func(*escaperoom.Session) bool) (Change, error) {
	rec, err := s.team(ctx, teamID)
	if err != nil {
		return Change{}, err
	}
	if rec.Status() != escaperoom.StatusActive {
		return Change{Team: rec}, ErrSessionFinished
	}

	sess := rec.Session()
	if !fn(sess) {
		return Change{Team: rec}, nil
	}
	next := storage.FromSession(sess)
	next.Revision = rec.Revision
	saved, st := s.repo.SaveSession(ctx, next)
	return Change{Team: saved, Sync: st, Changed: true}, nil
}

// BroadcastMessage sends text to every team that has not finished. It returns
// how many teams it reached.
func (s *Service) BroadcastMessage(ctx context.Context, text string) (int, storage.SyncStatus, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return 0, "", err
	}
	recs, _ := s.repo.ListSessions(ctx)

	st := storage.SyncSynced
	if !s.repo.HasPrimary() {
		st = storage.SyncLocal
	}
	var n int
	for _, rec := range recs {
		if rec.IsCompleted || rec.IsEnded {
			continue
		}
		st = st.Worse(s.record(ctx, rec.Key(), storage.ActionBroadcast, text, nil))
		s.publish(rec.SessionID, game.Event{Type: game.EventMessage, Message: text})
		n++
	}
	s.logger.Info("broadcast sent", "teams", n, "sync", st)
	return n, st, nil
}

// Sessions lists stored sessions, newest first. With activeOnly, finished
// sessions are left out.
func (s *Service) Sessions(ctx context.Context, activeOnly bool) ([]storage.SessionRecord, storage.Source) {
	recs, src := s.repo.ListSessions(ctx)
	if !activeOnly {
		return recs, src
	}
	out := recs[:0]
	for _, rec := range recs {
		if rec.Status() == escaperoom.StatusActive {
			out = append(out, rec)
		}
	}
	return out, src
}

// Messages returns the hints and broadcasts addressed to a session, oldest
// first.
func (s *Service) Messages(ctx context.Context, rec storage.SessionRecord) []storage.AdminAction {
	ids := []string{rec.SessionID}
	if rec.ID != "" && rec.ID != rec.SessionID {
		ids = append(ids, rec.ID)
	}
	actions, _ := s.repo.ListActions(ctx, storage.ActionFilter{
		TeamIDs: ids,
		Types:   []storage.ActionType{storage.ActionHint, storage.ActionBroadcast},
	})
	return actions
}

// Actions reads the audit log.
func (s *Service) Actions(ctx context.Context, f storage.ActionFilter) []storage.AdminAction {
	actions, _ := s.repo.ListActions(ctx, f)
	return actions
}

// SaveContent replaces the overrides of one theme.
func (s *Service) SaveContent(ctx context.Context, theme escaperoom.Theme, stages map[int]escaperoom.Override) (storage.SyncStatus, error) {
	st, err := s.content.Save(ctx, theme, stages)
	if err != nil {
		return "", err
	}
	data := map[string]any{"theme": theme, "stages": len(stages)}
	st = st.Worse(s.record(ctx, "", storage.ActionContentSave, "content saved for "+string(theme), data))
	return st, nil
}

// ResetContent drops every override of one theme.
func (s *Service) ResetContent(ctx context.Context, theme escaperoom.Theme) (storage.SyncStatus, error) {
	st, err := s.content.Reset(ctx, theme)
	if err != nil {
		return "", err
	}
	data := map[string]any{"theme": theme}
	st = st.Worse(s.record(ctx, "", storage.ActionContentReset, "content reset for "+string(theme), data))
	return st, nil
}

// ImportContent replaces the overrides of every theme present in data.
// Malformed input is rejected before anything changes.
func (s *Service) ImportContent(ctx context.Context, data []byte) (storage.SyncStatus, error) {
	st, err := s.content.Import(ctx, data)
	if err != nil {
		return "", err
	}
	st = st.Worse(s.record(ctx, "", storage.ActionContentSave, "content imported", map[string]any{"bytes": len(data)}))
	return st, nil
}

func (s *Service) ExportContent() ([]byte, error) { return s.content.Export() }

func (s *Service) Content() *game.ContentService { return s.content }

func (s *Service) record(ctx context.Context, teamID string, typ storage.ActionType, msg string, data map[string]any) storage.SyncStatus {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return storage.SyncFailed
		}
		raw = b
	}
	return s.repo.AppendAction(ctx, storage.AdminAction{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Type:      typ,
		Data:      raw,
		Message:   msg,
		Timestamp: s.now().UTC(),
	})
}

func (s *Service) publish(sessionID string, ev game.Event) {
	if s.pub == nil {
		return
	}
	ev.SessionID = sessionID
	s.pub.Publish(sessionID, ev)
}
