// Package storage persists sessions, custom content and the admin action log
// to a primary libSQL store with a node-local fallback.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/playperu/escaperoom/internal/escaperoom"
)

var ErrNotFound = errors.New("not found")

const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// PrimaryStore is the remote structured store.
type PrimaryStore interface {
	// PutSession upserts rec and its stage rows, assigning a team id when
	// rec has none. It returns the record as stored.
	PutSession(ctx context.Context, rec SessionRecord) (SessionRecord, error)
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	GetSessionByTeam(ctx context.Context, teamID string) (SessionRecord, error)
	ListSessions(ctx context.Context) ([]SessionRecord, error)

	// ReplaceContent deletes every override of theme, then inserts stages.
	ReplaceContent(ctx context.Context, theme escaperoom.Theme, stages map[int]escaperoom.Override) error
	LoadContent(ctx context.Context) (escaperoom.CustomContent, error)

	AppendAction(ctx context.Context, a AdminAction) error
	ListActions(ctx context.Context, filter ActionFilter) ([]AdminAction, error)
}

// FallbackStore is a local key-value store. Values are JSON documents.
type FallbackStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan returns every value whose key starts with prefix, ordered by key.
	Scan(ctx context.Context, prefix string) ([][]byte, error)
}

const (
	sessionKeyPrefix = "team_"
	contentKey       = "custom_content"
	actionKeyPrefix  = "admin_action_"
)

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	TeamName        string        `json:"team_name"`
	Theme           string        `json:"theme"`
	Difficulty      string        `json:"difficulty"`
	CurrentStage    int           `json:"current_stage"`
	TotalStages     int           `json:"total_stages"`
	TimeRemaining   int           `json:"time_remaining"`
	HintsUsed       int           `json:"hints_used"`
	HintsAvailable  int           `json:"hints_available"`
	HintBudget      int           `json:"hint_budget"`
	IsActive        bool          `json:"is_active"`
	IsCompleted     bool          `json:"is_completed"`
	IsEnded         bool          `json:"is_ended"`
	StartTime       string        `json:"start_time"`
	CompletionTime  *string       `json:"completion_time"`
	EndTime         *string       `json:"end_time"`
	AnswersRevealed []int         `json:"answers_revealed"`
	Stages          []StageRecord `json:"stages,omitempty"`
	Revision        int64         `json:"revision"`
	UpdatedAt       string        `json:"updated_at"`
}

type StageRecord struct {
	StageNumber        int  `json:"stage_number"`
	ProgressPercentage int  `json:"progress_percentage"`
	IsCompleted        bool `json:"is_completed"`
	HintsUsed          int  `json:"hints_used"`
}

// Key is how admin actions address the team: the team id once the primary
// store has assigned one, the session id before that.
func (r SessionRecord) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.SessionID
}

func (r SessionRecord) Status() escaperoom.Status {
	switch {
	case r.IsEnded:
		return escaperoom.StatusEnded
	case r.IsCompleted:
		return escaperoom.StatusCompleted
	case r.IsActive:
		return escaperoom.StatusActive
	}
	return escaperoom.StatusUninitialized
}

func FromSession(s *escaperoom.Session) SessionRecord {
	rec := SessionRecord{
		ID:              s.TeamID,
		SessionID:       s.ID,
		TeamName:        s.TeamName,
		Theme:           string(s.Theme),
		Difficulty:      string(s.Difficulty),
		CurrentStage:    s.CurrentStage,
		TotalStages:     s.TotalStages,
		TimeRemaining:   s.TimeRemaining,
		HintsUsed:       s.HintsUsed,
		HintsAvailable:  s.HintsAvailable,
		HintBudget:      s.HintBudget,
		IsActive:        s.IsActive(),
		IsCompleted:     s.IsCompleted(),
		IsEnded:         s.IsEnded(),
		StartTime:       formatTime(s.StartTime),
		AnswersRevealed: s.RevealedStages(),
	}
	if s.CompletionTime != nil {
		t := formatTime(*s.CompletionTime)
		rec.CompletionTime = &t
	}
	if s.EndTime != nil {
		t := formatTime(*s.EndTime)
		rec.EndTime = &t
	}
	for stage := 1; stage <= s.TotalStages; stage++ {
		pct, hints := s.Progress[stage], s.StageHints[stage]
		if pct == 0 && hints == 0 {
			continue
		}
		rec.Stages = append(rec.Stages, StageRecord{
			StageNumber:        stage,
			ProgressPercentage: pct,
			IsCompleted:        pct == 100,
			HintsUsed:          hints,
		})
	}
	return rec
}

// Session rebuilds the domain session, repairing inconsistent fields.
func (r SessionRecord) Session() *escaperoom.Session {
	s := escaperoom.Session{
		ID:             r.SessionID,
		TeamID:         r.ID,
		Theme:          escaperoom.Theme(r.Theme),
		TeamName:       r.TeamName,
		Difficulty:     escaperoom.Difficulty(r.Difficulty),
		CurrentStage:   r.CurrentStage,
		TotalStages:    r.TotalStages,
		TimeRemaining:  r.TimeRemaining,
		HintsUsed:      r.HintsUsed,
		HintsAvailable: r.HintsAvailable,
		Progress:       make(map[int]int, len(r.Stages)),
		StageHints:     make(map[int]int, len(r.Stages)),
		Status:         r.Status(),
		StartTime:      parseTime(r.StartTime),
	}
	for _, st := range r.Stages {
		pct := st.ProgressPercentage
		if st.IsCompleted {
			pct = 100
		}
		s.Progress[st.StageNumber] = pct
		s.StageHints[st.StageNumber] = st.HintsUsed
	}
	if r.CompletionTime != nil {
		t := parseTime(*r.CompletionTime)
		s.CompletionTime = &t
	}
	if r.EndTime != nil {
		t := parseTime(*r.EndTime)
		s.EndTime = &t
	}
	out := escaperoom.Restore(s)
	for _, stage := range r.AnswersRevealed {
		if out.IsSolved(stage) {
			out.AnswersRevealed.Put(stage)
		}
	}
	return out
}

type ActionType string

const (
	ActionHint         ActionType = "hint"
	ActionBroadcast    ActionType = "broadcast"
	ActionDifficulty   ActionType = "difficulty"
	ActionTime         ActionType = "time"
	ActionContentSave  ActionType = "content_save"
	ActionContentReset ActionType = "content_reset"
)

// IsAdvisory reports whether the action carries a message for the team.
func (t ActionType) IsAdvisory() bool {
	return t == ActionHint || t == ActionBroadcast
}

// AdminAction is an append-only audit entry. It is never read back into
// session state.
type AdminAction struct {
	ID        string          `json:"id"`
	TeamID    string          `json:"team_id"`
	Type      ActionType      `json:"action_type"`
	Data      json.RawMessage `json:"action_data,omitempty"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

type ActionFilter struct {
	// TeamIDs restricts the result to these teams; empty means all.
	TeamIDs []string
	// Types restricts the result to these action types; empty means all.
	Types []ActionType
	Limit int
}

func (f ActionFilter) match(a AdminAction) bool {
	if len(f.TeamIDs) > 0 && !slices.Contains(f.TeamIDs, a.TeamID) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, a.Type) {
		return false
	}
	return true
}
