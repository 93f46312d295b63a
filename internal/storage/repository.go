package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/playperu/escaperoom/internal/escaperoom"
)

// SyncStatus says where a write landed.
type SyncStatus string

const (
	// SyncSynced means the primary store accepted the write.
	SyncSynced SyncStatus = "synced"
	// SyncDegraded means the primary store failed and the write went to the
	// local fallback.
	SyncDegraded SyncStatus = "degraded"
	// SyncLocal means no primary store is configured.
	SyncLocal SyncStatus = "local"
	// SyncFailed means neither store accepted the write.
	SyncFailed SyncStatus = "failed"
)

var syncRank = map[SyncStatus]int{
	SyncSynced:   0,
	SyncLocal:    1,
	SyncDegraded: 2,
	SyncFailed:   3,
}

// Worse returns whichever of s and o is further from synced.
func (s SyncStatus) Worse(o SyncStatus) SyncStatus {
	if syncRank[o] > syncRank[s] {
		return o
	}
	return s
}

// Source says where a read was answered from.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourceDefault  Source = "default"
)

// Repository is the one persistence port the game uses. Writes go to the
// primary store first and to the fallback when that fails; reads prefer the
// newer of the two copies. Persistence errors are logged and reported as a
// status, never returned.
type Repository struct {
	primary  PrimaryStore
	fallback FallbackStore
	logger   *slog.Logger
	now      func() time.Time

	primaryTimeout time.Duration
	localTimeout   time.Duration
}

const (
	DefaultPrimaryTimeout = 2 * time.Second
	DefaultLocalTimeout   = 2 * time.Second
)

// NewRepository builds a repository. primary may be nil to run local-only.
func NewRepository(primary PrimaryStore, fallback FallbackStore, logger *slog.Logger, now func() time.Time) *Repository {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Repository{
		primary:        primary,
		fallback:       fallback,
		logger:         logger,
		now:            now,
		primaryTimeout: DefaultPrimaryTimeout,
		localTimeout:   DefaultLocalTimeout,
	}
}

// WithTimeouts bounds each primary call and each fallback call. Zero keeps
// the current value.
func (r *Repository) WithTimeouts(primary, local time.Duration) *Repository {
	if primary > 0 {
		r.primaryTimeout = primary
	}
	if local > 0 {
		r.localTimeout = local
	}
	return r
}

// remote bounds one call to the primary store. It inherits the caller's
// deadline when that is sooner.
func (r *Repository) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.primaryTimeout)
}

// local bounds one call to the fallback. It ignores the caller's deadline:
// a primary call that used it up must not take the fallback down with it.
func (r *Repository) local(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.localTimeout)
}

func (r *Repository) HasPrimary() bool { return r.primary != nil }

func (r *Repository) writeStatus() SyncStatus {
	if r.primary == nil {
		return SyncLocal
	}
	return SyncDegraded
}

// SaveSession bumps the record's revision and writes it. The returned record
// carries the team id if the primary store assigned one.
func (r *Repository) SaveSession(ctx context.Context, rec SessionRecord) (SessionRecord, SyncStatus) {
	rec.Revision++
	rec.UpdatedAt = formatTime(r.now())

	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		stored, err := r.primary.PutSession(rctx, rec)
		cancel()
		if err == nil {
			return stored, SyncSynced
		}
		r.logger.Warn("primary store write failed, using local fallback",
			"op", "put_session", "session_id", rec.SessionID, "error", err)
	}

	if err := r.putLocalSession(ctx, rec); err != nil {
		r.logger.Error("session write lost",
			"session_id", rec.SessionID, "error", err)
		return rec, SyncFailed
	}
	return rec, r.writeStatus()
}

func (r *Repository) putLocalSession(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := r.local(ctx)
	defer cancel()
	return r.fallback.Put(ctx, sessionKey(rec.SessionID), data)
}

func (r *Repository) localSession(ctx context.Context, sessionID string) (SessionRecord, bool) {
	ctx, cancel := r.local(ctx)
	defer cancel()
	data, err := r.fallback.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("local store read failed", "op", "get_session", "session_id", sessionID, "error", err)
		}
		return SessionRecord{}, false
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Warn("corrupt local session record", "session_id", sessionID, "error", err)
		return SessionRecord{}, false
	}
	return rec, true
}

// LoadSession reads a session, always returning something playable. When
// neither store has it a demo session is synthesized under the same id.
func (r *Repository) LoadSession(ctx context.Context, sessionID string) (SessionRecord, Source) {
	var (
		remote          SessionRecord
		haveRemote      bool
		remoteReachable bool
	)
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		rec, err := r.primary.GetSession(rctx, sessionID)
		cancel()
		switch {
		case err == nil:
			remote, haveRemote, remoteReachable = rec, true, true
		case errors.Is(err, ErrNotFound):
			remoteReachable = true
		default:
			r.logger.Warn("primary store read failed, using local fallback",
				"op", "get_session", "session_id", sessionID, "error", err)
		}
	}

	local, haveLocal := r.localSession(ctx, sessionID)

	switch {
	case haveRemote && (!haveLocal || remote.Revision >= local.Revision):
		return remote, SourcePrimary
	case haveLocal:
		if remoteReachable {
			local = r.heal(ctx, local)
		}
		return local, SourceFallback
	}

	demo := FromSession(escaperoom.DemoSession(sessionID, r.now()))
	return demo, SourceDefault
}

// heal pushes a record that only reached the fallback to the primary store.
func (r *Repository) heal(ctx context.Context, rec SessionRecord) SessionRecord {
	ctx, cancel := r.remote(ctx)
	defer cancel()
	stored, err := r.primary.PutSession(ctx, rec)
	if err != nil {
		r.logger.Warn("could not copy local session to primary store",
			"session_id", rec.SessionID, "error", err)
		return rec
	}
	r.logger.Info("copied local session to primary store", "session_id", rec.SessionID, "team_id", stored.ID)
	return stored
}

// LoadByTeam finds a session by the key admin actions use for it. Unknown
// teams are an error; admins should not act on invented sessions.
func (r *Repository) LoadByTeam(ctx context.Context, teamID string) (SessionRecord, Source, error) {
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		rec, err := r.primary.GetSessionByTeam(rctx, teamID)
		cancel()
		if err == nil {
			if local, ok := r.localSession(ctx, rec.SessionID); ok && local.Revision > rec.Revision {
				return local, SourceFallback, nil
			}
			return rec, SourcePrimary, nil
		}
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("primary store read failed, using local fallback",
				"op", "get_session_by_team", "team_id", teamID, "error", err)
		}
	}

	for _, rec := range r.localSessions(ctx) {
		if rec.ID == teamID || rec.SessionID == teamID {
			return rec, SourceFallback, nil
		}
	}
	return SessionRecord{}, "", ErrNotFound
}

func (r *Repository) localSessions(ctx context.Context) []SessionRecord {
	ctx, cancel := r.local(ctx)
	defer cancel()
	values, err := r.fallback.Scan(ctx, sessionKeyPrefix)
	if err != nil {
		r.logger.Warn("local store scan failed", "op", "list_sessions", "error", err)
		return nil
	}
	out := make([]SessionRecord, 0, len(values))
	for _, v := range values {
		var rec SessionRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ListSessions merges both stores, keeping the newest copy of each session.
func (r *Repository) ListSessions(ctx context.Context) ([]SessionRecord, Source) {
	source := SourceFallback
	merged := make(map[string]SessionRecord)
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		recs, err := r.primary.ListSessions(rctx)
		cancel()
		if err == nil {
			source = SourcePrimary
			for _, rec := range recs {
				merged[rec.SessionID] = rec
			}
		} else {
			r.logger.Warn("primary store list failed, using local fallback", "op", "list_sessions", "error", err)
		}
	}
	for _, rec := range r.localSessions(ctx) {
		if cur, ok := merged[rec.SessionID]; !ok || rec.Revision > cur.Revision {
			merged[rec.SessionID] = rec
		}
	}

	out := make([]SessionRecord, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b SessionRecord) int {
		if c := cmp.Compare(b.UpdatedAt, a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
	return out, source
}

// Custom content

// SaveContent replaces every override of theme.
func (r *Repository) SaveContent(ctx context.Context, theme escaperoom.Theme, stages map[int]escaperoom.Override) SyncStatus {
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		err := r.primary.ReplaceContent(rctx, theme, stages)
		cancel()
		if err == nil {
			return SyncSynced
		}
		r.logger.Warn("primary store write failed, using local fallback",
			"op", "replace_content", "theme", theme, "error", err)
	}

	all, _ := r.localContent(ctx)
	if all == nil {
		all = make(escaperoom.CustomContent)
	}
	if len(stages) == 0 {
		delete(all, theme)
	} else {
		all[theme] = stages
	}
	data, err := json.Marshal(all)
	if err == nil {
		lctx, cancel := r.local(ctx)
		err = r.fallback.Put(lctx, contentKey, data)
		cancel()
	}
	if err != nil {
		r.logger.Error("content write lost", "theme", theme, "error", err)
		return SyncFailed
	}
	return r.writeStatus()
}

func (r *Repository) localContent(ctx context.Context) (escaperoom.CustomContent, bool) {
	ctx, cancel := r.local(ctx)
	defer cancel()
	data, err := r.fallback.Get(ctx, contentKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("local store read failed", "op", "get_content", "error", err)
		}
		return nil, false
	}
	var c escaperoom.CustomContent
	if err := json.Unmarshal(data, &c); err != nil {
		r.logger.Warn("corrupt local content", "error", err)
		return nil, false
	}
	return c, true
}

// LoadContent returns the override table, empty when nothing is stored.
func (r *Repository) LoadContent(ctx context.Context) (escaperoom.CustomContent, Source) {
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		c, err := r.primary.LoadContent(rctx)
		cancel()
		if err == nil {
			return c, SourcePrimary
		}
		r.logger.Warn("primary store read failed, using local fallback", "op", "load_content", "error", err)
	}
	if c, ok := r.localContent(ctx); ok {
		return c, SourceFallback
	}
	return escaperoom.CustomContent{}, SourceDefault
}

// Admin action log

func (r *Repository) AppendAction(ctx context.Context, a AdminAction) SyncStatus {
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		err := r.primary.AppendAction(rctx, a)
		cancel()
		if err == nil {
			return SyncSynced
		}
		r.logger.Warn("primary store write failed, using local fallback",
			"op", "append_action", "team_id", a.TeamID, "error", err)
	}
	data, err := json.Marshal(a)
	if err == nil {
		lctx, cancel := r.local(ctx)
		err = r.fallback.Put(lctx, actionKeyPrefix+a.ID, data)
		cancel()
	}
	if err != nil {
		r.logger.Error("admin action lost", "team_id", a.TeamID, "type", a.Type, "error", err)
		return SyncFailed
	}
	return r.writeStatus()
}

// ListActions merges the primary log with actions that only reached the
// fallback, oldest first.
func (r *Repository) ListActions(ctx context.Context, f ActionFilter) ([]AdminAction, Source) {
	source := SourceFallback
	seen := make(map[string]bool)
	var out []AdminAction
	if r.primary != nil {
		rctx, cancel := r.remote(ctx)
		actions, err := r.primary.ListActions(rctx, f)
		cancel()
		if err == nil {
			source = SourcePrimary
			for _, a := range actions {
				seen[a.ID] = true
				out = append(out, a)
			}
		} else {
			r.logger.Warn("primary store read failed, using local fallback", "op", "list_actions", "error", err)
		}
	}

	lctx, cancel := r.local(ctx)
	values, err := r.fallback.Scan(lctx, actionKeyPrefix)
	cancel()
	if err != nil {
		r.logger.Warn("local store scan failed", "op", "list_actions", "error", err)
	}
	for _, v := range values {
		var a AdminAction
		if err := json.Unmarshal(v, &a); err != nil || seen[a.ID] || !f.match(a) {
			continue
		}
		out = append(out, a)
	}

	slices.SortStableFunc(out, func(a, b AdminAction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, source
}
