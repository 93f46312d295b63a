package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/migrations"
)

// DocStore implements PrimaryStore on libSQL. Sessions keep their scalar
// fields in a JSONB data column and their stages in stage_progress.
type DocStore struct {
	db *sql.DB
}

func NewDocStore(ctx context.Context, db *sql.DB) (*DocStore, error) {
	if err := migrations.Run(db); err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging primary store: %w", err)
	}
	return &DocStore{db: db}, nil
}

// Check implements health.Checker.
func (s *DocStore) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DocStore) PutSession(ctx context.Context, rec SessionRecord) (SessionRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return SessionRecord{}, err
	}
	defer tx.Rollback()

	if rec.ID == "" {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE session_id = ?`, rec.SessionID,
		).Scan(&rec.ID)
		if errors.Is(err, sql.ErrNoRows) {
			rec.ID = uuid.NewString()
		} else if err != nil {
			return SessionRecord{}, err
		}
	}
	if rec.UpdatedAt == "" {
		rec.UpdatedAt = formatTime(time.Now())
	}

	doc := rec
	doc.Stages = nil
	data, err := json.Marshal(doc)
	if err != nil {
		return SessionRecord{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, session_id, status, updated_at, data) VALUES (?, ?, ?, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET session_id = excluded.session_id, status = excluded.status,
		   updated_at = excluded.updated_at, data = excluded.data`,
		rec.ID, rec.SessionID, string(rec.Status()), rec.UpdatedAt, string(data),
	)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("writing session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM stage_progress WHERE session_id = ?`, rec.SessionID,
	); err != nil {
		return SessionRecord{}, err
	}
	for _, st := range rec.Stages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stage_progress (session_id, stage_number, progress_percentage, is_completed, hints_used)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.SessionID, st.StageNumber, st.ProgressPercentage, boolInt(st.IsCompleted), st.HintsUsed,
		)
		if err != nil {
			return SessionRecord{}, fmt.Errorf("writing stage %d: %w", st.StageNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

func (s *DocStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	return s.getSession(ctx, `SELECT json(data) FROM sessions WHERE session_id = ?`, sessionID)
}

func (s *DocStore) GetSessionByTeam(ctx context.Context, teamID string) (SessionRecord, error) {
	return s.getSession(ctx, `SELECT json(data) FROM sessions WHERE id = ?`, teamID)
}

func (s *DocStore) getSession(ctx context.Context, query, arg string) (SessionRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return SessionRecord{}, err
	}

	stages, err := s.stages(ctx, rec.SessionID)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Stages = stages[rec.SessionID]
	return rec, nil
}

// stages loads stage rows grouped by session id. An empty sessionID loads
// every session's rows.
func (s *DocStore) stages(ctx context.Context, sessionID string) (map[string][]StageRecord, error) {
	query := `SELECT session_id, stage_number, progress_percentage, is_completed, hints_used
		FROM stage_progress`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY session_id, stage_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]StageRecord)
	for rows.Next() {
		var id string
		var st StageRecord
		if err := rows.Scan(&id, &st.StageNumber, &st.ProgressPercentage, &st.IsCompleted, &st.HintsUsed); err != nil {
			return nil, err
		}
		out[id] = append(out[id], st)
	}
	return out, rows.Err()
}

func (s *DocStore) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	// Materialize sessions before the stage query; SQLite can't have
	// concurrent cursors on one connection.
	rows, err := s.db.QueryContext(ctx,
		`SELECT json(data) FROM sessions ORDER BY updated_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	var recs []SessionRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return nil, err
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stages, err := s.stages(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Stages = stages[recs[i].SessionID]
	}
	return recs, nil
}

// Custom content

func (s *DocStore) ReplaceContent(ctx context.Context, theme escaperoom.Theme, stages map[int]escaperoom.Override) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM custom_content WHERE theme = ?`, string(theme),
	); err != nil {
		return err
	}
	numbers := make([]int, 0, len(stages))
	for n := range stages {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)
	for _, n := range numbers {
		o := stages[n]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO custom_content (theme, stage_number, title, description, backstory)
			 VALUES (?, ?, ?, ?, ?)`,
			string(theme), n, nullString(o.Title), nullString(o.Description), nullString(o.Backstory),
		)
		if err != nil {
			return fmt.Errorf("writing %s stage %d: %w", theme, n, err)
		}
	}
	return tx.Commit()
}

func (s *DocStore) LoadContent(ctx context.Context) (escaperoom.CustomContent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT theme, stage_number, title, description, backstory FROM custom_content`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(escaperoom.CustomContent)
	for rows.Next() {
		var (
			theme                         string
			stage                         int
			title, description, backstory sql.NullString
		)
		if err := rows.Scan(&theme, &stage, &title, &description, &backstory); err != nil {
			return nil, err
		}
		t := escaperoom.Theme(theme)
		if out[t] == nil {
			out[t] = make(map[int]escaperoom.Override)
		}
		out[t][stage] = escaperoom.Override{
			Title:       stringPtr(title),
			Description: stringPtr(description),
			Backstory:   stringPtr(backstory),
		}
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// Admin action log

func (s *DocStore) AppendAction(ctx context.Context, a AdminAction) error {
	data := "{}"
	if len(a.Data) > 0 {
		data = string(a.Data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_actions (id, team_id, action_type, action_data, message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.TeamID, string(a.Type), data, a.Message, formatTime(a.Timestamp),
	)
	return err
}

// ListActions returns matching actions oldest first. With a limit, only the
// most recent ones are returned.
func (s *DocStore) ListActions(ctx context.Context, f ActionFilter) ([]AdminAction, error) {
	var (
		where []string
		args  []any
	)
	if len(f.TeamIDs) > 0 {
		where = append(where, "team_id IN ("+placeholders(len(f.TeamIDs))+")")
		for _, id := range f.TeamIDs {
			args = append(args, id)
		}
	}
	if len(f.Types) > 0 {
		where = append(where, "action_type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	query := `SELECT id, team_id, action_type, action_data, message, timestamp FROM admin_actions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdminAction
	for rows.Next() {
		var a AdminAction
		var typ, data, ts string
		if err := rows.Scan(&a.ID, &a.TeamID, &typ, &data, &a.Message, &ts); err != nil {
			return nil, err
		}
		a.Type = ActionType(typ)
		a.Data = json.RawMessage(data)
		a.Timestamp = parseTime(ts)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
