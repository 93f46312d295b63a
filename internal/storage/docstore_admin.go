package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

type adminDoc struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

type adminSessionDoc struct {
	ID      string `json:"id"`
	AdminID string `json:"adminId"`
	Email   string `json:"email"`
}

type AdminSession struct {
	ID      string
	AdminID string
	Email   string
}

// EnsureAdmin creates the admin account unless the email already exists.
func (s *DocStore) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	a := adminDoc{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO admins (id, email, data) VALUES (?, ?, jsonb(?))
		 ON CONFLICT(email) DO NOTHING`,
		a.ID, a.Email, string(data),
	)
	return err
}

func (s *DocStore) AdminByEmail(ctx context.Context, email string) (string, string, error) {
	a, err := s.admin(ctx, `SELECT json(data) FROM admins WHERE email = ?`, email)
	if err != nil {
		return "", "", err
	}
	return a.ID, a.PasswordHash, nil
}

func (s *DocStore) admin(ctx context.Context, query, arg string) (adminDoc, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return adminDoc{}, ErrNotFound
	}
	if err != nil {
		return adminDoc{}, err
	}
	var a adminDoc
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return adminDoc{}, err
	}
	return a, nil
}

func (s *DocStore) CreateAdminSession(ctx context.Context, adminID string) (string, error) {
	a, err := s.admin(ctx, `SELECT json(data) FROM admins WHERE id = ?`, adminID)
	if err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	data, err := json.Marshal(adminSessionDoc{ID: sessionID, AdminID: a.ID, Email: a.Email})
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO admin_sessions (id, data) VALUES (?, jsonb(?))`,
		sessionID, string(data),
	)
	return sessionID, err
}

func (s *DocStore) DeleteAdminSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE id = ?`, sessionID,
	)
	return err
}

func (s *DocStore) AdminFromSession(ctx context.Context, sessionID string) (AdminSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM admin_sessions WHERE id = ?`, sessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return AdminSession{}, ErrNotFound
	}
	if err != nil {
		return AdminSession{}, err
	}
	var d adminSessionDoc
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return AdminSession{}, err
	}
	return AdminSession{ID: d.ID, AdminID: d.AdminID, Email: d.Email}, nil
}

// Site settings

// LoadSettings returns the stored settings document and its version.
func (s *DocStore) LoadSettings(ctx context.Context) (int64, []byte, error) {
	var (
		version int64
		data    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, json(data) FROM site_settings WHERE id = 1`,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return version, []byte(data), nil
}

func (s *DocStore) SaveSettings(ctx context.Context, version int64, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_settings (id, version, data) VALUES (1, ?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, data = excluded.data`,
		version, string(data),
	)
	return err
}
