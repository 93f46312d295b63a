package server

import (
	"context"

	"github.com/playperu/escaperoom/internal/storage"
)

const adminCookieName = "admin_session"

// AdminStore holds admin accounts and their cookie sessions.
type AdminStore interface {
	AdminByEmail(ctx context.Context, email string) (id, passwordHash string, err error)
	CreateAdminSession(ctx context.Context, adminID string) (string, error)
	DeleteAdminSession(ctx context.Context, sessionID string) error
	AdminFromSession(ctx context.Context, sessionID string) (storage.AdminSession, error)
}
