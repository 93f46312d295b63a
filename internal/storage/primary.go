package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/playperu/escaperoom/internal/database"
)

// Primary is the connection to the primary document store. When the
// configured store cannot be reached at startup, Docs is an in-memory
// stand-in that keeps admin accounts and settings working while sessions run
// on the local fallback.
type Primary struct {
	Docs *DocStore

	db         *sql.DB
	configured bool
	err        error
}

// ConnectPrimary opens the store at path. An empty path opens the in-memory
// stand-in directly. Only a failure of the stand-in is returned as an error.
func ConnectPrimary(ctx context.Context, path, authToken string, logger *slog.Logger) (*Primary, error) {
	p := &Primary{configured: path != ""}
	if p.configured {
		db, docs, err := openDocStore(ctx, path, authToken)
		if err == nil {
			p.db, p.Docs = db, docs
			logger.Info("connected to primary store", "path", path)
			return p, nil
		}
		p.err = err
		logger.Warn("primary store unreachable, sessions run local-only", "path", path, "error", err)
	}

	db, docs, err := openDocStore(ctx, ":memory:", "")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory document store: %w", err)
	}
	p.db, p.Docs = db, docs
	return p, nil
}

func openDocStore(ctx context.Context, path, authToken string) (*sql.DB, *DocStore, error) {
	db, err := database.OpenWithToken(ctx, path, authToken)
	if err != nil {
		return nil, nil, err
	}
	docs, err := NewDocStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, docs, nil
}

// Configured reports whether a primary store was asked for.
func (p *Primary) Configured() bool { return p.configured }

// Store returns the store sessions should mirror to, or nil when there is
// none.
func (p *Primary) Store() PrimaryStore {
	if !p.configured || p.err != nil {
		return nil
	}
	return p.Docs
}

// Check implements health.Checker. A store that was unreachable at startup
// stays reported as such until the process restarts.
func (p *Primary) Check(ctx context.Context) error {
	if p.err != nil {
		return fmt.Errorf("unreachable at startup: %w", p.err)
	}
	return p.Docs.Check(ctx)
}

func (p *Primary) Close() error { return p.db.Close() }
