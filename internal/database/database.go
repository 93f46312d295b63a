package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"
)

// Open creates the primary store connection via libSQL. Plain paths are
// opened as local files and configured for concurrent use (WAL journal mode,
// 5 s busy timeout, foreign keys); libsql://, http(s):// and ws(s):// URLs are
// passed through to the remote server with the optional auth token.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return OpenWithToken(ctx, path, "")
}

func OpenWithToken(ctx context.Context, path, authToken string) (*sql.DB, error) {
	dsn, remote := libsqlDSN(path, authToken)
	if !remote {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if !remote {
		// libSQL rejects Exec for PRAGMAs that return rows, but some PRAGMAs
		// (like foreign_keys=ON) return nothing. Use QueryContext and drain rows
		// to handle both cases uniformly.
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		}
		for _, p := range pragmas {
			rows, err := db.QueryContext(ctx, p)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("executing %s: %w", p, err)
			}
			rows.Close()
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// OpenLocal opens the node-local fallback store with the pure-Go SQLite
// driver. It never talks to the network, so it stays writable when the
// primary store is unreachable.
func OpenLocal(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("local storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening local database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging local database: %w", err)
	}
	return db, nil
}

func libsqlDSN(path, authToken string) (string, bool) {
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(path, scheme) {
			if authToken == "" {
				return path, true
			}
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			return path + sep + "authToken=" + authToken, true
		}
	}
	if path == ":memory:" {
		return ":memory:", false
	}
	return "file:" + path, false
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return nil
}
