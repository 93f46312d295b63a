package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestLibsqlDSN(t *testing.T) {
	tests := []struct {
		path, token string
		want        string
		wantRemote  bool
	}{
		{path: "data/app.db", want: "file:data/app.db"},
		{path: ":memory:", want: ":memory:"},
		{path: "libsql://escape.turso.io", want: "libsql://escape.turso.io", wantRemote: true},
		{path: "libsql://escape.turso.io", token: "tok", want: "libsql://escape.turso.io?authToken=tok", wantRemote: true},
		{path: "https://db.example.com?tls=1", token: "tok", want: "https://db.example.com?tls=1&authToken=tok", wantRemote: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, remote := libsqlDSN(tt.path, tt.token)
			if got != tt.want || remote != tt.wantRemote {
				t.Errorf("libsqlDSN(%q, %q) = %q, %v; want %q, %v", tt.path, tt.token, got, remote, tt.want, tt.wantRemote)
			}
		})
	}
}

func TestOpenMemory(t *testing.T) {
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestOpenLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "local.db")
	db, err := OpenLocal(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestOpenLocalRequiresPath(t *testing.T) {
	if _, err := OpenLocal(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}
