// Package testutil provides shared test helpers for setting up storage roots,
// services and journals.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/wstore/internal/auth"
	"github.com/starford/wstore/internal/fileservice"
	"github.com/starford/wstore/internal/journal"
	"github.com/starford/wstore/internal/pathres"
	"github.com/starford/wstore/internal/storage"
)

// TestJournal creates a temporary SQLite journal that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "wstore-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := journal.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary storage root with its resolver.
func TestRoot(t *testing.T) (string, *pathres.Resolver) {
	t.Helper()
	root := t.TempDir()
	res, err := pathres.New(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, res
}

// TestService creates a file service over a fresh storage root.
func TestService(t *testing.T, opts ...fileservice.Option) (*fileservice.Service, string) {
	t.Helper()
	root, res := TestRoot(t)
	return fileservice.NewService(res, storage.NewEngine(), opts...), root
}

// TestGate creates an access gate for username and password.
func TestGate(t *testing.T, username, password string) *auth.Gate {
	t.Helper()
	gate, err := auth.NewGate(auth.Credential{Username: username, Password: password})
	if err != nil {
		t.Fatal(err)
	}
	return gate
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
