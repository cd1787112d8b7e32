package testutil

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// NewTestRepository returns a repository backed by a migrated sqlite
// database in a temporary directory.
func NewTestRepository(t *testing.T) *database.SqlGoChatRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.Join(t.TempDir(), "teahub.db"))
	if err := database.Migrate(database.DriverSqlite3, dsn); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	repo, err := database.NewGoChatRepository(database.DriverSqlite3, dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// CreateUser inserts an account named username into repo.
func CreateUser(t *testing.T, repo database.GoChatRepository, username string) database.User {
	t.Helper()

	u, err := repo.CreateAccount(context.Background(), database.CreateAccountParams{
		Username:     username,
		DisplayName:  username,
		EmailAddress: username + "@example.com",
		PasswordHash: "not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}

	return u
}

// RecordingTransport stores every published envelope.
type RecordingTransport struct {
	mu        sync.Mutex
	Envelopes []broadcast.Envelope
	Err       error
}

func (rt *RecordingTransport) Publish(ctx context.Context, env *broadcast.Envelope) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.Err != nil {
		return rt.Err
	}
	rt.Envelopes = append(rt.Envelopes, *env)
	return nil
}

// Events returns the envelopes published for event, in order.
func (rt *RecordingTransport) Events(event string) []broadcast.Envelope {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var out []broadcast.Envelope
	for _, env := range rt.Envelopes {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (rt *RecordingTransport) Reset() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.Envelopes = nil
}
