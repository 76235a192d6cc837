package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var testDBSeq uint64

// NewTestDB creates a new in-memory SQLite database for testing.
func NewTestDB(t *testing.T) (*sql.DB, Store) {
	t.Helper()

	// Shared cache mode ensures all connections see the same database; the
	// per-test name keeps parallel tests isolated from one another.
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on",
		strings.ReplaceAll(t.Name(), "/", "_"), atomic.AddUint64(&testDBSeq, 1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	db.SetMaxOpenConns(1)

	store := NewStoreFromDB(db)
	if err := store.(*SQLStore).SetupSchema(); err != nil {
		db.Close()
		t.Fatalf("failed to setup test database schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, store
}

// SeedTestUser creates a test user.
func SeedTestUser(t *testing.T, store Store, username string) User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), username)
	if err != nil {
		t.Fatalf("failed to seed test user: %v", err)
	}
	return user
}

// SeedTestServer creates a test server.
func SeedTestServer(t *testing.T, store Store, params CreateServerParams) Server {
	t.Helper()

	server, err := store.CreateServer(context.Background(), params)
	if err != nil {
		t.Fatalf("failed to seed test server: %v", err)
	}
	return server
}

// SeedTestConfiguration creates a test configuration with sane defaults for
// unset fields.
func SeedTestConfiguration(t *testing.T, store Store, params CreateConfigurationParams) UserConfiguration {
	t.Helper()

	if params.Months == 0 {
		params.Months = 1
	}
	if params.ExpirationDate.IsZero() {
		params.ExpirationDate = time.Now().UTC().AddDate(0, params.Months, 0)
	}
	if params.ConfigLink == "" {
		params.ConfigLink = "vless://" + params.ClientUUID + "@test:443"
	}

	config, err := store.CreateConfiguration(context.Background(), params)
	if err != nil {
		t.Fatalf("failed to seed test configuration: %v", err)
	}
	return config
}
