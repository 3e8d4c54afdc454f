package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mariadb"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

// setupDB starts a throwaway MariaDB container, applies the schema and
// returns a ready connection. Everything is torn down with the test.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container, err := mariadb.Run(ctx, "mariadb:11.4",
		mariadb.WithDatabase("testdb"),
		mariadb.WithUsername("user"),
		mariadb.WithPassword("password"),
	)
	require.NoError(t, err, "failed to start mariadb container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	// The schema files hold several statements each.
	connStr, err := container.ConnectionString(ctx, "parseTime=true", "multiStatements=true")
	require.NoError(t, err)

	db, err := sql.Open("mysql", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	require.NoError(t, applyMigrations(db))
	return db
}

func applyMigrations(db *sql.DB) error {
	dirPath := "../../internal/adapters/repository/mariadb/migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		_, err = db.Exec(string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// newStoredSession builds a session with timestamps truncated to the
// column precision so round-trip comparisons are exact.
func newStoredSession() *domain.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	expiry := now.Add(24 * time.Hour)
	return &domain.Session{
		ID:          uuid.New(),
		ContextID:   "channel-1",
		CreatorID:   "creator-1",
		Prompt:      "Where should we eat?",
		Description: "Lunch plans",
		Options: []domain.Option{
			{Index: 0, Label: "Pizza"},
			{Index: 1, Label: "Sushi"},
		},
		Settings:  domain.DefaultSettings(),
		Status:    domain.StatusOpen,
		CreatedAt: now,
		ExpiresAt: &expiry,
	}
}
