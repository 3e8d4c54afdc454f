package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MARIADB_USER", "bot")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.DBHost)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, "dcvotebot", cfg.DBName)
	assert.Equal(t, "0.0.0.0:8080", cfg.OpsAddr)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
	assert.Equal(t, 3*time.Second, cfg.LockWait)
	assert.Equal(t, 10_000, cfg.CacheMaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.CacheIdleTTL)
	assert.Equal(t, time.Minute, cfg.ExpiryInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionAge)
}

func TestLoadRequiresUser(t *testing.T) {
	t.Setenv("MARIADB_USER", "")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MARIADB_USER", "bot")
	t.Setenv("MARIADB_HOST", "db.internal")
	t.Setenv("OP_TIMEOUT", "250ms")
	t.Setenv("CACHE_MAX_ENTRIES", "42")
	t.Setenv("LOCK_WAIT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 250*time.Millisecond, cfg.OpTimeout)
	assert.Equal(t, 42, cfg.CacheMaxEntries)
	assert.Equal(t, 3*time.Second, cfg.LockWait, "unparsable values fall back to the default")
}

func TestDSN(t *testing.T) {
	cfg := Config{
		DBHost: "localhost",
		DBPort: "3307",
		DBUser: "bot",
		DBPass: "secret",
		DBName: "votes",
	}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "bot:secret@tcp(localhost:3307)/votes")
	assert.Contains(t, dsn, "parseTime=true")
}
