package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcvotebot/dcvotebot/internal/adapters/repository/mariadb"
	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

func TestDefaultsRoundTrip(t *testing.T) {
	db := setupDB(t)
	repo := mariadb.NewDefaultsRepository(db)
	ctx := context.Background()

	// Absent defaults come back as nil, not an error.
	settings, err := repo.LoadDefaults(ctx, "channel-1")
	require.NoError(t, err)
	assert.Nil(t, settings)

	stored := domain.Settings{Duration: 2 * time.Hour, CanRevote: false, Timezone: "Europe/Berlin"}
	require.NoError(t, repo.SaveDefaults(ctx, "channel-1", stored))

	settings, err = repo.LoadDefaults(ctx, "channel-1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, stored, *settings)

	// Saving again overwrites in place.
	stored.CanRevote = true
	stored.Duration = time.Hour
	require.NoError(t, repo.SaveDefaults(ctx, "channel-1", stored))

	settings, err = repo.LoadDefaults(ctx, "channel-1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, stored, *settings)
}
