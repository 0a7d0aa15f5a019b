package fleet

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/soundmesh/internal/domain/node"
)

func TestNewFailoverRecord(t *testing.T) {
	t.Run("migrated", func(t *testing.T) {
		r, err := NewFailoverRecord(snowflake.ID(1), "eu-1", "eu-2", "dQw4w9WgXcQ", 5000, FailoverOutcomeMigrated)
		require.NoError(t, err)
		assert.Equal(t, "eu-2", r.ToNode())
		assert.Equal(t, int64(5000), r.PositionMs())
		assert.False(t, r.CreatedAt().IsZero())
	})

	t.Run("deferred without target", func(t *testing.T) {
		r, err := NewFailoverRecord(snowflake.ID(1), "eu-1", "", "", -10, FailoverOutcomeDeferred)
		require.NoError(t, err)
		assert.Equal(t, int64(0), r.PositionMs())
	})

	t.Run("migrated without target", func(t *testing.T) {
		_, err := NewFailoverRecord(snowflake.ID(1), "eu-1", "", "", 0, FailoverOutcomeMigrated)
		assert.Error(t, err)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := NewFailoverRecord(snowflake.ID(1), "", "eu-2", "", 0, FailoverOutcomeMigrated)
		assert.Error(t, err)
	})

	t.Run("bad outcome", func(t *testing.T) {
		_, err := NewFailoverRecord(snowflake.ID(1), "eu-1", "eu-2", "", 0, FailoverOutcome("lost"))
		assert.Error(t, err)
	})
}

func TestSetID_OnlyOnce(t *testing.T) {
	r, err := NewFailoverRecord(snowflake.ID(1), "eu-1", "eu-2", "", 0, FailoverOutcomeMigrated)
	require.NoError(t, err)
	require.NoError(t, r.SetID(7))
	assert.Error(t, r.SetID(8))
	assert.Equal(t, uint(7), r.ID())

	s, err := NewStatsSample("eu-1", 12, node.StatsSnapshot{Players: 2})
	require.NoError(t, err)
	require.NoError(t, s.SetID(3))
	assert.Error(t, s.SetID(4))
}

func TestNewStatsSample_RequiresNode(t *testing.T) {
	_, err := NewStatsSample("", 0, node.StatsSnapshot{})
	assert.Error(t, err)
}
