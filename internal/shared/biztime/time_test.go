package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_UsesDisplayTimezone(t *testing.T) {
	t.Cleanup(func() { _ = Init("") })

	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "12:00", Format(ts, "15:04"))

	require.NoError(t, Init("Asia/Tokyo"))
	assert.Equal(t, "21:00", Format(ts, "15:04"))
	assert.Equal(t, "Asia/Tokyo", Location().String())
}

func TestInit_RejectsUnknownZone(t *testing.T) {
	assert.Error(t, Init("Mars/Olympus_Mons"))
}

func TestNowUTCAndFromUnix(t *testing.T) {
	assert.Equal(t, time.UTC, NowUTC().Location())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), FromUnix(1767225600))
}
