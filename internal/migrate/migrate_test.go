package migrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_user_settings.sql", "002_campaign_runs.sql"}, files)

	b, err := fs.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS user_settings")

	b, err = fs.ReadFile(files[1])
	require.NoError(t, err)
	assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS campaign_runs")
}

func TestMerge(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	got := merge(
		[]string{"001_user_settings.sql", "002_campaign_runs.sql"},
		map[string]time.Time{"001_user_settings.sql": at, "000_dropped.sql": at},
	)

	require.Len(t, got, 2)
	assert.True(t, got[0].Applied())
	assert.Equal(t, at, *got[0].AppliedAt)
	assert.Equal(t, "002_campaign_runs.sql", got[1].Name)
	assert.False(t, got[1].Applied())
}
