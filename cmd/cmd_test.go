package cmd

import (
	"bytes"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/migrate"
	"github.com/example/hhbot/internal/runs"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "hhbot.db"))
	t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)))
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootHasCommands(t *testing.T) {
	var names []string
	for _, c := range NewRootCmd().Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"server", "migrate", "settings", "campaign", "quota", "keys", "version"})
}

func TestKeys(t *testing.T) {
	out, err := run(t, "keys")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		_, v, ok := strings.Cut(l, "=")
		require.True(t, ok, l)
		raw, err := base64.StdEncoding.DecodeString(v)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hhbot dev")
}

func TestSettingsSetShowOwner(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "settings", "set", "--chat-id", "7", "--keywords", "golang", "--token", "secret-token", "--resume-id", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "golang")
	assert.Contains(t, out, "(sealed)")
	assert.NotContains(t, out, "secret-token")

	out, err = run(t, "settings", "show", "--chat-id", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "golang")

	out, err = run(t, "settings", "owner", "--resume-id", "r1")
	require.NoError(t, err)
	assert.Equal(t, "7", strings.TrimSpace(out))

	_, err = run(t, "settings", "owner", "--resume-id", "nope")
	assert.ErrorContains(t, err, "no chat uses resume")
}

func TestSettingsSet_RejectsBadTemplate(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "settings", "set", "--chat-id", "7", "--cover-letter", "Hi {name}")
	var te *campaign.TemplateError
	assert.True(t, errors.As(err, &te))
}

func TestCampaignRun_Unauthorized(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "campaign", "run", "--chat-id", "9")
	assert.ErrorContains(t, err, "has not authorized")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, campaign.Result{
		RunID:              "r",
		Outcome:            campaign.OutcomeCompleted,
		Succeeded:          3,
		Attempted:          5,
		Remaining:          10,
		VacanciesExhausted: true,
		Keywords:           "go",
	}, time.UTC)
	assert.Equal(t, "run r: completed\nsent 3 of 10 (attempted 5)\nno more vacancies for \"go\"\n", buf.String())

	buf.Reset()
	printResult(&buf, campaign.Result{
		RunID:           "r",
		Outcome:         campaign.OutcomeDailyLimitReached,
		NextAvailableAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}, time.UTC)
	assert.Equal(t, "run r: daily_limit_reached\nnext application available: 01.05.2024 10:00 (UTC)\n", buf.String())
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	printProgress(&buf, campaign.Progress{Stage: campaign.StageResponding, Succeeded: 4, Attempted: 6, Remaining: 46})
	assert.Equal(t, "sent 4/50 (attempted 6)\n", buf.String())
}

func TestCampaignHistory(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "campaign", "history", "--chat-id", "5")
	require.NoError(t, err)
	assert.Equal(t, "no runs recorded\n", out)
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printRuns(&buf, []runs.Run{{
		ID: "a", Outcome: "completed", Succeeded: 4, Attempted: 5, Keywords: "go",
		StartedAt: start, FinishedAt: start.Add(75 * time.Second),
	}}, time.UTC)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"STARTED", "OUTCOME", "SENT", "ATTEMPTED", "DURATION", "KEYWORDS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"01.05.2024", "10:00", "completed", "4", "5", "1m15s", "go"}, strings.Fields(lines[1]))
}

func TestMigrate_List(t *testing.T) {
	out, err := run(t, "migrate", "--list")
	require.NoError(t, err)
	assert.Equal(t, "001_user_settings.sql\n002_campaign_runs.sql\n", out)
}

func TestMigrate_SQLiteHasNothingToDo(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to do")
}

func TestPrintMigrations(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrations(&buf, []migrate.Migration{
		{Name: "001_user_settings.sql", AppliedAt: &at},
		{Name: "002_campaign_runs.sql"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"001_user_settings.sql", "2024-05-01", "10:00:00"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"002_campaign_runs.sql", "pending"}, strings.Fields(lines[2]))
}
