package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/auriora/timelocker/pkg/engine"
	"github.com/auriora/timelocker/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeEngine writes an executable shell script at dir/name that
// prints body to stdout and exits 0, ignoring whatever argv it's
// called with. Used to stand in for the real snapshot engine binary.
func writeFakeEngine(t *testing.T, body string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	path := filepath.Join(t.TempDir(), "fake-engine.sh")
	script := "#!/bin/sh\ncat <<'EOF'\n" + body + "\nEOF\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestBackupTargetParsesStatusAndSummary(t *testing.T) {
	enginePath := writeFakeEngine(t, `{"message_type":"status","percent_done":0.5,"files_done":1,"total_files":2}
{"message_type":"summary","snapshot_id":"abc123","files_new":1,"files_changed":0,"files_unmodified":1,"data_added":1024}`)

	repo := newTestRepository(t, Config{
		ExplicitPassword: "pw",
		Runner:           engine.NewRunner(enginePath, nil),
	})

	sel := selection.New()
	sel.AddPath(t.TempDir(), selection.Include)

	var statuses []StatusEvent
	summary, err := repo.BackupTarget(context.Background(), sel, []string{"nightly"}, func(ev StatusEvent) {
		statuses = append(statuses, ev)
	})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 0.5, statuses[0].PercentDone)
	assert.Equal(t, "abc123", summary.SnapshotID)
	assert.Equal(t, 1, summary.FilesNew)
	assert.Equal(t, int64(1024), summary.DataAdded)
}

func TestSnapshotsDecodesEachLine(t *testing.T) {
	enginePath := writeFakeEngine(t, `{"id":"snap1","time":"2026-01-01T00:00:00Z","paths":["/data"],"tags":["full"]}
{"id":"snap2","time":"2026-01-02T00:00:00Z","paths":["/data"],"tags":["incremental"]}`)

	repo := newTestRepository(t, Config{
		ExplicitPassword: "pw",
		Runner:           engine.NewRunner(enginePath, nil),
	})

	snaps, err := repo.Snapshots(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "snap1", snaps[0].ID)
	assert.Equal(t, "snap2", snaps[1].ID)
}

func TestCheckSucceedsOnZeroExit(t *testing.T) {
	enginePath := writeFakeEngine(t, `{"message_type":"status"}`)
	repo := newTestRepository(t, Config{
		ExplicitPassword: "pw",
		Runner:           engine.NewRunner(enginePath, nil),
	})

	report := repo.Check(context.Background(), false)
	assert.True(t, report.Success)
}

func TestVerifyBackupComprehensiveAllChecksRun(t *testing.T) {
	enginePath := writeFakeEngine(t, `{"id":"snap1","time":"2026-01-01T00:00:00Z","paths":["/data"],"tags":["full"]}`)
	repo := newTestRepository(t, Config{
		ExplicitPassword: "pw",
		Runner:           engine.NewRunner(enginePath, nil),
	})

	report := repo.VerifyBackupComprehensive(context.Background(), "snap1")
	assert.True(t, report.Success)
	assert.Len(t, report.Checks, 4)
}

// writeFakeEngineFailingOn writes an executable shell script that exits
// 1 (no output) whenever failSubcommand appears among its arguments,
// and otherwise behaves like writeFakeEngine.
func writeFakeEngineFailingOn(t *testing.T, failSubcommand, body string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	path := filepath.Join(t.TempDir(), "fake-engine.sh")
	script := "#!/bin/sh\nfor arg in \"$@\"; do\n  if [ \"$arg\" = \"" + failSubcommand + "\" ]; then exit 1; fi\ndone\ncat <<'EOF'\n" + body + "\nEOF\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestVerifyBackupComprehensiveStatisticsFailureIsWarningOnly(t *testing.T) {
	enginePath := writeFakeEngineFailingOn(t, "stats",
		`{"id":"snap1","time":"2026-01-01T00:00:00Z","paths":["/data"],"tags":["full"]}`)
	repo := newTestRepository(t, Config{
		ExplicitPassword: "pw",
		Runner:           engine.NewRunner(enginePath, nil),
	})

	report := repo.VerifyBackupComprehensive(context.Background(), "snap1")
	assert.True(t, report.Success, "a failing statistics check must only warn, not fail the whole verification")
	require.Len(t, report.Checks, 4)

	var stats CheckResult
	for _, c := range report.Checks {
		if c.Name == "statistics" {
			stats = c
		}
	}
	assert.False(t, stats.Success)
	assert.NotEmpty(t, stats.Warning)
}

func TestApplyRetentionPolicyRejectsEmptyPolicy(t *testing.T) {
	repo := newTestRepository(t, Config{ExplicitPassword: "pw"})
	err := repo.ApplyRetentionPolicy(context.Background(), RetentionPolicy{}, false)
	require.Error(t, err)
}
