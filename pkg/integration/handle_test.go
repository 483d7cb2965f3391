package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/auriora/timelocker/pkg/config"
	"github.com/auriora/timelocker/pkg/orchestrator"
	"github.com/auriora/timelocker/pkg/repository"
	"github.com/auriora/timelocker/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeEngine(t *testing.T, script string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	path := filepath.Join(t.TempDir(), "fake-engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func openTestHandle(t *testing.T, enginePath string) *Handle {
	t.Helper()
	h, err := Open(Options{
		HomeDir:          t.TempDir(),
		EngineExecutable: enginePath,
	})
	require.NoError(t, err)
	return h
}

func TestOpenCreatesOnDiskState(t *testing.T) {
	enginePath := writeFakeEngine(t, "#!/bin/sh\nexit 0\n")
	h := openTestHandle(t, enginePath)

	for _, dir := range []string{"config", "credentials", "security"} {
		_, err := os.Stat(filepath.Join(h.opts.HomeDir, dir))
		assert.NoError(t, err, "expected %s to be created", dir)
	}
}

func TestRepositoryResolvesFromConfigAndCaches(t *testing.T) {
	enginePath := writeFakeEngine(t, "#!/bin/sh\nexit 0\n")
	h := openTestHandle(t, enginePath)

	repoDir := t.TempDir()
	require.NoError(t, h.Config().Update(func(d *config.Document) {
		d.Repositories["repo1"] = config.RepositoryEntry{
			Type:   "local",
			URI:    "file://" + repoDir,
			Fields: map[string]string{"path": repoDir},
		}
	}))

	repo1, err := h.Repository("repo1")
	require.NoError(t, err)
	repo2, err := h.Repository("repo1")
	require.NoError(t, err)
	assert.Same(t, repo1, repo2, "repeated resolution should return the cached instance")

	_, err = h.Repository("unknown")
	assert.Error(t, err)
}

func TestBackupThroughFacadeRunsEndToEnd(t *testing.T) {
	enginePath := writeFakeEngine(t, "#!/bin/sh\ncat <<'EOF'\n"+
		`{"message_type":"summary","files_new":1,"files_changed":0,"files_unmodified":0,"data_added":10,"snapshot_id":"abc123"}`+
		"\nEOF\nexit 0\n")
	h := openTestHandle(t, enginePath)

	repoDir := t.TempDir()
	require.NoError(t, h.Config().Update(func(d *config.Document) {
		d.Repositories["repo1"] = config.RepositoryEntry{
			Type:   "local",
			URI:    "file://" + repoDir,
			Fields: map[string]string{"path": repoDir},
		}
	}))
	require.NoError(t, h.Credentials().Create("master-pw"))
	require.NoError(t, h.Credentials().StoreRepositoryPassword("repo1", "repo-pw"))

	repo, err := h.Repository("repo1")
	require.NoError(t, err)

	sel := selection.New()
	sel.AddPath(t.TempDir(), selection.Include)

	result := h.Backup(context.Background(), orchestrator.Request{
		RepositoryName: "repo1",
		Repository:     repo,
		Selection:      sel,
		Tags:           []string{"full"},
	}, nil)

	assert.Equal(t, orchestrator.StatusSuccess, result.Status)
	assert.Equal(t, "abc123", result.SnapshotID)

	history, err := h.History("repo1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "abc123", history[0].SnapshotID)
}

func TestSnapshotsAndRestoreResolveThroughFacade(t *testing.T) {
	enginePath := writeFakeEngine(t, "#!/bin/sh\nexit 0\n")
	h := openTestHandle(t, enginePath)

	repoDir := t.TempDir()
	require.NoError(t, h.Config().Update(func(d *config.Document) {
		d.Repositories["repo1"] = config.RepositoryEntry{
			Type:   "local",
			URI:    "file://" + repoDir,
			Fields: map[string]string{"path": repoDir},
		}
	}))

	snaps, err := h.Snapshots("repo1")
	require.NoError(t, err)
	assert.NotNil(t, snaps)

	restoreSvc, err := h.Restore("repo1")
	require.NoError(t, err)
	assert.NotNil(t, restoreSvc)
}

func TestBackendFromEntryRejectsUnknownType(t *testing.T) {
	_, err := backendFromEntry(config.RepositoryEntry{Type: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestBackendFromEntryBuildsEachKnownKind(t *testing.T) {
	cases := []config.RepositoryEntry{
		{Type: "local", Fields: map[string]string{"path": "/tmp/x"}},
		{Type: "s3", Fields: map[string]string{"bucket": "b", "region": "us-east-1"}},
		{Type: "b2", Fields: map[string]string{"bucket": "b"}},
		{Type: "sftp", Fields: map[string]string{"user": "u", "host": "h", "path": "/p"}},
	}
	for _, entry := range cases {
		backend, err := backendFromEntry(entry)
		require.NoError(t, err)
		assert.Equal(t, repository.BackendKind(entry.Type), backend.Kind())
	}
}
