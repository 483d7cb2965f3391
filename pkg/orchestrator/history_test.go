package orchestrator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStoreAppendAndRead(t *testing.T) {
	store, err := NewHistoryStore(filepath.Join(t.TempDir(), "status"))
	require.NoError(t, err)

	store.Append(Result{OperationID: "op-1", Status: StatusSuccess, RepositoryName: "repo1", SnapshotID: "s1", Duration: time.Second})
	store.Append(Result{OperationID: "op-2", Status: StatusError, RepositoryName: "repo2", SnapshotID: "s2"})
	store.Append(Result{OperationID: "op-3", Status: StatusSuccess, RepositoryName: "repo1", SnapshotID: "s3"})

	all, err := store.GetBackupHistory("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s3", all[0].SnapshotID, "newest first")
	assert.Equal(t, "op-3", all[0].OperationID)

	filtered, err := store.GetBackupHistory("repo1", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	limited, err := store.GetBackupHistory("", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "s3", limited[0].SnapshotID)
}

func TestHistoryStoreReadMissingFileReturnsEmpty(t *testing.T) {
	store, err := NewHistoryStore(filepath.Join(t.TempDir(), "status"))
	require.NoError(t, err)
	all, err := store.GetBackupHistory("", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
