package orchestrator

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/auriora/timelocker/pkg/errs"
)

// historyRecord is one line of history.jsonl (§6 "Persisted state").
type historyRecord struct {
	OperationID     string  `json:"operation_id"`
	Status          Status  `json:"status"`
	RepositoryName  string  `json:"repository_name"`
	TargetNames     []string `json:"target_names"`
	SnapshotID      string  `json:"snapshot_id,omitempty"`
	FilesNew        int     `json:"files_new"`
	FilesChanged    int     `json:"files_changed"`
	FilesUnmodified int     `json:"files_unmodified"`
	DataAdded       int64   `json:"data_added"`
	DurationSeconds float64 `json:"duration_seconds"`
	Errors          []string `json:"errors,omitempty"`
}

// HistoryStore appends completed backup results to
// <config_dir>/status/history.jsonl, one JSON object per line (§6).
type HistoryStore struct {
	mu   sync.Mutex
	path string
}

// NewHistoryStore opens (creating the parent directory if needed) the
// history store at <statusDir>/history.jsonl.
func NewHistoryStore(statusDir string) (*HistoryStore, error) {
	if err := os.MkdirAll(statusDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to create status directory", err)
	}
	return &HistoryStore{path: filepath.Join(statusDir, "history.jsonl")}, nil
}

// Append writes one result to the history log.
func (h *HistoryStore) Append(result Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	rec := historyRecord{
		OperationID:     result.OperationID,
		Status:          result.Status,
		RepositoryName:  result.RepositoryName,
		TargetNames:     result.TargetNames,
		SnapshotID:      result.SnapshotID,
		FilesNew:        result.FilesNew,
		FilesChanged:    result.FilesChanged,
		FilesUnmodified: result.FilesUnmodified,
		DataAdded:       result.DataAdded,
		DurationSeconds: result.Duration.Seconds(),
		Errors:          result.Errors,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	data = append(data, '\n')
	f.Write(data)
}

// GetBackupHistory reads up to limit most-recent records, optionally
// filtered by repositoryName (empty matches all) (§4.5).
func (h *HistoryStore) GetBackupHistory(repositoryName string, limit int) ([]Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindConfiguration, "failed to read backup history", err)
	}
	defer f.Close()

	var all []Result
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec historyRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if repositoryName != "" && rec.RepositoryName != repositoryName {
			continue
		}
		all = append(all, Result{
			OperationID:     rec.OperationID,
			Status:          rec.Status,
			RepositoryName:  rec.RepositoryName,
			TargetNames:     rec.TargetNames,
			SnapshotID:      rec.SnapshotID,
			FilesNew:        rec.FilesNew,
			FilesChanged:    rec.FilesChanged,
			FilesUnmodified: rec.FilesUnmodified,
			DataAdded:       rec.DataAdded,
			Errors:          rec.Errors,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	// newest last on disk -> newest first for callers
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
