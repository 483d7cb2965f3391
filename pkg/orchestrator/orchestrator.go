// Package orchestrator implements the backup orchestrator of §4.5: the
// top-level entry point that resolves a repository and targets, runs a
// backup through the engine, and reports a structured result.
package orchestrator

import (
	"context"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/repository"
	"github.com/auriora/timelocker/pkg/security"
	"github.com/auriora/timelocker/pkg/selection"
	"github.com/google/uuid"
)

// Status is a BackupResult's outcome classification (§4.5 step 7-9).
type Status string

const (
	StatusSuccess   Status = "success"
	StatusWarning   Status = "warning"
	StatusError     Status = "error"
	StatusCritical  Status = "critical"
)

// Request is execute_backup's input (§4.5).
type Request struct {
	RepositoryName   string
	Repository       *repository.Repository
	TargetNames      []string
	Selection        *selection.FileSelection
	Tags             []string
	DryRun           bool
	VerifyAfterward  bool
}

// Result is execute_backup's output (§4.5 step 10).
type Result struct {
	OperationID     string
	Status          Status
	RepositoryName  string
	TargetNames     []string
	SnapshotID      string
	FilesNew        int
	FilesChanged    int
	FilesUnmodified int
	DataAdded       int64
	Duration        time.Duration
	Errors          []string
}

// Orchestrator runs backups against one configured repository set,
// auditing every attempt through an optional security service.
type Orchestrator struct {
	security *security.Service
	history  *HistoryStore
}

// New builds an Orchestrator. sec and history may be nil (audit/history
// recording is then skipped).
func New(sec *security.Service, history *HistoryStore) *Orchestrator {
	return &Orchestrator{security: sec, history: history}
}

// ExecuteBackup runs the §4.5 algorithm once, with no retry.
func (o *Orchestrator) ExecuteBackup(ctx context.Context, req Request, onStatus func(repository.StatusEvent)) Result {
	start := time.Now()
	result := Result{OperationID: uuid.New().String(), RepositoryName: req.RepositoryName, TargetNames: req.TargetNames}

	if req.Repository == nil {
		result.Status = StatusError
		result.Errors = append(result.Errors, "repository not resolved")
		return result
	}
	if _, err := req.Repository.Password(); err != nil {
		result.Status = StatusError
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if o.security != nil && o.security.LockdownActive() {
		result.Status = StatusCritical
		result.Errors = append(result.Errors, "refusing to run: emergency lockdown is active")
		o.audit(req.Repository, "backup_refused_lockdown", false, nil)
		result.Duration = time.Since(start)
		o.record(result)
		return result
	}

	o.audit(req.Repository, "backup_started", true, nil)

	if req.DryRun {
		result.Status = StatusSuccess
		result.Duration = time.Since(start)
		return result
	}

	summary, err := req.Repository.BackupTarget(ctx, req.Selection, req.Tags, onStatus)
	result.Duration = time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			result.Status = StatusWarning
			result.Errors = append(result.Errors, "backup cancelled")
			o.audit(req.Repository, "backup_cancelled", false, nil)
			o.record(result)
			return result
		}
		result.Status = classifyFailure(err)
		result.Errors = append(result.Errors, err.Error())
		o.audit(req.Repository, "backup_failed", false, map[string]any{"error": err.Error()})
		o.record(result)
		return result
	}

	result.SnapshotID = summary.SnapshotID
	result.FilesNew = summary.FilesNew
	result.FilesChanged = summary.FilesChanged
	result.FilesUnmodified = summary.FilesUnmodified
	result.DataAdded = summary.DataAdded
	result.Status = StatusSuccess
	o.audit(req.Repository, "backup_completed", true, map[string]any{"snapshot_id": summary.SnapshotID})

	if req.VerifyAfterward {
		report := req.Repository.VerifyBackupComprehensive(ctx, summary.SnapshotID)
		if !report.Success {
			result.Status = StatusWarning
			result.Errors = append(result.Errors, "post-backup verification failed")
		}
	}

	o.record(result)
	return result
}

// CreateFullBackup augments tags with "full" plus any caller-supplied
// tags (§4.5).
func (o *Orchestrator) CreateFullBackup(ctx context.Context, repo *repository.Repository, sel *selection.FileSelection, tags []string, onStatus func(repository.StatusEvent)) Result {
	return o.ExecuteBackup(ctx, Request{
		Repository: repo,
		Selection:  sel,
		Tags:       append([]string{"full"}, tags...),
	}, onStatus)
}

// CreateIncrementalBackup augments tags with "incremental" and, if
// parentSnapshotID is non-empty, "parent:<id>" (§4.5).
func (o *Orchestrator) CreateIncrementalBackup(ctx context.Context, repo *repository.Repository, sel *selection.FileSelection, parentSnapshotID string, tags []string, onStatus func(repository.StatusEvent)) Result {
	allTags := append([]string{"incremental"}, tags...)
	if parentSnapshotID != "" {
		allTags = append(allTags, "parent:"+parentSnapshotID)
	}
	return o.ExecuteBackup(ctx, Request{
		Repository: repo,
		Selection:  sel,
		Tags:       allTags,
	}, onStatus)
}

// VerifyBackupIntegrity delegates to the repository's comprehensive
// verification (§4.5).
func (o *Orchestrator) VerifyBackupIntegrity(ctx context.Context, repo *repository.Repository, snapshotID string) bool {
	return repo.VerifyBackupComprehensive(ctx, snapshotID).Success
}

// EstimateBackupSize sums sel's estimated size (§4.5); targetNames is
// accepted for API-contract symmetry with the spec but unused since
// sel already represents the resolved target set.
func (o *Orchestrator) EstimateBackupSize(sel *selection.FileSelection, targetNames []string) selection.BackupSizeEstimate {
	return sel.EstimateBackupSize()
}

func (o *Orchestrator) audit(repo *repository.Repository, eventType string, success bool, metadata map[string]any) {
	if o.security == nil {
		return
	}
	o.security.AuditBackupOperation(repo, eventType, nil, success, metadata)
}

func (o *Orchestrator) record(result Result) {
	if o.history == nil {
		return
	}
	o.history.Append(result)
}

// classifyFailure maps an engine-execution error to a result status:
// configuration-class failures (password missing, engine missing or too
// old) surface as critical, which ExecuteBackupWithRetry treats as
// terminal; anything else surfaces as error and is retried there (see
// retry.go).
func classifyFailure(err error) Status {
	if errs.IsSubkind(err, errs.SubkindPasswordMissing) ||
		errs.IsSubkind(err, errs.SubkindEngineNotFound) ||
		errs.IsSubkind(err, errs.SubkindEngineVersionTooOld) {
		return StatusCritical
	}
	return StatusError
}
