// Package restore implements the restore service of §4.7: builds and
// runs an engine restore command from a snapshot and a set of options,
// applying conflict-resolution policy and an optional pre-flight free
// space check.
package restore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/repository"
	"github.com/auriora/timelocker/pkg/security"
	"github.com/auriora/timelocker/pkg/snapshot"
)

// ConflictResolution is how an existing, non-empty target directory is
// handled (§4.7).
type ConflictResolution string

const (
	ConflictOverwrite ConflictResolution = "overwrite"
	ConflictSkip      ConflictResolution = "skip"
	ConflictPrompt    ConflictResolution = "prompt"
	ConflictRename    ConflictResolution = "rename"
)

// PromptFunc is the interactive callback ConflictPrompt requires; if
// nil, ConflictPrompt downgrades to ConflictSkip with a warning (§4.7).
type PromptFunc func(path string) (ConflictResolution, error)

// Options is the builder-style restore configuration of §4.7.
type Options struct {
	TargetPath          string
	IncludePaths        []string
	ExcludePaths        []string
	ConflictResolution  ConflictResolution
	VerifyAfterRestore  bool
	DryRun              bool
	ProgressCallback    func(repository.StatusEvent)
	Prompt              PromptFunc
}

// Result is the outcome of Restore (§4.7).
type Result struct {
	Success             bool
	SnapshotID          string
	TargetPath          string
	FilesRestored       int
	FilesSkipped        int
	FilesFailed         int
	BytesRestored       int64
	Duration            time.Duration
	VerificationPassed  bool
	Errors              []string
	Warnings            []string
}

// Service restores snapshots from one repository.
type Service struct {
	repo       *repository.Repository
	snapshots  *snapshot.Service
	security   *security.Service
}

// NewService builds a Service over repo, resolving snapshot IDs
// through snapshots.
func NewService(repo *repository.Repository, snapshots *snapshot.Service) *Service {
	return &Service{repo: repo, snapshots: snapshots}
}

// WithSecurity attaches sec so Restore refuses to run while an
// emergency lockdown is active (§4.8), mirroring the orchestrator's
// same check before running a backup. Returns s for chaining.
func (s *Service) WithSecurity(sec *security.Service) *Service {
	s.security = sec
	return s
}

// Restore runs the §4.7 algorithm: resolve snapshot, validate target,
// estimate/check space, build and run the engine restore command, and
// optionally verify.
func (s *Service) Restore(ctx context.Context, snapshotIDPrefix string, opts Options) Result {
	start := time.Now()
	result := Result{TargetPath: opts.TargetPath}

	if s.security != nil && s.security.LockdownActive() {
		result.Errors = append(result.Errors, "refusing to run: emergency lockdown is active")
		return result
	}

	snap, err := s.snapshots.GetSnapshotByID(ctx, snapshotIDPrefix)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.SnapshotID = snap.ID

	if err := s.validateTarget(opts, &result); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if ok, reason := hasEnoughSpace(opts.TargetPath, snap.Size); !ok {
		result.Errors = append(result.Errors, "insufficient_space: "+reason)
		return result
	}

	if opts.DryRun {
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	args := repository.RestoreArgs{
		TargetPath: opts.TargetPath,
		Include:    opts.IncludePaths,
		Exclude:    opts.ExcludePaths,
		Overwrite:  opts.ConflictResolution == ConflictOverwrite,
	}

	// ConflictRename restores into a scratch staging directory first,
	// then merges each restored file into the target, appending a
	// timestamp suffix to a restored file's name when it would
	// otherwise overwrite one that was already there (§4.7: "rename
	// appends a timestamp suffix to the restored file name").
	var stagingDir string
	if opts.ConflictResolution == ConflictRename {
		dir, err := os.MkdirTemp(filepath.Dir(opts.TargetPath), ".timelocker-restore-*")
		if err != nil {
			result.Errors = append(result.Errors, errs.Wrap(errs.KindRestore, "failed to create restore staging directory", err).Error())
			return result
		}
		stagingDir = dir
		defer os.RemoveAll(stagingDir)
		args.TargetPath = stagingDir
		args.Overwrite = true
	}

	var summaryEvents int
	restoreErr := s.repo.Restore(ctx, snap.ID, args, func(ev repository.StatusEvent) {
		summaryEvents++
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(ev)
		}
	})
	result.Duration = time.Since(start)

	if restoreErr != nil {
		result.Errors = append(result.Errors, restoreErr.Error())
		return result
	}

	if stagingDir != "" {
		renamedCount, err := mergeStagedRestore(stagingDir, opts.TargetPath)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		if renamedCount > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d restored file(s) written under a timestamp-suffixed name to avoid overwriting an existing file", renamedCount))
		}
	}

	result.Success = true
	result.FilesRestored = snap.FileCount
	result.BytesRestored = snap.Size

	if opts.VerifyAfterRestore {
		report := s.repo.CheckSnapshot(ctx, snap.ID)
		result.VerificationPassed = report.Success
		if !report.Success {
			result.Warnings = append(result.Warnings, report.Errors...)
		}
	}

	return result
}

// validateTarget implements step 2 of §4.7's algorithm: create the
// target if absent (recording intent under dry_run), else apply
// conflict-resolution policy to a non-empty existing directory.
func (s *Service) validateTarget(opts Options, result *Result) error {
	info, err := os.Stat(opts.TargetPath)
	if os.IsNotExist(err) {
		if opts.DryRun {
			result.Warnings = append(result.Warnings, "target directory does not exist; would be created")
			return nil
		}
		return os.MkdirAll(opts.TargetPath, 0o755)
	}
	if err != nil {
		return errs.Wrap(errs.KindRestore, "failed to stat restore target", err)
	}
	if !info.IsDir() {
		return errs.Newf(errs.KindRestore, "restore target %q is not a directory", opts.TargetPath)
	}

	entries, err := os.ReadDir(opts.TargetPath)
	if err != nil {
		return errs.Wrap(errs.KindRestore, "failed to read restore target", err)
	}
	if len(entries) == 0 {
		return nil
	}

	switch opts.ConflictResolution {
	case ConflictOverwrite, ConflictSkip, ConflictRename, "":
		// ConflictRename's per-file handling happens after the engine
		// restore runs (see mergeStagedRestore); the pre-existing
		// target directory is left untouched here.
		return nil
	case ConflictPrompt:
		if opts.Prompt == nil {
			result.Warnings = append(result.Warnings, "conflict_resolution=prompt with no callback; downgraded to skip")
			return nil
		}
		resolved, err := opts.Prompt(opts.TargetPath)
		if err != nil {
			return errs.Wrap(errs.KindRestore, "prompt callback failed", err)
		}
		opts.ConflictResolution = resolved
		return s.validateTarget(opts, result)
	default:
		return errs.Newf(errs.KindValidation, "unknown conflict resolution %q", opts.ConflictResolution)
	}
}

// mergeStagedRestore moves every file restored into stagingDir across to
// targetDir, preserving stagingDir's relative layout. A file whose
// destination already exists is written instead under a timestamp
// suffix, so the pre-existing file is never touched. Returns the number
// of files that needed a suffix.
func mergeStagedRestore(stagingDir, targetDir string) (int, error) {
	suffix := time.Now().UTC().Format("20060102T150405")
	renamed := 0

	err := filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(targetDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if _, statErr := os.Stat(dest); statErr == nil {
			dest = suffixedName(dest, suffix)
			renamed++
		}
		return os.Rename(path, dest)
	})
	if err != nil {
		return renamed, errs.Wrap(errs.KindRestore, "failed to merge restored files into target", err)
	}
	return renamed, nil
}

// suffixedName inserts ".<suffix>" before path's extension.
func suffixedName(path, suffix string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "." + suffix + ext
}
