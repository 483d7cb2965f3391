package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/selection"
)

// engineLine is the generic envelope every JSON output line from the
// engine carries (§4.3 "Output stream contract").
type engineLine struct {
	MessageType     string  `json:"message_type"`
	PercentDone     float64 `json:"percent_done"`
	FilesDone       int     `json:"files_done"`
	TotalFiles      int     `json:"total_files"`
	BytesDone       int64   `json:"bytes_done"`
	TotalBytes      int64   `json:"total_bytes"`
	SnapshotID      string  `json:"snapshot_id"`
	FilesNew        int     `json:"files_new"`
	FilesChanged    int     `json:"files_changed"`
	FilesUnmodified int     `json:"files_unmodified"`
	DataAdded       int64   `json:"data_added"`
}

// parseEngineLines decodes each JSON line, dispatching "status" lines
// to onStatus and capturing the last "summary" line. Malformed lines
// are skipped (with a warning log), matching §4.3's stated tolerance;
// the caller's non-zero-exit error (if any) still propagates untouched.
func (r *Repository) parseEngineLines(lines []string, onStatus func(StatusEvent)) *BackupSummary {
	var summary *BackupSummary
	for _, line := range lines {
		var decoded engineLine
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			r.logger.Warn("skipping malformed engine output line: %v", err)
			continue
		}
		switch decoded.MessageType {
		case "status":
			if onStatus != nil {
				onStatus(StatusEvent{
					PercentDone: decoded.PercentDone,
					FilesDone:   decoded.FilesDone,
					TotalFiles:  decoded.TotalFiles,
					BytesDone:   decoded.BytesDone,
					TotalBytes:  decoded.TotalBytes,
				})
			}
		case "summary":
			summary = &BackupSummary{
				SnapshotID:      decoded.SnapshotID,
				FilesNew:        decoded.FilesNew,
				FilesChanged:    decoded.FilesChanged,
				FilesUnmodified: decoded.FilesUnmodified,
				DataAdded:       decoded.DataAdded,
			}
		}
	}
	return summary
}

// BackupTarget runs a backup of sel's include paths against this
// repository, tagging the resulting snapshot with tags, and streams
// progress to onStatus (§4.3, §4.5 step 5-6).
func (r *Repository) BackupTarget(ctx context.Context, sel *selection.FileSelection, tags []string, onStatus func(StatusEvent)) (*BackupSummary, error) {
	params := map[string]any{"json": nil}
	if len(tags) > 0 {
		params["tag"] = tags
	}

	var lines []string
	err := r.runEngineStreamed(ctx, "backup", params, nil, sel.ToEngineArgs(), func(line string) {
		lines = append(lines, line)
	})
	summary := r.parseEngineLines(lines, onStatus)
	if err != nil {
		return summary, errs.Wrap(errs.KindBackup, "engine backup invocation failed", err)
	}
	if summary == nil {
		return nil, errs.New(errs.KindBackup, "engine produced no summary line")
	}
	return summary, nil
}

// Snapshots lists snapshots, optionally restricted to any of tags.
func (r *Repository) Snapshots(ctx context.Context, tags []string) ([]RawSnapshot, error) {
	params := map[string]any{"json": nil}
	if len(tags) > 0 {
		params["tag"] = tags
	}
	lines, err := r.runEngine(ctx, "snapshots", params, nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindRepository, "engine snapshots invocation failed", err)
	}
	return decodeSnapshotLines(lines)
}

func decodeSnapshotLines(lines []string) ([]RawSnapshot, error) {
	var snapshots []RawSnapshot
	for _, line := range lines {
		var snap RawSnapshot
		if err := json.Unmarshal([]byte(line), &snap); err != nil {
			continue
		}
		if snap.ID == "" {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Restore runs a restore of snapshotID into args.TargetPath, streaming
// progress to onStatus (§4.3, §4.7 step 4).
func (r *Repository) Restore(ctx context.Context, snapshotID string, args RestoreArgs, onStatus func(StatusEvent)) error {
	params := map[string]any{"json": nil, "target": args.TargetPath}
	if len(args.Include) > 0 {
		params["include"] = args.Include
	}
	if len(args.Exclude) > 0 {
		params["exclude"] = args.Exclude
	}
	if args.Overwrite {
		params["overwrite"] = nil
	}

	var lines []string
	err := r.runEngineStreamed(ctx, "restore", params, map[string]string{"snapshot-id": snapshotID}, nil, func(line string) {
		lines = append(lines, line)
	})
	r.parseEngineLines(lines, onStatus)
	if err != nil {
		return errs.Wrap(errs.KindRestore, "engine restore invocation failed", err)
	}
	return nil
}

// Check runs the engine's repository structure check.
func (r *Repository) Check(ctx context.Context, readData bool) CheckReport {
	start := time.Now()
	params := map[string]any{}
	if readData {
		params["read-data"] = nil
	}
	_, err := r.runEngine(ctx, "check", params, nil, nil)
	return CheckReport{Success: err == nil, Errors: errorList(err), Duration: time.Since(start)}
}

// CheckSnapshot runs a per-snapshot integrity check. The default engine
// definition has no dedicated subcommand for this, so it is expressed
// as a check restricted to the one snapshot via a positional filter.
func (r *Repository) CheckSnapshot(ctx context.Context, snapshotID string) CheckReport {
	start := time.Now()
	_, err := r.runEngine(ctx, "check", nil, nil, []string{"--snapshot", snapshotID})
	return CheckReport{Success: err == nil, Errors: errorList(err), Duration: time.Since(start)}
}

// Stats reports repository-wide size/file/blob counts.
func (r *Repository) Stats(ctx context.Context) (StatsReport, error) {
	lines, err := r.runEngine(ctx, "stats", map[string]any{"json": nil}, nil, nil)
	if err != nil {
		return StatsReport{}, errs.Wrap(errs.KindRepository, "engine stats invocation failed", err)
	}
	var report StatsReport
	for _, line := range lines {
		var decoded struct {
			TotalSize      int64 `json:"total_size"`
			TotalFileCount int   `json:"total_file_count"`
			TotalBlobCount int   `json:"total_blob_count"`
		}
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			continue
		}
		report = StatsReport{
			TotalSize:      decoded.TotalSize,
			TotalFileCount: decoded.TotalFileCount,
			TotalBlobCount: decoded.TotalBlobCount,
		}
	}
	return report, nil
}

// ForgetSnapshot removes one snapshot, optionally pruning immediately.
func (r *Repository) ForgetSnapshot(ctx context.Context, snapshotID string, prune bool) error {
	params := map[string]any{}
	if prune {
		params["prune"] = nil
	}
	_, err := r.runEngine(ctx, "forget", params, map[string]string{"snapshot-id": snapshotID}, nil)
	if err != nil {
		return errs.Wrap(errs.KindRepository, "engine forget invocation failed", err)
	}
	return nil
}

// PruneData reclaims space for data no snapshot references any longer.
func (r *Repository) PruneData(ctx context.Context) error {
	_, err := r.runEngine(ctx, "prune", nil, nil, nil)
	if err != nil {
		return errs.Wrap(errs.KindRepository, "engine prune invocation failed", err)
	}
	return nil
}

// ApplyRetentionPolicy forgets snapshots outside policy's retention
// window, optionally pruning. Requires a valid (non-empty) policy.
func (r *Repository) ApplyRetentionPolicy(ctx context.Context, policy RetentionPolicy, prune bool) error {
	if !policy.Valid() {
		return errs.New(errs.KindValidation, "retention policy has no fields set")
	}
	params := map[string]any{}
	if prune {
		params["prune"] = nil
	}
	_, err := r.runEngine(ctx, "forget", params, nil, policyFlags(policy))
	if err != nil {
		return errs.Wrap(errs.KindRepository, "engine retention-policy invocation failed", err)
	}
	return nil
}

func policyFlags(p RetentionPolicy) []string {
	var flags []string
	add := func(flag string, n int) {
		if n > 0 {
			flags = append(flags, flag, strconv.Itoa(n))
		}
	}
	add("--keep-last", p.KeepLast)
	add("--keep-hourly", p.KeepHourly)
	add("--keep-daily", p.KeepDaily)
	add("--keep-weekly", p.KeepWeekly)
	add("--keep-monthly", p.KeepMonthly)
	add("--keep-yearly", p.KeepYearly)
	if p.KeepWithin != "" {
		flags = append(flags, "--keep-within", p.KeepWithin)
	}
	for _, tag := range p.KeepTags {
		flags = append(flags, "--keep-tag", tag)
	}
	return flags
}

func errorList(err error) []string {
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}

// VerifyBackupComprehensive runs the four independently-timed checks of
// §4.3's verification contract in order: structure, statistics,
// per-snapshot integrity (if snapshotID given), and listing
// consistency. Any non-basic check failing downgrades to a warning
// without failing the whole verification; a failing basic check fails
// it outright.
func (r *Repository) VerifyBackupComprehensive(ctx context.Context, snapshotID string) VerificationReport {
	var report VerificationReport
	report.Success = true

	basic := timedCheck("repository_structure", func() error {
		cr := r.Check(ctx, false)
		if !cr.Success {
			return errs.New(errs.KindRepository, "repository structure check failed")
		}
		return nil
	})
	report.Checks = append(report.Checks, basic)
	if !basic.Success {
		report.Success = false
		return report
	}

	stats := timedCheck("statistics", func() error {
		_, err := r.Stats(ctx)
		return err
	})
	report.Checks = append(report.Checks, stats)

	if snapshotID != "" {
		integrity := timedCheck("snapshot_integrity", func() error {
			cr := r.CheckSnapshot(ctx, snapshotID)
			if !cr.Success {
				return errs.New(errs.KindRepository, "snapshot integrity check failed")
			}
			return nil
		})
		report.Checks = append(report.Checks, integrity)
	}

	consistency := timedCheck("consistency", func() error {
		_, err := r.Snapshots(ctx, nil)
		return err
	})
	report.Checks = append(report.Checks, consistency)

	return report
}

func timedCheck(name string, fn func() error) CheckResult {
	start := time.Now()
	err := fn()
	result := CheckResult{Name: name, Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		result.Warning = err.Error()
	}
	return result
}
