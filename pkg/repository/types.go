package repository

import "time"

// StatusEvent is a progress update decoded from one "status"-typed
// engine output line (§4.3 "Output stream contract").
type StatusEvent struct {
	PercentDone float64
	FilesDone   int
	TotalFiles  int
	BytesDone   int64
	TotalBytes  int64
}

// BackupSummary is decoded from the one "summary"-typed engine output
// line a backup run emits on completion.
type BackupSummary struct {
	SnapshotID       string
	FilesNew         int
	FilesChanged     int
	FilesUnmodified  int
	DataAdded        int64
	Duration         time.Duration
}

// RawSnapshot is the engine's JSON snapshot descriptor, decoded as-is
// for pkg/snapshot to adapt into its immutable Snapshot model.
type RawSnapshot struct {
	ID       string   `json:"id"`
	ShortID  string   `json:"short_id"`
	Time     string   `json:"time"`
	Paths    []string `json:"paths"`
	Tags     []string `json:"tags"`
	Hostname string   `json:"hostname"`
	Username string   `json:"username"`
	Summary  struct {
		TotalSize       int64 `json:"total_size"`
		TotalFileCount  int   `json:"total_file_count"`
		FilesNew        int   `json:"files_new"`
		FilesChanged    int   `json:"files_changed"`
		FilesUnmodified int   `json:"files_unmodified"`
		DataAdded       int64 `json:"data_added"`
	} `json:"summary"`
}

// CheckReport is the result of Check/CheckSnapshot (§4.3).
type CheckReport struct {
	Success  bool
	Errors   []string
	Duration time.Duration
}

// StatsReport is the result of Stats (§4.3).
type StatsReport struct {
	TotalSize      int64
	TotalFileCount int
	TotalBlobCount int
}

// RetentionPolicy mirrors §3's data model; Valid iff at least one field
// is set (non-zero / non-empty).
type RetentionPolicy struct {
	KeepLast    int
	KeepHourly  int
	KeepDaily   int
	KeepWeekly  int
	KeepMonthly int
	KeepYearly  int
	KeepWithin  string
	KeepTags    []string
}

// Valid reports whether at least one retention field is set (§3).
func (p RetentionPolicy) Valid() bool {
	return p.KeepLast > 0 || p.KeepHourly > 0 || p.KeepDaily > 0 ||
		p.KeepWeekly > 0 || p.KeepMonthly > 0 || p.KeepYearly > 0 ||
		p.KeepWithin != "" || len(p.KeepTags) > 0
}

// RestoreArgs is the minimal set of restore parameters a Repository
// needs to build the engine's restore command; pkg/restore builds this
// from its richer RestoreOptions.
type RestoreArgs struct {
	TargetPath string
	Include    []string
	Exclude    []string
	Overwrite  bool
}

// CheckResult is one named check inside a VerificationReport.
type CheckResult struct {
	Name     string
	Success  bool
	Warning  string
	Duration time.Duration
}

// VerificationReport is the result of VerifyBackupComprehensive (§4.3
// "Verification contract").
type VerificationReport struct {
	Success bool
	Checks  []CheckResult
}
