package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/auriora/timelocker/pkg/errs"
)

// RepositoryInfo is the result of GetRepositoryInfo (§4.3).
type RepositoryInfo struct {
	Location      string
	Kind          BackendKind
	RepositoryID  string
	Initialized   bool
	Writable      bool
	SizeBytes     int64
	ConfigSnippet string
}

// HealthChecks is the per-check breakdown inside a HealthReport (§4.3).
type HealthChecks struct {
	DirectoryExists        bool
	DirectoryWritable      bool
	RepositoryInitialized  bool
	PasswordAvailable      bool
	EngineAccessible       bool
}

// HealthReport is the result of ValidateRepositoryHealth (§4.3).
type HealthReport struct {
	Healthy bool
	Issues  []string
	Checks  HealthChecks
}

// InitializeRepository ensures the target is reachable, runs the
// engine's init subcommand, and optionally persists the password.
// Idempotent: returns nil immediately if already initialized. The
// supplied password temporarily overrides any configured explicit
// password for the duration of the call and is restored on every exit
// path (§4.3).
func (r *Repository) InitializeRepository(ctx context.Context, password string, store CredentialStore) error {
	if r.IsRepositoryInitialized(ctx) {
		return nil
	}

	if local, ok := r.backend.(Local); ok {
		if err := os.MkdirAll(local.Path, 0o755); err != nil {
			return errs.Wrap(errs.KindRepository, "failed to create local repository directory", err)
		}
	}

	original := r.explicitPassword
	r.explicitPassword = password
	defer func() { r.explicitPassword = original }()

	if _, err := r.runEngine(ctx, "init", nil, nil, nil); err != nil {
		return errs.Wrap(errs.KindRepository, "engine init failed", err)
	}

	if store != nil {
		if setter, ok := store.(interface {
			StoreRepositoryPassword(id, password string) error
		}); ok {
			if err := setter.StoreRepositoryPassword(r.id, password); err != nil {
				return errs.Wrap(errs.KindCredential, "failed to persist repository password", err)
			}
		}
	}
	return nil
}

// IsRepositoryInitialized reports whether the repository already
// exists. For a local backend this checks for a "config" file under
// the path; otherwise it asks the engine to read the config object
// directly (§4.3).
func (r *Repository) IsRepositoryInitialized(ctx context.Context) bool {
	if local, ok := r.backend.(Local); ok {
		_, err := os.Stat(filepath.Join(local.Path, "config"))
		return err == nil
	}
	_, err := r.runEngine(ctx, "cat", nil, map[string]string{"item": "config"}, nil)
	return err == nil
}

// GetRepositoryInfo returns the descriptive fields of §4.3. Errors
// encountered computing size or reading the config degrade gracefully
// to zero/empty rather than failing the whole call.
func (r *Repository) GetRepositoryInfo(ctx context.Context) RepositoryInfo {
	info := RepositoryInfo{
		Location:     r.URI(),
		Kind:         r.backend.Kind(),
		RepositoryID: r.id,
		Initialized:  r.IsRepositoryInitialized(ctx),
	}

	if local, ok := r.backend.(Local); ok {
		info.Writable = isWritableDir(local.Path)
		info.SizeBytes = dirSize(local.Path)
		if data, err := os.ReadFile(filepath.Join(local.Path, "config")); err == nil {
			info.ConfigSnippet = string(data)
		}
	} else {
		info.Writable = true
		if lines, err := r.runEngine(ctx, "cat", nil, map[string]string{"item": "config"}, nil); err == nil {
			info.ConfigSnippet = strings.Join(lines, "\n")
		}
	}
	return info
}

func isWritableDir(path string) bool {
	probe := filepath.Join(path, ".tl-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// minEngineVersion is the lowest engine version ValidateRepositoryHealth
// accepts as "accessible" when a caller cares about version gating.
var minEngineVersion = semver.MustParse("0.9.0")

// verifyEngineExecutable runs the engine's version subcommand once and
// compares the reported semver against minVersion, classifying failures
// as SubkindEngineNotFound or SubkindEngineVersionTooOld (§4.3
// "_verify_restic_executable").
func (r *Repository) verifyEngineExecutable(ctx context.Context, minVersion *semver.Version) error {
	lines, err := r.runEngine(ctx, "version", nil, nil, nil)
	if err != nil {
		return errs.WrapSubkind(errs.SubkindEngineNotFound, "snapshot engine executable not found or not runnable", err)
	}
	version := extractVersion(lines)
	if version == nil {
		return nil // engine ran but didn't report a parseable version; treat as accessible
	}
	if version.LessThan(minVersion) {
		return errs.WrapSubkind(errs.SubkindEngineVersionTooOld,
			fmt.Sprintf("engine version %s is older than required %s", version, minVersion), nil)
	}
	return nil
}

func extractVersion(lines []string) *semver.Version {
	for _, line := range lines {
		for _, field := range strings.Fields(line) {
			if v, err := semver.NewVersion(field); err == nil {
				return v
			}
		}
	}
	return nil
}

// ValidateRepositoryHealth runs every check of §4.3 and reports which
// failed, with a human-readable issue string per failure.
func (r *Repository) ValidateRepositoryHealth(ctx context.Context) HealthReport {
	var report HealthReport
	checks := &report.Checks

	if local, ok := r.backend.(Local); ok {
		if _, err := os.Stat(local.Path); err == nil {
			checks.DirectoryExists = true
			checks.DirectoryWritable = isWritableDir(local.Path)
		}
	} else {
		checks.DirectoryExists = true
		checks.DirectoryWritable = true
	}

	checks.RepositoryInitialized = r.IsRepositoryInitialized(ctx)

	if _, err := r.Password(); err == nil {
		checks.PasswordAvailable = true
	}

	checks.EngineAccessible = r.verifyEngineExecutable(ctx, minEngineVersion) == nil

	report.Healthy = checks.DirectoryExists && checks.DirectoryWritable &&
		checks.RepositoryInitialized && checks.PasswordAvailable && checks.EngineAccessible

	if !checks.DirectoryExists {
		report.Issues = append(report.Issues, "repository directory does not exist")
	}
	if !checks.DirectoryWritable {
		report.Issues = append(report.Issues, "repository directory is not writable")
	}
	if !checks.RepositoryInitialized {
		report.Issues = append(report.Issues, "repository has not been initialized")
	}
	if !checks.PasswordAvailable {
		report.Issues = append(report.Issues, "no password available from any source")
	}
	if !checks.EngineAccessible {
		report.Issues = append(report.Issues, "snapshot engine executable is not accessible or too old")
	}
	return report
}

// CommonIssues pairs each failing check in report with a canned
// remediation string (§C.2, supplemented from original_source/'s
// get_common_repository_issues).
func (r *Repository) CommonIssues(report HealthReport) []string {
	var remedies []string
	c := report.Checks
	if !c.DirectoryExists {
		remedies = append(remedies, "create the repository directory or correct its configured path")
	}
	if !c.DirectoryWritable {
		remedies = append(remedies, "fix directory permissions so the current user can write to it")
	}
	if !c.RepositoryInitialized {
		remedies = append(remedies, "run initialize on this repository before using it")
	}
	if !c.PasswordAvailable {
		remedies = append(remedies, "set a repository password explicitly, store it in the credential store, or export "+PasswordEnvVar)
	}
	if !c.EngineAccessible {
		remedies = append(remedies, "install the snapshot engine executable and ensure it is on PATH at a supported version")
	}
	return remedies
}
