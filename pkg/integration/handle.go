// Package integration wires every TimeLocker subsystem — configuration,
// credentials, repositories, file selection, snapshots, restore,
// security auditing, and backup orchestration — behind one constructor
// returned handle. A hand-rolled CLI example would otherwise build each
// of these pieces inline in main; turning that "singleton CLI service
// manager" shape into an owned handle instead of a package-level
// singleton keeps every field below as private state on Handle rather
// than a global.
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/auriora/timelocker/internal/applog"
	"github.com/auriora/timelocker/pkg/config"
	"github.com/auriora/timelocker/pkg/credential"
	"github.com/auriora/timelocker/pkg/engine"
	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/orchestrator"
	"github.com/auriora/timelocker/pkg/repository"
	"github.com/auriora/timelocker/pkg/restore"
	"github.com/auriora/timelocker/pkg/security"
	"github.com/auriora/timelocker/pkg/snapshot"
)

// Options configures a Handle at construction time.
type Options struct {
	// HomeDir is the root directory under which the configuration
	// document, credential store, security audit log, and operation
	// history all live (<HomeDir>/config, <HomeDir>/credentials,
	// <HomeDir>/security, <HomeDir>/status).
	HomeDir string

	// EngineExecutable is the snapshot engine binary invoked for every
	// repository this handle opens (§1/§9 "opaque child process").
	EngineExecutable string

	// SnapshotCacheTTL overrides settings.snapshot_cache_ttl_seconds
	// from the configuration document when non-zero.
	SnapshotCacheTTL time.Duration

	LogJSON  bool
	LogLevel applog.Level
}

// Handle owns every subsystem constructed from one configuration
// document and is the module's one supported embedding surface.
type Handle struct {
	opts Options

	logger     applog.Logger
	config     *config.Manager
	credential *credential.Store
	security   *security.Service
	history    *orchestrator.HistoryStore
	runner     *engine.Runner
	orch       *orchestrator.Orchestrator

	repos map[string]*repository.Repository
}

// Open constructs a Handle from opts, creating any missing on-disk
// state (configuration document, credential store directories, audit
// log) exactly as each subsystem's own constructor does in isolation.
func Open(opts Options) (*Handle, error) {
	if opts.HomeDir == "" {
		return nil, errs.New(errs.KindValidation, "home directory must not be empty")
	}
	if opts.EngineExecutable == "" {
		return nil, errs.New(errs.KindValidation, "engine executable must not be empty")
	}

	logger := applog.New("timelocker", applog.Config{Level: opts.LogLevel, JSONOutput: opts.LogJSON})

	cfgMgr, err := config.Open(join(opts.HomeDir, "config"))
	if err != nil {
		return nil, err
	}
	doc := cfgMgr.Snapshot()

	credStore, err := credential.Open(join(opts.HomeDir, "credentials"), credential.Options{
		MaxFailedAttempts: doc.Security.MaxFailedAttempts,
		LockoutDuration:   time.Duration(doc.Security.LockoutDuration) * time.Second,
		AutoLockTimeout:   time.Duration(doc.Security.CredentialTimeout) * time.Second,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	secSvc, err := security.NewService(join(opts.HomeDir, "security"))
	if err != nil {
		return nil, err
	}

	historyStore, err := orchestrator.NewHistoryStore(join(opts.HomeDir, "status"))
	if err != nil {
		return nil, err
	}

	runner := engine.NewRunner(opts.EngineExecutable, logger)

	h := &Handle{
		opts:       opts,
		logger:     logger,
		config:     cfgMgr,
		credential: credStore,
		security:   secSvc,
		history:    historyStore,
		runner:     runner,
		orch:       orchestrator.New(secSvc, historyStore),
		repos:      map[string]*repository.Repository{},
	}
	return h, nil
}

func join(base, leaf string) string {
	return base + string('/') + leaf
}

// Config exposes the configuration manager for callers that need
// direct document access (e.g. a CLI's `config set` command).
func (h *Handle) Config() *config.Manager { return h.config }

// Credentials exposes the credential store.
func (h *Handle) Credentials() *credential.Store { return h.credential }

// Security exposes the security/audit service.
func (h *Handle) Security() *security.Service { return h.security }

// Unlock unlocks the credential store so repository passwords resolve.
func (h *Handle) Unlock(masterPassword string) error {
	return h.credential.Unlock(masterPassword)
}

// Repository resolves a configured repository by name, constructing
// and caching its *repository.Repository on first use.
func (h *Handle) Repository(name string) (*repository.Repository, error) {
	if repo, ok := h.repos[name]; ok {
		return repo, nil
	}
	doc := h.config.Snapshot()
	entry, ok := doc.Repositories[name]
	if !ok {
		return nil, errs.Newf(errs.KindConfiguration, "unknown repository %q", name)
	}
	backend, err := backendFromEntry(entry)
	if err != nil {
		return nil, err
	}
	repo, err := repository.New(repository.Config{
		RepositoryID:    name,
		Backend:         backend,
		CredentialStore: h.credential,
		Runner:          h.runner,
		Logger:          h.logger,
	})
	if err != nil {
		return nil, err
	}
	h.repos[name] = repo
	return repo, nil
}

func backendFromEntry(entry config.RepositoryEntry) (repository.Backend, error) {
	switch entry.Type {
	case string(repository.KindLocal):
		return repository.Local{Path: entry.Fields["path"]}, nil
	case string(repository.KindS3):
		return repository.S3{
			Bucket:          entry.Fields["bucket"],
			Prefix:          entry.Fields["prefix"],
			Region:          entry.Fields["region"],
			AccessKeyID:     entry.Fields["access_key_id"],
			SecretAccessKey: entry.Fields["secret_access_key"],
		}, nil
	case string(repository.KindB2):
		return repository.B2{
			Bucket:     entry.Fields["bucket"],
			Prefix:     entry.Fields["prefix"],
			AccountID:  entry.Fields["account_id"],
			AccountKey: entry.Fields["account_key"],
		}, nil
	case string(repository.KindSFTP):
		return repository.SFTP{
			User: entry.Fields["user"],
			Host: entry.Fields["host"],
			Path: entry.Fields["path"],
		}, nil
	default:
		return nil, errs.Newf(errs.KindConfiguration, "unknown repository type %q", entry.Type)
	}
}

// Snapshots returns a snapshot listing service for the named
// repository, caching results per the configured TTL.
func (h *Handle) Snapshots(repoName string) (*snapshot.Service, error) {
	repo, err := h.Repository(repoName)
	if err != nil {
		return nil, err
	}
	ttl := h.opts.SnapshotCacheTTL
	if ttl <= 0 {
		doc := h.config.Snapshot()
		ttl = time.Duration(doc.Settings.SnapshotCacheTTLSeconds) * time.Second
	}
	return snapshot.NewService(repo, ttl), nil
}

// Restore returns a restore service bound to the named repository's
// snapshot listing service.
func (h *Handle) Restore(repoName string) (*restore.Service, error) {
	repo, err := h.Repository(repoName)
	if err != nil {
		return nil, err
	}
	snaps, err := h.Snapshots(repoName)
	if err != nil {
		return nil, err
	}
	return restore.NewService(repo, snaps).WithSecurity(h.security), nil
}

// Backup runs the named targets against the named repository through
// the orchestrator, retrying transient failures per the document's
// retry settings when retryOnFailure is true.
func (h *Handle) Backup(ctx context.Context, req orchestrator.Request, onStatus func(repository.StatusEvent)) orchestrator.Result {
	doc := h.config.Snapshot()
	if !doc.Settings.RetryOnFailure {
		return h.orch.ExecuteBackup(ctx, req, onStatus)
	}
	delay := time.Duration(doc.Settings.RetryDelaySeconds * float64(time.Second))
	return h.orch.ExecuteBackupWithRetry(ctx, req, doc.Settings.MaxRetries, delay, onStatus)
}

// History returns the operation history for repoName (or every
// repository when repoName is empty), newest first, truncated to limit.
func (h *Handle) History(repoName string, limit int) ([]orchestrator.Result, error) {
	return h.history.GetBackupHistory(repoName, limit)
}

func (h *Handle) String() string {
	return fmt.Sprintf("integration.Handle{home=%s}", h.opts.HomeDir)
}
