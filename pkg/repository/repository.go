package repository

import (
	"context"
	"os"
	"sync"

	"github.com/auriora/timelocker/pkg/engine"
	"github.com/auriora/timelocker/pkg/errs"
)

// CredentialStore is the slice of pkg/credential's contract a
// Repository depends on: password lookup by repository ID. Kept as a
// narrow interface here to avoid a pkg/repository -> pkg/credential
// import cycle (pkg/credential has no need to know about repositories).
type CredentialStore interface {
	GetRepositoryPassword(repoID string) (string, bool, error)
}

// Config assembles a Repository, mirroring resticlib.Config's
// struct-literal construction style.
type Config struct {
	RepositoryID     string
	Backend          Backend
	ExplicitPassword string
	CredentialStore  CredentialStore
	Runner           *engine.Runner
	EngineDefinition *engine.CommandDefinition
	Logger           engine.Logger
}

// Repository is the concrete type backing every backend kind; the
// variant behavior lives entirely in the embedded Backend (§4.3).
type Repository struct {
	id               string
	backend          Backend
	explicitPassword string
	credentials      CredentialStore
	runner           *engine.Runner
	def              *engine.CommandDefinition
	logger           engine.Logger

	envOnce sync.Once
	env     map[string]string
}

// New builds a Repository from cfg. A nil EngineDefinition falls back
// to DefaultEngineDefinition(); a nil Logger discards.
func New(cfg Config) (*Repository, error) {
	if cfg.RepositoryID == "" {
		return nil, errs.New(errs.KindValidation, "repository id must not be empty")
	}
	if cfg.Backend == nil {
		return nil, errs.New(errs.KindValidation, "repository backend must not be nil")
	}
	if cfg.Runner == nil {
		return nil, errs.New(errs.KindValidation, "repository requires an engine runner")
	}
	def := cfg.EngineDefinition
	if def == nil {
		def = DefaultEngineDefinition()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger{}
	}
	return &Repository{
		id:               cfg.RepositoryID,
		backend:          cfg.Backend,
		explicitPassword: cfg.ExplicitPassword,
		credentials:      cfg.CredentialStore,
		runner:           cfg.Runner,
		def:              def,
		logger:           logger,
	}, nil
}

// discardLogger is used when Config.Logger is nil.
type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}

// ID returns the repository's identifier (used for credential lookup
// and history/audit correlation).
func (r *Repository) ID() string { return r.id }

// Kind returns the backend variant this repository wraps.
func (r *Repository) Kind() BackendKind { return r.backend.Kind() }

// URI returns the canonical location URI (§4.3).
func (r *Repository) URI() string { return r.backend.URI() }

// BackendEnv returns the backend-specific environment map (§4.3).
func (r *Repository) BackendEnv() map[string]string {
	env := map[string]string{}
	for k, v := range r.backend.Env() {
		env[k] = v
	}
	return env
}

// Password resolves the effective password: explicit > credential
// store > ambient environment (§3, §4.3). Returns a
// SubkindPasswordMissing error if none is available.
func (r *Repository) Password() (string, error) {
	if r.explicitPassword != "" {
		return r.explicitPassword, nil
	}
	if r.credentials != nil {
		pw, ok, err := r.credentials.GetRepositoryPassword(r.id)
		if err != nil {
			return "", errs.Wrap(errs.KindRepository, "credential store lookup failed", err)
		}
		if ok {
			return pw, nil
		}
	}
	if v := os.Getenv(PasswordEnvVar); v != "" {
		return v, nil
	}
	return "", errs.WrapSubkind(errs.SubkindPasswordMissing,
		"no password available for repository "+r.id, nil)
}

// ToEnv returns the cached merge of BackendEnv with the resolved
// password (under PasswordEnvVar, omitted if unavailable), computed
// once per Repository instance and never invalidated during its
// lifetime — callers must obtain a fresh Repository after rotating a
// credential (§4.3 "to_env()", decided in SPEC_FULL.md §D).
func (r *Repository) ToEnv() map[string]string {
	r.envOnce.Do(func() {
		env := r.BackendEnv()
		if pw, err := r.Password(); err == nil {
			env[PasswordEnvVar] = pw
		}
		r.env = env
	})
	return r.env
}

// runEngine spawns the engine through a fresh Builder against r.def,
// descending into subcommand, staging params, and returning captured
// combined stdout+stderr lines.
func (r *Repository) runEngine(ctx context.Context, subcommand string, params map[string]any, synopsis map[string]string, extraArgs []string) ([]string, error) {
	b := engine.NewBuilder(r.def)
	if subcommand != "" {
		if err := b.Command(subcommand); err != nil {
			return nil, err
		}
	}
	for name, value := range params {
		if err := b.Param(name, value); err != nil {
			return nil, err
		}
	}
	argv, err := b.Build(false, synopsis)
	if err != nil {
		return nil, err
	}
	argv = append(argv, extraArgs...)

	var lines []string
	runErr := r.runner.Run(ctx, argv, r.ToEnv(), func(line string) {
		lines = append(lines, line)
	})
	return lines, runErr
}

// runEngineStreamed is like runEngine but invokes onLine per line as it
// arrives instead of buffering, for long-running progress-emitting
// operations (backup, restore).
func (r *Repository) runEngineStreamed(ctx context.Context, subcommand string, params map[string]any, synopsis map[string]string, extraArgs []string, onLine func(string)) error {
	b := engine.NewBuilder(r.def)
	if subcommand != "" {
		if err := b.Command(subcommand); err != nil {
			return err
		}
	}
	for name, value := range params {
		if err := b.Param(name, value); err != nil {
			return err
		}
	}
	argv, err := b.Build(false, synopsis)
	if err != nil {
		return err
	}
	argv = append(argv, extraArgs...)

	return r.runner.Run(ctx, argv, r.ToEnv(), onLine)
}
