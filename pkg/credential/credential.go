// Package credential implements the master-password-gated encrypted
// credential store of §4.4: a small explicit state machine layered over
// a scrypt-derived key and AEAD-encrypted payload, with failed-attempt
// lockout, auto-lock on idle, and a tamper-resistant audit trail.
package credential

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
)

// State is one of the four states of §3's credential store state machine.
type State string

const (
	StateEmpty     State = "empty"
	StateLocked    State = "locked"
	StateUnlocked  State = "unlocked"
	StateLockedOut State = "locked_out"
)

// Kind distinguishes the two credential record shapes of §3.
type Kind string

const (
	KindRepositoryPassword Kind = "repository_password"
	KindBackendCredentials Kind = "backend_credentials"
)

// record is the decrypted, in-memory form of one credential. Only
// populated while the store is Unlocked.
type record struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	CreatedAt    time.Time         `json:"created_at"`
	LastAccessed time.Time         `json:"last_accessed"`
	AccessCount  int               `json:"access_count"`
	Secret       string            `json:"secret,omitempty"`
	BackendMap   map[string]string `json:"backend_map,omitempty"`
}

// Metadata is what GetCredentialMetadata exposes: everything about a
// credential except its secret (§4.4).
type Metadata struct {
	ID           string
	Kind         Kind
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
}

// SecurityStatus is the result of GetSecurityStatus (§4.4).
type SecurityStatus struct {
	IsLocked        bool
	FailedAttempts  int
	AutoLockTimeout time.Duration
	LastActivityAge *time.Duration
}

// Options configures policy knobs a Store enforces.
type Options struct {
	MaxFailedAttempts int           // default 5
	LockoutDuration   time.Duration // default 5 minutes
	AutoLockTimeout   time.Duration // 0 disables auto-lock
	Logger            Logger
}

// Logger is the minimal logging surface this package depends on.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}

// Store is the credential store. One Store instance owns one on-disk
// directory; all public operations serialize through mu (§5
// "credential store serializes internally").
type Store struct {
	mu sync.Mutex

	dir               string
	maxFailedAttempts int
	lockoutDuration   time.Duration
	autoLockTimeout   time.Duration
	logger            Logger

	state          State
	failedAttempts int
	lockoutUntil   time.Time
	lastActivity   time.Time

	salt    []byte
	key     []byte // derived master key, present only while Unlocked
	records map[string]*record
}

const (
	payloadFileName  = "payload.bin"
	saltFileName     = "salt.bin"
	verifierFileName = "verifier.bin"
	auditFileName    = "audit.log"
)

// Open opens (or prepares to create) the credential store rooted at
// dir, which is created if absent. If a store already exists on disk
// (salt + verifier present), the returned Store starts Locked;
// otherwise it starts Empty, awaiting Create.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.Wrap(errs.KindCredential, "failed to create credential store directory", err)
	}
	maxAttempts := opts.MaxFailedAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	lockout := opts.LockoutDuration
	if lockout <= 0 {
		lockout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger{}
	}

	s := &Store{
		dir:               dir,
		maxFailedAttempts: maxAttempts,
		lockoutDuration:   lockout,
		autoLockTimeout:   opts.AutoLockTimeout,
		logger:            logger,
		records:           map[string]*record{},
	}

	saltPath := filepath.Join(dir, saltFileName)
	verifierPath := filepath.Join(dir, verifierFileName)
	if _, err := os.Stat(saltPath); err == nil {
		if _, err := os.Stat(verifierPath); err == nil {
			salt, err := os.ReadFile(saltPath)
			if err != nil {
				return nil, errs.Wrap(errs.KindCredential, "failed to read salt file", err)
			}
			s.salt = salt
			s.state = StateLocked
			s.readFailedAttempts()
			return s, nil
		}
	}
	s.state = StateEmpty
	return s, nil
}

// IsLocked reports whether the store is anywhere other than Unlocked.
func (s *Store) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionOnTimeoutLocked()
	return s.state != StateUnlocked
}

// transitionOnTimeoutLocked applies the two time-driven transitions of
// §3 before any public operation proceeds: Unlocked -> Locked on idle
// timeout, and LockedOut -> Locked once the lockout window elapses.
// Callers must hold mu.
func (s *Store) transitionOnTimeoutLocked() {
	now := time.Now()
	if s.state == StateUnlocked && s.autoLockTimeout > 0 && now.Sub(s.lastActivity) > s.autoLockTimeout {
		s.lockLocked()
	}
	if s.state == StateLockedOut && !now.Before(s.lockoutUntil) {
		s.state = StateLocked
	}
}

func (s *Store) lockLocked() {
	s.state = StateLocked
	s.key = nil
	s.records = map[string]*record{}
}

// Lock transitions Unlocked -> Locked, discarding the in-memory key and
// decrypted records.
func (s *Store) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionOnTimeoutLocked()
	if s.state != StateUnlocked {
		return nil
	}
	s.lockLocked()
	return nil
}

// requireUnlockedLocked returns a CredentialError if the store isn't
// Unlocked, after applying timeout transitions. Callers must hold mu.
func (s *Store) requireUnlockedLocked() error {
	s.transitionOnTimeoutLocked()
	switch s.state {
	case StateUnlocked:
		s.lastActivity = time.Now()
		return nil
	case StateLockedOut:
		return errs.NewSubkind(errs.KindCredential, errs.SubkindCredentialLockedOut,
			"credential store is locked out after too many failed attempts")
	default:
		return errs.New(errs.KindCredential, "credential store is locked")
	}
}
