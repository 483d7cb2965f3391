package security

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/repository"
)

const auditLogFileName = "audit.log"
const lockdownMarkerName = "emergency_lockdown.marker"

// Repository is the slice of pkg/repository.Repository this service
// depends on for encryption/integrity checks, kept narrow to avoid
// coupling to the whole repository surface.
type Repository interface {
	ID() string
	Password() (string, error)
	Check(ctx context.Context, readData bool) repository.CheckReport
	CheckSnapshot(ctx context.Context, snapshotID string) repository.CheckReport
}

// Service is the security/audit service of §4.8. One instance owns one
// config directory (its audit.log and lockdown marker).
type Service struct {
	mu        sync.Mutex
	configDir string
	handlers  []Handler
}

// NewService opens (creating if absent) the security service rooted at
// configDir, initializing the audit log with a header on first use.
func NewService(configDir string) (*Service, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "failed to create security config directory", err)
	}
	s := &Service{configDir: configDir}
	logPath := s.auditLogPath()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		header := fmt.Sprintf("# TimeLocker Security Audit Log\n# Initialized: %s\n# Format: timestamp|event_type|level|description|metadata-json\n",
			time.Now().UTC().Format(time.RFC3339))
		if err := os.WriteFile(logPath, []byte(header), 0o600); err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, "failed to initialize audit log", err)
		}
	}
	return s, nil
}

func (s *Service) auditLogPath() string    { return filepath.Join(s.configDir, auditLogFileName) }
func (s *Service) lockdownMarkerPath() string { return filepath.Join(s.configDir, lockdownMarkerName) }

// AddEventHandler registers fn to be invoked on every logged event.
func (s *Service) AddEventHandler(fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// RemoveEventHandler removes fn, matched by function pointer identity
// (Go func values aren't comparable with ==; reflect.Value.Pointer() is
// the standard workaround, stable for named functions and for a single
// closure value added once).
func (s *Service) RemoveEventHandler(fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := reflect.ValueOf(fn).Pointer()
	out := s.handlers[:0]
	for _, h := range s.handlers {
		if reflect.ValueOf(h).Pointer() != target {
			out = append(out, h)
		}
	}
	s.handlers = out
}

// LogSecurityEvent appends event to the audit log and invokes every
// registered handler. A handler panic is recovered and isolated so it
// cannot break logging or any other handler (§4.8, §7).
func (s *Service) LogSecurityEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers...)
	s.mu.Unlock()

	s.appendLine(event)

	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(event)
		}()
	}
}

func (s *Service) appendLine(event Event) {
	f, err := os.OpenFile(s.auditLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	line := strings.Join([]string{
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.EventType,
		string(event.Level),
		event.Description,
		event.metadataJSON(),
	}, "|")
	fmt.Fprintln(f, line)
}

// VerifyRepositoryEncryption reports whether repo has an effective
// password; encryption is implied present iff so (§4.8, §9 design note
// "treat the engine as an opaque boundary" — this service never probes
// the backend for its actual cipher, only the precondition for it).
func (s *Service) VerifyRepositoryEncryption(repo Repository) EncryptionStatus {
	pw, err := repo.Password()
	if err != nil || pw == "" {
		return EncryptionStatus{IsEncrypted: false}
	}
	hash := sha256.Sum256([]byte(repo.ID() + ":" + pw))
	return EncryptionStatus{
		IsEncrypted:         true,
		EncryptionAlgorithm: "AES-256",
		KeyDerivation:       "scrypt",
		LastVerified:        time.Now(),
		VerificationHash:    hex.EncodeToString(hash[:]),
	}
}

// ValidateBackupIntegrity delegates to CheckSnapshot if snapshotID is
// given, else Check; returns false on either a failing check or a
// run-time error (§4.8).
func (s *Service) ValidateBackupIntegrity(ctx context.Context, repo Repository, snapshotID string) bool {
	if snapshotID != "" {
		return repo.CheckSnapshot(ctx, snapshotID).Success
	}
	return repo.Check(ctx, false).Success
}

// AuditBackupOperation logs a backup_operation event (§4.8).
func (s *Service) AuditBackupOperation(repo Repository, operationType string, targets []string, success bool, metadata map[string]any) {
	s.auditOperation("backup_operation", repo.ID(), success, mergeMetadata(metadata, map[string]any{
		"operation_type": operationType,
		"targets":        targets,
	}))
}

// AuditRestoreOperation logs a restore_operation event (§4.8).
func (s *Service) AuditRestoreOperation(repo Repository, snapshotID, targetPath string, success bool, metadata map[string]any) {
	s.auditOperation("restore_operation", repo.ID(), success, mergeMetadata(metadata, map[string]any{
		"snapshot_id": snapshotID,
		"target_path": targetPath,
	}))
}

// AuditCredentialAccess logs a credential_access event (§4.8).
func (s *Service) AuditCredentialAccess(credentialID, operation string, success bool) {
	s.auditOperation("credential_access", "", success, map[string]any{
		"credential_id": credentialID,
		"operation":     operation,
	})
}

// AuditIntegrityCheck logs an integrity_check event (§4.8).
func (s *Service) AuditIntegrityCheck(repo Repository, checkType string, success bool, results map[string]any) {
	s.auditOperation("integrity_check", repo.ID(), success, mergeMetadata(results, map[string]any{
		"check_type": checkType,
	}))
}

func (s *Service) auditOperation(eventType, repositoryID string, success bool, metadata map[string]any) {
	status := "FAILURE"
	level := LevelMedium
	if success {
		status = "SUCCESS"
	} else {
		level = LevelHigh
	}
	s.LogSecurityEvent(Event{
		Timestamp:    time.Now(),
		EventType:    eventType,
		Level:        level,
		Description:  fmt.Sprintf("%s %s", eventType, status),
		RepositoryID: repositoryID,
		Metadata:     metadata,
	})
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// ValidateSecurityConfig checks cfg against the fixed rules of §4.8.
func (s *Service) ValidateSecurityConfig(cfg Config) ConfigValidation {
	var issues []string
	if !cfg.EncryptionEnabled {
		issues = append(issues, "Encryption is disabled")
	}
	if !cfg.AuditLogging {
		issues = append(issues, "Audit logging is disabled")
	}
	if cfg.CredentialTimeout < 60 {
		issues = append(issues, "Credential timeout must be at least 60 seconds")
	}
	if cfg.MaxFailedAttempts < 1 {
		issues = append(issues, "Max failed attempts must be at least 1")
	}
	if cfg.LockoutDuration < 0 {
		issues = append(issues, "Lockout duration must be non-negative")
	}
	return ConfigValidation{Valid: len(issues) == 0, Issues: issues}
}

// EmergencyLockdown writes a lockdown marker file and emits a critical
// audit event; LockdownActive observes the marker (§4.8, §6).
func (s *Service) EmergencyLockdown(reason string, metadata map[string]any) error {
	content := fmt.Sprintf("locked down at %s: %s\n", time.Now().UTC().Format(time.RFC3339), reason)
	if err := os.WriteFile(s.lockdownMarkerPath(), []byte(content), 0o600); err != nil {
		return errs.Wrap(errs.KindConfiguration, "failed to write emergency lockdown marker", err)
	}
	s.LogSecurityEvent(Event{
		Timestamp:   time.Now(),
		EventType:   "emergency_lockdown",
		Level:       LevelCritical,
		Description: reason,
		Metadata:    metadata,
	})
	return nil
}

// LockdownActive reports whether the emergency lockdown marker is present.
func (s *Service) LockdownActive() bool {
	_, err := os.Stat(s.lockdownMarkerPath())
	return err == nil
}

// ClearLockdown removes the lockdown marker.
func (s *Service) ClearLockdown() error {
	err := os.Remove(s.lockdownMarkerPath())
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindConfiguration, "failed to clear emergency lockdown marker", err)
	}
	return nil
}

// GetSecuritySummary aggregates audit events from the last `days` days
// by event_type and level (§4.8).
func (s *Service) GetSecuritySummary(days int) (Summary, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	f, err := os.Open(s.auditLogPath())
	if err != nil {
		return Summary{}, errs.Wrap(errs.KindConfiguration, "failed to read audit log", err)
	}
	defer f.Close()

	summary := Summary{
		PeriodDays:    days,
		EventsByType:  map[string]int{},
		EventsByLevel: map[string]int{},
		GeneratedAt:   time.Now(),
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 5)
		if len(fields) != 5 {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, fields[0])
		if err != nil || ts.Before(cutoff) {
			continue
		}
		summary.TotalEvents++
		summary.EventsByType[fields[1]]++
		summary.EventsByLevel[fields[2]]++
	}
	return summary, scanner.Err()
}

// sortedKeys is a small helper kept for callers that want deterministic
// summary output (e.g. CLI rendering).
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
