package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/auriora/timelocker/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	id       string
	password string
	passErr  error
	check    repository.CheckReport
	snapshot repository.CheckReport
}

func (f *fakeRepo) ID() string                 { return f.id }
func (f *fakeRepo) Password() (string, error)  { return f.password, f.passErr }
func (f *fakeRepo) Check(ctx context.Context, readData bool) repository.CheckReport {
	return f.check
}
func (f *fakeRepo) CheckSnapshot(ctx context.Context, snapshotID string) repository.CheckReport {
	return f.snapshot
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(filepath.Join(t.TempDir(), "security"))
	require.NoError(t, err)
	return svc
}

func TestNewServiceInitializesAuditLogWithHeader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "security")
	_, err := NewService(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, auditLogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "TimeLocker Security Audit Log")
	assert.Contains(t, string(data), "Format:")
}

func TestLogSecurityEventWritesAndInvokesHandlers(t *testing.T) {
	svc := newTestService(t)

	var received *Event
	svc.AddEventHandler(func(e Event) { received = &e })

	svc.LogSecurityEvent(Event{EventType: "test_event", Level: LevelMedium, Description: "hello"})

	require.NotNil(t, received)
	assert.Equal(t, "test_event", received.EventType)

	data, err := os.ReadFile(svc.auditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_event")
	assert.Contains(t, string(data), "hello")
}

func TestHandlerPanicDoesNotBreakLoggingOrOtherHandlers(t *testing.T) {
	svc := newTestService(t)

	secondCalled := false
	svc.AddEventHandler(func(Event) { panic("boom") })
	svc.AddEventHandler(func(Event) { secondCalled = true })

	assert.NotPanics(t, func() {
		svc.LogSecurityEvent(Event{EventType: "panicking_event", Level: LevelLow})
	})
	assert.True(t, secondCalled)

	data, err := os.ReadFile(svc.auditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "panicking_event")
}

func TestRemoveEventHandlerStopsFutureCalls(t *testing.T) {
	svc := newTestService(t)
	calls := 0
	handler := func(Event) { calls++ }

	svc.AddEventHandler(handler)
	svc.LogSecurityEvent(Event{EventType: "a"})
	svc.RemoveEventHandler(handler)
	svc.LogSecurityEvent(Event{EventType: "b"})

	assert.Equal(t, 1, calls)
}

func TestVerifyRepositoryEncryptionWithPassword(t *testing.T) {
	svc := newTestService(t)
	status := svc.VerifyRepositoryEncryption(&fakeRepo{id: "repo1", password: "secret"})
	assert.True(t, status.IsEncrypted)
	assert.Equal(t, "AES-256", status.EncryptionAlgorithm)
	assert.NotEmpty(t, status.VerificationHash)
}

func TestVerifyRepositoryEncryptionWithoutPassword(t *testing.T) {
	svc := newTestService(t)
	status := svc.VerifyRepositoryEncryption(&fakeRepo{id: "repo1", password: ""})
	assert.False(t, status.IsEncrypted)
}

func TestValidateBackupIntegrityDelegatesToCheck(t *testing.T) {
	svc := newTestService(t)
	repo := &fakeRepo{check: repository.CheckReport{Success: true}}
	assert.True(t, svc.ValidateBackupIntegrity(context.Background(), repo, ""))

	repo.check = repository.CheckReport{Success: false}
	assert.False(t, svc.ValidateBackupIntegrity(context.Background(), repo, ""))
}

func TestValidateBackupIntegrityDelegatesToCheckSnapshot(t *testing.T) {
	svc := newTestService(t)
	repo := &fakeRepo{snapshot: repository.CheckReport{Success: true}}
	assert.True(t, svc.ValidateBackupIntegrity(context.Background(), repo, "snap1"))
}

func TestValidateSecurityConfigValid(t *testing.T) {
	svc := newTestService(t)
	result := svc.ValidateSecurityConfig(Config{
		EncryptionEnabled: true, AuditLogging: true,
		CredentialTimeout: 3600, MaxFailedAttempts: 3, LockoutDuration: 300,
	})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestValidateSecurityConfigInvalid(t *testing.T) {
	svc := newTestService(t)
	result := svc.ValidateSecurityConfig(Config{
		EncryptionEnabled: false, CredentialTimeout: 30, MaxFailedAttempts: 0,
	})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Issues, "Encryption is disabled")
}

func TestEmergencyLockdownWritesMarkerAndAudit(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.EmergencyLockdown("breach detected", map[string]any{"source": "ids"}))
	assert.True(t, svc.LockdownActive())

	data, err := os.ReadFile(svc.auditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "emergency_lockdown")
	assert.Contains(t, string(data), "breach detected")

	require.NoError(t, svc.ClearLockdown())
	assert.False(t, svc.LockdownActive())
}

func TestGetSecuritySummaryAggregatesByTypeAndLevel(t *testing.T) {
	svc := newTestService(t)
	svc.LogSecurityEvent(Event{EventType: "backup_started", Level: LevelMedium})
	svc.LogSecurityEvent(Event{EventType: "encryption_verification", Level: LevelHigh})
	svc.LogSecurityEvent(Event{EventType: "backup_completed", Level: LevelMedium})

	summary, err := svc.GetSecuritySummary(7)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.PeriodDays)
	assert.True(t, summary.TotalEvents >= 3)
	assert.Contains(t, summary.EventsByType, "backup_started")
	assert.Contains(t, summary.EventsByLevel, "medium")
}

func TestAuditCredentialAccessIncludesFields(t *testing.T) {
	svc := newTestService(t)
	svc.AuditCredentialAccess("cred1", "read", true)

	data, err := os.ReadFile(svc.auditLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "credential_access")
	assert.Contains(t, string(data), "SUCCESS")
}
