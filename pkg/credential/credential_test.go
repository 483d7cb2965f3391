package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	return s
}

// TestScenarioCCredentialRoundTrip covers create/lock/unlock/store/get
// and the audit trail left behind by a full credential round trip.
func TestScenarioCCredentialRoundTrip(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("M1"))
	require.NoError(t, s.StoreRepositoryPassword("repo1", "P1"))
	require.NoError(t, s.Lock())

	require.NoError(t, s.Unlock("M1"))
	pw, ok, err := s.GetRepositoryPassword("repo1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "P1", pw)

	require.NoError(t, s.Lock())
	err = s.Unlock("M2")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindCredential))

	events, err := s.GetAuditEvents(24)
	require.NoError(t, err)
	var unlockSuccess, unlockFailure, storePassword int
	for _, ev := range events {
		switch {
		case ev.Operation == "unlock" && ev.Success:
			unlockSuccess++
		case ev.Operation == "unlock" && !ev.Success:
			unlockFailure++
		case ev.Operation == "store_repository_password":
			storePassword++
		}
	}
	assert.Equal(t, 1, unlockSuccess)
	assert.Equal(t, 1, unlockFailure)
	assert.Equal(t, 1, storePassword)
}

// TestScenarioDLockout covers the failed-attempt lockout threshold,
// rejecting even the correct password during lockout, with a short lockout
// window substituted for the literal 60s so the test runs fast.
func TestScenarioDLockout(t *testing.T) {
	s := openTestStore(t, Options{MaxFailedAttempts: 3, LockoutDuration: 50 * time.Millisecond})
	require.NoError(t, s.Create("correct"))
	require.NoError(t, s.Lock())

	for i := 0; i < 3; i++ {
		err := s.Unlock("wrong")
		require.Error(t, err)
		assert.False(t, errs.IsSubkind(err, errs.SubkindCredentialLockedOut), "attempt %d should not yet be lockout", i+1)
	}

	err := s.Unlock("wrong")
	require.Error(t, err)
	assert.True(t, errs.IsSubkind(err, errs.SubkindCredentialLockedOut))

	err = s.Unlock("correct")
	require.Error(t, err)
	assert.True(t, errs.IsSubkind(err, errs.SubkindCredentialLockedOut))

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, s.Unlock("correct"))
	status := s.GetSecurityStatus()
	assert.Equal(t, 0, status.FailedAttempts)
}

// TestWrongPasswordDoesNotAlterPayload is invariant 3's second half.
func TestWrongPasswordDoesNotAlterPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Create("M1"))
	require.NoError(t, s.StoreRepositoryPassword("repo1", "P1"))
	require.NoError(t, s.Lock())

	before, err := os.ReadFile(filepath.Join(dir, payloadFileName))
	require.NoError(t, err)

	require.Error(t, s.Unlock("wrong-one"))

	after, err := os.ReadFile(filepath.Join(dir, payloadFileName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestAuditAppendOnly is invariant 6: prior records are never rewritten.
func TestAuditAppendOnly(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("M1"))
	require.NoError(t, s.StoreRepositoryPassword("a", "1"))

	first, err := s.GetAuditEvents(24)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, s.StoreRepositoryPassword("b", "2"))
	second, err := s.GetAuditEvents(24)
	require.NoError(t, err)
	require.True(t, len(second) >= len(first)+1)
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestGetBackendCredentialsAbsentReturnsEmptyMap(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("M1"))
	m, err := s.GetBackendCredentials("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestChangeMasterPasswordRetainsCredentials(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("old-master"))
	require.NoError(t, s.StoreRepositoryPassword("repo1", "P1"))
	require.NoError(t, s.ChangeMasterPassword("old-master", "new-master"))
	require.NoError(t, s.Lock())

	require.Error(t, s.Unlock("old-master"))
	require.NoError(t, s.Unlock("new-master"))
	pw, ok, err := s.GetRepositoryPassword("repo1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "P1", pw)
}

func TestRotateCredentialPreservesMetadata(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("M1"))
	require.NoError(t, s.StoreRepositoryPassword("repo1", "P1"))
	meta1, err := s.GetCredentialMetadata("repo1")
	require.NoError(t, err)

	require.NoError(t, s.RotateCredential("repo1", "P2"))
	pw, _, err := s.GetRepositoryPassword("repo1")
	require.NoError(t, err)
	assert.Equal(t, "P2", pw)

	meta2, err := s.GetCredentialMetadata("repo1")
	require.NoError(t, err)
	assert.Equal(t, meta1.CreatedAt, meta2.CreatedAt)
}

func TestValidateCredentialIntegritySucceedsWhenUnlocked(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("M1"))
	ok, err := s.ValidateCredentialIntegrity()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequireUnlockedFailsWhenLocked(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("M1"))
	require.NoError(t, s.Lock())
	_, _, err := s.GetRepositoryPassword("repo1")
	require.Error(t, err)
}
