package credential

import (
	"time"

	"github.com/auriora/timelocker/pkg/errs"
)

// Create initializes an Empty store with a new master password: derives
// a fresh salt and key, writes the verifier, and persists an empty
// payload. Only valid from StateEmpty.
func (s *Store) Create(masterPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEmpty {
		return errs.New(errs.KindCredential, "credential store already initialized")
	}
	salt, err := newSalt()
	if err != nil {
		return errs.Wrap(errs.KindCredential, "failed to generate salt", err)
	}
	key, err := deriveKey(masterPassword, salt)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path(saltFileName), salt); err != nil {
		return errs.Wrap(errs.KindCredential, "failed to persist salt", err)
	}

	s.salt = salt
	s.key = key
	s.records = map[string]*record{}
	if err := s.persistAll(); err != nil {
		return err
	}
	s.state = StateUnlocked
	s.failedAttempts = 0
	s.lastActivity = time.Now()
	s.appendAudit("create", true, "")
	return nil
}

// Unlock attempts to transition Locked -> Unlocked with masterPassword.
// A wrong password increments the on-disk failed-attempt counter and,
// once it reaches maxFailedAttempts, transitions to LockedOut (§4.4).
func (s *Store) Unlock(masterPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionOnTimeoutLocked()

	switch s.state {
	case StateUnlocked:
		s.lastActivity = time.Now()
		return nil
	case StateEmpty:
		return errs.New(errs.KindCredential, "credential store has not been created yet")
	case StateLockedOut:
		err := errs.NewSubkind(errs.KindCredential, errs.SubkindCredentialLockedOut,
			"credential store is locked out after too many failed attempts")
		s.appendAudit("unlock", false, "")
		return err
	}

	key, err := deriveKey(masterPassword, s.salt)
	if err != nil {
		s.appendAudit("unlock", false, "")
		return err
	}
	if verifyErr := s.verifyKey(key); verifyErr != nil {
		s.failedAttempts++
		if s.failedAttempts >= s.maxFailedAttempts {
			s.state = StateLockedOut
			s.lockoutUntil = time.Now().Add(s.lockoutDuration)
		}
		s.persistFailedAttempts()
		s.appendAudit("unlock", false, "")
		return verifyErr
	}

	records, err := s.loadRecordsWithKey(key)
	if err != nil {
		s.appendAudit("unlock", false, "")
		return err
	}

	s.key = key
	s.records = records
	s.state = StateUnlocked
	s.failedAttempts = 0
	s.lockoutUntil = time.Time{}
	s.persistFailedAttempts()
	s.lastActivity = time.Now()
	s.appendAudit("unlock", true, "")
	return nil
}

// loadRecordsWithKey swaps in key temporarily to decrypt the payload;
// Unlock calls this before committing s.key, so a corrupt payload never
// leaves the store half-unlocked.
func (s *Store) loadRecordsWithKey(key []byte) (map[string]*record, error) {
	prevKey := s.key
	s.key = key
	defer func() { s.key = prevKey }()
	return s.loadRecords()
}

// StoreRepositoryPassword stores (or overwrites) the password for repoID.
func (s *Store) StoreRepositoryPassword(repoID, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		s.appendAudit("store_repository_password", false, repoID)
		return err
	}
	now := time.Now()
	existing, ok := s.records[repoID]
	rec := &record{
		ID:        repoID,
		Kind:      KindRepositoryPassword,
		CreatedAt: now,
		Secret:    password,
	}
	if ok {
		rec.CreatedAt = existing.CreatedAt
		rec.AccessCount = existing.AccessCount
	}
	rec.LastAccessed = now
	s.records[repoID] = rec
	err := s.persistAll()
	s.appendAudit("store_repository_password", err == nil, repoID)
	return err
}

// GetRepositoryPassword satisfies pkg/repository.CredentialStore: returns
// (password, found, error). Locked/LockedOut states surface as error,
// not as "not found" — callers must distinguish.
func (s *Store) GetRepositoryPassword(repoID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		return "", false, err
	}
	rec, ok := s.records[repoID]
	if !ok || rec.Kind != KindRepositoryPassword {
		return "", false, nil
	}
	rec.AccessCount++
	rec.LastAccessed = time.Now()
	_ = s.persistAll()
	return rec.Secret, true, nil
}

// StoreBackendCredentials stores (or overwrites) the backend credential
// map for backendID (e.g. S3 access key / secret pairs).
func (s *Store) StoreBackendCredentials(backendID string, creds map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		s.appendAudit("store_backend_credentials", false, backendID)
		return err
	}
	now := time.Now()
	existing, ok := s.records[backendID]
	rec := &record{
		ID:         backendID,
		Kind:       KindBackendCredentials,
		CreatedAt:  now,
		BackendMap: cloneMap(creds),
	}
	if ok {
		rec.CreatedAt = existing.CreatedAt
		rec.AccessCount = existing.AccessCount
	}
	rec.LastAccessed = now
	s.records[backendID] = rec
	err := s.persistAll()
	s.appendAudit("store_backend_credentials", err == nil, backendID)
	return err
}

// GetBackendCredentials returns the stored map, or an empty (non-nil)
// map if backendID has no credentials on record — absence is not an
// error, distinguishing it from access-denial per §4.4.
func (s *Store) GetBackendCredentials(backendID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	rec, ok := s.records[backendID]
	if !ok || rec.Kind != KindBackendCredentials {
		return map[string]string{}, nil
	}
	rec.AccessCount++
	rec.LastAccessed = time.Now()
	_ = s.persistAll()
	return cloneMap(rec.BackendMap), nil
}

// ListRepositories returns the IDs of every stored repository password
// credential (backend-credential entries are excluded).
func (s *Store) ListRepositories() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	var ids []string
	for id, rec := range s.records {
		if rec.Kind == KindRepositoryPassword {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// RemoveRepository deletes the stored password for repoID, if present.
func (s *Store) RemoveRepository(repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		s.appendAudit("remove_repository", false, repoID)
		return err
	}
	delete(s.records, repoID)
	err := s.persistAll()
	s.appendAudit("remove_repository", err == nil, repoID)
	return err
}

// ChangeMasterPassword requires the currently-correct old password,
// derives a new salt and key, and re-encrypts and persists the payload
// and verifier under the new key atomically, retaining every record.
func (s *Store) ChangeMasterPassword(oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		s.appendAudit("change_master_password", false, "")
		return err
	}
	oldKey, err := deriveKey(oldPassword, s.salt)
	if err != nil {
		return err
	}
	if verifyErr := s.verifyKey(oldKey); verifyErr != nil {
		s.appendAudit("change_master_password", false, "")
		return verifyErr
	}

	newSaltBytes, err := newSalt()
	if err != nil {
		return errs.Wrap(errs.KindCredential, "failed to generate new salt", err)
	}
	newKey, err := deriveKey(newPassword, newSaltBytes)
	if err != nil {
		return err
	}
	prevSalt, prevKey := s.salt, s.key
	s.salt, s.key = newSaltBytes, newKey
	if err := s.persistAll(); err != nil {
		s.salt, s.key = prevSalt, prevKey
		s.appendAudit("change_master_password", false, "")
		return err
	}
	if err := writeAtomic(s.path(saltFileName), newSaltBytes); err != nil {
		s.salt, s.key = prevSalt, prevKey
		s.appendAudit("change_master_password", false, "")
		return errs.Wrap(errs.KindCredential, "failed to persist rotated salt", err)
	}
	s.appendAudit("change_master_password", true, "")
	return nil
}

// RotateCredential overwrites an existing credential's secret in place,
// preserving created_at/access_count and bumping last_accessed (§4.4).
func (s *Store) RotateCredential(id, newValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		s.appendAudit("rotate_credential", false, id)
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		err := errs.Newf(errs.KindCredential, "no credential with id %q", id)
		s.appendAudit("rotate_credential", false, id)
		return err
	}
	rec.Secret = newValue
	rec.LastAccessed = time.Now()
	err := s.persistAll()
	s.appendAudit("rotate_credential", err == nil, id)
	return err
}

// SecureDeleteCredential removes id's entry, after a best-effort
// in-memory overwrite of its secret bytes.
func (s *Store) SecureDeleteCredential(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		s.appendAudit("secure_delete_credential", false, id)
		return err
	}
	if rec, ok := s.records[id]; ok {
		rec.Secret = overwritten(len(rec.Secret))
		for k := range rec.BackendMap {
			rec.BackendMap[k] = overwritten(len(rec.BackendMap[k]))
		}
	}
	delete(s.records, id)
	err := s.persistAll()
	s.appendAudit("secure_delete_credential", err == nil, id)
	return err
}

func overwritten(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0
	}
	return string(b)
}

// GetCredentialMetadata returns id's metadata without its secret.
func (s *Store) GetCredentialMetadata(id string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		return Metadata{}, err
	}
	rec, ok := s.records[id]
	if !ok {
		return Metadata{}, errs.Newf(errs.KindCredential, "no credential with id %q", id)
	}
	return Metadata{
		ID:           rec.ID,
		Kind:         rec.Kind,
		CreatedAt:    rec.CreatedAt,
		LastAccessed: rec.LastAccessed,
		AccessCount:  rec.AccessCount,
	}, nil
}

// ValidateCredentialIntegrity requires Unlocked; it re-derives the
// verifier check against the current key, reporting whether the
// decrypted payload is still trustworthy. A failure also emits a
// critical audit event (§4.4).
func (s *Store) ValidateCredentialIntegrity() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireUnlockedLocked(); err != nil {
		return false, err
	}
	err := s.verifyKey(s.key)
	ok := err == nil
	if !ok {
		s.appendAuditLevel("validate_credential_integrity", false, "", "critical")
	} else {
		s.appendAudit("validate_credential_integrity", true, "")
	}
	return ok, nil
}

// GetSecurityStatus reports the store's current lock/lockout state.
func (s *Store) GetSecurityStatus() SecurityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionOnTimeoutLocked()
	status := SecurityStatus{
		IsLocked:        s.state != StateUnlocked,
		FailedAttempts:  s.failedAttempts,
		AutoLockTimeout: s.autoLockTimeout,
	}
	if s.state == StateUnlocked && !s.lastActivity.IsZero() {
		age := time.Since(s.lastActivity)
		status.LastActivityAge = &age
	}
	return status
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
