package credential

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN    = 1 << 15
	scryptR    = 8
	scryptP    = 1
	keyLength  = chacha20poly1305.KeySize
	saltLength = 16
)

// verifierPlaintext is the known plaintext encrypted under the derived
// key so a wrong-password unlock can be detected deterministically
// without touching the real payload (§4.4 "verifier file").
const verifierPlaintext = "timelocker-credential-store-verifier-v1"

func deriveKey(masterPassword string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(masterPassword), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, errs.Wrap(errs.KindCredential, "key derivation failed", err)
	}
	return key, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindCredential, "failed to initialize AEAD cipher", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errs.Wrap(errs.KindCredential, "failed to generate nonce", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap(errs.KindCredential, "failed to initialize AEAD cipher", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errs.NewSubkind(errs.KindCredential, errs.SubkindCredentialIntegrity, "sealed payload is too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.NewSubkind(errs.KindCredential, errs.SubkindCredentialIntegrity, "AEAD authentication failed")
	}
	return plaintext, nil
}

// writeAtomic writes data to path via write-to-temp-then-rename, the
// same pattern the configuration manager uses (SPEC_FULL.md §A.3).
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// persistAll re-encrypts and writes payload + verifier under the
// current key, atomically. Called after Create, every mutation while
// Unlocked, and after a master-password rotation.
func (s *Store) persistAll() error {
	plaintext, err := json.Marshal(s.records)
	if err != nil {
		return errs.Wrap(errs.KindCredential, "failed to serialize credential records", err)
	}
	sealed, err := seal(s.key, plaintext)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path(payloadFileName), sealed); err != nil {
		return errs.Wrap(errs.KindCredential, "failed to persist credential payload", err)
	}

	verifierSealed, err := seal(s.key, []byte(verifierPlaintext))
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path(verifierFileName), verifierSealed); err != nil {
		return errs.Wrap(errs.KindCredential, "failed to persist verifier", err)
	}
	return nil
}

func (s *Store) loadRecords() (map[string]*record, error) {
	sealed, err := os.ReadFile(s.path(payloadFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*record{}, nil
		}
		return nil, errs.Wrap(errs.KindCredential, "failed to read credential payload", err)
	}
	plaintext, err := open(s.key, sealed)
	if err != nil {
		return nil, err
	}
	records := map[string]*record{}
	if len(plaintext) > 0 {
		if err := json.Unmarshal(plaintext, &records); err != nil {
			return nil, errs.Wrap(errs.KindCredential, "failed to parse decrypted credential payload", err)
		}
	}
	return records, nil
}

func (s *Store) verifyKey(key []byte) error {
	sealed, err := os.ReadFile(s.path(verifierFileName))
	if err != nil {
		return errs.Wrap(errs.KindCredential, "failed to read verifier file", err)
	}
	plaintext, err := open(key, sealed)
	if err != nil {
		return errs.New(errs.KindCredential, "wrong master password")
	}
	if string(plaintext) != verifierPlaintext {
		return errs.New(errs.KindCredential, "wrong master password")
	}
	return nil
}

type failedAttemptsFile struct {
	Attempts     int       `json:"attempts"`
	LockoutUntil time.Time `json:"lockout_until"`
}

func (s *Store) readFailedAttempts() {
	data, err := os.ReadFile(s.path("failed_attempts.json"))
	if err != nil {
		return
	}
	var f failedAttemptsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}
	s.failedAttempts = f.Attempts
	s.lockoutUntil = f.LockoutUntil
	if s.failedAttempts >= s.maxFailedAttempts && time.Now().Before(s.lockoutUntil) {
		s.state = StateLockedOut
	}
}

func (s *Store) persistFailedAttempts() {
	data, err := json.Marshal(failedAttemptsFile{Attempts: s.failedAttempts, LockoutUntil: s.lockoutUntil})
	if err != nil {
		return
	}
	if err := writeAtomic(s.path("failed_attempts.json"), data); err != nil {
		s.logger.Warn("failed to persist failed-attempt counter: %v", err)
	}
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}
