// Package config implements the configuration document and manager of
// §3/§6: a single JSON document at <config_dir>/timelocker.json with
// typed sections, loaded/saved atomically, exposing validated copies to
// readers.
package config

// RepositoryEntry is one entry in the document's `repositories` map
// (§6 "Configuration document").
type RepositoryEntry struct {
	Type        string            `json:"type"`
	URI         string            `json:"uri"`
	Description string            `json:"description,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// BackupTargetEntry is one entry in the document's `backup_targets` map.
type BackupTargetEntry struct {
	Paths           []string `json:"paths"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// Settings is the document's `settings` section: defaults and policy
// toggles applied across repositories/targets unless overridden.
type Settings struct {
	DefaultRepository    string `json:"default_repository,omitempty"`
	VerifyAfterBackup    bool   `json:"verify_after_backup"`
	RetryOnFailure       bool   `json:"retry_on_failure"`
	MaxRetries           int    `json:"max_retries"`
	RetryDelaySeconds    float64 `json:"retry_delay_seconds"`
	SnapshotCacheTTLSeconds int `json:"snapshot_cache_ttl_seconds"`
}

// SecuritySettings is the document's `security` section, consumed
// directly by pkg/security.ValidateSecurityConfig (§4.8).
type SecuritySettings struct {
	EncryptionEnabled bool `json:"encryption_enabled"`
	AuditLogging      bool `json:"audit_logging"`
	CredentialTimeout int  `json:"credential_timeout"`
	MaxFailedAttempts int  `json:"max_failed_attempts"`
	LockoutDuration   int  `json:"lockout_duration"`
}

// Document is the root object of timelocker.json (§6).
type Document struct {
	Repositories  map[string]RepositoryEntry  `json:"repositories"`
	BackupTargets map[string]BackupTargetEntry `json:"backup_targets"`
	Settings      Settings                    `json:"settings"`
	Security      SecuritySettings            `json:"security"`
}

// DefaultDocument returns a Document with the spec's conservative
// security defaults already satisfying ValidateSecurityConfig.
func DefaultDocument() Document {
	return Document{
		Repositories:  map[string]RepositoryEntry{},
		BackupTargets: map[string]BackupTargetEntry{},
		Settings: Settings{
			MaxRetries:              2,
			RetryDelaySeconds:       1,
			SnapshotCacheTTLSeconds: 300,
		},
		Security: SecuritySettings{
			EncryptionEnabled: true,
			AuditLogging:      true,
			CredentialTimeout: 900,
			MaxFailedAttempts: 5,
			LockoutDuration:   300,
		},
	}
}
