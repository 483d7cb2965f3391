package config

import "fmt"

// Validate consumes a raw Document and emits the list of issues, if
// any, keeping schema validation as a separate step from load/save
// (§9 design note "Dynamic configuration objects").
func Validate(d Document) []string {
	var issues []string

	for name, repo := range d.Repositories {
		if repo.Type == "" {
			issues = append(issues, fmt.Sprintf("repository %q: type must not be empty", name))
		}
		if repo.URI == "" {
			issues = append(issues, fmt.Sprintf("repository %q: uri must not be empty", name))
		}
	}

	for name, target := range d.BackupTargets {
		if len(target.Paths) == 0 {
			issues = append(issues, fmt.Sprintf("backup target %q: must have at least one path", name))
		}
	}

	if d.Settings.DefaultRepository != "" {
		if _, ok := d.Repositories[d.Settings.DefaultRepository]; !ok {
			issues = append(issues, fmt.Sprintf("settings.default_repository %q: unknown repository", d.Settings.DefaultRepository))
		}
	}
	if d.Settings.MaxRetries < 0 {
		issues = append(issues, "settings.max_retries must be non-negative")
	}

	if !d.Security.EncryptionEnabled {
		issues = append(issues, "security.encryption_enabled must be true")
	}
	if !d.Security.AuditLogging {
		issues = append(issues, "security.audit_logging must be true")
	}
	if d.Security.CredentialTimeout < 60 {
		issues = append(issues, "security.credential_timeout must be at least 60 seconds")
	}
	if d.Security.MaxFailedAttempts < 1 {
		issues = append(issues, "security.max_failed_attempts must be at least 1")
	}
	if d.Security.LockoutDuration < 0 {
		issues = append(issues, "security.lockout_duration must be non-negative")
	}

	return issues
}
