// Package security implements the audit/security service of §4.8: an
// append-only, pipe-delimited audit log with a fan-out event-handler
// registry, encryption/integrity verification helpers, configuration
// validation, and emergency lockdown.
package security

import (
	"encoding/json"
	"time"
)

// Level is a security event's severity.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Event is one security-relevant occurrence (§4.8).
type Event struct {
	Timestamp    time.Time
	EventType    string
	Level        Level
	Description  string
	UserID       string
	RepositoryID string
	Metadata     map[string]any
}

func (e Event) metadataJSON() string {
	if len(e.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// EncryptionStatus is the result of VerifyRepositoryEncryption (§4.8).
type EncryptionStatus struct {
	IsEncrypted         bool
	EncryptionAlgorithm string
	KeyDerivation       string
	LastVerified        time.Time
	VerificationHash    string
}

// ConfigValidation is the result of ValidateSecurityConfig (§4.8).
type ConfigValidation struct {
	Valid  bool
	Issues []string
}

// Config is the subset of settings ValidateSecurityConfig checks.
type Config struct {
	EncryptionEnabled  bool
	AuditLogging       bool
	CredentialTimeout  int
	MaxFailedAttempts  int
	LockoutDuration    int
}

// Summary is the result of GetSecuritySummary (§4.8).
type Summary struct {
	PeriodDays    int
	TotalEvents   int
	EventsByType  map[string]int
	EventsByLevel map[string]int
	GeneratedAt   time.Time
}

// Handler receives every logged event. A handler must not panic;
// LogSecurityEvent recovers and isolates handler failures from each
// other and from the log write itself (§7 "Handler exceptions").
type Handler func(Event)
