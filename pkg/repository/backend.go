// Package repository implements the variant-over-backend-kind
// abstraction of §4.3: a Repository owns a location URI, a
// backend-specific environment projection, and proxies every
// data-moving operation to the snapshot engine via pkg/engine.
package repository

import (
	"fmt"
	"path/filepath"
)

// BackendKind tags which concrete Backend a Repository wraps.
type BackendKind string

const (
	KindLocal BackendKind = "local"
	KindS3    BackendKind = "s3"
	KindB2    BackendKind = "b2"
	KindSFTP  BackendKind = "sftp"
)

// PasswordEnvVar is the environment variable name the snapshot engine
// reads the repository password from (§4.3 "ambient environment
// variable (the engine's password env name)").
const PasswordEnvVar = "SNAPSHOT_ENGINE_PASSWORD"

// Backend is the variant interface each concrete backend kind
// implements: a canonical URI and the backend-specific environment the
// engine process needs (§4.3 "Variants").
type Backend interface {
	Kind() BackendKind
	URI() string
	Env() map[string]string
}

// Local is a filesystem-backed repository.
type Local struct {
	Path string
}

func (l Local) Kind() BackendKind { return KindLocal }

func (l Local) URI() string {
	abs, err := filepath.Abs(l.Path)
	if err != nil {
		abs = l.Path
	}
	return "file://" + filepath.ToSlash(abs)
}

func (l Local) Env() map[string]string { return map[string]string{} }

// S3 is an S3-compatible object-store-backed repository.
type S3 struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

func (s S3) Kind() BackendKind { return KindS3 }

func (s S3) URI() string {
	u := "s3:s3.amazonaws.com/" + s.Bucket
	if s.Prefix != "" {
		u += "/" + s.Prefix
	}
	return u
}

func (s S3) Env() map[string]string {
	return map[string]string{
		"AWS_ACCESS_KEY_ID":     s.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": s.SecretAccessKey,
		"AWS_DEFAULT_REGION":    s.Region,
	}
}

// B2 is a Backblaze B2-backed repository.
type B2 struct {
	Bucket     string
	Prefix     string
	AccountID  string
	AccountKey string
}

func (b B2) Kind() BackendKind { return KindB2 }

func (b B2) URI() string {
	u := "b2:" + b.Bucket
	if b.Prefix != "" {
		u += "/" + b.Prefix
	}
	return u
}

func (b B2) Env() map[string]string {
	return map[string]string{
		"B2_ACCOUNT_ID":  b.AccountID,
		"B2_ACCOUNT_KEY": b.AccountKey,
	}
}

// SFTP is an SFTP-backed repository.
type SFTP struct {
	User string
	Host string
	Path string
}

func (s SFTP) Kind() BackendKind { return KindSFTP }

func (s SFTP) URI() string {
	return fmt.Sprintf("sftp:%s@%s:%s", s.User, s.Host, s.Path)
}

func (s SFTP) Env() map[string]string { return map[string]string{} }
