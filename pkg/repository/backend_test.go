package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalURI(t *testing.T) {
	l := Local{Path: "/srv/backups/repo1"}
	assert.Equal(t, KindLocal, l.Kind())
	assert.Equal(t, "file:///srv/backups/repo1", l.URI())
}

func TestS3URIAndEnv(t *testing.T) {
	s := S3{Bucket: "my-bucket", Prefix: "backups", Region: "us-east-1", AccessKeyID: "AKIA", SecretAccessKey: "secret"}
	assert.Equal(t, "s3:s3.amazonaws.com/my-bucket/backups", s.URI())
	env := s.Env()
	assert.Equal(t, "AKIA", env["AWS_ACCESS_KEY_ID"])
	assert.Equal(t, "secret", env["AWS_SECRET_ACCESS_KEY"])
	assert.Equal(t, "us-east-1", env["AWS_DEFAULT_REGION"])
}

func TestB2URIAndEnv(t *testing.T) {
	b := B2{Bucket: "bucket1", AccountID: "acct", AccountKey: "key"}
	assert.Equal(t, "b2:bucket1", b.URI())
	env := b.Env()
	assert.Equal(t, "acct", env["B2_ACCOUNT_ID"])
	assert.Equal(t, "key", env["B2_ACCOUNT_KEY"])
}

func TestSFTPURI(t *testing.T) {
	s := SFTP{User: "backup", Host: "nas.local", Path: "/volume1/repo"}
	assert.Equal(t, "sftp:backup@nas.local:/volume1/repo", s.URI())
}
