package orchestrator

import "context"

// CancellationToken is the caller-held cancellation handle of §4.5: a
// cancellable context. Nothing polls it between status events; a
// child process started under its context is signalled as soon as
// Cancel is called.
type CancellationToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancellationToken derives a cancellable token from parent.
func NewCancellationToken(parent context.Context) *CancellationToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel cancels the token's context. An engine child process started
// under it receives SIGTERM at once and is killed if it is still
// running after the runner's grace period; ExecuteBackup then reports
// the run as cancelled with StatusWarning.
func (c *CancellationToken) Cancel() { c.cancel() }

// Context returns the derived context to pass into ExecuteBackup.
func (c *CancellationToken) Context() context.Context { return c.ctx }

// Cancelled reports whether Cancel has been called.
func (c *CancellationToken) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}
