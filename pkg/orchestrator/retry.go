package orchestrator

import (
	"context"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/auriora/timelocker/pkg/repository"
	"github.com/cenkalti/backoff/v4"
)

// ExecuteBackupWithRetry attempts ExecuteBackup, retrying on
// non-terminal engine failures with exponential backoff bounded by
// maxRetries. A missing repository, a password that cannot be resolved,
// and critical failures (missing password, engine missing or too old)
// are terminal and never retried. An engine run that fails because the
// engine rejects the password is not told apart from other engine
// failures and is retried.
func (o *Orchestrator) ExecuteBackupWithRetry(ctx context.Context, req Request, maxRetries int, retryDelay time.Duration, onStatus func(repository.StatusEvent)) Result {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed time

	var causes []error
	var last Result

	operation := func() error {
		last = o.ExecuteBackup(ctx, req, onStatus)
		if last.Status == StatusSuccess || last.Status == StatusWarning {
			return nil
		}
		err := errs.Newf(errs.KindBackup, "backup attempt failed: %v", last.Errors)
		causes = append(causes, err)
		if last.Status == StatusCritical || req.Repository == nil {
			return backoff.Permanent(err)
		}
		if _, pwErr := req.Repository.Password(); pwErr != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	retryErr := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx))
	if retryErr != nil && last.Status != StatusSuccess && last.Status != StatusWarning {
		last.Errors = append(last.Errors, errs.Exhausted(errs.KindBackup, "backup failed after retries", causes).Error())
	}
	return last
}
