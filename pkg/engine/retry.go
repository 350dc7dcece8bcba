package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"zcash-near-intents/pkg/swaperr"
)

// retry runs op until it succeeds, returns a non-retryable error, maxRetries retries are
// spent or ctx is done. The last error from op is returned in every failure case.
func (e *Engine) retry(ctx context.Context, log *logrus.Entry, what string, maxRetries int, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryInitialInterval
	b.MaxInterval = e.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0

	var last error
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		last = err
		if !swaperr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{"op": what, "wait": wait, "error": err}).Warn("Retrying after transient failure")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
	if err := backoff.RetryNotify(wrapped, policy, notify); err != nil {
		if last != nil {
			return last
		}
		return err
	}
	return nil
}
