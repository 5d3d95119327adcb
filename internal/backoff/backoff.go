// Package backoff drives a fallible operation through a bounded number of
// retries with a doubling delay between attempts.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrExhausted is wrapped by Retry when every attempt has failed
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds a retry sequence.
// Total attempts are MaxAttempts+1; the first retry waits InitialDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor runs retry sequences. The zero value is not usable, use New.
type Executor struct {
	logger *logrus.Logger
	sleep  SleepFunc
}

// New creates an Executor. A nil logger gets a fresh logrus logger and a nil
// sleep uses Sleep.
func New(logger *logrus.Logger, sleep SleepFunc) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Executor{logger: logger, sleep: sleep}
}

// Retry invokes op until it succeeds or the policy budget is spent.
// Every failure decrements the remaining budget; when the budget is zero the
// last error is returned wrapped with ErrExhausted. Otherwise Retry waits the
// current delay and tries again with the delay doubled. Cancelling ctx while
// waiting ends the sequence with ctx.Err().
func Retry[T any](ctx context.Context, ex *Executor, name string, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	remaining := max(policy.MaxAttempts, 0)
	delay := policy.InitialDelay
	log := ex.logger.WithField("operation", name)

	for attempt := 1; ; attempt++ {
		log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"remaining": remaining,
		}).Debug("Attempting operation...")

		result, err := op(ctx)
		if err == nil {
			log.WithField("attempt", attempt).Debug("Operation succeeded")
			return result, nil
		}

		if remaining == 0 {
			log.WithFields(logrus.Fields{
				"attempts": attempt,
				"error":    err,
			}).Warn("Operation failed, no retries left")
			var zero T
			return zero, fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempt, err)
		}

		log.WithFields(logrus.Fields{
			"delay":     delay,
			"remaining": remaining,
			"error":     err,
		}).Info("Operation failed, retrying")

		if serr := ex.sleep(ctx, delay); serr != nil {
			log.WithField("error", serr).Warn("Retry sequence cancelled")
			var zero T
			return zero, fmt.Errorf("%s: retry cancelled: %w", name, serr)
		}

		remaining--
		delay *= 2
	}
}

// Execute is the callback form of Retry: exactly one of onSuccess or
// onFailure is invoked, exactly once, after the sequence ends.
func Execute[T any](ctx context.Context, ex *Executor, name string, policy Policy,
	op func(ctx context.Context) (T, error), onSuccess func(T), onFailure func()) {
	result, err := Retry(ctx, ex, name, policy, op)
	if err != nil {
		if onFailure != nil {
			onFailure()
		}
		return
	}
	if onSuccess != nil {
		onSuccess(result)
	}
}
