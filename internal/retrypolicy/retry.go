// Package retrypolicy exposes a shared retry configuration record, kept
// out of individual call sites so backoff/jitter/attempt limits stay
// configurable in one place, and a single Do helper built on avast/retry-go.
package retrypolicy

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Policy is the shared retry configuration record.
type Policy struct {
	BaseDelay   time.Duration
	MaxAttempts uint
	Jitter      bool
}

// Default matches the §4.4 default for target-contract mutating calls:
// up to 3 attempts with exponential backoff, base 1s.
func Default() Policy {
	return Policy{BaseDelay: time.Second, MaxAttempts: 3, Jitter: true}
}

// Do runs fn under the policy, retrying on any returned error except when
// ctx is done. retryIf, when non-nil, gates whether a given error should be
// retried at all (e.g. ContractRejection errors should not be retried with
// the same payload).
func Do(ctx context.Context, p Policy, retryIf func(error) bool, fn func() error) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.MaxAttempts),
		retry.Delay(p.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
	}
	if p.Jitter {
		opts = append(opts, retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)))
	}
	if retryIf != nil {
		opts = append(opts, retry.RetryIf(retryIf))
	}
	return retry.Do(fn, opts...)
}
