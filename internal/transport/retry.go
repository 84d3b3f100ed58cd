package transport

import (
	"context"
	"time"
)

// RetryConfig bounds the retry loop used around transient transport
// failures.
type RetryConfig struct {
	Attempts int
	BaseWait time.Duration
	MaxWait  time.Duration
}

// DefaultRetry is used by the prober and executor unless overridden.
func DefaultRetry() RetryConfig {
	return RetryConfig{Attempts: 3, BaseWait: 500 * time.Millisecond, MaxWait: 8 * time.Second}
}

// Retry runs fn up to cfg.Attempts times, sleeping with exponential
// backoff between attempts. Only transient errors are retried; auth
// failures and command-level errors return immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	wait := cfg.BaseWait
	var err error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if cfg.MaxWait > 0 && wait > cfg.MaxWait {
				wait = cfg.MaxWait
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !Transient(err) {
			return err
		}
	}
	return err
}
