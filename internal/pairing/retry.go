package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned by Supervisor.Run when the policy has no
// cooldown and every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy bounds how a client start is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt in a round.
	MaxRetries int
	// Delays[i] is waited before retry i+1. The last entry repeats.
	Delays []time.Duration
	// Cooldown is waited after a failed round before starting a new one.
	// Zero stops after the first failed round.
	Cooldown time.Duration
}

// DefaultRetryPolicy retries three times at 15s, 30s and 45s, then cools down
// for five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delays:     []time.Duration{15 * time.Second, 30 * time.Second, 45 * time.Second},
		Cooldown:   5 * time.Minute,
	}
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if len(p.Delays) == 0 || retry < 1 {
		return 0
	}
	if retry > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[retry-1]
}

// Supervisor runs a start function under a RetryPolicy.
type Supervisor struct {
	Policy RetryPolicy
	Logger *zap.Logger

	// Sleep waits for d or until ctx is done. It reports whether the full
	// duration elapsed. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) bool
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Run calls start until it succeeds, ctx is done, or the policy gives up.
func (s *Supervisor) Run(ctx context.Context, start func(context.Context) error) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for round := 1; ; round++ {
		var lastErr error
		for attempt := 0; attempt <= s.Policy.MaxRetries; attempt++ {
			if attempt > 0 {
				delay := s.Policy.Delay(attempt)
				logger.Info("retrying client start",
					zap.Int("retry", attempt),
					zap.Int("max_retries", s.Policy.MaxRetries),
					zap.Duration("delay", delay))
				if !s.sleep(ctx, delay) {
					return ctx.Err()
				}
			}

			err := start(ctx)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			logger.Warn("client start failed",
				zap.Int("round", round),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}

		if s.Policy.Cooldown <= 0 {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, s.Policy.MaxRetries+1, lastErr)
		}

		logger.Warn("client start retries exhausted, cooling down",
			zap.Int("round", round),
			zap.Duration("cooldown", s.Policy.Cooldown))
		if !s.sleep(ctx, s.Policy.Cooldown) {
			return ctx.Err()
		}
	}
}
