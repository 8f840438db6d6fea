package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config bounds retries at the collaborator boundary. The orchestration layer
// never retries; anything that talks to the network goes through here instead.
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	JitterFraction  float64
	RetryableErrors []error
	Logger          *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         zap.NewNop(),
	}
}

func (c *Config) normalize() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
}

// Do runs operation up to MaxAttempts times with exponential backoff.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	cfg.normalize()

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = err

		if !isRetryable(err, cfg.RetryableErrors) {
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("Operation failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.Duration("delay", delay),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(withJitter(delay, cfg.JitterFraction)):
		}

		delay = nextDelay(delay, cfg.Multiplier, cfg.MaxDelay)
	}

	return lastErr
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, operation func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = operation()
		return err
	})
	return result, err
}

func nextDelay(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	return time.Duration(math.Min(float64(max), float64(current)*multiplier))
}

func isRetryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return true
	}
	for _, retryableErr := range retryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}
	return false
}

func withJitter(duration time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return duration
	}
	jitter := time.Duration(rand.Float64() * float64(duration) * fraction)
	if rand.Intn(2) == 0 {
		return duration - jitter
	}
	return duration + jitter
}
