package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/xhad/tutor/internal/models"
)

const (
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

type RetryConfig struct {
	Attempts uint          `yaml:"attempts" env:"ATTEMPTS"`
	Delay    time.Duration `yaml:"delay" env:"DELAY"`
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

func (rc *RetryConfig) ToRetryOptions() []retry.Option {
	return []retry.Option{
		retry.Attempts(rc.Attempts),
		retry.MaxDelay(rc.MaxDelay),
		retry.Delay(rc.Delay),
	}
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		MaxDelay: defaultMaxDelay,
	}
}

// Do calls fn until it succeeds, fails with an error that is not worth
// retrying, or runs out of attempts. Only backend unavailability and
// timeouts are retried.
func Do[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	if rc.Attempts == 0 {
		rc.Attempts = defaultAttempts
	}
	opts := append(rc.ToRetryOptions(),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(models.Retryable),
		retry.OnRetry(func(n uint, err error) {
			ctxzap.Warn(ctx, "retrying after failure", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	return retry.DoWithData(fn, opts...)
}
