package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts  = 3
	defaultMaxDelay  = 2 * time.Second
	defaultDelay     = 100 * time.Millisecond
	defaultMaxJitter = 100 * time.Millisecond
)

type RetryConfig struct {
	Attempts  uint          `env:"ATTEMPTS" envDefault:"3"`
	Delay     time.Duration `env:"DELAY" envDefault:"200ms"`
	MaxDelay  time.Duration `env:"MAX_DELAY" envDefault:"5s"`
	MaxJitter time.Duration `env:"MAX_JITTER" envDefault:"100ms"`
}

// ToRetryOptions builds exponential backoff with random jitter. Only errors
// accepted by IsTransient are retried.
func (rc *RetryConfig) ToRetryOptions(ctx context.Context) []retry.Option {
	// zero attempts means "retry forever" in retry-go
	attempts := max(rc.Attempts, 1)

	delayType := retry.BackOffDelay
	if rc.MaxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.MaxDelay(rc.MaxDelay),
		retry.Delay(rc.Delay),
		retry.MaxJitter(rc.MaxJitter),
		retry.DelayType(delayType),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	}
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Attempts:  defaultAttempts,
		Delay:     defaultDelay,
		MaxDelay:  defaultMaxDelay,
		MaxJitter: defaultMaxJitter,
	}
}

// Temporary is implemented by transport errors that may succeed on retry
type Temporary interface {
	Temporary() bool
}

// IsTransient reports whether err is worth retrying. Cancellation and
// deadlines never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var t Temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}
