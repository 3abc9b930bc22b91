package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/station-pick/internal/core/domain"
)

const defaultCallTimeout = 5 * time.Second

// call runs one backend request under its own deadline. A deadline hit is
// reported as a transient failure, never as an unknown outcome.
func call(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransient) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
