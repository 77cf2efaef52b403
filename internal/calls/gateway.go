package calls

import (
	"context"
	"fmt"
)

// runBounded runs fn in its own goroutine and returns when fn finishes or
// ctx is done, whichever comes first. A gateway that ignores its context is
// abandoned rather than allowed to hold the request.
func runBounded(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("gateway call panicked: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
