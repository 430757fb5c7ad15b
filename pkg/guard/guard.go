package guard

import (
	"context"
	"time"

	"github.com/cueframe/playcore/pkg/errs"
)

// Guard is a precondition on a request. It may read the target freely but
// must not mutate it. A guard returns (true, nil) to pass, (false, nil)
// to reject the request, or an error to fail it outright. Blocking guards
// must honor ctx and return promptly once it is cancelled.
type Guard[T any] func(ctx context.Context, target T) (bool, error)

// Check applies taxonomy semantics to a single guard: a false result maps
// to REJECTED, guard errors pass through, and a cancellation observed
// while the guard was waiting surfaces the signal's cause rather than
// whatever the guard returned.
func Check[T any](ctx context.Context, target T, g Guard[T]) error {
	if err := causeErr(ctx); err != nil {
		return err
	}
	ok, err := g(ctx, target)
	if cerr := causeErr(ctx); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.Rejected, "guard rejected request")
	}
	return nil
}

// All combines guards so that every one must pass, evaluated in order.
// The first false or error short-circuits the rest.
func All[T any](guards ...Guard[T]) Guard[T] {
	return func(ctx context.Context, target T) (bool, error) {
		for _, g := range guards {
			if err := causeErr(ctx); err != nil {
				return false, err
			}
			ok, err := g(ctx, target)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// Any races guards and passes on the first true result. Remaining guards
// are released via context cancellation and their results discarded. When
// no guard passes, the first error observed is returned; with no errors
// the combined guard is false.
func Any[T any](guards ...Guard[T]) Guard[T] {
	return func(ctx context.Context, target T) (bool, error) {
		if len(guards) == 0 {
			return false, nil
		}

		raceCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(errs.New(errs.Cancelled, "any: race settled"))

		type result struct {
			ok  bool
			err error
		}
		results := make(chan result, len(guards))
		for _, g := range guards {
			g := g
			go func() {
				ok, err := g(raceCtx, target)
				results <- result{ok: ok, err: err}
			}()
		}

		var firstErr error
		for i := 0; i < len(guards); i++ {
			select {
			case r := <-results:
				if r.ok && r.err == nil {
					return true, nil
				}
				if r.err != nil && firstErr == nil {
					firstErr = r.err
				}
			case <-ctx.Done():
				return false, causeErr(ctx)
			}
		}
		return false, firstErr
	}
}

// WithTimeout bounds a guard's evaluation. When the bound elapses the
// guard fails with TIMEOUT naming the guard; the pending timer is
// released as soon as the signal aborts.
func WithTimeout[T any](g Guard[T], d time.Duration, name string) Guard[T] {
	return func(ctx context.Context, target T) (bool, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		type result struct {
			ok  bool
			err error
		}
		done := make(chan result, 1)
		go func() {
			ok, err := g(ctx, target)
			done <- result{ok: ok, err: err}
		}()

		select {
		case r := <-done:
			return r.ok, r.err
		case <-timer.C:
			return false, errs.Newf(errs.Timeout, "guard %s timed out after %s", name, d)
		case <-ctx.Done():
			return false, causeErr(ctx)
		}
	}
}

func causeErr(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := errs.CauseOf(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
