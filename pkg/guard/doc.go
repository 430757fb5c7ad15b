/*
Package guard defines request preconditions and their combinators.

A Guard is a predicate over (ctx, target). Guards gate requests before
their handlers run: false maps to a REJECTED failure, a guard error fails
the request with that error, and a signal abort observed while the guard
was waiting wins over whatever the guard eventually returns.

Combinators:

  - All: every guard must pass, in order, short-circuiting on the first
    false or error.
  - Any: races guards concurrently and passes on the first true.
  - WithTimeout: bounds one guard with a TIMEOUT failure carrying the
    guard's name.

Guards are plain functions, so features compose them freely:

	ready := func(ctx context.Context, el *Element) (bool, error) {
		return el.ReadyState >= 2, nil
	}
	play := guard.WithTimeout(guard.All(ready, notSeeking), time.Second, "canPlay")
*/
package guard
