/*
Package errs defines the error taxonomy shared by every playcore component.

Every rejection the core produces carries exactly one of nine codes. The
codes split into three families:

Routine cancellation (callers typically ignore):
  - ABORTED: work cancelled via Queue.Abort or a tripped signal
  - CANCELLED: a foreign context cancellation crossed a core boundary
  - SUPERSEDED: a newer task with the same key replaced this one
  - REMOVED: the task was dequeued before it ran
  - DETACHED: the store detached from its target while work was in flight
  - DESTROYED: the store or queue was torn down

Failed preconditions (retry may be valid):
  - REJECTED: a guard returned false
  - TIMEOUT: a guard exceeded its time bound

Programmer error (log loudly):
  - NO_TARGET: a request was issued before any target was attached

Errors support cause chaining via the standard errors package:

	err := errs.Wrap(errs.Timeout, "guard canPlay", cause)
	errors.Is(err, errs.New(errs.Timeout, ""))  // true
	errs.IsCode(err, errs.Timeout)              // true

Handler errors are domain errors and are never wrapped into this taxonomy;
they propagate to the caller unchanged.
*/
package errs
