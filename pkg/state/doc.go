/*
Package state provides the reactive key/value container behind a playcore
store.

The container maps string keys to arbitrary values and notifies
subscribers of changes in batches. Mutations are equality-gated: writing
a value equal (under SameValue) to the current one does nothing, and a
batch whose writes net out to the pre-batch state produces no
notification at all.

# Batching

A mutation marks its key pending and arms an asynchronous flush. Every
mutation that lands before the flush runs coalesces into the same batch,
and each subscriber fires at most once per batch regardless of how many
of its keys were touched:

	c := state.New(state.Snapshot{"volume": 1.0, "muted": false})
	c.SubscribeKeys([]string{"volume"}, func(s state.Snapshot) {
		fmt.Println("volume:", s["volume"])
	})
	c.Patch(state.Snapshot{"volume": 0.5, "muted": true})
	c.Flush() // or wait for the armed flush

Batch suspends flushing for the duration of a callback; Flush drains
synchronously and exists mainly for tests.

# Subscription shapes

Three shapes are supported: Subscribe (any key), SubscribeKeys (an
explicit key set) and SubscribeSelector, which derives the key set from
the top-level keys of the selector's initial result when that result is a
map. Selector subscriptions re-fire only when the selected value changes
under the configured equality function.

Watch returns a channel-based subscription carrying one ChangeSet per
flush with non-blocking delivery, for consumers built around select
loops.

Subscriber panics are caught and logged; one failing subscriber never
prevents another from observing the batch. Unsubscribing during a flush
prevents all subsequent calls, including later calls within that same
flush.
*/
package state
