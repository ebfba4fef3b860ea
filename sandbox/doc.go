// Package sandbox wraps a wazero guest module in an exclusively-held call
// handle. Guest calls are serialized, bounded by a wall-clock timeout, and
// trap recovery marks the handle poisoned so later callers fail fast
// instead of touching corrupted guest state.
//
// A timed-out call is abandoned, not killed: the goroutine running it keeps
// the call slot until the guest returns, so no second call can observe the
// guest mid-execution.
package sandbox
