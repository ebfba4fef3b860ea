// Package errors provides domain-specific error types for the plugin host.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	"fmt"
	"time"
)

// PermissionError represents a capability check failure. The plugin lacked
// the manifest permission required by a host function.
type PermissionError struct {
	Plugin     string // Plugin name
	Capability string // Required capability (e.g., "kv_write", "timers")
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("plugin '%s' lacks permission: %s", e.Plugin, e.Capability)
}

// NamespaceError represents a key outside the plugin's allowed KV prefixes.
type NamespaceError struct {
	Plugin string
	Key    string
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("plugin '%s' denied access to key outside its namespace: %s", e.Plugin, e.Key)
}

// ResourceLimitError represents a per-plugin resource bound being exceeded.
type ResourceLimitError struct {
	Plugin   string
	Resource string // e.g., "timers", "hook_subscriptions", "random_bytes"
	Limit    int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("plugin '%s' exceeded %s limit (%d)", e.Plugin, e.Resource, e.Limit)
}

// TimeoutError represents a guest call exceeding its wall-clock budget.
// The guest goroutine is abandoned, not killed; the handle stays usable.
type TimeoutError struct {
	Plugin    string
	Operation string // Guest export name
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("plugin '%s' %s timed out after %v", e.Plugin, e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// GuestFaultError represents a trap or panic raised while executing guest
// code. The originating call fails; the handle is marked poisoned.
type GuestFaultError struct {
	Plugin    string
	Operation string
	Detail    string
}

func (e *GuestFaultError) Error() string {
	return fmt.Sprintf("plugin '%s' faulted during %s: %s", e.Plugin, e.Operation, e.Detail)
}

// SandboxError represents a sandbox infrastructure failure: instantiation,
// missing exports, memory access outside bounds, or a poisoned handle.
type SandboxError struct {
	Err    error
	Plugin string
	Reason string
}

func (e *SandboxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sandbox error for plugin '%s': %s: %v", e.Plugin, e.Reason, e.Err)
	}
	return fmt.Sprintf("sandbox error for plugin '%s': %s", e.Plugin, e.Reason)
}

func (e *SandboxError) Unwrap() error {
	return e.Err
}

// NotLeaderError represents a write refused because this node is not the
// cluster leader. Leader carries the current leader's node ID when known,
// zero otherwise.
type NotLeaderError struct {
	Leader uint64
}

func (e *NotLeaderError) Error() string {
	if e.Leader != 0 {
		return fmt.Sprintf("not leader (leader is node %d)", e.Leader)
	}
	return "not leader"
}

// CompareMismatchError represents a failed compare-and-swap or
// compare-and-delete. Actual is the value found in the store; nil means the
// key was absent.
type CompareMismatchError struct {
	Key    string
	Actual []byte
}

func (e *CompareMismatchError) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("compare failed for key '%s': key not found", e.Key)
	}
	return fmt.Sprintf("compare failed for key '%s': value mismatch", e.Key)
}

// DecodeError represents malformed bytes crossing the guest boundary:
// invalid JSON, bad base64, or a truncated tagged result.
type DecodeError struct {
	Err  error
	What string // What was being decoded (e.g., "timer config", "kv batch op")
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StateError represents an operation attempted in an incompatible lifecycle
// state, such as dispatching to a stopped plugin.
type StateError struct {
	Plugin string
	State  string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin '%s' cannot %s in state %s", e.Plugin, e.Op, e.State)
}
