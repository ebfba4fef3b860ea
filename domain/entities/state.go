package entities

import "fmt"

// PluginState tracks where a plugin is in its lifecycle. Stored atomically
// on the handler so health checks and dispatch never block on each other.
type PluginState uint8

const (
	// StateLoading covers bytecode fetch and sandbox instantiation.
	StateLoading PluginState = iota
	// StateInitializing means the guest init entry point is running.
	StateInitializing
	// StateReady accepts requests.
	StateReady
	// StateDegraded still accepts requests but last reported unhealthy.
	StateDegraded
	// StateStopping means shutdown has begun; new requests are rejected.
	StateStopping
	// StateStopped is terminal after a clean shutdown.
	StateStopped
	// StateFailed is terminal after a load or init failure.
	StateFailed
)

func (s PluginState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// AcceptsRequests reports whether dispatch is allowed in this state.
// Degraded plugins keep serving; only their health report changes.
func (s PluginState) AcceptsRequests() bool {
	return s == StateReady || s == StateDegraded
}

// Terminal reports whether the plugin can never leave this state.
func (s PluginState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
