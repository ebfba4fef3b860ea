package ports

import (
	"context"
	"encoding/json"
)

// HookHandlerInfo describes one configured hook handler.
type HookHandlerInfo struct {
	Name          string
	Pattern       string
	HandlerType   string
	ExecutionMode string
	Enabled       bool
	TimeoutMs     uint64
	RetryCount    uint32
}

// HookHandlerMetrics is the per-handler execution record.
type HookHandlerMetrics struct {
	Name          string
	SuccessCount  uint64
	FailureCount  uint64
	DroppedCount  uint64
	JobsSubmitted uint64
	AvgDurationUs uint64
	MaxDurationUs uint64
}

// HookMetricsSnapshot is a point-in-time view of hook execution metrics.
type HookMetricsSnapshot struct {
	Enabled              bool
	TotalEventsProcessed uint64
	Handlers             []HookHandlerMetrics
}

// HookDispatch reports the outcome of a synthetic event trigger.
type HookDispatch struct {
	Success         bool
	DispatchedCount int
	Error           string
	HandlerFailures []string
}

// HookService is the optional hook-system collaborator. Without it the
// hook management host functions are not registered at all; per-plugin
// subscription routing works independently of it.
type HookService interface {
	Enabled() bool
	Handlers(ctx context.Context) ([]HookHandlerInfo, error)
	// Metrics returns the snapshot, filtered to one handler when filter is
	// non-empty.
	Metrics(ctx context.Context, filter string) (*HookMetricsSnapshot, error)
	// Trigger dispatches a synthetic event of the given type.
	Trigger(ctx context.Context, eventType string, payload json.RawMessage) (*HookDispatch, error)
}
