// Package plugin ties one loaded guest to its lifecycle: init, request
// dispatch, health probes, and shutdown. The handler is the only writer of
// the plugin's lifecycle state; health checks and routers read it
// atomically without blocking dispatch.
package plugin

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/events"
	"github.com/larch-dev/larch-host/hostfuncs"
	"github.com/larch-dev/larch-host/sandbox"
	"github.com/larch-dev/larch-host/scheduler"
	"github.com/larch-dev/larch-host/wireformat"
)

const meterName = "github.com/larch-dev/larch-host/plugin"

// Handler drives one plugin instance. All state transitions go through it;
// the guest handle, scheduler, and event router it owns are shared for
// serialization only.
type Handler struct {
	name    string
	handles map[string]struct{}
	guest   sandbox.GuestCaller
	host    *hostfuncs.HostContext
	timeout time.Duration
	logger  *slog.Logger

	state atomic.Uint32

	scheduler *scheduler.Scheduler
	router    *events.Router

	invocations metric.Int64Counter
	timeouts    metric.Int64Counter
}

// NewHandler builds a handler in the Loading state. CallInit must succeed
// before the handler accepts requests.
func NewHandler(manifest *entities.PluginManifest, guest sandbox.GuestCaller, host *hostfuncs.HostContext, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	handles := make(map[string]struct{}, len(manifest.Handles))
	for _, kind := range manifest.Handles {
		handles[kind] = struct{}{}
	}
	timeout := manifest.ExecutionTimeout()

	meter := otel.Meter(meterName)
	invocations, _ := meter.Int64Counter("plugin.guest.invocations",
		metric.WithDescription("Guest export invocations by outcome"))
	timeouts, _ := meter.Int64Counter("plugin.guest.timeouts",
		metric.WithDescription("Guest invocations abandoned at the execution timeout"))

	h := &Handler{
		name:        manifest.Name,
		handles:     handles,
		guest:       guest,
		host:        host,
		timeout:     timeout,
		logger:      logger,
		scheduler:   scheduler.New(manifest.Name, guest, timeout, logger),
		router:      events.NewRouter(manifest.Name, guest, timeout, logger),
		invocations: invocations,
		timeouts:    timeouts,
	}
	h.state.Store(uint32(entities.StateLoading))
	return h
}

// Name returns the plugin name.
func (h *Handler) Name() string {
	return h.name
}

// State returns the current lifecycle state.
func (h *Handler) State() entities.PluginState {
	return entities.PluginState(h.state.Load()) //nolint:gosec // G115: states fit in uint8
}

func (h *Handler) setState(s entities.PluginState) {
	h.state.Store(uint32(s))
}

// CanHandle reports whether the manifest declares this request kind.
func (h *Handler) CanHandle(kind string) bool {
	_, ok := h.handles[kind]
	return ok
}

// Router exposes the event router so event producers can deliver hook
// events to this plugin.
func (h *Handler) Router() *events.Router {
	return h.router
}

// Scheduler exposes the timer scheduler, mainly for tests and diagnostics.
func (h *Handler) Scheduler() *scheduler.Scheduler {
	return h.scheduler
}

// drainQueues applies commands the guest enqueued during its last call.
// Scheduler commands first, then subscriptions, both in FIFO order.
func (h *Handler) drainQueues() {
	h.scheduler.Apply(h.host.SchedulerQueue().Drain())
	h.router.Apply(h.host.SubscriptionQueue().Drain())
}

func (h *Handler) record(ctx context.Context, export, outcome string) {
	h.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plugin", h.name),
		attribute.String("export", export),
		attribute.String("outcome", outcome),
	))
}

// CallInit runs the guest's init entry point and transitions the handler
// to Ready on a positive acknowledgement, Failed otherwise. Commands the
// guest enqueued during init are applied once Ready.
func (h *Handler) CallInit(ctx context.Context) error {
	h.setState(entities.StateInitializing)

	out, err := h.guest.Call(ctx, "plugin_init", nil, h.timeout)
	if err != nil {
		h.setState(entities.StateFailed)
		h.recordFailure(ctx, "plugin_init", err)
		return fmt.Errorf("plugin '%s' init failed: %w", h.name, err)
	}
	ack, err := wireformat.ParseGuestAck(out)
	if err != nil {
		h.setState(entities.StateFailed)
		h.record(ctx, "plugin_init", "error")
		return fmt.Errorf("plugin '%s' init response: %w", h.name, err)
	}
	if !ack.OK {
		h.setState(entities.StateFailed)
		h.record(ctx, "plugin_init", "error")
		reason := ack.Error
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Errorf("plugin '%s' init failed: %s", h.name, reason)
	}

	h.setState(entities.StateReady)
	h.record(ctx, "plugin_init", "ok")
	h.drainQueues()
	h.logger.Info("plugin initialized", "plugin", h.name)
	return nil
}

// Handle dispatches one request to the guest. Rejected with a StateError
// unless the plugin is Ready or Degraded. On success, deferred commands are
// applied before returning.
func (h *Handler) Handle(ctx context.Context, request []byte) ([]byte, error) {
	state := h.State()
	if !state.AcceptsRequests() {
		return nil, &errors.StateError{Plugin: h.name, State: state.String(), Op: "handle request"}
	}

	invocationID := uuid.NewString()
	h.logger.Debug("dispatching request to guest",
		"plugin", h.name, "invocation_id", invocationID, "request_bytes", len(request))

	out, err := h.guest.Call(ctx, "handle_request", request, h.timeout)
	if err != nil {
		h.recordFailure(ctx, "handle_request", err)
		h.logger.Warn("guest request handling failed",
			"plugin", h.name, "invocation_id", invocationID, "error", err)
		return nil, err
	}

	h.record(ctx, "handle_request", "ok")
	h.drainQueues()
	return out, nil
}

// CallHealth probes the guest under the fixed short health timeout. A
// positive acknowledgement reports healthy and recovers a Degraded plugin
// to Ready; anything else degrades the plugin. Health never drives a
// plugin to Failed.
func (h *Handler) CallHealth(ctx context.Context) entities.PluginHealth {
	out, err := h.guest.Call(ctx, "plugin_health", nil, entities.HealthCheckTimeout)
	if err != nil {
		h.recordFailure(ctx, "plugin_health", err)
		h.degrade()
		return entities.DegradedStatus(fmt.Sprintf("health check failed: %v", err))
	}

	ack, ackErr := wireformat.ParseGuestAck(out)
	if ackErr != nil || !ack.OK {
		h.record(ctx, "plugin_health", "error")
		h.degrade()
		return entities.DegradedStatus("health check returned non-ok response")
	}

	h.record(ctx, "plugin_health", "ok")
	if h.State() == entities.StateDegraded {
		h.setState(entities.StateReady)
		h.logger.Info("plugin recovered", "plugin", h.name)
	}
	message := ack.Message
	if message == "" {
		message = "healthy"
	}
	return entities.PluginHealth{Healthy: true, Message: message}
}

func (h *Handler) degrade() {
	if h.State().AcceptsRequests() {
		h.setState(entities.StateDegraded)
	}
}

// CallShutdown cancels timers and subscriptions, then runs the guest's
// shutdown entry point. The handler always ends Stopped; a shutdown
// timeout is logged, not surfaced.
func (h *Handler) CallShutdown(ctx context.Context) error {
	h.setState(entities.StateStopping)
	h.scheduler.CancelAll()
	h.router.UnsubscribeAll()

	_, err := h.guest.Call(ctx, "plugin_shutdown", nil, h.timeout)
	h.setState(entities.StateStopped)
	if err != nil {
		var te *errors.TimeoutError
		if stderrors.As(err, &te) {
			h.timeouts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("plugin", h.name),
				attribute.String("export", "plugin_shutdown"),
			))
			h.logger.Warn("plugin shutdown exceeded execution timeout", "plugin", h.name)
			return nil
		}
		return fmt.Errorf("plugin '%s' shutdown failed: %w", h.name, err)
	}
	h.record(ctx, "plugin_shutdown", "ok")
	return nil
}

// Close releases the guest handle. Call after CallShutdown.
func (h *Handler) Close(ctx context.Context) error {
	return h.guest.Close(ctx)
}

// recordFailure classifies a guest call error into the metric outcome and
// bumps the timeout counter when applicable.
func (h *Handler) recordFailure(ctx context.Context, export string, err error) {
	var te *errors.TimeoutError
	if stderrors.As(err, &te) {
		h.timeouts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("plugin", h.name),
			attribute.String("export", export),
		))
		h.record(ctx, export, "timeout")
		return
	}
	h.record(ctx, export, "error")
}
