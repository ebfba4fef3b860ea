package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/larch-dev/larch-host/domain/errors"
)

// GuestCaller is the surface the lifecycle, scheduler, and event router
// need from a loaded guest. *Handle implements it; tests substitute fakes.
type GuestCaller interface {
	// Call invokes a guest export with the given input bytes, bounded by a
	// wall-clock timeout. Exactly one call runs at a time.
	Call(ctx context.Context, export string, input []byte, timeout time.Duration) ([]byte, error)
	// Poisoned reports whether an earlier guest fault has made the handle
	// unusable.
	Poisoned() bool
	// Close releases the underlying runtime.
	Close(ctx context.Context) error
}

// Handle owns one instantiated guest module and serializes calls into it.
type Handle struct {
	plugin  string
	runtime wazero.Runtime
	module  api.Module
	logger  *slog.Logger

	// slot is a one-deep semaphore; holding it grants exclusive guest
	// access. A channel rather than a mutex so acquisition can respect
	// the caller's timeout.
	slot     chan struct{}
	poisoned atomic.Bool

	// invoke performs the raw guest call. Defaults to callExport; tests
	// substitute it to exercise the slot and fault handling without a
	// real module.
	invoke func(ctx context.Context, export string, input []byte) ([]byte, error)
}

// NewHandle wraps an instantiated guest module. The runtime may be nil for
// handles built around a pre-instantiated module in tests.
func NewHandle(plugin string, runtime wazero.Runtime, module api.Module, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handle{
		plugin:  plugin,
		runtime: runtime,
		module:  module,
		logger:  logger,
		slot:    make(chan struct{}, 1),
	}
	h.invoke = h.callExport
	return h
}

// Poisoned reports whether a guest fault has retired this handle.
func (h *Handle) Poisoned() bool {
	return h.poisoned.Load()
}

// Close releases the wazero runtime and everything instantiated in it.
func (h *Handle) Close(ctx context.Context) error {
	if h.runtime == nil {
		return nil
	}
	return h.runtime.Close(ctx)
}

type callOutcome struct {
	data []byte
	err  error
}

// Call runs a guest export under the exclusive slot. The timeout covers
// both waiting for the slot and the guest execution itself. On timeout the
// running goroutine is abandoned; it releases the slot whenever the guest
// eventually returns. A recovered panic poisons the handle.
func (h *Handle) Call(ctx context.Context, export string, input []byte, timeout time.Duration) ([]byte, error) {
	if h.poisoned.Load() {
		return nil, &errors.SandboxError{Plugin: h.plugin, Reason: "handle poisoned by earlier guest fault"}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case h.slot <- struct{}{}:
	case <-deadline.C:
		return nil, &errors.TimeoutError{Plugin: h.plugin, Operation: export, Duration: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	done := make(chan callOutcome, 1)
	go func() {
		defer func() { <-h.slot }()
		defer func() {
			if r := recover(); r != nil {
				h.poisoned.Store(true)
				h.logger.Error("guest call panicked, poisoning handle",
					"plugin", h.plugin, "export", export, "panic", r)
				done <- callOutcome{err: &errors.GuestFaultError{
					Plugin:    h.plugin,
					Operation: export,
					Detail:    fmt.Sprintf("panic: %v", r),
				}}
			}
		}()
		data, err := h.invoke(ctx, export, input)
		done <- callOutcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-deadline.C:
		h.logger.Warn("guest call exceeded execution timeout, abandoning",
			"plugin", h.plugin, "export", export, "timeout_secs", timeout.Seconds())
		return nil, &errors.TimeoutError{Plugin: h.plugin, Operation: export, Duration: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// callExport performs the raw guest invocation: write the input into guest
// memory via allocate, call the export with (ptr, len), and read the packed
// response buffer back out.
func (h *Handle) callExport(ctx context.Context, export string, input []byte) ([]byte, error) {
	fn := h.module.ExportedFunction(export)
	if fn == nil {
		return nil, &errors.SandboxError{Plugin: h.plugin, Reason: fmt.Sprintf("guest missing export %q", export)}
	}

	var ptr uint32
	if len(input) > 0 {
		allocate := h.module.ExportedFunction("allocate")
		if allocate == nil {
			return nil, &errors.SandboxError{Plugin: h.plugin, Reason: "guest missing 'allocate' export"}
		}
		results, err := allocate.Call(ctx, uint64(len(input)))
		if err != nil {
			return nil, &errors.SandboxError{Err: err, Plugin: h.plugin, Reason: "guest allocate failed"}
		}
		ptr = uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
		if !h.module.Memory().Write(ptr, input) {
			return nil, &errors.SandboxError{Plugin: h.plugin, Reason: "failed to write input to guest memory"}
		}
	}

	results, err := fn.Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return nil, &errors.GuestFaultError{Plugin: h.plugin, Operation: export, Detail: err.Error()}
	}
	if len(results) == 0 {
		return nil, nil
	}

	outPtr := uint32(results[0] >> 32)        //nolint:gosec // G115: packed format stores 32-bit values
	outLen := uint32(results[0] & 0xFFFFFFFF) //nolint:gosec // G115: packed format stores 32-bit values
	if outLen == 0 {
		return nil, nil
	}
	data, ok := h.module.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, &errors.SandboxError{Plugin: h.plugin, Reason: "guest returned out-of-bounds response buffer"}
	}
	out := make([]byte, outLen)
	copy(out, data)

	if deallocate := h.module.ExportedFunction("deallocate"); deallocate != nil {
		if _, err := deallocate.Call(ctx, uint64(outPtr), uint64(outLen)); err != nil {
			h.logger.Debug("guest deallocate failed", "plugin", h.plugin, "error", err)
		}
	}
	return out, nil
}
