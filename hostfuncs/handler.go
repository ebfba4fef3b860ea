package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/larch-dev/larch-host/abi"
)

// ByteHandler is a host function over raw bytes: it takes the guest's
// request payload and returns a tagged response buffer. Handlers never
// return a Go error for guest-visible failures; those travel inside the
// tagged buffer so the guest can decode them. A non-nil error means the
// host itself failed and the sandbox adapter traps the call.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// Middleware wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps outermost).
type Middleware func(next ByteHandler) ByteHandler

type funcNameKey struct{}

func withFunctionName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, funcNameKey{}, name)
}

// FunctionNameFrom returns the host function name the registry attached to
// the call context, or "unknown" outside a registry dispatch.
func FunctionNameFrom(ctx context.Context) string {
	if name, ok := ctx.Value(funcNameKey{}).(string); ok {
		return name
	}
	return "unknown"
}

// PanicRecoveryMiddleware catches handler panics and converts them to
// tagged error responses instead of crashing the host. A panicking host
// function must never take the whole process down with it.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = abi.ErrBytes(fmt.Sprintf("host function panic in %s: %v", FunctionNameFrom(ctx), r))
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware logs each host function invocation at debug level with
// the plugin name attached.
func LoggingMiddleware(logger *slog.Logger, pluginName string) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			logger.Debug("host function invoked",
				"plugin", pluginName,
				"function", FunctionNameFrom(ctx),
				"payload_len", len(payload))
			return next(ctx, payload)
		}
	}
}
