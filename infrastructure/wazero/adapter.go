package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/hostfuncs"
)

// HostModuleName is the module guests import host functions from.
const HostModuleName = "larch_host"

// DefaultMaxRequestSize bounds a single request read from guest memory.
const DefaultMaxRequestSize = 1 << 20

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// ModuleName is the host module name (default: "larch_host").
	ModuleName string

	// MaxRequestSize limits the size of incoming requests from guest
	// memory. Default is 1MB.
	MaxRequestSize uint32

	// CustomHandlers adds wazero-specific handlers that don't use the
	// standard packed i64 request/response pattern.
	CustomHandlers []CustomHandler
}

// CustomHandler is a raw wazero export outside the packed-buffer protocol.
type CustomHandler struct {
	Name        string
	Handler     api.GoModuleFunc
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName overrides the host module name.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     HostModuleName,
		MaxRequestSize: DefaultMaxRequestSize,
	}
}

// RegisterHostModule instantiates the host module on a wazero runtime,
// exporting every registry handler plus the scalar functions derived from
// the host context.
//
// Each registry handler is wrapped to:
//   - Read request bytes from guest memory using the packed i64 ptr+len
//     format
//   - Invoke the ByteHandler with the request payload
//   - Allocate response memory in the guest using the "allocate" export
//   - Write response bytes to guest memory
//   - Return packed i64 ptr+len of the response
func RegisterHostModule(ctx context.Context, runtime wazero.Runtime, hc *hostfuncs.HostContext, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, sc := range scalarHandlers(hc) {
		cfg.CustomHandlers = append(cfg.CustomHandlers, sc)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range registry.Names() {
		funcName := name // capture for closure
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				handleRegistryCall(ctx, mod, stack, registry, funcName, cfg.MaxRequestSize)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(funcName)
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	_, err := builder.Instantiate(ctx)
	return err
}

// scalarHandlers builds the direct scalar exports. These skip the
// packed-buffer protocol entirely: a u64 comes straight back on the stack.
func scalarHandlers(hc *hostfuncs.HostContext) []CustomHandler {
	u64Result := []api.ValueType{api.ValueTypeI64}
	return []CustomHandler{
		{
			Name: "now_ms",
			Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = hc.NowMS()
			}),
			ResultTypes: u64Result,
		},
		{
			Name: "hlc_now",
			Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = hc.HLCNow()
			}),
			ResultTypes: u64Result,
		},
		{
			Name: "node_id",
			Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = hc.NodeID()
			}),
			ResultTypes: u64Result,
		},
		{
			Name: "is_leader",
			Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = hc.IsLeader(ctx)
			}),
			ResultTypes: u64Result,
		},
		{
			Name: "leader_id",
			Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = hc.LeaderID(ctx)
			}),
			ResultTypes: u64Result,
		},
		{
			// random_bytes takes the byte count as i32 and returns a
			// packed buffer of raw entropy.
			Name: "random_bytes",
			Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				count := uint32(stack[0])
				stack[0] = writeResponse(ctx, mod, hc.RandomBytes(count))
			}),
			ParamTypes:  []api.ValueType{api.ValueTypeI32},
			ResultTypes: u64Result,
		},
	}
}

// handleRegistryCall handles a host function call from WASM. It reads the
// request from guest memory, invokes the handler, and writes the tagged
// response back.
func handleRegistryCall(ctx context.Context, mod api.Module, stack []uint64, registry *hostfuncs.HandlerRegistry, name string, maxRequestSize uint32) {
	ptr, length := unpackPtrLen(stack[0])

	if length > maxRequestSize {
		errMsg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, maxRequestSize)
		slog.ErrorContext(ctx, "wazero: "+errMsg, "function", name)
		stack[0] = writeResponse(ctx, mod, abi.ErrBytes(errMsg))
		return
	}

	requestBytes, ok := mod.Memory().Read(ptr, length)
	if !ok {
		slog.ErrorContext(ctx, "wazero: failed to read request from guest memory", "function", name)
		stack[0] = writeResponse(ctx, mod, abi.ErrBytes("failed to read request from guest memory"))
		return
	}

	responseBytes, err := registry.Invoke(ctx, name, requestBytes)
	if err != nil {
		slog.ErrorContext(ctx, "wazero: handler invocation failed", "function", name, "error", err)
		stack[0] = writeResponse(ctx, mod, abi.ErrBytes(err.Error()))
		return
	}

	stack[0] = writeResponse(ctx, mod, responseBytes)
}

// writeResponse allocates memory in the guest and writes the response
// bytes. Returns packed ptr+len or 0 on failure.
func writeResponse(ctx context.Context, mod api.Module, data []byte) uint64 {
	allocateFn := mod.ExportedFunction("allocate")
	if allocateFn == nil {
		slog.ErrorContext(ctx, "wazero: guest module missing 'allocate' export")
		return 0
	}

	results, err := allocateFn.Call(ctx, uint64(len(data)))
	if err != nil {
		slog.ErrorContext(ctx, "wazero: failed to call guest allocate", "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if len(data) > 0 && !mod.Memory().Write(ptr, data) {
		slog.ErrorContext(ctx, "wazero: failed to write response to guest memory")
		return 0
	}

	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: Data length is bounded by config
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
