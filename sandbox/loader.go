package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/hostfuncs"
	wazerohost "github.com/larch-dev/larch-host/infrastructure/wazero"
)

const wasmPageSize = 65536

// LoadConfig carries everything needed to instantiate one guest.
type LoadConfig struct {
	Manifest *entities.PluginManifest
	// Module is the guest bytecode fetched from the blob store.
	Module []byte
	// Host supplies the capability-gated host functions exported to the
	// guest.
	Host   *hostfuncs.HostContext
	Logger *slog.Logger
}

// Load builds a dedicated wazero runtime for one plugin, registers the host
// module, instantiates the guest, and verifies the identity the guest
// reports matches its manifest. The returned handle owns the runtime.
func Load(ctx context.Context, cfg LoadConfig) (*Handle, *entities.PluginInfo, error) {
	manifest := cfg.Manifest
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(cfg.Module) > entities.MaxModuleSize {
		return nil, nil, &errors.SandboxError{
			Plugin: manifest.Name,
			Reason: fmt.Sprintf("module too large: %d bytes (max %d)", len(cfg.Module), entities.MaxModuleSize),
		}
	}

	memoryLimit := manifest.GuestMemoryLimit()
	pages := uint32(memoryLimit / wasmPageSize) //nolint:gosec // G115: MaxMemoryLimit / page size fits in 32 bits
	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	registry, err := cfg.Host.BuildRegistry()
	if err != nil {
		runtime.Close(ctx)
		return nil, nil, &errors.SandboxError{Err: err, Plugin: manifest.Name, Reason: "failed to build host function registry"}
	}
	if err := wazerohost.RegisterHostModule(ctx, runtime, cfg.Host, registry); err != nil {
		runtime.Close(ctx)
		return nil, nil, &errors.SandboxError{Err: err, Plugin: manifest.Name, Reason: "failed to register host module"}
	}

	module, err := runtime.Instantiate(ctx, cfg.Module)
	if err != nil {
		runtime.Close(ctx)
		return nil, nil, &errors.SandboxError{Err: err, Plugin: manifest.Name, Reason: "failed to instantiate guest module"}
	}

	handle := NewHandle(manifest.Name, runtime, module, logger)

	infoBytes, err := handle.Call(ctx, "plugin_info", nil, manifest.ExecutionTimeout())
	if err != nil {
		handle.Close(ctx)
		return nil, nil, fmt.Errorf("failed to call plugin_info for '%s': %w", manifest.Name, err)
	}
	var info entities.PluginInfo
	if err := json.Unmarshal(infoBytes, &info); err != nil {
		handle.Close(ctx)
		return nil, nil, &errors.DecodeError{Err: err, What: fmt.Sprintf("plugin_info from '%s'", manifest.Name)}
	}
	if info.Name != manifest.Name {
		handle.Close(ctx)
		return nil, nil, fmt.Errorf("plugin name mismatch: manifest says '%s', guest says '%s'", manifest.Name, info.Name)
	}

	logger.Info("guest module loaded",
		"plugin", manifest.Name,
		"version", manifest.Version,
		"memory_limit_bytes", memoryLimit,
		"execution_timeout_secs", manifest.ExecutionTimeout().Seconds())

	return handle, &info, nil
}
