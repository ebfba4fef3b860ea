// Package registry discovers plugin manifests in the KV store, loads their
// bytecode from the blob store, and manages the resulting handlers as a
// cohesive, hot-reloadable set.
//
// Manifests live under a dedicated KV prefix; each one names a blob hash
// holding the guest bytecode. Plugins that fail to load or initialize are
// logged and skipped so one bad plugin never takes down the rest.
package registry

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/ports"
	"github.com/larch-dev/larch-host/hostfuncs"
	"github.com/larch-dev/larch-host/plugin"
	"github.com/larch-dev/larch-host/sandbox"
)

// GuestLoader instantiates a guest from bytecode. The default builds a
// wazero runtime via sandbox.Load; tests substitute fake guests.
type GuestLoader func(ctx context.Context, cfg sandbox.LoadConfig) (sandbox.GuestCaller, *entities.PluginInfo, error)

// HandlerEntry pairs a handler with its dispatch priority for the outer
// request router.
type HandlerEntry struct {
	Handler  *plugin.Handler
	Priority uint32
}

type loadedPlugin struct {
	handler  *plugin.Handler
	priority uint32
	manifest *entities.PluginManifest
}

type registryConfig struct {
	kv        ports.KeyValueStore
	blobs     ports.BlobStore
	cluster   ports.ClusterController
	sql       ports.SQLQueryExecutor
	hooks     ports.HookService
	services  []ports.ServiceExecutor
	nodeID    uint64
	signKey   ed25519.PrivateKey
	logger    *slog.Logger
	loadGuest GuestLoader
}

// Option configures the registry.
type Option func(*registryConfig)

// WithKeyValueStore sets the manifest and plugin-data store. Required.
func WithKeyValueStore(kv ports.KeyValueStore) Option {
	return func(c *registryConfig) { c.kv = kv }
}

// WithBlobStore sets the bytecode store. Required.
func WithBlobStore(blobs ports.BlobStore) Option {
	return func(c *registryConfig) { c.blobs = blobs }
}

// WithClusterController wires cluster identity into plugin host contexts.
func WithClusterController(cluster ports.ClusterController) Option {
	return func(c *registryConfig) { c.cluster = cluster }
}

// WithSQLExecutor wires the SQL collaborator into plugin host contexts.
func WithSQLExecutor(sql ports.SQLQueryExecutor) Option {
	return func(c *registryConfig) { c.sql = sql }
}

// WithHookService wires the hook collaborator into plugin host contexts.
func WithHookService(hooks ports.HookService) Option {
	return func(c *registryConfig) { c.hooks = hooks }
}

// WithServiceExecutors registers named service executors exposed to guests.
func WithServiceExecutors(execs ...ports.ServiceExecutor) Option {
	return func(c *registryConfig) { c.services = append(c.services, execs...) }
}

// WithNodeID sets the node identity reported to guests.
func WithNodeID(id uint64) Option {
	return func(c *registryConfig) { c.nodeID = id }
}

// WithSigningKey sets the Ed25519 key plugins sign with.
func WithSigningKey(key ed25519.PrivateKey) Option {
	return func(c *registryConfig) { c.signKey = key }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *registryConfig) { c.logger = logger }
}

// WithGuestLoader overrides guest instantiation. Used by tests.
func WithGuestLoader(loader GuestLoader) Option {
	return func(c *registryConfig) { c.loadGuest = loader }
}

// Registry owns the loaded plugin set.
type Registry struct {
	cfg registryConfig

	mu      sync.RWMutex
	plugins map[string]*loadedPlugin
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	cfg := registryConfig{
		logger: slog.Default(),
		loadGuest: func(ctx context.Context, lc sandbox.LoadConfig) (sandbox.GuestCaller, *entities.PluginInfo, error) {
			return sandbox.Load(ctx, lc)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		cfg:     cfg,
		plugins: make(map[string]*loadedPlugin),
	}
}

// LoadAll scans the manifest prefix and loads every enabled plugin,
// replacing the current set. Plugins that fail to load or initialize are
// skipped. Returns the handler entries for the outer router.
func (r *Registry) LoadAll(ctx context.Context) ([]HandlerEntry, error) {
	if r.cfg.kv == nil || r.cfg.blobs == nil {
		return nil, fmt.Errorf("plugin registry requires a KV store and a blob store")
	}

	scan, err := r.cfg.kv.Scan(ctx, ports.ScanRequest{
		Prefix: entities.ManifestKVPrefix,
		Limit:  entities.MaxPlugins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan plugin manifests: %w", err)
	}
	if len(scan.Entries) == 0 {
		r.cfg.logger.Debug("no plugin manifests found")
		r.replaceAll(nil)
		return nil, nil
	}
	r.cfg.logger.Info("found plugin manifests", "manifest_count", len(scan.Entries))

	var entries []HandlerEntry
	loaded := make(map[string]*loadedPlugin)
	for _, entry := range scan.Entries {
		lp, err := r.loadPlugin(ctx, entry.Key, entry.Value)
		if err != nil {
			r.cfg.logger.Warn("failed to load plugin, skipping", "key", entry.Key, "error", err)
			continue
		}
		if lp == nil { // disabled
			continue
		}
		if err := lp.handler.CallInit(ctx); err != nil {
			r.cfg.logger.Warn("plugin init failed, skipping",
				"plugin", lp.handler.Name(), "error", err)
			lp.handler.Close(ctx)
			continue
		}
		r.cfg.logger.Info("plugin initialized", "plugin", lp.handler.Name())
		loaded[lp.handler.Name()] = lp
		entries = append(entries, HandlerEntry{Handler: lp.handler, Priority: lp.priority})
	}

	r.replaceAll(loaded)
	return entries, nil
}

func (r *Registry) replaceAll(loaded map[string]*loadedPlugin) {
	if loaded == nil {
		loaded = make(map[string]*loadedPlugin)
	}
	r.mu.Lock()
	r.plugins = loaded
	r.mu.Unlock()
}

// ReloadAll shuts down every loaded plugin and loads a fresh set from the
// store. This is the hot-reload entry point.
func (r *Registry) ReloadAll(ctx context.Context) ([]HandlerEntry, error) {
	r.cfg.logger.Info("reloading all plugins")
	r.ShutdownAll(ctx)
	return r.LoadAll(ctx)
}

// ReloadOne replaces a single plugin from its current manifest. Returns
// nil when the plugin is disabled or its manifest no longer exists; in the
// latter case any old instance is shut down and removed.
func (r *Registry) ReloadOne(ctx context.Context, name string) (*HandlerEntry, error) {
	if r.cfg.kv == nil || r.cfg.blobs == nil {
		return nil, fmt.Errorf("plugin registry requires a KV store and a blob store")
	}
	r.cfg.logger.Info("reloading plugin", "plugin", name)

	key := entities.ManifestKVPrefix + name
	entry, err := r.cfg.kv.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin manifest: %w", err)
	}
	if entry == nil {
		// Manifest removed; retire any old instance.
		r.removeAndShutdown(ctx, name)
		return nil, nil
	}

	r.removeAndShutdown(ctx, name)

	lp, err := r.loadPlugin(ctx, key, entry.Value)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		return nil, nil
	}
	if err := lp.handler.CallInit(ctx); err != nil {
		lp.handler.Close(ctx)
		return nil, err
	}
	r.cfg.logger.Info("plugin reloaded", "plugin", name)

	r.mu.Lock()
	r.plugins[name] = lp
	r.mu.Unlock()
	return &HandlerEntry{Handler: lp.handler, Priority: lp.priority}, nil
}

func (r *Registry) removeAndShutdown(ctx context.Context, name string) {
	r.mu.Lock()
	old, ok := r.plugins[name]
	if ok {
		delete(r.plugins, name)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.cfg.logger.Info("shutting down old plugin instance", "plugin", name)
	if err := old.handler.CallShutdown(ctx); err != nil {
		r.cfg.logger.Warn("error shutting down old plugin", "plugin", name, "error", err)
	}
	old.handler.Close(ctx)
}

// ShutdownAll gracefully stops every loaded plugin. Errors are logged and
// do not prevent other plugins from shutting down.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	plugins := r.plugins
	r.plugins = make(map[string]*loadedPlugin)
	r.mu.Unlock()

	for name, lp := range plugins {
		r.cfg.logger.Info("shutting down plugin", "plugin", name)
		if err := lp.handler.CallShutdown(ctx); err != nil {
			r.cfg.logger.Warn("error during plugin shutdown", "plugin", name, "error", err)
		}
		lp.handler.Close(ctx)
	}
}

// HealthAll probes every loaded plugin. Plugins are independent; a wedged
// one only delays its own probe.
func (r *Registry) HealthAll(ctx context.Context) map[string]entities.PluginHealth {
	r.mu.RLock()
	handlers := make(map[string]*plugin.Handler, len(r.plugins))
	for name, lp := range r.plugins {
		handlers[name] = lp.handler
	}
	r.mu.RUnlock()

	results := make(map[string]entities.PluginHealth, len(handlers))
	for name, h := range handlers {
		results[name] = h.CallHealth(ctx)
	}
	return results
}

// HealthOne probes a single plugin by name.
func (r *Registry) HealthOne(ctx context.Context, name string) (entities.PluginHealth, bool) {
	r.mu.RLock()
	lp, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return entities.PluginHealth{}, false
	}
	return lp.handler.CallHealth(ctx), true
}

// HandlerSnapshot returns the current handler/priority pairs. The outer
// router rebuilds its dispatch table from this during hot-reload.
func (r *Registry) HandlerSnapshot() []HandlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]HandlerEntry, 0, len(r.plugins))
	for _, lp := range r.plugins {
		entries = append(entries, HandlerEntry{Handler: lp.handler, Priority: lp.priority})
	}
	return entries
}

// DeliverEvent fans a hook event out to every loaded plugin whose router
// has a matching subscription. Returns the number of plugins the event was
// delivered to.
func (r *Registry) DeliverEvent(ctx context.Context, topic string, event json.RawMessage) int {
	r.mu.RLock()
	handlers := make([]*plugin.Handler, 0, len(r.plugins))
	for _, lp := range r.plugins {
		handlers = append(handlers, lp.handler)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, h := range handlers {
		if h.Router().Deliver(ctx, topic, event) {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// loadPlugin parses one manifest, fetches its bytecode, and builds the
// handler. Returns (nil, nil) for disabled plugins. The handler is in the
// Loading state; the caller runs CallInit.
func (r *Registry) loadPlugin(ctx context.Context, key string, manifestJSON []byte) (*loadedPlugin, error) {
	manifest, err := entities.ParseManifest(manifestJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest at '%s': %w", key, err)
	}
	if !manifest.Enabled {
		r.cfg.logger.Debug("plugin disabled, skipping", "plugin", manifest.Name)
		return nil, nil
	}

	r.cfg.logger.Info("loading plugin", "plugin", manifest.Name, "version", manifest.Version)

	module, err := r.cfg.blobs.GetBytes(ctx, manifest.ModuleHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch module blob '%s': %w", manifest.ModuleHash, err)
	}

	host := r.buildHostContext(manifest)
	guest, info, err := r.cfg.loadGuest(ctx, sandbox.LoadConfig{
		Manifest: manifest,
		Module:   module,
		Host:     host,
		Logger:   r.cfg.logger,
	})
	if err != nil {
		return nil, err
	}
	if info.Name != manifest.Name {
		guest.Close(ctx)
		return nil, fmt.Errorf("plugin name mismatch: manifest says '%s', guest says '%s'", manifest.Name, info.Name)
	}

	handler := plugin.NewHandler(manifest, guest, host, r.cfg.logger)
	priority := manifest.ClampedPriority()

	if manifest.AppID != "" {
		r.cfg.logger.Info("plugin declares app identity",
			"plugin", manifest.Name, "app_id", manifest.AppID)
	}
	r.cfg.logger.Info("plugin loaded",
		"plugin", manifest.Name,
		"version", manifest.Version,
		"priority", priority,
		"handles", manifest.Handles,
		"kv_prefixes", manifest.KVPrefixes,
		"execution_timeout_secs", manifest.ExecutionTimeout().Seconds())

	return &loadedPlugin{handler: handler, priority: priority, manifest: manifest}, nil
}

func (r *Registry) buildHostContext(manifest *entities.PluginManifest) *hostfuncs.HostContext {
	opts := []hostfuncs.HostOption{
		hostfuncs.WithNodeID(r.cfg.nodeID),
		hostfuncs.WithLogger(r.cfg.logger),
	}
	if r.cfg.kv != nil {
		opts = append(opts, hostfuncs.WithKeyValueStore(r.cfg.kv))
	}
	if r.cfg.blobs != nil {
		opts = append(opts, hostfuncs.WithBlobStore(r.cfg.blobs))
	}
	if r.cfg.cluster != nil {
		opts = append(opts, hostfuncs.WithClusterController(r.cfg.cluster))
	}
	if r.cfg.sql != nil {
		opts = append(opts, hostfuncs.WithSQLExecutor(r.cfg.sql))
	}
	if r.cfg.hooks != nil {
		opts = append(opts, hostfuncs.WithHookService(r.cfg.hooks))
	}
	for _, svc := range r.cfg.services {
		opts = append(opts, hostfuncs.WithServiceExecutor(svc))
	}
	if r.cfg.signKey != nil {
		opts = append(opts, hostfuncs.WithSigningKey(r.cfg.signKey))
	}
	return hostfuncs.NewHostContext(manifest, opts...)
}
