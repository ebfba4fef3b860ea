package hostfuncs

import (
	"crypto/ed25519"
	"log/slog"
	"time"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/ports"
)

// HostContext bundles everything one plugin's host functions can reach:
// identity, capability grant, resolved namespaces, collaborators, and the
// deferred command queues. One HostContext per plugin instance; it is
// immutable after construction and safe for concurrent use.
type HostContext struct {
	pluginName        string
	permissions       entities.Permissions
	allowedKVPrefixes []string
	logger            *slog.Logger

	kv       ports.KeyValueStore
	blobs    ports.BlobStore
	cluster  ports.ClusterController
	sql      ports.SQLQueryExecutor
	hooks    ports.HookService
	services map[string]ports.ServiceExecutor

	nodeID  uint64
	signKey ed25519.PrivateKey

	schedulerQueue    *Queue[SchedulerCommand]
	subscriptionQueue *Queue[SubscriptionCommand]
}

// HostOption configures a HostContext.
type HostOption func(*HostContext)

// NewHostContext builds the host context for one plugin. Identity, the
// capability grant, and the allowed namespaces come from the manifest;
// collaborators come from options. Omitted collaborators simply leave
// their host functions failing (or unregistered, for the conditional
// ones).
func NewHostContext(manifest *entities.PluginManifest, opts ...HostOption) *HostContext {
	hc := &HostContext{
		pluginName:        manifest.Name,
		permissions:       manifest.Permissions,
		allowedKVPrefixes: ResolveKVPrefixes(manifest),
		logger:            slog.Default(),
		services:          make(map[string]ports.ServiceExecutor),
		schedulerQueue:    &Queue[SchedulerCommand]{},
		subscriptionQueue: &Queue[SubscriptionCommand]{},
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// WithKeyValueStore sets the KV collaborator.
func WithKeyValueStore(kv ports.KeyValueStore) HostOption {
	return func(hc *HostContext) { hc.kv = kv }
}

// WithBlobStore sets the blob collaborator.
func WithBlobStore(blobs ports.BlobStore) HostOption {
	return func(hc *HostContext) { hc.blobs = blobs }
}

// WithClusterController sets the cluster membership collaborator.
func WithClusterController(cluster ports.ClusterController) HostOption {
	return func(hc *HostContext) { hc.cluster = cluster }
}

// WithSQLExecutor sets the SQL collaborator. Without it, sql_query is not
// registered at all.
func WithSQLExecutor(sql ports.SQLQueryExecutor) HostOption {
	return func(hc *HostContext) { hc.sql = sql }
}

// WithHookService sets the hook collaborator. Without it, the hook
// management functions are not registered; subscriptions still work.
func WithHookService(hooks ports.HookService) HostOption {
	return func(hc *HostContext) { hc.hooks = hooks }
}

// WithServiceExecutor registers one named service executor. service_execute
// is only registered when at least one executor is present.
func WithServiceExecutor(exec ports.ServiceExecutor) HostOption {
	return func(hc *HostContext) { hc.services[exec.Name()] = exec }
}

// WithNodeID sets the node identity reported to guests.
func WithNodeID(id uint64) HostOption {
	return func(hc *HostContext) { hc.nodeID = id }
}

// WithSigningKey sets the Ed25519 key behind sign and public_key_hex.
func WithSigningKey(key ed25519.PrivateKey) HostOption {
	return func(hc *HostContext) { hc.signKey = key }
}

// WithLogger sets the structured logger host functions log through.
func WithLogger(logger *slog.Logger) HostOption {
	return func(hc *HostContext) { hc.logger = logger }
}

// PluginName returns the plugin this context belongs to.
func (hc *HostContext) PluginName() string { return hc.pluginName }

// Permissions returns the capability grant.
func (hc *HostContext) Permissions() entities.Permissions { return hc.permissions }

// AllowedKVPrefixes returns the resolved namespace list.
func (hc *HostContext) AllowedKVPrefixes() []string { return hc.allowedKVPrefixes }

// Logger returns the structured logger.
func (hc *HostContext) Logger() *slog.Logger { return hc.logger }

// SchedulerQueue returns the deferred timer command queue.
func (hc *HostContext) SchedulerQueue() *Queue[SchedulerCommand] { return hc.schedulerQueue }

// SubscriptionQueue returns the deferred subscription command queue.
func (hc *HostContext) SubscriptionQueue() *Queue[SubscriptionCommand] { return hc.subscriptionQueue }

// NowMS returns wall-clock milliseconds since the Unix epoch. Exposed to
// guests as a direct scalar return.
func (hc *HostContext) NowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// HLCNow returns a hybrid logical clock reading. Without a cluster clock
// collaborator it falls back to wall-clock milliseconds, which preserves
// monotonicity well enough for plugin bookkeeping.
func (hc *HostContext) HLCNow() uint64 {
	return hc.NowMS()
}

// NodeID returns this node's identity, zero when standalone.
func (hc *HostContext) NodeID() uint64 {
	return hc.nodeID
}
