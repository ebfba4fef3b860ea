package entities

import "time"

// Resource bounds enforced on every plugin. Guests cannot exceed these
// regardless of what their manifest declares.
const (
	// MinTimerInterval is the lower clamp for guest timer intervals.
	MinTimerInterval = 1 * time.Second
	// MaxTimerInterval is the upper clamp for guest timer intervals.
	MaxTimerInterval = 24 * time.Hour
	// MaxTimersPerPlugin bounds the number of concurrently scheduled timers.
	MaxTimersPerPlugin = 16
	// MaxTimerNameLen bounds timer names in bytes.
	MaxTimerNameLen = 64

	// MaxHookPatternLen bounds hook subscription patterns in bytes.
	MaxHookPatternLen = 256
	// MaxHookSubscriptionsPerPlugin bounds the subscription set size.
	MaxHookSubscriptionsPerPlugin = 32

	// MaxRandomBytesPerCall caps a single random_bytes host call.
	MaxRandomBytesPerCall = 4096

	// DefaultScanLimit applies when a guest passes limit 0 to kv_scan.
	DefaultScanLimit = 128
	// MaxScanResults caps any guest-requested scan limit.
	MaxScanResults = 1024

	// MaxPlugins bounds the manifest scan during registry loading.
	MaxPlugins = 64
	// MaxModuleSize rejects oversized guest bytecode at load time.
	MaxModuleSize = 64 << 20
	// DefaultMemoryLimit is the guest heap size when the manifest omits one.
	DefaultMemoryLimit = 16 << 20
	// MaxMemoryLimit clamps manifest-declared guest heap sizes.
	MaxMemoryLimit = 256 << 20

	// MinPluginPriority and MaxPluginPriority clamp dispatch priorities.
	MinPluginPriority = 1
	MaxPluginPriority = 1000
)

// Guest invocation timeouts.
const (
	// DefaultExecutionTimeout bounds a single guest call when the manifest
	// does not override it.
	DefaultExecutionTimeout = 30 * time.Second
	// MaxExecutionTimeout clamps manifest-declared execution timeouts.
	MaxExecutionTimeout = 120 * time.Second
	// HealthCheckTimeout is fixed and intentionally short so a wedged
	// plugin's health can still be assessed promptly.
	HealthCheckTimeout = 5 * time.Second
)

// Key namespace defaults.
const (
	// DefaultKVPrefixTemplate prefixes the private namespace derived for
	// plugins that declare no explicit kv_prefixes. The resolved prefix is
	// DefaultKVPrefixTemplate + name + ":".
	DefaultKVPrefixTemplate = "__plugin:"

	// ManifestKVPrefix is where plugin manifests live in the KV store.
	ManifestKVPrefix = "__plugin-manifest:"
)

// DefaultKVPrefix returns the private namespace prefix derived from a
// plugin name. Distinct names always resolve to distinct prefixes.
func DefaultKVPrefix(pluginName string) string {
	return DefaultKVPrefixTemplate + pluginName + ":"
}
