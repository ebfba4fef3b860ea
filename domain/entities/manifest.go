package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// validate is a package-level singleton; constructing a validator per call
// is expensive and the instance is safe for concurrent use.
var validate = validator.New()

// PluginManifest is the declarative metadata for one plugin: identity,
// bytecode reference, dispatch configuration, resource bounds, and the
// capability grant. Manifests are immutable once loaded and re-read from
// the manifest store on reload.
type PluginManifest struct {
	// Name uniquely identifies the plugin and must match the identity the
	// guest reports from its info entry point.
	Name    string `json:"name" yaml:"name" validate:"required,max=128"`
	Version string `json:"version" yaml:"version" validate:"required,max=64"`
	// ModuleHash is the content hash of the guest bytecode in the blob store.
	ModuleHash string `json:"module_hash" yaml:"module_hash" validate:"required"`
	// Handles lists the request kinds dispatched to this plugin.
	Handles []string `json:"handles" yaml:"handles" validate:"required,min=1,dive,required"`
	// Priority orders this handler relative to others in the outer router.
	Priority uint32 `json:"priority" yaml:"priority"`
	// MemoryLimit is the guest heap size in bytes; nil means the default.
	MemoryLimit *uint64 `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	// AppID optionally registers an application identity on load.
	AppID string `json:"app_id,omitempty" yaml:"app_id,omitempty"`
	// ExecutionTimeoutSecs overrides the default guest call timeout,
	// clamped to MaxExecutionTimeout.
	ExecutionTimeoutSecs *uint64 `json:"execution_timeout_secs,omitempty" yaml:"execution_timeout_secs,omitempty"`
	// KVPrefixes declares the key namespaces this plugin may touch. Empty
	// means a private default namespace is derived from Name.
	KVPrefixes  []string    `json:"kv_prefixes,omitempty" yaml:"kv_prefixes,omitempty"`
	Permissions Permissions `json:"permissions" yaml:"permissions"`
	// Signature optionally carries a detached signature over the manifest.
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// ParseManifest decodes and validates a JSON manifest.
func ParseManifest(data []byte) (*PluginManifest, error) {
	var m PluginManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the struct tags on the manifest.
func (m *PluginManifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	return nil
}

// ExecutionTimeout resolves the guest call timeout: the manifest override
// clamped to MaxExecutionTimeout, or DefaultExecutionTimeout when absent.
func (m *PluginManifest) ExecutionTimeout() time.Duration {
	if m.ExecutionTimeoutSecs == nil {
		return DefaultExecutionTimeout
	}
	d := time.Duration(*m.ExecutionTimeoutSecs) * time.Second
	if d > MaxExecutionTimeout {
		return MaxExecutionTimeout
	}
	return d
}

// GuestMemoryLimit resolves the guest heap size: the manifest value clamped
// to MaxMemoryLimit, or DefaultMemoryLimit when absent.
func (m *PluginManifest) GuestMemoryLimit() uint64 {
	if m.MemoryLimit == nil {
		return DefaultMemoryLimit
	}
	if *m.MemoryLimit > MaxMemoryLimit {
		return MaxMemoryLimit
	}
	return *m.MemoryLimit
}

// ClampedPriority bounds the dispatch priority to the allowed range.
func (m *PluginManifest) ClampedPriority() uint32 {
	if m.Priority < MinPluginPriority {
		return MinPluginPriority
	}
	if m.Priority > MaxPluginPriority {
		return MaxPluginPriority
	}
	return m.Priority
}

// ManifestSchema returns the JSON schema for PluginManifest, used by
// operator tooling that authors manifests.
func ManifestSchema() ([]byte, error) {
	r := &jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&PluginManifest{})
	return json.MarshalIndent(schema, "", "  ")
}

// PluginInfo is the identity a guest reports from its info entry point.
// It must match the manifest or loading fails.
type PluginInfo struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Handles []string `json:"handles,omitempty"`
}
