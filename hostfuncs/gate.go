package hostfuncs

import (
	"strings"

	"github.com/larch-dev/larch-host/domain/entities"
	domerrors "github.com/larch-dev/larch-host/domain/errors"
)

// The capability gate. Pure checks with no collaborator access: every
// gated host function calls CheckPermission before touching a collaborator,
// and the kv functions additionally validate namespaces. Denials must
// happen before any side effect.

// CheckPermission enforces a manifest capability flag. Default-deny: a
// false flag means the capability was never granted.
func CheckPermission(plugin, capability string, granted bool) error {
	if !granted {
		return &domerrors.PermissionError{Plugin: plugin, Capability: capability}
	}
	return nil
}

// ValidateKeyPrefix checks that a key falls inside one of the plugin's
// allowed namespaces. An empty allowed list means unrestricted access,
// which only manifests that predate namespace enforcement produce.
func ValidateKeyPrefix(plugin string, allowed []string, key string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return &domerrors.NamespaceError{Plugin: plugin, Key: key}
}

// ValidateScanPrefix checks that a scan prefix is itself inside an allowed
// namespace. Requiring the scan prefix to start with an allowed prefix
// prevents scanning the whole keyspace or another plugin's keys.
func ValidateScanPrefix(plugin string, allowed []string, prefix string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, p := range allowed {
		if strings.HasPrefix(prefix, p) {
			return nil
		}
	}
	return &domerrors.NamespaceError{Plugin: plugin, Key: prefix}
}

// ResolveKVPrefixes returns the namespaces a manifest grants. A manifest
// that declares none gets the private default namespace derived from its
// name, so distinct plugins can never collide by omission.
func ResolveKVPrefixes(m *entities.PluginManifest) []string {
	if len(m.KVPrefixes) > 0 {
		out := make([]string, len(m.KVPrefixes))
		copy(out, m.KVPrefixes)
		return out
	}
	return []string{entities.DefaultKVPrefix(m.Name)}
}
