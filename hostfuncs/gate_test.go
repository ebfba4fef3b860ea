package hostfuncs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larch-dev/larch-host/domain/entities"
	domerrors "github.com/larch-dev/larch-host/domain/errors"
)

func TestCheckPermission(t *testing.T) {
	require.NoError(t, CheckPermission("forge", "kv_read", true))

	err := CheckPermission("forge", "kv_write", false)
	require.Error(t, err)
	var perm *domerrors.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "forge", perm.Plugin)
	assert.Equal(t, "kv_write", perm.Capability)
}

func TestValidateKeyPrefix(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		key     string
		wantErr bool
	}{
		{name: "key inside namespace", allowed: []string{"forge:"}, key: "forge:repos:abc", wantErr: false},
		{name: "key outside namespace", allowed: []string{"forge:"}, key: "__hooks:config", wantErr: true},
		{name: "exact namespace match", allowed: []string{"__hooks:"}, key: "__hooks:config", wantErr: false},
		{name: "empty allowed list is unrestricted", allowed: nil, key: "anything:goes:here", wantErr: false},
		{name: "multiple prefixes first", allowed: []string{"forge:", "forge-cobs:"}, key: "forge:repos:x", wantErr: false},
		{name: "multiple prefixes second", allowed: []string{"forge:", "forge-cobs:"}, key: "forge-cobs:y", wantErr: false},
		{name: "multiple prefixes neither", allowed: []string{"forge:", "forge-cobs:"}, key: "__hooks:z", wantErr: true},
		{name: "key shorter than prefix", allowed: []string{"forge:"}, key: "forg", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyPrefix("plugin", tt.allowed, tt.key)
			if tt.wantErr {
				var ns *domerrors.NamespaceError
				require.ErrorAs(t, err, &ns)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateScanPrefix(t *testing.T) {
	require.NoError(t, ValidateScanPrefix("forge", []string{"forge:"}, "forge:repos:"))
	require.NoError(t, ValidateScanPrefix("forge", []string{"forge:"}, "forge:"))
	require.Error(t, ValidateScanPrefix("forge", []string{"forge:"}, "__hooks:"))
	// An empty scan prefix would cover the whole keyspace.
	require.Error(t, ValidateScanPrefix("forge", []string{"forge:"}, ""))
	// Legacy unrestricted manifests may scan anything.
	require.NoError(t, ValidateScanPrefix("test", nil, ""))
}

func TestResolveKVPrefixes(t *testing.T) {
	t.Run("explicit prefixes pass through", func(t *testing.T) {
		m := &entities.PluginManifest{Name: "forge", KVPrefixes: []string{"forge:", "forge-cobs:"}}
		assert.Equal(t, []string{"forge:", "forge-cobs:"}, ResolveKVPrefixes(m))
	})

	t.Run("default namespace derived from name", func(t *testing.T) {
		m := &entities.PluginManifest{Name: "metrics"}
		assert.Equal(t, []string{"__plugin:metrics:"}, ResolveKVPrefixes(m))
	})

	t.Run("distinct names give distinct namespaces", func(t *testing.T) {
		a := ResolveKVPrefixes(&entities.PluginManifest{Name: "a"})
		b := ResolveKVPrefixes(&entities.PluginManifest{Name: "b"})
		assert.NotEqual(t, a, b)
	})
}
