package seed

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/internal/testutil"
)

const manifestTemplate = `name: {{.config.name}}
version: "1.0.0"
module_hash: pending
handles:
  - Ping
enabled: {{.config.enabled}}
`

func TestRenderManifest(t *testing.T) {
	s := NewSeeder(testutil.NewFakeKV(), testutil.NewFakeBlobs())

	manifest, err := s.RenderManifest([]byte(manifestTemplate), map[string]interface{}{
		"name":    "forge",
		"enabled": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "forge", manifest.Name)
	assert.True(t, manifest.Enabled)
}

func TestRenderManifestStrictMissingKey(t *testing.T) {
	s := NewSeeder(testutil.NewFakeKV(), testutil.NewFakeBlobs())

	_, err := s.RenderManifest([]byte(manifestTemplate), map[string]interface{}{
		"name": "forge",
	})
	require.Error(t, err)
}

func TestRenderManifestValidationFailure(t *testing.T) {
	s := NewSeeder(testutil.NewFakeKV(), testutil.NewFakeBlobs())

	// Missing required handles.
	raw := []byte("name: forge\nversion: \"1.0.0\"\nmodule_hash: pending\n")
	_, err := s.RenderManifest(raw, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestInstallStoresModuleAndManifest(t *testing.T) {
	kv := testutil.NewFakeKV()
	blobs := testutil.NewFakeBlobs()
	s := NewSeeder(kv, blobs)

	module := []byte("\x00asm guest bytecode")
	manifest, err := s.Install(context.Background(), []byte(manifestTemplate), map[string]interface{}{
		"name":    "forge",
		"enabled": true,
	}, module)
	require.NoError(t, err)

	// The manifest points at the uploaded content hash, not the template
	// placeholder.
	assert.NotEqual(t, "pending", manifest.ModuleHash)
	stored, err := blobs.GetBytes(context.Background(), manifest.ModuleHash)
	require.NoError(t, err)
	assert.Equal(t, module, stored)

	data, ok := kv.Get(entities.ManifestKVPrefix + "forge")
	require.True(t, ok)
	var decoded entities.PluginManifest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, manifest.ModuleHash, decoded.ModuleHash)
}

func TestInstallRejectsOversizedModule(t *testing.T) {
	s := NewSeeder(testutil.NewFakeKV(), testutil.NewFakeBlobs())

	module := make([]byte, entities.MaxModuleSize+1)
	_, err := s.Install(context.Background(), []byte(manifestTemplate), map[string]interface{}{
		"name":    "forge",
		"enabled": true,
	}, module)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestInstallSignsManifest(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	s := NewSeeder(testutil.NewFakeKV(), testutil.NewFakeBlobs(), WithSigningKey(priv))

	manifest, err := s.Install(context.Background(), []byte(manifestTemplate), map[string]interface{}{
		"name":    "forge",
		"enabled": true,
	}, []byte("module"))
	require.NoError(t, err)
	require.NotEmpty(t, manifest.Signature)

	require.NoError(t, VerifyManifest(manifest, pub))

	// Tampering breaks verification.
	manifest.Version = "6.6.6"
	require.Error(t, VerifyManifest(manifest, pub))
}

func TestVerifyManifestUnsigned(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	err = VerifyManifest(&entities.PluginManifest{Name: "forge"}, pub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsigned")
}

func TestRemoveDeletesManifest(t *testing.T) {
	kv := testutil.NewFakeKV()
	s := NewSeeder(kv, testutil.NewFakeBlobs())

	_, err := s.Install(context.Background(), []byte(manifestTemplate), map[string]interface{}{
		"name":    "forge",
		"enabled": true,
	}, []byte("module"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), "forge"))
	_, ok := kv.Get(entities.ManifestKVPrefix + "forge")
	assert.False(t, ok)
}

func TestNonStrictTemplateAllowsMissingKeys(t *testing.T) {
	// Missing keys render as "<no value>", which fails later at YAML or
	// validation, not at render.
	engine := NewGoTemplateEngine(WithStrict(false))
	out, err := engine.Render([]byte("name: {{.config.name}}"), nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "no value")
}
