// Package seed is the operator-side pipeline that installs plugins into the
// stores the registry loads from: it renders a manifest template, parses and
// validates it, uploads the module bytecode to the blob store, and writes the
// manifest under the registry's manifest prefix.
package seed

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/ports"
	"github.com/larch-dev/larch-host/infrastructure/parser"
)

// Seeder installs, updates, and removes plugin manifests and module bytecode.
type Seeder struct {
	kv      ports.KeyValueStore
	blobs   ports.BlobStore
	parser  ports.ManifestParser
	engine  ports.TemplateEngine
	signKey ed25519.PrivateKey
	logger  *slog.Logger
}

// SeederOption configures a Seeder.
type SeederOption func(*Seeder)

// WithParser overrides the manifest parser (default YAML).
func WithParser(p ports.ManifestParser) SeederOption {
	return func(s *Seeder) { s.parser = p }
}

// WithTemplateEngine overrides the template engine.
func WithTemplateEngine(e ports.TemplateEngine) SeederOption {
	return func(s *Seeder) { s.engine = e }
}

// WithSigningKey signs installed manifests with the given key.
func WithSigningKey(key ed25519.PrivateKey) SeederOption {
	return func(s *Seeder) { s.signKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SeederOption {
	return func(s *Seeder) { s.logger = logger }
}

// NewSeeder creates a Seeder over the given stores.
func NewSeeder(kv ports.KeyValueStore, blobs ports.BlobStore, opts ...SeederOption) *Seeder {
	s := &Seeder{
		kv:     kv,
		blobs:  blobs,
		parser: parser.NewYamlManifestParser(),
		engine: NewGoTemplateEngine(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenderManifest renders a manifest template against config, then parses and
// validates the result.
func (s *Seeder) RenderManifest(raw []byte, config map[string]interface{}) (*entities.PluginManifest, error) {
	rendered, err := s.engine.Render(raw, config)
	if err != nil {
		return nil, err
	}
	manifest, err := s.parser.Parse(rendered)
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// Install renders and validates the manifest, uploads the module bytecode,
// points the manifest at the uploaded content hash, and writes the manifest
// into the registry's manifest namespace. Returns the stored manifest.
func (s *Seeder) Install(ctx context.Context, rawManifest []byte, config map[string]interface{}, module []byte) (*entities.PluginManifest, error) {
	if uint64(len(module)) > entities.MaxModuleSize {
		return nil, fmt.Errorf("module is %d bytes, limit is %d", len(module), entities.MaxModuleSize)
	}

	manifest, err := s.RenderManifest(rawManifest, config)
	if err != nil {
		return nil, err
	}

	hash, err := s.blobs.AddBytes(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("failed to store module: %w", err)
	}
	manifest.ModuleHash = hash

	if s.signKey != nil {
		if err := signManifest(manifest, s.signKey); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	key := entities.ManifestKVPrefix + manifest.Name
	if _, err := s.kv.Write(ctx, ports.SetRequest(key, data)); err != nil {
		return nil, fmt.Errorf("failed to store manifest: %w", err)
	}

	s.logger.Info("plugin installed",
		"plugin", manifest.Name,
		"version", manifest.Version,
		"module_hash", hash,
		"enabled", manifest.Enabled)
	return manifest, nil
}

// Remove deletes the manifest for name. The module blob stays; it is
// content-addressed and may be shared.
func (s *Seeder) Remove(ctx context.Context, name string) error {
	key := entities.ManifestKVPrefix + name
	if _, err := s.kv.Write(ctx, ports.DeleteRequest(key)); err != nil {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	s.logger.Info("plugin removed", "plugin", name)
	return nil
}

// signManifest attaches a detached signature over the manifest with the
// Signature field cleared.
func signManifest(m *entities.PluginManifest, key ed25519.PrivateKey) error {
	unsigned := *m
	unsigned.Signature = ""
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		return fmt.Errorf("failed to encode manifest for signing: %w", err)
	}
	m.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(key, payload))
	return nil
}

// VerifyManifest checks a manifest's detached signature against pub.
func VerifyManifest(m *entities.PluginManifest, pub ed25519.PublicKey) error {
	if m.Signature == "" {
		return fmt.Errorf("manifest %q is unsigned", m.Name)
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("invalid manifest signature encoding: %w", err)
	}
	unsigned := *m
	unsigned.Signature = ""
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		return fmt.Errorf("failed to encode manifest for verification: %w", err)
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fmt.Errorf("manifest %q signature verification failed", m.Name)
	}
	return nil
}
