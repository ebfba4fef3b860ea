// Package parser decodes plugin manifests from operator-authored files.
// Manifests stored in the KV store are JSON; operator tooling seeds them
// from YAML, which this package parses and validates.
package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/ports"
)

// YamlManifestParser implements ManifestParser for YAML documents.
type YamlManifestParser struct{}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser() ports.ManifestParser {
	return &YamlManifestParser{}
}

// Parse unmarshals YAML bytes into a validated PluginManifest.
func (p *YamlManifestParser) Parse(data []byte) (*entities.PluginManifest, error) {
	var manifest entities.PluginManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest YAML: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}
