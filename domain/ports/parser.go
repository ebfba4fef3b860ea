package ports

import "github.com/larch-dev/larch-host/domain/entities"

// ManifestParser decodes manifest documents from a serialized form.
type ManifestParser interface {
	Parse(data []byte) (*entities.PluginManifest, error)
}
