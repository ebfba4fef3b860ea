package entities

// Permissions is the per-plugin capability grant set from the manifest.
// Default-deny: the zero value grants nothing. Each flag gates a family of
// host functions; absence of a flag denies the capability.
type Permissions struct {
	KVRead      bool `json:"kv_read" yaml:"kv_read"`
	KVWrite     bool `json:"kv_write" yaml:"kv_write"`
	BlobRead    bool `json:"blob_read" yaml:"blob_read"`
	BlobWrite   bool `json:"blob_write" yaml:"blob_write"`
	Randomness  bool `json:"randomness" yaml:"randomness"`
	ClusterInfo bool `json:"cluster_info" yaml:"cluster_info"`
	Signing     bool `json:"signing" yaml:"signing"`
	Timers      bool `json:"timers" yaml:"timers"`
	Hooks       bool `json:"hooks" yaml:"hooks"`
	SQLQuery    bool `json:"sql_query" yaml:"sql_query"`
}

// AllPermissions grants every capability. Intended for tests and trusted
// first-party plugins only.
func AllPermissions() Permissions {
	return Permissions{
		KVRead:      true,
		KVWrite:     true,
		BlobRead:    true,
		BlobWrite:   true,
		Randomness:  true,
		ClusterInfo: true,
		Signing:     true,
		Timers:      true,
		Hooks:       true,
		SQLQuery:    true,
	}
}
