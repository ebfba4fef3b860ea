package ports

import "context"

// BlobStore is content-addressed storage: AddBytes returns the hash that
// GetBytes later resolves. Plugin bytecode and plugin-written blobs both
// live here.
type BlobStore interface {
	Has(ctx context.Context, hash string) (bool, error)
	// GetBytes returns the blob content, or an error when the hash is
	// unknown.
	GetBytes(ctx context.Context, hash string) ([]byte, error)
	// AddBytes stores the content and returns its hash.
	AddBytes(ctx context.Context, data []byte) (string, error)
}
