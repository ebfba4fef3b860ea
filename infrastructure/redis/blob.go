package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// blobKeyPrefix separates blob content from KV data in the same Redis
// database.
const blobKeyPrefix = "__blob:"

// BlobStore implements ports.BlobStore on Redis, content-addressed by hex
// SHA-256.
type BlobStore struct {
	client redis.UniversalClient
}

// NewBlobStore wraps a Redis client.
func NewBlobStore(client redis.UniversalClient) *BlobStore {
	return &BlobStore{client: client}
}

func (s *BlobStore) Has(ctx context.Context, hash string) (bool, error) {
	n, err := s.client.Exists(ctx, blobKeyPrefix+hash).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *BlobStore) GetBytes(ctx context.Context, hash string) ([]byte, error) {
	data, err := s.client.Get(ctx, blobKeyPrefix+hash).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("blob not found: %s", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (s *BlobStore) AddBytes(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if err := s.client.Set(ctx, blobKeyPrefix+hash, data, 0).Err(); err != nil {
		return "", fmt.Errorf("redis set: %w", err)
	}
	return hash, nil
}
