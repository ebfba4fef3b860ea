// Package redis implements the KV and blob storage ports on Redis, for
// single-node deployments and integration tests. Revision metadata is not
// tracked; scan continuation tokens are not supported.
package redis

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/domain/ports"
)

// KVStore implements ports.KeyValueStore on a Redis client. Single node:
// writes never fail with a not-leader error.
type KVStore struct {
	client redis.UniversalClient
}

// NewKVStore wraps a Redis client.
func NewKVStore(client redis.UniversalClient) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) Read(ctx context.Context, key string) (*ports.KVEntry, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return &ports.KVEntry{Key: key, Value: value}, nil
}

func (s *KVStore) Write(ctx context.Context, req ports.WriteRequest) (ports.WriteResult, error) {
	switch req.Op {
	case ports.OpSet:
		if err := s.client.Set(ctx, req.Key, req.Value, 0).Err(); err != nil {
			return ports.WriteResult{}, fmt.Errorf("redis set: %w", err)
		}
		return ports.WriteResult{OperationsApplied: 1}, nil

	case ports.OpDelete:
		if err := s.client.Del(ctx, req.Key).Err(); err != nil {
			return ports.WriteResult{}, fmt.Errorf("redis del: %w", err)
		}
		return ports.WriteResult{OperationsApplied: 1}, nil

	case ports.OpCompareAndSwap:
		return s.compareAndSwap(ctx, req)

	case ports.OpCompareAndDelete:
		return s.compareAndDelete(ctx, req)

	case ports.OpBatch:
		if err := s.applyOps(ctx, req.Ops); err != nil {
			return ports.WriteResult{}, err
		}
		return ports.WriteResult{OperationsApplied: len(req.Ops)}, nil

	case ports.OpConditionalBatch:
		return s.conditionalBatch(ctx, req)

	default:
		return ports.WriteResult{}, fmt.Errorf("unknown write op %d", req.Op)
	}
}

func (s *KVStore) compareAndSwap(ctx context.Context, req ports.WriteRequest) (ports.WriteResult, error) {
	txf := func(tx *redis.Tx) error {
		current, exists, err := readCurrent(ctx, tx, req.Key)
		if err != nil {
			return err
		}
		if req.Expected == nil {
			if exists {
				return &domerrors.CompareMismatchError{Key: req.Key, Actual: current}
			}
		} else if !exists || !bytes.Equal(current, req.Expected) {
			return &domerrors.CompareMismatchError{Key: req.Key, Actual: current}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, req.Key, req.Value, 0)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, req.Key); err != nil {
		return ports.WriteResult{}, err
	}
	return ports.WriteResult{OperationsApplied: 1}, nil
}

func (s *KVStore) compareAndDelete(ctx context.Context, req ports.WriteRequest) (ports.WriteResult, error) {
	txf := func(tx *redis.Tx) error {
		current, exists, err := readCurrent(ctx, tx, req.Key)
		if err != nil {
			return err
		}
		if !exists || !bytes.Equal(current, req.Expected) {
			return &domerrors.CompareMismatchError{Key: req.Key, Actual: current}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, req.Key)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, req.Key); err != nil {
		return ports.WriteResult{}, err
	}
	return ports.WriteResult{OperationsApplied: 1}, nil
}

func (s *KVStore) conditionalBatch(ctx context.Context, req ports.WriteRequest) (ports.WriteResult, error) {
	watched := make([]string, 0, len(req.Conditions))
	for _, cond := range req.Conditions {
		watched = append(watched, cond.Key)
	}

	var result ports.WriteResult
	txf := func(tx *redis.Tx) error {
		for i, cond := range req.Conditions {
			holds, err := conditionHolds(ctx, tx, cond)
			if err != nil {
				return err
			}
			if !holds {
				// Conditions not met is an outcome, not an error.
				result = ports.WriteResult{ConditionsMet: false, FailedConditionIndex: i}
				return nil
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range req.Ops {
				if op.Delete {
					pipe.Del(ctx, op.Key)
				} else {
					pipe.Set(ctx, op.Key, op.Value, 0)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = ports.WriteResult{ConditionsMet: true, OperationsApplied: len(req.Ops)}
		return nil
	}
	if err := s.client.Watch(ctx, txf, watched...); err != nil {
		return ports.WriteResult{}, err
	}
	return result, nil
}

func (s *KVStore) applyOps(ctx context.Context, ops []ports.BatchOp) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, op.Key)
			} else {
				pipe.Set(ctx, op.Key, op.Value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis batch: %w", err)
	}
	return nil
}

func readCurrent(ctx context.Context, tx *redis.Tx, key string) ([]byte, bool, error) {
	current, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return current, true, nil
}

func conditionHolds(ctx context.Context, tx *redis.Tx, cond ports.Condition) (bool, error) {
	current, exists, err := readCurrent(ctx, tx, cond.Key)
	if err != nil {
		return false, err
	}
	switch cond.Kind {
	case ports.CondValueEquals:
		return exists && bytes.Equal(current, cond.Value), nil
	case ports.CondKeyExists:
		return exists, nil
	case ports.CondKeyNotExists:
		return !exists, nil
	default:
		return false, fmt.Errorf("unknown condition kind %d", cond.Kind)
	}
}

func (s *KVStore) Scan(ctx context.Context, req ports.ScanRequest) (ports.ScanResult, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, req.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return ports.ScanResult{}, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)

	truncated := false
	if req.Limit > 0 && len(keys) > req.Limit {
		keys = keys[:req.Limit]
		truncated = true
	}

	entries := make([]ports.KVEntry, 0, len(keys))
	for _, key := range keys {
		value, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // deleted between scan and get
		}
		if err != nil {
			return ports.ScanResult{}, fmt.Errorf("redis get: %w", err)
		}
		entries = append(entries, ports.KVEntry{Key: key, Value: value})
	}
	return ports.ScanResult{Entries: entries, Truncated: truncated}, nil
}
