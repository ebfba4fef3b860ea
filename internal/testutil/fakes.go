// Package testutil provides in-memory collaborator fakes for host tests.
package testutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/domain/ports"
)

// FakeKV is an in-memory ports.KeyValueStore with full compare-and-swap
// and conditional batch semantics. Set NotLeader to make every write fail
// with a NotLeaderError carrying Leader.
type FakeKV struct {
	mu        sync.Mutex
	data      map[string][]byte
	NotLeader bool
	Leader    uint64
	// ReadErr, when set, fails every read.
	ReadErr error
}

func NewFakeKV() *FakeKV {
	return &FakeKV{data: map[string][]byte{}}
}

// Put seeds a value directly, bypassing leader checks.
func (f *FakeKV) Put(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), value...)
}

// Delete removes a key directly, bypassing leader checks.
func (f *FakeKV) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

// Get reads a value directly for assertions.
func (f *FakeKV) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

// Len returns the number of stored keys.
func (f *FakeKV) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

func (f *FakeKV) Read(ctx context.Context, key string) (*ports.KVEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return &ports.KVEntry{Key: key, Value: append([]byte(nil), v...)}, nil
}

func (f *FakeKV) Write(ctx context.Context, req ports.WriteRequest) (ports.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotLeader {
		return ports.WriteResult{}, &domerrors.NotLeaderError{Leader: f.Leader}
	}
	switch req.Op {
	case ports.OpSet:
		f.data[req.Key] = append([]byte(nil), req.Value...)
		return ports.WriteResult{OperationsApplied: 1}, nil
	case ports.OpDelete:
		delete(f.data, req.Key)
		return ports.WriteResult{OperationsApplied: 1}, nil
	case ports.OpCompareAndSwap:
		current, exists := f.data[req.Key]
		if req.Expected == nil {
			if exists {
				return ports.WriteResult{}, &domerrors.CompareMismatchError{Key: req.Key, Actual: current}
			}
		} else if !exists || !bytes.Equal(current, req.Expected) {
			return ports.WriteResult{}, &domerrors.CompareMismatchError{Key: req.Key, Actual: current}
		}
		f.data[req.Key] = append([]byte(nil), req.Value...)
		return ports.WriteResult{OperationsApplied: 1}, nil
	case ports.OpCompareAndDelete:
		current, exists := f.data[req.Key]
		if !exists || !bytes.Equal(current, req.Expected) {
			return ports.WriteResult{}, &domerrors.CompareMismatchError{Key: req.Key, Actual: current}
		}
		delete(f.data, req.Key)
		return ports.WriteResult{OperationsApplied: 1}, nil
	case ports.OpBatch:
		f.applyOps(req.Ops)
		return ports.WriteResult{OperationsApplied: len(req.Ops)}, nil
	case ports.OpConditionalBatch:
		for i, cond := range req.Conditions {
			if !f.conditionHolds(cond) {
				return ports.WriteResult{ConditionsMet: false, FailedConditionIndex: i}, nil
			}
		}
		f.applyOps(req.Ops)
		return ports.WriteResult{ConditionsMet: true, OperationsApplied: len(req.Ops)}, nil
	default:
		return ports.WriteResult{}, fmt.Errorf("unknown write op %d", req.Op)
	}
}

func (f *FakeKV) applyOps(ops []ports.BatchOp) {
	for _, op := range ops {
		if op.Delete {
			delete(f.data, op.Key)
		} else {
			f.data[op.Key] = append([]byte(nil), op.Value...)
		}
	}
}

func (f *FakeKV) conditionHolds(cond ports.Condition) bool {
	current, exists := f.data[cond.Key]
	switch cond.Kind {
	case ports.CondValueEquals:
		return exists && bytes.Equal(current, cond.Value)
	case ports.CondKeyExists:
		return exists
	case ports.CondKeyNotExists:
		return !exists
	default:
		return false
	}
}

func (f *FakeKV) Scan(ctx context.Context, req ports.ScanRequest) (ports.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if len(req.Prefix) == 0 || (len(k) >= len(req.Prefix) && k[:len(req.Prefix)] == req.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	truncated := false
	if req.Limit > 0 && len(keys) > req.Limit {
		keys = keys[:req.Limit]
		truncated = true
	}
	entries := make([]ports.KVEntry, len(keys))
	for i, k := range keys {
		entries[i] = ports.KVEntry{Key: k, Value: append([]byte(nil), f.data[k]...)}
	}
	return ports.ScanResult{Entries: entries, Truncated: truncated}, nil
}

// FakeBlobs is an in-memory content-addressed ports.BlobStore keyed by
// hex SHA-256.
type FakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewFakeBlobs() *FakeBlobs {
	return &FakeBlobs{blobs: map[string][]byte{}}
}

func (f *FakeBlobs) Has(ctx context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[hash]
	return ok, nil
}

func (f *FakeBlobs) GetBytes(ctx context.Context, hash string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", hash)
	}
	return append([]byte(nil), data...), nil
}

func (f *FakeBlobs) AddBytes(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[hash] = append([]byte(nil), data...)
	return hash, nil
}

// FakeController is a fixed-leader ports.ClusterController.
type FakeController struct {
	LeaderID    uint64
	LeaderKnown bool
	Err         error
}

func (f *FakeController) GetLeader(ctx context.Context) (uint64, bool, error) {
	if f.Err != nil {
		return 0, false, f.Err
	}
	return f.LeaderID, f.LeaderKnown, nil
}

// FakeHookService is a scriptable ports.HookService.
type FakeHookService struct {
	IsEnabled    bool
	HandlerInfos []ports.HookHandlerInfo
	Snapshot     ports.HookMetricsSnapshot
	Dispatch     ports.HookDispatch
	TriggerErr   error

	mu         sync.Mutex
	Triggered  []string
	LastEvents []json.RawMessage
}

func (f *FakeHookService) Enabled() bool { return f.IsEnabled }

func (f *FakeHookService) Handlers(ctx context.Context) ([]ports.HookHandlerInfo, error) {
	return f.HandlerInfos, nil
}

func (f *FakeHookService) Metrics(ctx context.Context, filter string) (*ports.HookMetricsSnapshot, error) {
	if filter == "" {
		snap := f.Snapshot
		return &snap, nil
	}
	snap := ports.HookMetricsSnapshot{
		Enabled:              f.Snapshot.Enabled,
		TotalEventsProcessed: f.Snapshot.TotalEventsProcessed,
	}
	for _, h := range f.Snapshot.Handlers {
		if h.Name == filter {
			snap.Handlers = append(snap.Handlers, h)
		}
	}
	return &snap, nil
}

func (f *FakeHookService) Trigger(ctx context.Context, eventType string, payload json.RawMessage) (*ports.HookDispatch, error) {
	if f.TriggerErr != nil {
		return nil, f.TriggerErr
	}
	f.mu.Lock()
	f.Triggered = append(f.Triggered, eventType)
	f.LastEvents = append(f.LastEvents, payload)
	f.mu.Unlock()
	d := f.Dispatch
	return &d, nil
}

// FakeSQL is a canned-result ports.SQLQueryExecutor that records the last
// query it saw.
type FakeSQL struct {
	Result *ports.SQLResult
	Err    error

	mu        sync.Mutex
	LastQuery ports.SQLQuery
}

func (f *FakeSQL) Query(ctx context.Context, q ports.SQLQuery) (*ports.SQLResult, error) {
	f.mu.Lock()
	f.LastQuery = q
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result != nil {
		return f.Result, nil
	}
	return &ports.SQLResult{Columns: []string{}, Rows: [][]any{}}, nil
}

// Seen returns the last query received.
func (f *FakeSQL) Seen() ports.SQLQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LastQuery
}

// FakeService is a scriptable ports.ServiceExecutor.
type FakeService struct {
	ServiceName string
	Response    []byte
	Err         error

	mu         sync.Mutex
	LastMethod string
	LastInput  []byte
}

func (f *FakeService) Name() string { return f.ServiceName }

func (f *FakeService) Execute(ctx context.Context, method string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	f.LastMethod = method
	f.LastInput = append([]byte(nil), payload...)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Response, nil
}
