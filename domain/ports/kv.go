package ports

import "context"

// KVEntry is one key-value pair. The revision fields carry store version
// metadata when the implementation tracks it; zero otherwise.
type KVEntry struct {
	Key            string
	Value          []byte
	Version        int64
	CreateRevision int64
	ModRevision    int64
}

// WriteOp identifies the mutation a WriteRequest performs.
type WriteOp uint8

const (
	OpSet WriteOp = iota
	OpDelete
	OpCompareAndSwap
	OpCompareAndDelete
	OpBatch
	OpConditionalBatch
)

// BatchOp is one entry in a batch write. Delete true means remove the key;
// otherwise Value is stored.
type BatchOp struct {
	Key    string
	Value  []byte
	Delete bool
}

// ConditionKind selects how a Condition is evaluated.
type ConditionKind uint8

const (
	CondValueEquals ConditionKind = iota
	CondKeyExists
	CondKeyNotExists
)

// Condition is one precondition of a conditional batch.
type Condition struct {
	Kind  ConditionKind
	Key   string
	Value []byte // only for CondValueEquals
}

// WriteRequest describes one mutation against the store.
//
// For OpCompareAndSwap, Expected nil means the key must be absent and Value
// is the new value. For OpCompareAndDelete, Expected is the value the key
// must currently hold.
type WriteRequest struct {
	Op         WriteOp
	Key        string
	Value      []byte
	Expected   []byte
	Ops        []BatchOp   // OpBatch, OpConditionalBatch
	Conditions []Condition // OpConditionalBatch
}

// SetRequest builds a plain write.
func SetRequest(key string, value []byte) WriteRequest {
	return WriteRequest{Op: OpSet, Key: key, Value: value}
}

// DeleteRequest builds an unconditional delete.
func DeleteRequest(key string) WriteRequest {
	return WriteRequest{Op: OpDelete, Key: key}
}

// CompareAndSwapRequest builds a conditional replace. Expected nil means the
// key must not exist yet.
func CompareAndSwapRequest(key string, expected, value []byte) WriteRequest {
	return WriteRequest{Op: OpCompareAndSwap, Key: key, Expected: expected, Value: value}
}

// CompareAndDeleteRequest builds a conditional delete.
func CompareAndDeleteRequest(key string, expected []byte) WriteRequest {
	return WriteRequest{Op: OpCompareAndDelete, Key: key, Expected: expected}
}

// BatchRequest builds an atomic multi-key write.
func BatchRequest(ops []BatchOp) WriteRequest {
	return WriteRequest{Op: OpBatch, Ops: ops}
}

// ConditionalBatchRequest builds an atomic multi-key write gated on
// preconditions. Conditions are evaluated in order before any op applies.
func ConditionalBatchRequest(conditions []Condition, ops []BatchOp) WriteRequest {
	return WriteRequest{Op: OpConditionalBatch, Conditions: conditions, Ops: ops}
}

// WriteResult reports the outcome of a successful Write call. For
// conditional batches a conditions-not-met outcome is a result, not an
// error: ConditionsMet is false and FailedConditionIndex names the first
// condition that did not hold.
type WriteResult struct {
	ConditionsMet        bool
	FailedConditionIndex int
	OperationsApplied    int
}

// ScanRequest asks for keys under a prefix. Limit must already be resolved
// by the caller (defaulted and clamped); implementations honor it as given.
type ScanRequest struct {
	Prefix            string
	Limit             int
	ContinuationToken string
}

// ScanResult carries a page of entries. Truncated true means more entries
// exist past the page; ContinuationToken resumes from there when the
// implementation supports continuation.
type ScanResult struct {
	Entries           []KVEntry
	Truncated         bool
	ContinuationToken string
}

// KeyValueStore is the storage collaborator behind the kv host functions.
//
// Read returns nil (not an error) when the key is absent. Write returns
// *errors.NotLeaderError when this node cannot accept writes and
// *errors.CompareMismatchError when a compare-and-swap or compare-and-delete
// finds an unexpected value.
type KeyValueStore interface {
	Read(ctx context.Context, key string) (*KVEntry, error)
	Write(ctx context.Context, req WriteRequest) (WriteResult, error)
	Scan(ctx context.Context, req ScanRequest) (ScanResult, error)
}
