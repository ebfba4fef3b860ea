package wireformat

import (
	"encoding/json"
	"fmt"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
)

// GuestAck is the JSON body guests return from their init, health, and
// shutdown entry points.
type GuestAck struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseGuestAck decodes a guest acknowledgement body.
func ParseGuestAck(data []byte) (*GuestAck, error) {
	var ack GuestAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, &domerrors.DecodeError{What: "guest acknowledgement", Err: err}
	}
	return &ack, nil
}

// KvBatchOp is one externally-tagged batch operation: exactly one of Set or
// Delete is present, mirroring {"Set": {...}} / {"Delete": {...}} on the
// wire.
type KvBatchOp struct {
	Set    *KvBatchSet    `json:"Set,omitempty"`
	Delete *KvBatchDelete `json:"Delete,omitempty"`
}

type KvBatchSet struct {
	Key   string   `json:"key"`
	Value ByteList `json:"value"`
}

type KvBatchDelete struct {
	Key string `json:"key"`
}

// Validate checks the exactly-one-variant invariant.
func (op *KvBatchOp) Validate() error {
	if (op.Set == nil) == (op.Delete == nil) {
		return fmt.Errorf("batch op must be exactly one of Set or Delete")
	}
	return nil
}

// Key returns the key the op touches regardless of variant.
func (op *KvBatchOp) Key() string {
	if op.Set != nil {
		return op.Set.Key
	}
	if op.Delete != nil {
		return op.Delete.Key
	}
	return ""
}

// ParseBatchOps decodes and validates a kv_batch payload.
func ParseBatchOps(data []byte) ([]KvBatchOp, error) {
	var ops []KvBatchOp
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, &domerrors.DecodeError{What: "kv batch ops", Err: err}
	}
	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return nil, &domerrors.DecodeError{What: "kv batch ops", Err: err}
		}
	}
	return ops, nil
}

// ScanEntry is one scan result pair. It serializes as the two-element array
// [key, [bytes]] the guest expects.
type ScanEntry struct {
	Key   string
	Value []byte
}

func (e ScanEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Key, ByteList(e.Value)})
}

func (e *ScanEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &e.Key); err != nil {
		return err
	}
	var bl ByteList
	if err := json.Unmarshal(pair[1], &bl); err != nil {
		return err
	}
	e.Value = bl
	return nil
}

// HookEventWire is the envelope delivered to a guest's hook event entry
// point.
type HookEventWire struct {
	Topic string          `json:"topic"`
	Event json.RawMessage `json:"event"`
}

// Multi-argument host function request bodies. Values travel base64-encoded
// so arbitrary bytes survive JSON.

type KvPutRequest struct {
	Key      string `json:"key"`
	ValueB64 string `json:"value_b64"`
}

type KvCasRequest struct {
	Key         string `json:"key"`
	ExpectedB64 string `json:"expected_b64"`
	NewValueB64 string `json:"new_value_b64"`
}

type KvScanRequest struct {
	Prefix string `json:"prefix"`
	Limit  uint32 `json:"limit"`
}

type VerifyRequest struct {
	DataB64      string `json:"data_b64"`
	SignatureB64 string `json:"signature_b64"`
	PublicKeyHex string `json:"public_key_hex"`
}

// SQLQueryRequest is the sql_query request body. ParamsJSON is a nested
// JSON array so parameter typing survives independent of the outer decode.
type SQLQueryRequest struct {
	Query       string `json:"query"`
	ParamsJSON  string `json:"params_json,omitempty"`
	Consistency string `json:"consistency,omitempty"`
	Limit       uint32 `json:"limit,omitempty"`
	TimeoutMs   uint64 `json:"timeout_ms,omitempty"`
}

// SQLQueryResponse is the sql_query response body. Blob cells are encoded
// as "base64:<data>" strings.
type SQLQueryResponse struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	RowCount        int      `json:"row_count"`
	IsTruncated     bool     `json:"is_truncated"`
	ExecutionTimeMs uint64   `json:"execution_time_ms"`
}

// HookListResponse is the hook_list response body.
type HookListResponse struct {
	IsEnabled bool              `json:"is_enabled"`
	Handlers  []HookHandlerWire `json:"handlers"`
}

type HookHandlerWire struct {
	Name          string `json:"name"`
	Pattern       string `json:"pattern"`
	HandlerType   string `json:"handler_type"`
	ExecutionMode string `json:"execution_mode"`
	Enabled       bool   `json:"enabled"`
	TimeoutMs     uint64 `json:"timeout_ms"`
	RetryCount    uint32 `json:"retry_count"`
}

// HookMetricsResponse is the hook_metrics response body.
type HookMetricsResponse struct {
	IsEnabled            bool                  `json:"is_enabled"`
	TotalEventsProcessed uint64                `json:"total_events_processed"`
	Handlers             []HookHandlerMetricsW `json:"handlers"`
}

type HookHandlerMetricsW struct {
	Name          string `json:"name"`
	SuccessCount  uint64 `json:"success_count"`
	FailureCount  uint64 `json:"failure_count"`
	DroppedCount  uint64 `json:"dropped_count"`
	JobsSubmitted uint64 `json:"jobs_submitted"`
	AvgDurationUs uint64 `json:"avg_duration_us"`
	MaxDurationUs uint64 `json:"max_duration_us"`
}

// HookTriggerResponse is the hook_trigger response body.
type HookTriggerResponse struct {
	IsSuccess       bool     `json:"is_success"`
	DispatchedCount int      `json:"dispatched_count"`
	Error           string   `json:"error,omitempty"`
	HandlerFailures []string `json:"handler_failures"`
}
