package wireformat

// Response shapes for the kv_execute host function. kv_execute is the
// full-fidelity KV surface: unlike the simple kv_* functions it reports
// typed error codes, leader hints, compare-and-swap actual values, and
// scan version metadata. Field names and explicit nulls are guest-visible
// contract, so nullable fields are pointers without omitempty.

// Error codes carried in the error_code fields.
const (
	KvExecErrNotLeader = "NOT_LEADER"
	KvExecErrCasFailed = "CAS_FAILED"
)

// KvExecReadResponse answers the "read" op. Value is base64, null when the
// key was absent.
type KvExecReadResponse struct {
	Value    *string `json:"value"`
	WasFound bool    `json:"was_found"`
	Error    *string `json:"error"`
}

// KvExecWriteResponse answers the "write" op.
type KvExecWriteResponse struct {
	IsSuccess bool    `json:"is_success"`
	Error     *string `json:"error"`
	ErrorCode *string `json:"error_code"`
	LeaderID  *uint64 `json:"leader_id"`
}

// KvExecDeleteResponse answers the "delete" op.
type KvExecDeleteResponse struct {
	Key        string  `json:"key"`
	WasDeleted bool    `json:"was_deleted"`
	Error      *string `json:"error"`
	ErrorCode  *string `json:"error_code"`
	LeaderID   *uint64 `json:"leader_id"`
}

// KvExecScanEntry is one entry in a scan response. Value is base64.
type KvExecScanEntry struct {
	Key            string `json:"key"`
	Value          string `json:"value"`
	Version        int64  `json:"version"`
	CreateRevision int64  `json:"create_revision"`
	ModRevision    int64  `json:"mod_revision"`
}

// KvExecScanResponse answers the "scan" op.
type KvExecScanResponse struct {
	Entries           []KvExecScanEntry `json:"entries"`
	Count             int               `json:"count"`
	IsTruncated       bool              `json:"is_truncated"`
	ContinuationToken *string           `json:"continuation_token"`
	Error             *string           `json:"error"`
}

// KvExecBatchReadResponse answers the "batch_read" op. Values aligns with
// the requested keys; absent keys are null.
type KvExecBatchReadResponse struct {
	IsSuccess bool      `json:"is_success"`
	Values    []*string `json:"values"`
	Error     *string   `json:"error"`
}

// KvExecBatchWriteResponse answers the "batch_write" op.
type KvExecBatchWriteResponse struct {
	IsSuccess         bool    `json:"is_success"`
	OperationsApplied *int    `json:"operations_applied"`
	Error             *string `json:"error"`
	ErrorCode         *string `json:"error_code"`
	LeaderID          *uint64 `json:"leader_id"`
}

// KvExecCasResponse answers the "cas" and "cad" ops. ActualValue is base64
// and only set alongside a CAS_FAILED code.
type KvExecCasResponse struct {
	IsSuccess   bool    `json:"is_success"`
	ActualValue *string `json:"actual_value"`
	Error       *string `json:"error"`
	ErrorCode   *string `json:"error_code"`
	LeaderID    *uint64 `json:"leader_id"`
}

// KvExecConditionalBatchResponse answers the "conditional_batch" op.
// FailedConditionIndex points at the first condition that did not hold when
// ConditionsMet is false.
type KvExecConditionalBatchResponse struct {
	IsSuccess            bool    `json:"is_success"`
	ConditionsMet        bool    `json:"conditions_met"`
	OperationsApplied    *int    `json:"operations_applied"`
	FailedConditionIndex *int    `json:"failed_condition_index"`
	FailedConditionRsn   *string `json:"failed_condition_reason"`
	Error                *string `json:"error"`
	ErrorCode            *string `json:"error_code"`
	LeaderID             *uint64 `json:"leader_id"`
}
