package hostfuncs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/ports"
	"github.com/larch-dev/larch-host/wireformat"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
)

// kvExecute is the full-fidelity KV surface for plugins that replace
// native KV handlers: it exposes typed error codes (NOT_LEADER with the
// leader hint, CAS_FAILED with the actual value), scan version metadata,
// and conditional batch writes. The request is JSON with an "op" field;
// requests are parsed dynamically because each op has its own shape.
//
// Gated on holding either kv permission; namespace checks are deliberately
// absent here, matching the simple functions is the job of kv_get/kv_put.
func (hc *HostContext) kvExecute() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		granted := hc.permissions.KVRead || hc.permissions.KVWrite
		if err := CheckPermission(hc.pluginName, "kv", granted); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		if !gjson.ValidBytes(payload) {
			return abi.ErrBytes("invalid JSON in kv_execute request"), nil
		}
		req := gjson.ParseBytes(payload)
		op := req.Get("op").String()

		var (
			result any
			err    error
		)
		switch op {
		case "read":
			result, err = hc.kvExecRead(ctx, req)
		case "write":
			result, err = hc.kvExecWrite(ctx, req)
		case "delete":
			result, err = hc.kvExecDelete(ctx, req)
		case "scan":
			result, err = hc.kvExecScan(ctx, req)
		case "batch_read":
			result, err = hc.kvExecBatchRead(ctx, req)
		case "batch_write":
			result, err = hc.kvExecBatchWrite(ctx, req)
		case "cas":
			result, err = hc.kvExecCas(ctx, req, false)
		case "cad":
			result, err = hc.kvExecCas(ctx, req, true)
		case "conditional_batch":
			result, err = hc.kvExecConditionalBatch(ctx, req)
		default:
			return abi.ErrBytes(fmt.Sprintf("unknown kv_execute op: %s", op)), nil
		}
		if err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("serialize failed: %v", err)), nil
		}
		return abi.OKBytes(encoded), nil
	}
}

func requiredString(req gjson.Result, field string) (string, error) {
	v := req.Get(field)
	if !v.Exists() || v.Type != gjson.String {
		return "", fmt.Errorf("missing '%s'", field)
	}
	return v.String(), nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// storeFailure folds a Write error into the shared error/error_code/leader
// fields. Returns the message, code, and leader hint; code and leader are
// nil for untyped failures.
func storeFailure(err error) (msg *string, code *string, leader *uint64) {
	var notLeader *domerrors.NotLeaderError
	if errors.As(err, &notLeader) {
		l := notLeader.Leader
		return strPtr(fmt.Sprintf("not leader; leader is node %d", l)), strPtr(wireformat.KvExecErrNotLeader), &l
	}
	return strPtr(err.Error()), nil, nil
}

func (hc *HostContext) kvExecRead(ctx context.Context, req gjson.Result) (any, error) {
	key, err := requiredString(req, "key")
	if err != nil {
		return nil, err
	}
	entry, err := hc.kv.Read(ctx, key)
	if err != nil {
		return wireformat.KvExecReadResponse{Error: strPtr(err.Error())}, nil
	}
	if entry == nil {
		return wireformat.KvExecReadResponse{}, nil
	}
	return wireformat.KvExecReadResponse{
		Value:    strPtr(abi.EncodeBase64(entry.Value)),
		WasFound: true,
	}, nil
}

func (hc *HostContext) kvExecWrite(ctx context.Context, req gjson.Result) (any, error) {
	key, err := requiredString(req, "key")
	if err != nil {
		return nil, err
	}
	valueB64, err := requiredString(req, "value")
	if err != nil {
		return nil, err
	}
	value, err := abi.DecodeBase64(valueB64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 value: %w", err)
	}
	if _, err := hc.kv.Write(ctx, ports.SetRequest(key, value)); err != nil {
		msg, code, leader := storeFailure(err)
		return wireformat.KvExecWriteResponse{Error: msg, ErrorCode: code, LeaderID: leader}, nil
	}
	return wireformat.KvExecWriteResponse{IsSuccess: true}, nil
}

func (hc *HostContext) kvExecDelete(ctx context.Context, req gjson.Result) (any, error) {
	key, err := requiredString(req, "key")
	if err != nil {
		return nil, err
	}
	if _, err := hc.kv.Write(ctx, ports.DeleteRequest(key)); err != nil {
		msg, code, leader := storeFailure(err)
		return wireformat.KvExecDeleteResponse{Key: key, Error: msg, ErrorCode: code, LeaderID: leader}, nil
	}
	return wireformat.KvExecDeleteResponse{Key: key, WasDeleted: true}, nil
}

func (hc *HostContext) kvExecScan(ctx context.Context, req gjson.Result) (any, error) {
	prefix, err := requiredString(req, "prefix")
	if err != nil {
		return nil, err
	}
	scanReq := ports.ScanRequest{
		Prefix:            prefix,
		Limit:             int(req.Get("limit").Uint()),
		ContinuationToken: req.Get("continuation_token").String(),
	}
	result, err := hc.kv.Scan(ctx, scanReq)
	if err != nil {
		return wireformat.KvExecScanResponse{Entries: []wireformat.KvExecScanEntry{}, Error: strPtr(err.Error())}, nil
	}
	entries := make([]wireformat.KvExecScanEntry, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = wireformat.KvExecScanEntry{
			Key:            e.Key,
			Value:          abi.EncodeBase64(e.Value),
			Version:        e.Version,
			CreateRevision: e.CreateRevision,
			ModRevision:    e.ModRevision,
		}
	}
	resp := wireformat.KvExecScanResponse{
		Entries:     entries,
		Count:       len(entries),
		IsTruncated: result.Truncated,
	}
	if result.ContinuationToken != "" {
		resp.ContinuationToken = strPtr(result.ContinuationToken)
	}
	return resp, nil
}

func (hc *HostContext) kvExecBatchRead(ctx context.Context, req gjson.Result) (any, error) {
	keysVal := req.Get("keys")
	if !keysVal.IsArray() {
		return nil, fmt.Errorf("missing 'keys' array")
	}
	keys := keysVal.Array()
	values := make([]*string, 0, len(keys))
	for _, k := range keys {
		entry, err := hc.kv.Read(ctx, k.String())
		if err != nil {
			return wireformat.KvExecBatchReadResponse{Error: strPtr(err.Error())}, nil
		}
		if entry == nil {
			values = append(values, nil)
			continue
		}
		values = append(values, strPtr(abi.EncodeBase64(entry.Value)))
	}
	return wireformat.KvExecBatchReadResponse{IsSuccess: true, Values: values}, nil
}

// parseBatchOperations reads the base64-valued batch shape used by
// batch_write and conditional_batch.
func parseBatchOperations(opsVal gjson.Result) ([]ports.BatchOp, error) {
	if !opsVal.IsArray() {
		return nil, fmt.Errorf("missing 'operations' array")
	}
	raw := opsVal.Array()
	ops := make([]ports.BatchOp, 0, len(raw))
	for _, op := range raw {
		if set := op.Get("Set"); set.Exists() {
			key, err := requiredString(set, "key")
			if err != nil {
				return nil, fmt.Errorf("missing Set.key")
			}
			valueB64, err := requiredString(set, "value")
			if err != nil {
				return nil, fmt.Errorf("missing Set.value")
			}
			value, err := abi.DecodeBase64(valueB64)
			if err != nil {
				return nil, fmt.Errorf("invalid base64: %w", err)
			}
			ops = append(ops, ports.BatchOp{Key: key, Value: value})
		} else if del := op.Get("Delete"); del.Exists() {
			key, err := requiredString(del, "key")
			if err != nil {
				return nil, fmt.Errorf("missing Delete.key")
			}
			ops = append(ops, ports.BatchOp{Key: key, Delete: true})
		} else {
			return nil, fmt.Errorf("unknown batch operation")
		}
	}
	return ops, nil
}

func (hc *HostContext) kvExecBatchWrite(ctx context.Context, req gjson.Result) (any, error) {
	ops, err := parseBatchOperations(req.Get("operations"))
	if err != nil {
		return nil, err
	}
	result, err := hc.kv.Write(ctx, ports.BatchRequest(ops))
	if err != nil {
		msg, code, leader := storeFailure(err)
		return wireformat.KvExecBatchWriteResponse{Error: msg, ErrorCode: code, LeaderID: leader}, nil
	}
	return wireformat.KvExecBatchWriteResponse{
		IsSuccess:         true,
		OperationsApplied: intPtr(result.OperationsApplied),
	}, nil
}

func (hc *HostContext) kvExecCas(ctx context.Context, req gjson.Result, isDelete bool) (any, error) {
	key, err := requiredString(req, "key")
	if err != nil {
		return nil, err
	}
	var writeReq ports.WriteRequest
	if isDelete {
		expectedB64, err := requiredString(req, "expected")
		if err != nil {
			return nil, err
		}
		expected, err := abi.DecodeBase64(expectedB64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 expected: %w", err)
		}
		writeReq = ports.CompareAndDeleteRequest(key, expected)
	} else {
		// expected is optional for cas: absent means the key must not
		// exist yet.
		var expected []byte
		if v := req.Get("expected"); v.Exists() && v.Type == gjson.String {
			expected, err = abi.DecodeBase64(v.String())
			if err != nil {
				return nil, fmt.Errorf("invalid base64 expected: %w", err)
			}
		}
		newValueB64, err := requiredString(req, "new_value")
		if err != nil {
			return nil, err
		}
		newValue, err := abi.DecodeBase64(newValueB64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 new_value: %w", err)
		}
		writeReq = ports.CompareAndSwapRequest(key, expected, newValue)
	}

	if _, err := hc.kv.Write(ctx, writeReq); err != nil {
		var mismatch *domerrors.CompareMismatchError
		if errors.As(err, &mismatch) {
			resp := wireformat.KvExecCasResponse{ErrorCode: strPtr(wireformat.KvExecErrCasFailed)}
			if mismatch.Actual != nil {
				resp.ActualValue = strPtr(abi.EncodeBase64(mismatch.Actual))
			}
			return resp, nil
		}
		msg, code, leader := storeFailure(err)
		return wireformat.KvExecCasResponse{Error: msg, ErrorCode: code, LeaderID: leader}, nil
	}
	return wireformat.KvExecCasResponse{IsSuccess: true}, nil
}

func (hc *HostContext) kvExecConditionalBatch(ctx context.Context, req gjson.Result) (any, error) {
	condsVal := req.Get("conditions")
	if !condsVal.IsArray() {
		return nil, fmt.Errorf("missing 'conditions' array")
	}
	conditions := make([]ports.Condition, 0, len(condsVal.Array()))
	for _, c := range condsVal.Array() {
		if ve := c.Get("ValueEquals"); ve.Exists() {
			key, err := requiredString(ve, "key")
			if err != nil {
				return nil, fmt.Errorf("missing ValueEquals.key")
			}
			expectedB64, err := requiredString(ve, "expected")
			if err != nil {
				return nil, fmt.Errorf("missing ValueEquals.expected")
			}
			expected, err := abi.DecodeBase64(expectedB64)
			if err != nil {
				return nil, fmt.Errorf("invalid base64: %w", err)
			}
			conditions = append(conditions, ports.Condition{Kind: ports.CondValueEquals, Key: key, Value: expected})
		} else if ke := c.Get("KeyExists"); ke.Exists() {
			key, err := requiredString(ke, "key")
			if err != nil {
				return nil, fmt.Errorf("missing KeyExists.key")
			}
			conditions = append(conditions, ports.Condition{Kind: ports.CondKeyExists, Key: key})
		} else if kne := c.Get("KeyNotExists"); kne.Exists() {
			key, err := requiredString(kne, "key")
			if err != nil {
				return nil, fmt.Errorf("missing KeyNotExists.key")
			}
			conditions = append(conditions, ports.Condition{Kind: ports.CondKeyNotExists, Key: key})
		} else {
			return nil, fmt.Errorf("unknown condition type")
		}
	}
	ops, err := parseBatchOperations(req.Get("operations"))
	if err != nil {
		return nil, err
	}

	result, err := hc.kv.Write(ctx, ports.ConditionalBatchRequest(conditions, ops))
	if err != nil {
		msg, code, leader := storeFailure(err)
		return wireformat.KvExecConditionalBatchResponse{Error: msg, ErrorCode: code, LeaderID: leader}, nil
	}
	resp := wireformat.KvExecConditionalBatchResponse{
		IsSuccess:         result.ConditionsMet,
		ConditionsMet:     result.ConditionsMet,
		OperationsApplied: intPtr(result.OperationsApplied),
	}
	if !result.ConditionsMet {
		resp.FailedConditionIndex = intPtr(result.FailedConditionIndex)
	}
	return resp, nil
}
