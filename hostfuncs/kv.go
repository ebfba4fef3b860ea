package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/domain/ports"
	"github.com/larch-dev/larch-host/wireformat"
)

// kvGet looks a key up. Optional result: absence is not an error.
func (hc *HostContext) kvGet() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		key := string(payload)
		if err := CheckPermission(hc.pluginName, "kv_read", hc.permissions.KVRead); err != nil {
			return abi.OptionalErr(err.Error()), nil
		}
		if err := ValidateKeyPrefix(hc.pluginName, hc.allowedKVPrefixes, key); err != nil {
			return abi.OptionalErr(err.Error()), nil
		}
		entry, err := hc.kv.Read(ctx, key)
		if err != nil {
			hc.logger.Warn("kv_get failed", "plugin", hc.pluginName, "key", key, "error", err)
			return abi.OptionalErr(fmt.Sprintf("kv_get failed: %v", err)), nil
		}
		if entry == nil {
			return abi.OptionalAbsent(), nil
		}
		return abi.OptionalFound(entry.Value), nil
	}
}

// kvPut stores one key. Payload is a KvPutRequest.
func (hc *HostContext) kvPut() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "kv_write", hc.permissions.KVWrite); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		var req wireformat.KvPutRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return abi.ErrString(fmt.Sprintf("invalid kv_put request: %v", err)), nil
		}
		if err := ValidateKeyPrefix(hc.pluginName, hc.allowedKVPrefixes, req.Key); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		value, err := abi.DecodeBase64(req.ValueB64)
		if err != nil {
			return abi.ErrString(err.Error()), nil
		}
		if _, err := hc.kv.Write(ctx, ports.SetRequest(req.Key, value)); err != nil {
			hc.logger.Warn("kv_put failed", "plugin", hc.pluginName, "key", req.Key, "error", err)
			return abi.ErrString(fmt.Sprintf("kv_put failed: %v", err)), nil
		}
		return abi.OKString(""), nil
	}
}

// kvDelete removes one key. Payload is the raw key.
func (hc *HostContext) kvDelete() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		key := string(payload)
		if err := CheckPermission(hc.pluginName, "kv_write", hc.permissions.KVWrite); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		if err := ValidateKeyPrefix(hc.pluginName, hc.allowedKVPrefixes, key); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		if _, err := hc.kv.Write(ctx, ports.DeleteRequest(key)); err != nil {
			hc.logger.Warn("kv_delete failed", "plugin", hc.pluginName, "key", key, "error", err)
			return abi.ErrString(fmt.Sprintf("kv_delete failed: %v", err)), nil
		}
		return abi.OKString(""), nil
	}
}

// kvCas replaces a key only when its current value matches. Payload is a
// KvCasRequest.
func (hc *HostContext) kvCas() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "kv_write", hc.permissions.KVWrite); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		var req wireformat.KvCasRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return abi.ErrString(fmt.Sprintf("invalid kv_cas request: %v", err)), nil
		}
		if err := ValidateKeyPrefix(hc.pluginName, hc.allowedKVPrefixes, req.Key); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		expected, err := abi.DecodeBase64(req.ExpectedB64)
		if err != nil {
			return abi.ErrString(err.Error()), nil
		}
		newValue, err := abi.DecodeBase64(req.NewValueB64)
		if err != nil {
			return abi.ErrString(err.Error()), nil
		}
		if _, err := hc.kv.Write(ctx, ports.CompareAndSwapRequest(req.Key, expected, newValue)); err != nil {
			hc.logger.Warn("kv_cas failed", "plugin", hc.pluginName, "key", req.Key, "error", err)
			return abi.ErrString(fmt.Sprintf("kv_cas failed: %v", err)), nil
		}
		return abi.OKString(""), nil
	}
}

// kvScan lists keys under a prefix. Payload is a KvScanRequest; a zero
// limit gets the default and anything larger than the cap is clamped.
func (hc *HostContext) kvScan() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "kv_read", hc.permissions.KVRead); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		var req wireformat.KvScanRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return abi.ErrBytes(fmt.Sprintf("invalid kv_scan request: %v", err)), nil
		}
		if err := ValidateScanPrefix(hc.pluginName, hc.allowedKVPrefixes, req.Prefix); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		limit := int(req.Limit)
		if limit == 0 {
			limit = entities.DefaultScanLimit
		}
		if limit > entities.MaxScanResults {
			limit = entities.MaxScanResults
		}
		result, err := hc.kv.Scan(ctx, ports.ScanRequest{Prefix: req.Prefix, Limit: limit})
		if err != nil {
			hc.logger.Warn("kv_scan failed", "plugin", hc.pluginName, "prefix", req.Prefix, "error", err)
			return abi.ErrBytes(fmt.Sprintf("kv_scan failed: %v", err)), nil
		}
		entries := make([]wireformat.ScanEntry, len(result.Entries))
		for i, e := range result.Entries {
			entries[i] = wireformat.ScanEntry{Key: e.Key, Value: e.Value}
		}
		encoded, err := json.Marshal(entries)
		if err != nil {
			return abi.ErrBytes(fmt.Sprintf("kv_scan JSON encode failed: %v", err)), nil
		}
		return abi.OKBytes(encoded), nil
	}
}

// kvBatch applies a list of set/delete operations atomically. Every key is
// validated before any operation runs so a namespace violation cannot leave
// a partial batch behind.
func (hc *HostContext) kvBatch() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "kv_write", hc.permissions.KVWrite); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		ops, err := wireformat.ParseBatchOps(payload)
		if err != nil {
			return abi.ErrString(err.Error()), nil
		}
		for _, op := range ops {
			if err := ValidateKeyPrefix(hc.pluginName, hc.allowedKVPrefixes, op.Key()); err != nil {
				return abi.ErrString(err.Error()), nil
			}
		}
		batch := make([]ports.BatchOp, len(ops))
		for i, op := range ops {
			if op.Set != nil {
				batch[i] = ports.BatchOp{Key: op.Set.Key, Value: op.Set.Value}
			} else {
				batch[i] = ports.BatchOp{Key: op.Delete.Key, Delete: true}
			}
		}
		if _, err := hc.kv.Write(ctx, ports.BatchRequest(batch)); err != nil {
			hc.logger.Warn("kv_batch failed", "plugin", hc.pluginName, "ops", len(batch), "error", err)
			return abi.ErrString(fmt.Sprintf("kv_batch failed: %v", err)), nil
		}
		return abi.OKString(""), nil
	}
}
