package hostfuncs

import (
	"context"
	"fmt"

	"github.com/larch-dev/larch-host/abi"
)

// blobHas reports blob existence as a single 0/1 byte. Denial and lookup
// failures both read as absent; existence is not worth a fault channel.
func (hc *HostContext) blobHas() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		hash := string(payload)
		if err := CheckPermission(hc.pluginName, "blob_read", hc.permissions.BlobRead); err != nil {
			return abi.OKBytes([]byte{0}), nil
		}
		exists, err := hc.blobs.Has(ctx, hash)
		if err != nil {
			hc.logger.Warn("blob_has failed", "plugin", hc.pluginName, "hash", hash, "error", err)
			return abi.OKBytes([]byte{0}), nil
		}
		if exists {
			return abi.OKBytes([]byte{1}), nil
		}
		return abi.OKBytes([]byte{0}), nil
	}
}

// blobGet fetches blob content by hash. Optional result.
func (hc *HostContext) blobGet() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		hash := string(payload)
		if err := CheckPermission(hc.pluginName, "blob_read", hc.permissions.BlobRead); err != nil {
			return abi.OptionalErr(err.Error()), nil
		}
		exists, err := hc.blobs.Has(ctx, hash)
		if err != nil {
			hc.logger.Warn("blob_get failed", "plugin", hc.pluginName, "hash", hash, "error", err)
			return abi.OptionalErr(fmt.Sprintf("blob_get failed: %v", err)), nil
		}
		if !exists {
			return abi.OptionalAbsent(), nil
		}
		data, err := hc.blobs.GetBytes(ctx, hash)
		if err != nil {
			hc.logger.Warn("blob_get failed", "plugin", hc.pluginName, "hash", hash, "error", err)
			return abi.OptionalErr(fmt.Sprintf("blob_get failed: %v", err)), nil
		}
		return abi.OptionalFound(data), nil
	}
}

// blobPut stores raw bytes and returns the content hash.
func (hc *HostContext) blobPut() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "blob_write", hc.permissions.BlobWrite); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		hash, err := hc.blobs.AddBytes(ctx, payload)
		if err != nil {
			hc.logger.Warn("blob_put failed", "plugin", hc.pluginName, "data_len", len(payload), "error", err)
			return abi.ErrString(fmt.Sprintf("blob_put failed: %v", err)), nil
		}
		return abi.OKString(hash), nil
	}
}
