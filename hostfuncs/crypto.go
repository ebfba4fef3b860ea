package hostfuncs

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/wireformat"
)

// sign signs raw payload bytes with the node's Ed25519 key.
func (hc *HostContext) sign() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "signing", hc.permissions.Signing); err != nil {
			return abi.ErrBytes(err.Error()), nil
		}
		if hc.signKey == nil {
			hc.logger.Warn("sign: no signing key configured", "plugin", hc.pluginName)
			return abi.ErrBytes("no signing key configured"), nil
		}
		sig := ed25519.Sign(hc.signKey, payload)
		return abi.OKBytes(sig), nil
	}
}

// verify checks an Ed25519 signature. Deliberately ungated: verification
// needs no secret material, so any plugin may call it. Malformed input
// verifies false rather than erroring.
func (hc *HostContext) verify() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req wireformat.VerifyRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return abi.OKBytes([]byte{0}), nil
		}
		keyBytes, err := hex.DecodeString(req.PublicKeyHex)
		if err != nil || len(keyBytes) != ed25519.PublicKeySize {
			return abi.OKBytes([]byte{0}), nil
		}
		data, err := abi.DecodeBase64(req.DataB64)
		if err != nil {
			return abi.OKBytes([]byte{0}), nil
		}
		sig, err := abi.DecodeBase64(req.SignatureB64)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return abi.OKBytes([]byte{0}), nil
		}
		if ed25519.Verify(ed25519.PublicKey(keyBytes), data, sig) {
			return abi.OKBytes([]byte{1}), nil
		}
		return abi.OKBytes([]byte{0}), nil
	}
}

// publicKeyHex returns the node's Ed25519 public key, hex-encoded.
func (hc *HostContext) publicKeyHex() ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := CheckPermission(hc.pluginName, "signing", hc.permissions.Signing); err != nil {
			return abi.ErrString(err.Error()), nil
		}
		if hc.signKey == nil {
			hc.logger.Warn("public_key_hex: no signing key configured", "plugin", hc.pluginName)
			return abi.ErrString("no signing key configured"), nil
		}
		pub := hc.signKey.Public().(ed25519.PublicKey)
		return abi.OKString(hex.EncodeToString(pub)), nil
	}
}
