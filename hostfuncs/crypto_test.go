package hostfuncs

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/wireformat"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	hc := NewHostContext(kvManifest(entities.Permissions{Signing: true}), WithSigningKey(priv))
	data := []byte("payload to sign")

	resp, err := hc.sign()(context.Background(), data)
	require.NoError(t, err)
	sig, err := abi.DecodeValue(resp)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)

	verifyReq, _ := json.Marshal(wireformat.VerifyRequest{
		DataB64:      abi.EncodeBase64(data),
		SignatureB64: abi.EncodeBase64(sig),
		PublicKeyHex: hex.EncodeToString(pub),
	})
	resp, err = hc.verify()(context.Background(), verifyReq)
	require.NoError(t, err)
	out, err := abi.DecodeValue(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, out)
}

func TestVerifyIsUngated(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	data := []byte("x")
	sig := ed25519.Sign(priv, data)

	// No signing permission, verification still works.
	hc := NewHostContext(kvManifest(entities.Permissions{}))
	verifyReq, _ := json.Marshal(wireformat.VerifyRequest{
		DataB64:      abi.EncodeBase64(data),
		SignatureB64: abi.EncodeBase64(sig),
		PublicKeyHex: hex.EncodeToString(pub),
	})
	resp, err := hc.verify()(context.Background(), verifyReq)
	require.NoError(t, err)
	out, err := abi.DecodeValue(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, out)
}

func TestVerifyMalformedInputIsFalse(t *testing.T) {
	hc := NewHostContext(kvManifest(entities.Permissions{}))

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not JSON", payload: `garbage`},
		{name: "bad hex key", payload: `{"data_b64":"","signature_b64":"","public_key_hex":"zz"}`},
		{name: "wrong sig length", payload: `{"data_b64":"","signature_b64":"AAE=","public_key_hex":"` + hex.EncodeToString(make([]byte, 32)) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := hc.verify()(context.Background(), []byte(tt.payload))
			require.NoError(t, err)
			out, err := abi.DecodeValue(resp)
			require.NoError(t, err)
			assert.Equal(t, []byte{0}, out)
		})
	}
}

func TestSignWithoutKey(t *testing.T) {
	hc := NewHostContext(kvManifest(entities.Permissions{Signing: true}))
	resp, err := hc.sign()(context.Background(), []byte("data"))
	require.NoError(t, err)
	_, err = abi.DecodeValue(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signing key")
}

func TestPublicKeyHex(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	hc := NewHostContext(kvManifest(entities.Permissions{Signing: true}), WithSigningKey(priv))
	resp, err := hc.publicKeyHex()(context.Background(), nil)
	require.NoError(t, err)
	s, err := abi.DecodeString(resp)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(pub), s)
}

func TestRandomBytes(t *testing.T) {
	hc := NewHostContext(kvManifest(entities.Permissions{Randomness: true}))

	buf := hc.RandomBytes(32)
	assert.Len(t, buf, 32)

	// Oversized requests are clamped, not rejected.
	buf = hc.RandomBytes(entities.MaxRandomBytesPerCall + 1)
	assert.Len(t, buf, entities.MaxRandomBytesPerCall)

	denied := NewHostContext(kvManifest(entities.Permissions{}))
	assert.Empty(t, denied.RandomBytes(16))
}
