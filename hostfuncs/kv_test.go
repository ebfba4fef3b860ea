package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/internal/testutil"
	"github.com/larch-dev/larch-host/wireformat"
)

func kvManifest(perms entities.Permissions) *entities.PluginManifest {
	return &entities.PluginManifest{
		Name:        "forge",
		Version:     "1.0.0",
		ModuleHash:  "abc",
		Handles:     []string{"Ping"},
		KVPrefixes:  []string{"forge:"},
		Permissions: perms,
	}
}

func TestKvGetRoundTrip(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("forge:greeting", []byte("hello"))
	hc := NewHostContext(kvManifest(entities.Permissions{KVRead: true}), WithKeyValueStore(kv))

	resp, err := hc.kvGet()(context.Background(), []byte("forge:greeting"))
	require.NoError(t, err)
	value, found, err := abi.DecodeOptional(resp)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), value)
}

func TestKvGetMiss(t *testing.T) {
	hc := NewHostContext(kvManifest(entities.Permissions{KVRead: true}),
		WithKeyValueStore(testutil.NewFakeKV()))

	resp, err := hc.kvGet()(context.Background(), []byte("forge:absent"))
	require.NoError(t, err)
	_, found, err := abi.DecodeOptional(resp)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKvGetDeniedWithoutPermission(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.ReadErr = fmt.Errorf("store must not be touched")
	hc := NewHostContext(kvManifest(entities.Permissions{}), WithKeyValueStore(kv))

	resp, err := hc.kvGet()(context.Background(), []byte("forge:greeting"))
	require.NoError(t, err)
	_, _, err = abi.DecodeOptional(resp)
	require.Error(t, err)
	// The denial fires before the store is consulted, so ReadErr never
	// surfaces.
	assert.NotContains(t, err.Error(), "store must not be touched")
}

func TestKvGetNamespaceViolation(t *testing.T) {
	hc := NewHostContext(kvManifest(entities.Permissions{KVRead: true}),
		WithKeyValueStore(testutil.NewFakeKV()))

	resp, err := hc.kvGet()(context.Background(), []byte("__hooks:config"))
	require.NoError(t, err)
	_, _, err = abi.DecodeOptional(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestKvPutAndDelete(t *testing.T) {
	kv := testutil.NewFakeKV()
	hc := NewHostContext(kvManifest(entities.Permissions{KVWrite: true}), WithKeyValueStore(kv))

	put, _ := json.Marshal(wireformat.KvPutRequest{Key: "forge:x", ValueB64: abi.EncodeBase64([]byte("v1"))})
	resp, err := hc.kvPut()(context.Background(), put)
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.NoError(t, err)

	stored, ok := kv.Get("forge:x")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), stored)

	resp, err = hc.kvDelete()(context.Background(), []byte("forge:x"))
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.NoError(t, err)
	_, ok = kv.Get("forge:x")
	assert.False(t, ok)
}

func TestKvPutDeniedNeverWrites(t *testing.T) {
	kv := testutil.NewFakeKV()
	hc := NewHostContext(kvManifest(entities.Permissions{KVRead: true}), WithKeyValueStore(kv))

	put, _ := json.Marshal(wireformat.KvPutRequest{Key: "forge:x", ValueB64: abi.EncodeBase64([]byte("v1"))})
	resp, err := hc.kvPut()(context.Background(), put)
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.Error(t, err)
	assert.Equal(t, 0, kv.Len())
}

func TestKvCas(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("forge:counter", []byte("1"))
	hc := NewHostContext(kvManifest(entities.Permissions{KVWrite: true}), WithKeyValueStore(kv))

	req, _ := json.Marshal(wireformat.KvCasRequest{
		Key:         "forge:counter",
		ExpectedB64: abi.EncodeBase64([]byte("1")),
		NewValueB64: abi.EncodeBase64([]byte("2")),
	})
	resp, err := hc.kvCas()(context.Background(), req)
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.NoError(t, err)

	stored, _ := kv.Get("forge:counter")
	assert.Equal(t, []byte("2"), stored)

	// Stale expectation fails and leaves the value alone.
	resp, err = hc.kvCas()(context.Background(), req)
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.Error(t, err)
	stored, _ = kv.Get("forge:counter")
	assert.Equal(t, []byte("2"), stored)
}

func TestKvScanDefaultAndClamp(t *testing.T) {
	kv := testutil.NewFakeKV()
	for i := 0; i < entities.DefaultScanLimit+10; i++ {
		kv.Put(fmt.Sprintf("forge:item:%04d", i), []byte("x"))
	}
	hc := NewHostContext(kvManifest(entities.Permissions{KVRead: true}), WithKeyValueStore(kv))

	t.Run("zero limit gets default", func(t *testing.T) {
		req, _ := json.Marshal(wireformat.KvScanRequest{Prefix: "forge:item:"})
		resp, err := hc.kvScan()(context.Background(), req)
		require.NoError(t, err)
		payload, err := abi.DecodeValue(resp)
		require.NoError(t, err)
		var entries []wireformat.ScanEntry
		require.NoError(t, json.Unmarshal(payload, &entries))
		assert.Len(t, entries, entities.DefaultScanLimit)
	})

	t.Run("scan outside namespace denied", func(t *testing.T) {
		req, _ := json.Marshal(wireformat.KvScanRequest{Prefix: "__plugin:"})
		resp, err := hc.kvScan()(context.Background(), req)
		require.NoError(t, err)
		_, err = abi.DecodeValue(resp)
		require.Error(t, err)
	})
}

func TestKvBatchValidatesAllKeysFirst(t *testing.T) {
	kv := testutil.NewFakeKV()
	hc := NewHostContext(kvManifest(entities.Permissions{KVWrite: true}), WithKeyValueStore(kv))

	payload := []byte(`[` +
		`{"Set":{"key":"forge:a","value":[49]}},` +
		`{"Set":{"key":"__hooks:b","value":[50]}}` +
		`]`)
	resp, err := hc.kvBatch()(context.Background(), payload)
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.Error(t, err)
	// Nothing may have been applied before the violating key was found.
	assert.Equal(t, 0, kv.Len())
}

func TestKvBatchApplies(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("forge:old", []byte("x"))
	hc := NewHostContext(kvManifest(entities.Permissions{KVWrite: true}), WithKeyValueStore(kv))

	payload := []byte(`[` +
		`{"Set":{"key":"forge:new","value":[104,105]}},` +
		`{"Delete":{"key":"forge:old"}}` +
		`]`)
	resp, err := hc.kvBatch()(context.Background(), payload)
	require.NoError(t, err)
	_, err = abi.DecodeString(resp)
	require.NoError(t, err)

	v, ok := kv.Get("forge:new")
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), v)
	_, ok = kv.Get("forge:old")
	assert.False(t, ok)
}
