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

func execContext(t *testing.T, kv *testutil.FakeKV) *HostContext {
	t.Helper()
	m := kvManifest(entities.Permissions{KVRead: true, KVWrite: true})
	return NewHostContext(m, WithKeyValueStore(kv))
}

func execCall(t *testing.T, hc *HostContext, request string) []byte {
	t.Helper()
	resp, err := hc.kvExecute()(context.Background(), []byte(request))
	require.NoError(t, err)
	payload, err := abi.DecodeValue(resp)
	require.NoError(t, err)
	return payload
}

func TestKvExecuteRead(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("any:key", []byte("value"))
	hc := execContext(t, kv)

	var resp wireformat.KvExecReadResponse
	require.NoError(t, json.Unmarshal(execCall(t, hc, `{"op":"read","key":"any:key"}`), &resp))
	assert.True(t, resp.WasFound)
	require.NotNil(t, resp.Value)
	assert.Equal(t, abi.EncodeBase64([]byte("value")), *resp.Value)

	require.NoError(t, json.Unmarshal(execCall(t, hc, `{"op":"read","key":"missing"}`), &resp))
	assert.False(t, resp.WasFound)
	assert.Nil(t, resp.Value)
}

func TestKvExecuteWriteNotLeader(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.NotLeader = true
	kv.Leader = 3
	hc := execContext(t, kv)

	request := fmt.Sprintf(`{"op":"write","key":"k","value":"%s"}`, abi.EncodeBase64([]byte("v")))
	var resp wireformat.KvExecWriteResponse
	require.NoError(t, json.Unmarshal(execCall(t, hc, request), &resp))
	assert.False(t, resp.IsSuccess)
	require.NotNil(t, resp.ErrorCode)
	assert.Equal(t, wireformat.KvExecErrNotLeader, *resp.ErrorCode)
	require.NotNil(t, resp.LeaderID)
	assert.Equal(t, uint64(3), *resp.LeaderID)
}

func TestKvExecuteCasFailureCarriesActual(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("k", []byte("current"))
	hc := execContext(t, kv)

	request := fmt.Sprintf(`{"op":"cas","key":"k","expected":"%s","new_value":"%s"}`,
		abi.EncodeBase64([]byte("stale")), abi.EncodeBase64([]byte("next")))
	var resp wireformat.KvExecCasResponse
	require.NoError(t, json.Unmarshal(execCall(t, hc, request), &resp))
	assert.False(t, resp.IsSuccess)
	require.NotNil(t, resp.ErrorCode)
	assert.Equal(t, wireformat.KvExecErrCasFailed, *resp.ErrorCode)
	require.NotNil(t, resp.ActualValue)
	assert.Equal(t, abi.EncodeBase64([]byte("current")), *resp.ActualValue)
}

func TestKvExecuteCasExpectAbsent(t *testing.T) {
	kv := testutil.NewFakeKV()
	hc := execContext(t, kv)

	// No "expected" field means the key must not exist yet.
	request := fmt.Sprintf(`{"op":"cas","key":"fresh","new_value":"%s"}`, abi.EncodeBase64([]byte("v1")))
	var resp wireformat.KvExecCasResponse
	require.NoError(t, json.Unmarshal(execCall(t, hc, request), &resp))
	assert.True(t, resp.IsSuccess)

	v, ok := kv.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestKvExecuteBatchRead(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("a", []byte("1"))
	kv.Put("c", []byte("3"))
	hc := execContext(t, kv)

	var resp wireformat.KvExecBatchReadResponse
	require.NoError(t, json.Unmarshal(execCall(t, hc, `{"op":"batch_read","keys":["a","b","c"]}`), &resp))
	assert.True(t, resp.IsSuccess)
	require.Len(t, resp.Values, 3)
	require.NotNil(t, resp.Values[0])
	assert.Nil(t, resp.Values[1])
	require.NotNil(t, resp.Values[2])
}

func TestKvExecuteConditionalBatch(t *testing.T) {
	kv := testutil.NewFakeKV()
	kv.Put("guard", []byte("ready"))
	hc := execContext(t, kv)

	t.Run("conditions hold", func(t *testing.T) {
		request := fmt.Sprintf(`{"op":"conditional_batch",`+
			`"conditions":[{"ValueEquals":{"key":"guard","expected":"%s"}},{"KeyNotExists":{"key":"out"}}],`+
			`"operations":[{"Set":{"key":"out","value":"%s"}}]}`,
			abi.EncodeBase64([]byte("ready")), abi.EncodeBase64([]byte("done")))
		var resp wireformat.KvExecConditionalBatchResponse
		require.NoError(t, json.Unmarshal(execCall(t, hc, request), &resp))
		assert.True(t, resp.IsSuccess)
		assert.True(t, resp.ConditionsMet)
		_, ok := kv.Get("out")
		assert.True(t, ok)
	})

	t.Run("condition fails with index", func(t *testing.T) {
		request := fmt.Sprintf(`{"op":"conditional_batch",`+
			`"conditions":[{"KeyExists":{"key":"guard"}},{"ValueEquals":{"key":"guard","expected":"%s"}}],`+
			`"operations":[{"Delete":{"key":"guard"}}]}`,
			abi.EncodeBase64([]byte("wrong")))
		var resp wireformat.KvExecConditionalBatchResponse
		require.NoError(t, json.Unmarshal(execCall(t, hc, request), &resp))
		assert.False(t, resp.ConditionsMet)
		require.NotNil(t, resp.FailedConditionIndex)
		assert.Equal(t, 1, *resp.FailedConditionIndex)
		_, ok := kv.Get("guard")
		assert.True(t, ok)
	})
}

func TestKvExecuteUnknownOp(t *testing.T) {
	hc := execContext(t, testutil.NewFakeKV())
	resp, err := hc.kvExecute()(context.Background(), []byte(`{"op":"compact"}`))
	require.NoError(t, err)
	_, err = abi.DecodeValue(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kv_execute op")
}

func TestKvExecuteDeniedWithoutAnyKvPermission(t *testing.T) {
	hc := NewHostContext(kvManifest(entities.Permissions{}), WithKeyValueStore(testutil.NewFakeKV()))
	resp, err := hc.kvExecute()(context.Background(), []byte(`{"op":"read","key":"k"}`))
	require.NoError(t, err)
	_, err = abi.DecodeValue(resp)
	require.Error(t, err)
}
