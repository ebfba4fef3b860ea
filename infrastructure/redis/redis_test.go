package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
	"github.com/larch-dev/larch-host/domain/ports"
)

func newTestStore(t *testing.T) (*KVStore, *BlobStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewKVStore(client), NewBlobStore(client)
}

func TestReadMissingKeyIsNil(t *testing.T) {
	kv, _ := newTestStore(t)
	entry, err := kv.Read(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSetReadDelete(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()

	_, err := kv.Write(ctx, ports.SetRequest("k", []byte("v1")))
	require.NoError(t, err)

	entry, err := kv.Read(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("v1"), entry.Value)

	_, err = kv.Write(ctx, ports.DeleteRequest("k"))
	require.NoError(t, err)
	entry, err = kv.Read(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCompareAndSwap(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()

	// Expected nil means the key must not exist.
	_, err := kv.Write(ctx, ports.CompareAndSwapRequest("k", nil, []byte("v1")))
	require.NoError(t, err)

	_, err = kv.Write(ctx, ports.CompareAndSwapRequest("k", nil, []byte("v2")))
	var cm *domerrors.CompareMismatchError
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, []byte("v1"), cm.Actual)

	_, err = kv.Write(ctx, ports.CompareAndSwapRequest("k", []byte("v1"), []byte("v2")))
	require.NoError(t, err)
	entry, err := kv.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), entry.Value)

	_, err = kv.Write(ctx, ports.CompareAndSwapRequest("k", []byte("stale"), []byte("v3")))
	require.ErrorAs(t, err, &cm)
}

func TestCompareAndDelete(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	_, err := kv.Write(ctx, ports.SetRequest("k", []byte("v")))
	require.NoError(t, err)

	_, err = kv.Write(ctx, ports.CompareAndDeleteRequest("k", []byte("wrong")))
	var cm *domerrors.CompareMismatchError
	require.ErrorAs(t, err, &cm)

	_, err = kv.Write(ctx, ports.CompareAndDeleteRequest("k", []byte("v")))
	require.NoError(t, err)
	entry, err := kv.Read(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestBatch(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	_, err := kv.Write(ctx, ports.SetRequest("old", []byte("x")))
	require.NoError(t, err)

	result, err := kv.Write(ctx, ports.BatchRequest([]ports.BatchOp{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "old", Delete: true},
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, result.OperationsApplied)

	entry, err := kv.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), entry.Value)
	entry, err = kv.Read(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestConditionalBatch(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	_, err := kv.Write(ctx, ports.SetRequest("guard", []byte("ready")))
	require.NoError(t, err)

	t.Run("conditions hold", func(t *testing.T) {
		result, err := kv.Write(ctx, ports.ConditionalBatchRequest(
			[]ports.Condition{
				{Kind: ports.CondValueEquals, Key: "guard", Value: []byte("ready")},
				{Kind: ports.CondKeyNotExists, Key: "out"},
			},
			[]ports.BatchOp{{Key: "out", Value: []byte("done")}},
		))
		require.NoError(t, err)
		assert.True(t, result.ConditionsMet)
		assert.Equal(t, 1, result.OperationsApplied)
	})

	t.Run("condition fails with index", func(t *testing.T) {
		result, err := kv.Write(ctx, ports.ConditionalBatchRequest(
			[]ports.Condition{
				{Kind: ports.CondKeyExists, Key: "guard"},
				{Kind: ports.CondValueEquals, Key: "guard", Value: []byte("wrong")},
			},
			[]ports.BatchOp{{Key: "guard", Delete: true}},
		))
		require.NoError(t, err)
		assert.False(t, result.ConditionsMet)
		assert.Equal(t, 1, result.FailedConditionIndex)

		entry, err := kv.Read(ctx, "guard")
		require.NoError(t, err)
		require.NotNil(t, entry)
	})
}

func TestScan(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"p:a", "p:b", "p:c", "other"} {
		_, err := kv.Write(ctx, ports.SetRequest(k, []byte("v")))
		require.NoError(t, err)
	}

	result, err := kv.Scan(ctx, ports.ScanRequest{Prefix: "p:", Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, "p:a", result.Entries[0].Key)
	assert.False(t, result.Truncated)

	result, err = kv.Scan(ctx, ports.ScanRequest{Prefix: "p:", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.True(t, result.Truncated)
}

func TestBlobRoundTrip(t *testing.T) {
	_, blobs := newTestStore(t)
	ctx := context.Background()

	hash, err := blobs.AddBytes(ctx, []byte("module bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := blobs.Has(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := blobs.GetBytes(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("module bytes"), data)

	ok, err = blobs.Has(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = blobs.GetBytes(ctx, "deadbeef")
	require.Error(t, err)
}
