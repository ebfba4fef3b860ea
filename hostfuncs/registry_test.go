package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larch-dev/larch-host/abi"
	"github.com/larch-dev/larch-host/domain/entities"
	"github.com/larch-dev/larch-host/internal/testutil"
)

func TestRegistryDuplicateName(t *testing.T) {
	h := func(ctx context.Context, payload []byte) ([]byte, error) { return abi.OKString(""), nil }
	_, err := NewRegistry(
		WithByteHandler("a", h),
		WithByteHandler("a", h),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate handler name")
}

func TestRegistryUnknownFunction(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	resp, err := r.Invoke(context.Background(), "nope", nil)
	require.NoError(t, err)
	_, err = abi.DecodeValue(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown host function")
}

func TestRegistryMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(next ByteHandler) ByteHandler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				order = append(order, tag)
				return next(ctx, payload)
			}
		}
	}
	r, err := NewRegistry(
		WithMiddleware(mw("first"), mw("second")),
		WithByteHandler("noop", func(ctx context.Context, payload []byte) ([]byte, error) {
			order = append(order, "handler")
			return abi.OKString(""), nil
		}),
	)
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "noop", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	r, err := NewRegistry(
		WithMiddleware(PanicRecoveryMiddleware()),
		WithByteHandler("boom", func(ctx context.Context, payload []byte) ([]byte, error) {
			panic("kaboom")
		}),
	)
	require.NoError(t, err)

	resp, err := r.Invoke(context.Background(), "boom", nil)
	require.NoError(t, err)
	_, err = abi.DecodeValue(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Contains(t, err.Error(), "boom")
}

func TestBuildRegistryConditionalExports(t *testing.T) {
	manifest := kvManifest(entities.AllPermissions())

	t.Run("base surface without optional collaborators", func(t *testing.T) {
		hc := NewHostContext(manifest, WithKeyValueStore(testutil.NewFakeKV()))
		r, err := hc.BuildRegistry()
		require.NoError(t, err)

		for _, name := range []string{
			"log_info", "log_debug", "log_warn",
			"kv_get", "kv_put", "kv_delete", "kv_cas", "kv_scan", "kv_batch", "kv_execute",
			"blob_has", "blob_get", "blob_put",
			"sign", "verify", "public_key_hex",
			"schedule_timer", "cancel_timer",
			"hook_subscribe", "hook_unsubscribe",
		} {
			assert.True(t, r.Has(name), "expected %s to be registered", name)
		}
		for _, name := range []string{"hook_list", "hook_metrics", "hook_trigger", "sql_query", "service_execute"} {
			assert.False(t, r.Has(name), "expected %s to be absent", name)
		}
	})

	t.Run("collaborators unlock their exports", func(t *testing.T) {
		hc := NewHostContext(manifest,
			WithKeyValueStore(testutil.NewFakeKV()),
			WithHookService(&testutil.FakeHookService{IsEnabled: true}),
			WithSQLExecutor(&testutil.FakeSQL{}),
			WithServiceExecutor(&testutil.FakeService{ServiceName: "docs"}),
		)
		r, err := hc.BuildRegistry()
		require.NoError(t, err)
		for _, name := range []string{"hook_list", "hook_metrics", "hook_trigger", "sql_query", "service_execute"} {
			assert.True(t, r.Has(name), "expected %s to be registered", name)
		}
	})
}
