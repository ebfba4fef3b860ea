package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larch-dev/larch-host/domain/errors"
)

func stubHandle(invoke func(ctx context.Context, export string, input []byte) ([]byte, error)) *Handle {
	h := NewHandle("stub", nil, nil, nil)
	h.invoke = invoke
	return h
}

func TestCallReturnsGuestOutput(t *testing.T) {
	h := stubHandle(func(ctx context.Context, export string, input []byte) ([]byte, error) {
		assert.Equal(t, "handle_request", export)
		return append([]byte("echo:"), input...), nil
	})

	out, err := h.Call(context.Background(), "handle_request", []byte("hi"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:hi"), out)
}

func TestCallTimeoutAbandonsGuest(t *testing.T) {
	release := make(chan struct{})
	h := stubHandle(func(ctx context.Context, export string, input []byte) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})

	_, err := h.Call(context.Background(), "handle_request", nil, 20*time.Millisecond)
	var te *errors.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "handle_request", te.Operation)
	assert.True(t, te.Timeout())

	// The slot is still held by the abandoned call; a new call times out
	// waiting for it rather than entering the guest concurrently.
	_, err = h.Call(context.Background(), "plugin_health", nil, 20*time.Millisecond)
	require.ErrorAs(t, err, &te)

	// Once the stuck call returns, the handle is usable again.
	close(release)
	require.Eventually(t, func() bool {
		_, err := h.Call(context.Background(), "plugin_health", nil, 100*time.Millisecond)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestCallPanicPoisonsHandle(t *testing.T) {
	h := stubHandle(func(ctx context.Context, export string, input []byte) ([]byte, error) {
		panic("guest trap")
	})

	_, err := h.Call(context.Background(), "plugin_init", nil, time.Second)
	var gf *errors.GuestFaultError
	require.ErrorAs(t, err, &gf)
	assert.Contains(t, gf.Detail, "guest trap")
	assert.True(t, h.Poisoned())

	_, err = h.Call(context.Background(), "plugin_init", nil, time.Second)
	var se *errors.SandboxError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "poisoned")
}

func TestCallsAreSerialized(t *testing.T) {
	var mu sync.Mutex
	active := 0
	maxActive := 0
	h := stubHandle(func(ctx context.Context, export string, input []byte) ([]byte, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Call(context.Background(), "handle_request", nil, 2*time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestCallRespectsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := stubHandle(func(ctx context.Context, export string, input []byte) ([]byte, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := h.Call(ctx, "handle_request", nil, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
