package testutil

import (
	"context"
	"sync"
	"time"
)

// GuestCall records one invocation of a guest export.
type GuestCall struct {
	Export string
	Input  []byte
}

// FakeGuest satisfies the sandbox guest caller surface without a WASM
// runtime. Responses and errors are canned per export name; every call is
// recorded.
type FakeGuest struct {
	mu        sync.Mutex
	calls     []GuestCall
	closed    bool
	IsPoison  bool
	Responses map[string][]byte
	Errs      map[string]error
	// Delay simulates a slow guest; applied to every call.
	Delay time.Duration
}

// NewFakeGuest returns an empty fake guest.
func NewFakeGuest() *FakeGuest {
	return &FakeGuest{
		Responses: make(map[string][]byte),
		Errs:      make(map[string]error),
	}
}

// Respond sets the canned response for an export.
func (g *FakeGuest) Respond(export string, response []byte) *FakeGuest {
	g.Responses[export] = response
	return g
}

func (g *FakeGuest) Call(ctx context.Context, export string, input []byte, timeout time.Duration) ([]byte, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	in := make([]byte, len(input))
	copy(in, input)
	g.calls = append(g.calls, GuestCall{Export: export, Input: in})
	g.mu.Unlock()

	if err, ok := g.Errs[export]; ok {
		return nil, err
	}
	return g.Responses[export], nil
}

func (g *FakeGuest) Poisoned() bool {
	return g.IsPoison
}

func (g *FakeGuest) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Closed reports whether Close was called.
func (g *FakeGuest) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Calls returns a copy of the recorded invocations.
func (g *FakeGuest) Calls() []GuestCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GuestCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsTo counts invocations of a specific export.
func (g *FakeGuest) CallsTo(export string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Export == export {
			n++
		}
	}
	return n
}
