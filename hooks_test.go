package strata

import (
	"context"
	"errors"
	"testing"
)

// recordingHooks counts events and can be told to fail or panic.
type recordingHooks struct {
	NopHooks
	starts int
	ends   int
	inputs int
	fail   error
	panics bool
}

func (h *recordingHooks) SessionStart(context.Context, string) error {
	h.starts++
	if h.panics {
		panic("hook bug")
	}
	return h.fail
}

func (h *recordingHooks) SessionEnd(context.Context, string) error {
	h.ends++
	return h.fail
}

func (h *recordingHooks) UserInput(context.Context, string, string) error {
	h.inputs++
	return h.fail
}

func TestAdapterRegistry_FansOutToAllAdapters(t *testing.T) {
	r := NewAdapterRegistry(discardLogger())
	ctx := context.Background()

	a := &recordingHooks{}
	b := &recordingHooks{}
	r.Register(Adapter{ID: "a", Kind: AdapterMCP, Hooks: a})
	r.Register(Adapter{ID: "b", Kind: AdapterGeneric, Hooks: b})

	r.SessionStart(ctx, "proj")
	r.UserInput(ctx, "proj", "hello")
	r.SessionEnd(ctx, "proj")

	for name, h := range map[string]*recordingHooks{"a": a, "b": b} {
		if h.starts != 1 || h.inputs != 1 || h.ends != 1 {
			t.Errorf("adapter %s saw starts=%d inputs=%d ends=%d, want 1 each", name, h.starts, h.inputs, h.ends)
		}
	}
}

// TestAdapterRegistry_FailuresContained verifies a failing or panicking hook
// never stops the fan-out.
func TestAdapterRegistry_FailuresContained(t *testing.T) {
	r := NewAdapterRegistry(discardLogger())
	ctx := context.Background()

	bad := &recordingHooks{fail: errors.New("hook down"), panics: true}
	good := &recordingHooks{}
	r.Register(Adapter{ID: "bad", Hooks: bad})
	r.Register(Adapter{ID: "good", Hooks: good})

	r.SessionStart(ctx, "proj")
	r.SessionEnd(ctx, "proj")

	if good.starts != 1 || good.ends != 1 {
		t.Errorf("healthy adapter starved: starts=%d ends=%d", good.starts, good.ends)
	}
	if bad.starts != 1 {
		t.Errorf("failing adapter not invoked: starts=%d", bad.starts)
	}
}

func TestAdapterRegistry_RegisterAndRemove(t *testing.T) {
	r := NewAdapterRegistry(discardLogger())

	r.Register(Adapter{ID: "mcp", Kind: AdapterMCP})
	got, ok := r.Get("mcp")
	if !ok {
		t.Fatal("adapter not found after Register")
	}
	if got.Hooks == nil {
		t.Error("nil hooks should default to NopHooks")
	}

	h := &recordingHooks{}
	r.Register(Adapter{ID: "mcp", Kind: AdapterMCP, Hooks: h})
	r.SessionStart(context.Background(), "proj")
	if h.starts != 1 {
		t.Error("re-registering should replace the adapter")
	}

	r.Remove("mcp")
	if _, ok := r.Get("mcp"); ok {
		t.Error("adapter still present after Remove")
	}
	r.SessionEnd(context.Background(), "proj")
	if h.ends != 0 {
		t.Error("removed adapter still receives events")
	}
}
