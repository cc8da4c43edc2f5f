package strata

import (
	"context"
	"log/slog"
	"sync"
)

// AdapterKind identifies which agent front-end an adapter integrates.
// The set is a fixed enum; the dispatch layer never inspects adapter types
// at runtime.
type AdapterKind string

const (
	AdapterClaudeCode AdapterKind = "claude-code"
	AdapterCursor     AdapterKind = "cursor"
	AdapterMCP        AdapterKind = "mcp"
	AdapterHTTP       AdapterKind = "http"
	AdapterGeneric    AdapterKind = "generic"
)

// Hooks is the optional lifecycle surface an agent adapter implements.
// Every method is best-effort: returned errors are logged at the adapter
// boundary and never propagate into the agent's call stack.
type Hooks interface {
	SessionStart(ctx context.Context, projectID string) error
	SessionEnd(ctx context.Context, projectID string) error
	BeforeToolCall(ctx context.Context, req *ToolRequest) error
	AfterToolCall(ctx context.Context, req *ToolRequest, resp *ToolResponse) error
	UserInput(ctx context.Context, projectID, message string) error
}

// NopHooks implements Hooks with no-ops. Adapters embed it and override only
// the events they care about.
type NopHooks struct{}

func (NopHooks) SessionStart(context.Context, string) error                       { return nil }
func (NopHooks) SessionEnd(context.Context, string) error                         { return nil }
func (NopHooks) BeforeToolCall(context.Context, *ToolRequest) error               { return nil }
func (NopHooks) AfterToolCall(context.Context, *ToolRequest, *ToolResponse) error { return nil }
func (NopHooks) UserInput(context.Context, string, string) error                  { return nil }

// Adapter pairs an adapter identity with its hooks.
type Adapter struct {
	ID    string
	Kind  AdapterKind
	Hooks Hooks
}

// AdapterRegistry holds registered adapters keyed by ID and fans lifecycle
// events out to them without ever letting a hook failure escape.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *slog.Logger
}

// NewAdapterRegistry creates an empty registry.
func NewAdapterRegistry(logger *slog.Logger) *AdapterRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdapterRegistry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds or replaces an adapter.
func (r *AdapterRegistry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Hooks == nil {
		a.Hooks = NopHooks{}
	}
	r.adapters[a.ID] = a
}

// Remove drops an adapter.
func (r *AdapterRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, id)
}

// Get returns an adapter by ID.
func (r *AdapterRegistry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

func (r *AdapterRegistry) each(fn func(Adapter)) {
	r.mu.RLock()
	snapshot := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		snapshot = append(snapshot, a)
	}
	r.mu.RUnlock()

	for _, a := range snapshot {
		fn(a)
	}
}

// fire runs one hook invocation, absorbing errors and panics.
func (r *AdapterRegistry) fire(adapterID, event string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("adapter hook panicked", "adapter", adapterID, "event", event, "panic", p)
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("adapter hook failed", "adapter", adapterID, "event", event, "error", err)
	}
}

// SessionStart notifies every adapter of a new session.
func (r *AdapterRegistry) SessionStart(ctx context.Context, projectID string) {
	r.each(func(a Adapter) {
		r.fire(a.ID, "session-start", func() error { return a.Hooks.SessionStart(ctx, projectID) })
	})
}

// SessionEnd notifies every adapter of a finished session.
func (r *AdapterRegistry) SessionEnd(ctx context.Context, projectID string) {
	r.each(func(a Adapter) {
		r.fire(a.ID, "session-end", func() error { return a.Hooks.SessionEnd(ctx, projectID) })
	})
}

// BeforeToolCall notifies every adapter before a tool runs.
func (r *AdapterRegistry) BeforeToolCall(ctx context.Context, req *ToolRequest) {
	r.each(func(a Adapter) {
		r.fire(a.ID, "before-tool-call", func() error { return a.Hooks.BeforeToolCall(ctx, req) })
	})
}

// AfterToolCall notifies every adapter after a tool ran.
func (r *AdapterRegistry) AfterToolCall(ctx context.Context, req *ToolRequest, resp *ToolResponse) {
	r.each(func(a Adapter) {
		r.fire(a.ID, "after-tool-call", func() error { return a.Hooks.AfterToolCall(ctx, req, resp) })
	})
}

// UserInput notifies every adapter of raw user input.
func (r *AdapterRegistry) UserInput(ctx context.Context, projectID, message string) {
	r.each(func(a Adapter) {
		r.fire(a.ID, "user-input", func() error { return a.Hooks.UserInput(ctx, projectID, message) })
	})
}
