package strata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ToolStatus is the outcome class of a dispatched tool call.
type ToolStatus string

const (
	StatusOK      ToolStatus = "ok"
	StatusError   ToolStatus = "error"
	StatusPartial ToolStatus = "partial"
)

// ToolRequest is the uniform call envelope every adapter sends.
type ToolRequest struct {
	Tool      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	AdapterID string         `json:"adapter_id,omitempty"`
}

// ToolResponse is the uniform reply envelope. Status partial means the
// backing engine degraded but the payload is still usable.
type ToolResponse struct {
	Status  ToolStatus `json:"status"`
	Payload any        `json:"payload,omitempty"`
	Message string     `json:"message,omitempty"`
}

// ToolHandler executes one tool. Handlers may return a response, an error,
// or both; the dispatcher folds errors into structured responses.
type ToolHandler func(ctx context.Context, args map[string]any) (*ToolResponse, error)

// ToolSpec describes a registered tool.
type ToolSpec struct {
	Name        string
	Description string
	Handler     ToolHandler `json:"-"`
}

// Dispatcher routes tool calls by name, enforces per-call timeouts and
// per-adapter allow-lists, and is the last line of defense: no failure of
// any kind escapes it as anything but a structured error response.
type Dispatcher struct {
	mu      sync.RWMutex
	tools   map[string]ToolSpec
	allow   map[string]map[string]struct{}
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	cfg = cfg.WithDefaults()

	allow := make(map[string]map[string]struct{}, len(cfg.ToolAllowLists))
	for adapter, names := range cfg.ToolAllowLists {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		allow[adapter] = set
	}

	return &Dispatcher{
		tools:   make(map[string]ToolSpec),
		allow:   allow,
		timeout: cfg.ToolTimeout,
		logger:  cfg.Logger,
	}
}

// Register adds or replaces a tool.
func (d *Dispatcher) Register(spec ToolSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[spec.Name] = spec
}

// Tools lists registered tools sorted by name.
func (d *Dispatcher) Tools() []ToolSpec {
	d.mu.RLock()
	defer d.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(d.tools))
	for _, spec := range d.tools {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Allowed reports whether an adapter may call a tool. Adapters without an
// allow-list entry may call everything.
func (d *Dispatcher) Allowed(adapterID, tool string) bool {
	if adapterID == "" {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.allow[adapterID]
	if !ok {
		return true
	}
	_, ok = set[tool]
	return ok
}

// Dispatch routes a request to its handler. It never returns an error; every
// failure mode becomes a structured response the calling agent can keep
// working with.
func (d *Dispatcher) Dispatch(ctx context.Context, req ToolRequest) *ToolResponse {
	d.mu.RLock()
	spec, ok := d.tools[req.Tool]
	d.mu.RUnlock()

	if !ok {
		return &ToolResponse{
			Status:  StatusError,
			Message: fmt.Sprintf("%v: %s", ErrToolNotFound, req.Tool),
		}
	}
	if !d.Allowed(req.AdapterID, req.Tool) {
		return &ToolResponse{
			Status:  StatusError,
			Message: fmt.Sprintf("%v: %s", ErrToolNotAllowed, req.Tool),
		}
	}

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.invoke(tctx, spec, req.Arguments)
	if err != nil {
		return d.classify(req.Tool, err)
	}
	if resp == nil {
		resp = &ToolResponse{Status: StatusOK}
	}
	return resp
}

// invoke runs the handler, converting panics into errors.
func (d *Dispatcher) invoke(ctx context.Context, spec ToolSpec, args map[string]any) (resp *ToolResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", "tool", spec.Name, "panic", r)
			resp = nil
			err = fmt.Errorf("internal error in %s", spec.Name)
		}
	}()
	return spec.Handler(ctx, args)
}

// classify maps the error taxonomy onto response statuses: store outages,
// timeouts, and budget exhaustion degrade to partial; validation and
// everything else is a hard error.
func (d *Dispatcher) classify(tool string, err error) *ToolResponse {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return &ToolResponse{Status: StatusError, Message: ve.Error()}
	case errors.Is(err, ErrInvalidConfidence),
		errors.Is(err, ErrInvalidScope),
		errors.Is(err, ErrInvalidLessonType),
		errors.Is(err, ErrEmptyKey),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrContentTooLong):
		return &ToolResponse{Status: StatusError, Message: err.Error()}
	case IsUnavailable(err),
		errors.Is(err, ErrBudgetExceeded),
		errors.Is(err, context.DeadlineExceeded):
		d.logger.Warn("tool degraded", "tool", tool, "error", err)
		return &ToolResponse{Status: StatusPartial, Message: err.Error()}
	case errors.Is(err, ErrNotFound):
		// Absent records are an empty answer, not a failure.
		return &ToolResponse{Status: StatusOK, Payload: nil, Message: "not found"}
	default:
		d.logger.Error("tool failed", "tool", tool, "error", err)
		return &ToolResponse{Status: StatusError, Message: err.Error()}
	}
}
