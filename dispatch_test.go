package strata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestDispatcher(mutate func(*Config)) *Dispatcher {
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDispatcher(cfg)
}

func okHandler(payload any) ToolHandler {
	return func(_ context.Context, _ map[string]any) (*ToolResponse, error) {
		return &ToolResponse{Status: StatusOK, Payload: payload}, nil
	}
}

func errHandler(err error) ToolHandler {
	return func(_ context.Context, _ map[string]any) (*ToolResponse, error) {
		return nil, err
	}
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := newTestDispatcher(nil)

	resp := d.Dispatch(context.Background(), ToolRequest{Tool: "nope"})
	if resp.Status != StatusError {
		t.Errorf("status = %s, want error", resp.Status)
	}
	if !strings.Contains(resp.Message, ErrToolNotFound.Error()) || !strings.Contains(resp.Message, "nope") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestDispatcher_AllowList(t *testing.T) {
	d := newTestDispatcher(func(cfg *Config) {
		cfg.ToolAllowLists = map[string][]string{
			"editor": {"reader"},
		}
	})
	d.Register(ToolSpec{Name: "reader", Handler: okHandler("read")})
	d.Register(ToolSpec{Name: "writer", Handler: okHandler("wrote")})

	tests := []struct {
		name    string
		adapter string
		tool    string
		status  ToolStatus
	}{
		{"listed_tool_allowed", "editor", "reader", StatusOK},
		{"unlisted_tool_rejected", "editor", "writer", StatusError},
		{"unlisted_adapter_unrestricted", "other", "writer", StatusOK},
		{"empty_adapter_unrestricted", "", "writer", StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), ToolRequest{
				Tool:      tt.tool,
				AdapterID: tt.adapter,
			})
			if resp.Status != tt.status {
				t.Errorf("status = %s, want %s (message %q)", resp.Status, tt.status, resp.Message)
			}
		})
	}
}

func TestDispatcher_PanicBecomesError(t *testing.T) {
	d := newTestDispatcher(nil)
	d.Register(ToolSpec{Name: "boom", Handler: func(_ context.Context, _ map[string]any) (*ToolResponse, error) {
		panic("handler bug")
	}})

	resp := d.Dispatch(context.Background(), ToolRequest{Tool: "boom"})
	if resp.Status != StatusError {
		t.Errorf("status = %s, want error", resp.Status)
	}
	if !strings.Contains(resp.Message, "internal error") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestDispatcher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status ToolStatus
	}{
		{"validation_struct", &ValidationError{Field: "key", Message: "required"}, StatusError},
		{"validation_sentinel", ErrInvalidScope, StatusError},
		{"store_outage", &StoreError{Tier: TierFact, Op: "query", Err: ErrStoreClosed}, StatusPartial},
		{"budget", ErrBudgetExceeded, StatusPartial},
		{"timeout", context.DeadlineExceeded, StatusPartial},
		{"unexpected", errors.New("disk on fire"), StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(nil)
			d.Register(ToolSpec{Name: "t", Handler: errHandler(tt.err)})

			resp := d.Dispatch(context.Background(), ToolRequest{Tool: "t"})
			if resp.Status != tt.status {
				t.Errorf("status = %s, want %s (message %q)", resp.Status, tt.status, resp.Message)
			}
			if resp.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

// TestDispatcher_NotFoundIsEmptyAnswer verifies absent records come back as a
// successful empty response.
func TestDispatcher_NotFoundIsEmptyAnswer(t *testing.T) {
	d := newTestDispatcher(nil)
	d.Register(ToolSpec{Name: "lookup", Handler: errHandler(ErrNotFound)})

	resp := d.Dispatch(context.Background(), ToolRequest{Tool: "lookup"})
	if resp.Status != StatusOK {
		t.Errorf("status = %s, want ok", resp.Status)
	}
	if resp.Message != "not found" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Payload != nil {
		t.Errorf("payload = %v, want nil", resp.Payload)
	}
}

func TestDispatcher_TimeoutDegradesToPartial(t *testing.T) {
	d := newTestDispatcher(func(cfg *Config) {
		cfg.ToolTimeout = 20 * time.Millisecond
	})
	d.Register(ToolSpec{Name: "slow", Handler: func(ctx context.Context, _ map[string]any) (*ToolResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	resp := d.Dispatch(context.Background(), ToolRequest{Tool: "slow"})
	if resp.Status != StatusPartial {
		t.Errorf("status = %s, want partial (message %q)", resp.Status, resp.Message)
	}
}

func TestDispatcher_NilResponseBecomesOK(t *testing.T) {
	d := newTestDispatcher(nil)
	d.Register(ToolSpec{Name: "quiet", Handler: func(_ context.Context, _ map[string]any) (*ToolResponse, error) {
		return nil, nil
	}})

	resp := d.Dispatch(context.Background(), ToolRequest{Tool: "quiet"})
	if resp.Status != StatusOK {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}

func TestDispatcher_ToolsSorted(t *testing.T) {
	d := newTestDispatcher(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		d.Register(ToolSpec{Name: name, Handler: okHandler(nil)})
	}

	specs := d.Tools()
	if len(specs) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(specs))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if specs[i].Name != want {
			t.Errorf("position %d: %q, want %q", i, specs[i].Name, want)
		}
	}
}
