package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hyperengineering/strata"
)

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := strata.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.Logger = logger

	engine, err := strata.New(cfg, strata.NewHashEmbedder(64))
	if err != nil {
		t.Fatalf("strata.New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return NewRouter(engine, apiKey, logger)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected an X-Request-ID header")
	}

	var health strata.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !health.Healthy {
		t.Errorf("health = %+v, want healthy", health)
	}
}

func TestRouter_ListTools(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodGet, "/v1/tools", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var tools []toolInfo
	if err := json.NewDecoder(rec.Body).Decode(&tools); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(tools) != 8 {
		t.Errorf("listed %d tools, want 8", len(tools))
	}
}

func TestRouter_ToolCallRoundTrip(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/tools/"+strata.ToolFactsAdd, map[string]any{
		"project_id": "demo",
		"key":        "api_endpoint",
		"value":      "http://localhost:8002/mcp",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("facts_add status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/tools/"+strata.ToolFactsList, map[string]any{
		"project_id": "demo",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("facts_list status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Status  strata.ToolStatus `json:"status"`
		Payload []strata.Fact     `json:"payload"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != strata.StatusOK {
		t.Errorf("tool status = %s", resp.Status)
	}
	if len(resp.Payload) != 1 || resp.Payload[0].Key != "api_endpoint" {
		t.Errorf("payload = %+v", resp.Payload)
	}
}

// TestRouter_ToolErrorsStay200 verifies tool-level failures keep transport
// status 200; only an unroutable tool name is a 404.
func TestRouter_ToolErrorsStay200(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/tools/"+strata.ToolFactsAdd, map[string]any{
		"project_id": "demo",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a tool-level validation error", rec.Code)
	}

	var resp strata.ToolResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != strata.StatusError {
		t.Errorf("tool status = %s, want error", resp.Status)
	}
}

func TestRouter_UnknownToolIs404(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/tools/bogus", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_EmptyBodyIsAllowed(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/tools/"+strata.ToolFactsList, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp strata.ToolResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != strata.StatusError {
		t.Errorf("tool status = %s, want validation error for missing project", resp.Status)
	}
}

func TestRouter_MalformedBody(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/tools/"+strata.ToolFactsList, bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRouter_BearerAuth(t *testing.T) {
	router := newTestRouter(t, "sekrit")

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"healthz_is_open", "/healthz", nil, http.StatusOK},
		{"missing_token", "/v1/stats", nil, http.StatusUnauthorized},
		{"wrong_token", "/v1/stats", map[string]string{"Authorization": "Bearer wrong"}, http.StatusUnauthorized},
		{"right_token", "/v1/stats", map[string]string{"Authorization": "Bearer sekrit"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, tt.path, nil, tt.header)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRouter_Stats(t *testing.T) {
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodGet, "/v1/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats strata.EngineStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.Facts != 0 || stats.Episodes != 0 || stats.Chunks != 0 {
		t.Errorf("stats = %+v, want zeros on a fresh store", stats)
	}
}
