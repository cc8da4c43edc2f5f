package strata

import (
	"context"
	"testing"
	"time"
)

func newTestAnalyzer(t *testing.T, mutate func(*Config)) (*Analyzer, *FactStore, *EpisodeStore) {
	t.Helper()

	db := openTestDB(t)
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	if mutate != nil {
		mutate(&cfg)
	}

	facts := NewFactStore(db)
	episodes := NewEpisodeStore(db)
	a := NewAnalyzer(facts, episodes, NewDedupStore(db, cfg.DedupWindowDays), cfg)
	t.Cleanup(a.Close)
	return a, facts, episodes
}

func TestAnalyzer_StoresFactsAndEpisodes(t *testing.T) {
	a, facts, _ := newTestAnalyzer(t, nil)
	ctx := context.Background()

	result, err := a.Analyze(ctx, AnalyzeParams{
		ProjectID:     "proj",
		UserMessage:   "Our API endpoint is http://localhost:8002/mcp",
		AgentResponse: "Noted. Decision: keep using sqlite for local state",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.Partial {
		t.Errorf("unexpected partial result: %s", result.Message)
	}
	if result.FactsStored != 1 {
		t.Errorf("FactsStored = %d, want 1", result.FactsStored)
	}
	if result.EpisodesStored != 1 {
		t.Errorf("EpisodesStored = %d, want 1", result.EpisodesStored)
	}

	fact, err := facts.Get(ctx, "proj", ScopeProject, "extracted", "api_endpoint")
	if err != nil {
		t.Fatalf("stored fact not retrievable: %v", err)
	}
	if fact.Value != "http://localhost:8002/mcp" {
		t.Errorf("fact value = %q", fact.Value)
	}
}

func TestAnalyzer_ConfidenceFloorApplies(t *testing.T) {
	a, facts, _ := newTestAnalyzer(t, func(cfg *Config) {
		cfg.MinFactConfidence = 0.8
	})
	ctx := context.Background()

	result, err := a.Analyze(ctx, AnalyzeParams{
		ProjectID:   "proj",
		UserMessage: "Our db host is prod.internal. pool size defaults to 10",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.FactsStored != 1 {
		t.Fatalf("FactsStored = %d, want 1 (only the high-confidence phrasing)", result.FactsStored)
	}
	if _, err := facts.Get(ctx, "proj", ScopeProject, "extracted", "db_host"); err != nil {
		t.Errorf("high-confidence fact missing: %v", err)
	}
	if _, err := facts.Get(ctx, "proj", ScopeProject, "extracted", "pool_size"); err == nil {
		t.Error("low-confidence fact should not have been stored")
	}
}

func TestAnalyzer_SameDayRepeatIsDeduplicated(t *testing.T) {
	a, _, _ := newTestAnalyzer(t, nil)
	ctx := context.Background()

	params := AnalyzeParams{
		ProjectID:   "proj",
		UserMessage: "Our api endpoint is http://localhost:8002/mcp",
	}

	first, err := a.Analyze(ctx, params)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if first.FactsStored != 1 {
		t.Fatalf("first pass FactsStored = %d, want 1", first.FactsStored)
	}

	second, err := a.Analyze(ctx, params)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if second.FactsStored != 0 {
		t.Errorf("second pass FactsStored = %d, want 0", second.FactsStored)
	}
}

// TestAnalyzer_FailedWriteReleasesDedupSlot verifies that a candidate whose
// store write fails can still be stored by a later turn the same day.
func TestAnalyzer_FailedWriteReleasesDedupSlot(t *testing.T) {
	liveDB := openTestDB(t)
	deadDB := openTestDB(t)
	if err := deadDB.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	ctx := context.Background()
	params := AnalyzeParams{
		ProjectID:   "proj",
		UserMessage: "Our API endpoint is http://localhost:8002/mcp",
	}

	// Dedup accepts the candidate, then the fact write fails.
	broken := NewAnalyzer(NewFactStore(deadDB), NewEpisodeStore(deadDB), NewDedupStore(liveDB, cfg.DedupWindowDays), cfg)
	defer broken.Close()

	result, err := broken.Analyze(ctx, params)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !result.Partial {
		t.Error("expected partial result when the write fails")
	}
	if result.FactsStored != 0 {
		t.Errorf("FactsStored = %d, want 0", result.FactsStored)
	}

	// The same identity must not be treated as a same-day duplicate.
	working := NewAnalyzer(NewFactStore(liveDB), NewEpisodeStore(liveDB), NewDedupStore(liveDB, cfg.DedupWindowDays), cfg)
	defer working.Close()

	result, err = working.Analyze(ctx, params)
	if err != nil {
		t.Fatalf("retry Analyze failed: %v", err)
	}
	if result.FactsStored != 1 {
		t.Errorf("FactsStored after retry = %d, want 1", result.FactsStored)
	}
}

func TestAnalyzer_BudgetGate(t *testing.T) {
	a, _, _ := newTestAnalyzer(t, func(cfg *Config) {
		cfg.DailyTokenBudget = 3
	})

	result, err := a.Analyze(context.Background(), AnalyzeParams{
		ProjectID:   "proj",
		UserMessage: "Our api endpoint is http://localhost:8002/mcp",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !result.Partial {
		t.Error("expected partial result when the budget is exhausted")
	}
	if result.Message == "" {
		t.Error("expected an explanatory message")
	}
	if result.FactsStored != 0 {
		t.Errorf("FactsStored = %d, want 0", result.FactsStored)
	}
}

func TestAnalyzer_EmptyInput(t *testing.T) {
	a, _, _ := newTestAnalyzer(t, nil)
	ctx := context.Background()

	for name, params := range map[string]AnalyzeParams{
		"no_project": {UserMessage: "Our api endpoint is http://x"},
		"no_text":    {ProjectID: "proj"},
	} {
		result, err := a.Analyze(ctx, params)
		if err != nil {
			t.Fatalf("%s: Analyze failed: %v", name, err)
		}
		if result.FactsStored != 0 || result.EpisodesStored != 0 || result.Partial {
			t.Errorf("%s: expected empty result, got %+v", name, result)
		}
	}
}

func TestAnalyzer_AsyncDrainsOnClose(t *testing.T) {
	db := openTestDB(t)
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()

	facts := NewFactStore(db)
	a := NewAnalyzer(facts, NewEpisodeStore(db), NewDedupStore(db, cfg.DedupWindowDays), cfg)

	a.AnalyzeAsync(AnalyzeParams{
		ProjectID:   "proj",
		UserMessage: "Our queue broker is nats.internal:4222",
	})
	a.Close()

	fact, err := facts.Get(context.Background(), "proj", ScopeProject, "extracted", "queue_broker")
	if err != nil {
		t.Fatalf("queued turn was not analyzed before Close returned: %v", err)
	}
	if fact.Value != "nats.internal:4222" {
		t.Errorf("fact value = %q", fact.Value)
	}

	// After Close, queuing is a no-op rather than a panic.
	a.AnalyzeAsync(AnalyzeParams{ProjectID: "proj", UserMessage: "Our region is us-east-1"})
}

func TestWorkBudget_ResetsAtMidnight(t *testing.T) {
	b := newWorkBudget(10)
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return day }

	if !b.allow(8) {
		t.Fatal("first spend should fit")
	}
	if b.allow(5) {
		t.Fatal("second spend should exceed the budget")
	}

	day = day.Add(2 * time.Hour)
	if !b.allow(5) {
		t.Error("budget should reset on the next calendar day")
	}
}
