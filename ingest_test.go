package strata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func newTestIngester(t *testing.T) (*Ingester, *ChunkStore) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	chunks := NewChunkStore()
	return NewIngester(chunks, NewHashEmbedder(64), cfg), chunks
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestIngester_SmallDocIsOneChunk(t *testing.T) {
	g, chunks := newTestIngester(t)

	result, err := g.Ingest(context.Background(), IngestParams{
		ProjectID: "proj",
		DocID:     "readme",
		Text:      "short architecture notes about the retrieval pipeline",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1", result.Chunks)
	}
	if result.Replaced {
		t.Error("first ingest should not report a replacement")
	}
	if got := chunks.Count("proj"); got != 1 {
		t.Errorf("store holds %d chunks, want 1", got)
	}
}

func TestIngester_LargeDocOverlappingWindows(t *testing.T) {
	g, _ := newTestIngester(t)

	// 500 words with size 256 and overlap 32 gives windows starting at
	// 0, 224, and 448.
	result, err := g.Ingest(context.Background(), IngestParams{
		ProjectID: "proj",
		DocID:     "guide",
		Text:      words(500),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", result.Chunks)
	}
}

func TestIngester_ReingestReplaces(t *testing.T) {
	g, chunks := newTestIngester(t)
	ctx := context.Background()

	if _, err := g.Ingest(ctx, IngestParams{ProjectID: "proj", DocID: "doc", Text: words(500)}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	result, err := g.Ingest(ctx, IngestParams{ProjectID: "proj", DocID: "doc", Text: "now much shorter"})
	if err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if !result.Replaced {
		t.Error("expected replacement on re-ingest")
	}
	if got := chunks.Count("proj"); got != 1 {
		t.Errorf("store holds %d chunks after replacement, want 1", got)
	}
}

func TestIngester_Validation(t *testing.T) {
	g, _ := newTestIngester(t)
	ctx := context.Background()

	if _, err := g.Ingest(ctx, IngestParams{DocID: "doc", Text: "x"}); err == nil {
		t.Error("expected error for missing project")
	}
	if _, err := g.Ingest(ctx, IngestParams{ProjectID: "proj", Text: "x"}); err == nil {
		t.Error("expected error for missing doc id")
	}
	if _, err := g.Ingest(ctx, IngestParams{ProjectID: "proj", DocID: "doc", Text: "   "}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestIngester_EmbedFailureAbortsWholeDoc(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	chunks := NewChunkStore()
	embedder := &stubEmbedder{vectors: map[string][]float32{}}
	g := NewIngester(chunks, embedder, cfg)
	ctx := context.Background()

	if _, err := g.Ingest(ctx, IngestParams{ProjectID: "proj", DocID: "doc", Text: "unknown text"}); err == nil {
		t.Fatal("expected embedding failure to propagate")
	}
	if got := chunks.Count("proj"); got != 0 {
		t.Errorf("store holds %d chunks after failed ingest, want 0", got)
	}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		size    int
		overlap int
		want    int
	}{
		{"empty", "   ", 4, 1, 0},
		{"fits_one_window", "a b c", 4, 1, 1},
		{"exact_multiple", words(8), 4, 0, 2},
		{"overlapping", words(10), 4, 2, 4},
		{"zero_size_defaults", words(10), 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkText(tt.input, tt.size, tt.overlap)
			if len(got) != tt.want {
				t.Errorf("chunkText produced %d chunks, want %d: %q", len(got), tt.want, got)
			}
		})
	}
}

func TestChunkText_OverlapSharesWords(t *testing.T) {
	got := chunkText(words(6), 4, 2)
	if len(got) < 2 {
		t.Fatalf("expected at least 2 chunks, got %q", got)
	}

	first := strings.Fields(got[0])
	second := strings.Fields(got[1])
	if first[2] != second[0] || first[3] != second[1] {
		t.Errorf("expected 2-word overlap between %q and %q", got[0], got[1])
	}
}
