package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/workspaced/convo/storage"
)

// fakeSearch serves canned chunks per collection and records queries.
type fakeSearch struct {
	mu      sync.Mutex
	chunks  map[string][]Chunk
	errs    map[string]error
	queries []string
}

func (f *fakeSearch) Query(ctx context.Context, collection, text string, topK int, filter map[string]string) ([]Chunk, error) {
	f.mu.Lock()
	f.queries = append(f.queries, collection)
	f.mu.Unlock()

	if err := f.errs[collection]; err != nil {
		return nil, err
	}
	chunks := f.chunks[collection]
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

func testRetrievalConfig() Config {
	return Config{
		Collections:            []string{"connector_github", "connector_dropbox", "connector_google_drive"},
		DevResourcesCollection: "connector_google_drive",
		RelevanceThreshold:     0.35,
		MaxResults:             8,
		ScaffoldTriggers:       []string{"how to implement", "code example"},
	}
}

func TestRAGChunksMergesAndSorts(t *testing.T) {
	search := &fakeSearch{
		chunks: map[string][]Chunk{
			"connector_github":       {{Text: "g1", Relevance: 0.9}, {Text: "g2", Relevance: 0.4}},
			"connector_dropbox":      {{Text: "d1", Relevance: 0.7}},
			"connector_google_drive": {{Text: "v1", Relevance: 0.5}},
		},
	}
	agg := NewAggregator(search, storage.NewMemoryStore(), testRetrievalConfig(), nil)

	got := agg.RAGChunks(context.Background(), "query")
	if len(got) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Relevance > got[i-1].Relevance {
			t.Errorf("chunks not sorted by relevance: %+v", got)
		}
	}
	if got[0].Text != "g1" {
		t.Errorf("expected most relevant chunk first, got %q", got[0].Text)
	}
}

func TestRAGChunksSkipsFailingCollection(t *testing.T) {
	// One of three collections fails; the other two still contribute.
	search := &fakeSearch{
		chunks: map[string][]Chunk{
			"connector_github":       {{Text: "g1", Relevance: 0.8}},
			"connector_google_drive": {{Text: "v1", Relevance: 0.6}},
		},
		errs: map[string]error{
			"connector_dropbox": errors.New("search backend unavailable"),
		},
	}
	agg := NewAggregator(search, storage.NewMemoryStore(), testRetrievalConfig(), nil)

	got := agg.RAGChunks(context.Background(), "query")
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks from the surviving collections, got %d", len(got))
	}
	if got[0].Text != "g1" || got[1].Text != "v1" {
		t.Errorf("unexpected chunks: %+v", got)
	}
}

func TestRAGChunksAppliesThreshold(t *testing.T) {
	search := &fakeSearch{
		chunks: map[string][]Chunk{
			"connector_github": {
				{Text: "relevant", Relevance: 0.5},
				{Text: "borderline", Relevance: 0.35},
				{Text: "noise", Relevance: 0.1},
			},
		},
	}
	cfg := testRetrievalConfig()
	cfg.Collections = []string{"connector_github"}
	agg := NewAggregator(search, storage.NewMemoryStore(), cfg, nil)

	got := agg.RAGChunks(context.Background(), "query")
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks at or above threshold, got %d", len(got))
	}
	for _, c := range got {
		if c.Relevance < 0.35 {
			t.Errorf("chunk below threshold included: %+v", c)
		}
	}
}

func TestRAGChunksCapsResults(t *testing.T) {
	var many []Chunk
	for i := 0; i < 20; i++ {
		many = append(many, Chunk{Text: fmt.Sprintf("c%d", i), Relevance: 0.9})
	}
	search := &fakeSearch{chunks: map[string][]Chunk{"connector_github": many}}

	cfg := testRetrievalConfig()
	cfg.Collections = []string{"connector_github"}
	cfg.MaxResults = 5
	agg := NewAggregator(search, storage.NewMemoryStore(), cfg, nil)

	got := agg.RAGChunks(context.Background(), "query")
	if len(got) != 5 {
		t.Errorf("expected results capped at 5, got %d", len(got))
	}
}

func TestPinnedChunksFormatsAndCaps(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	for i := 0; i < 4; i++ {
		if _, err := store.PinDocument(ctx, &storage.PinnedDocument{
			ConversationID: conv.ID,
			DocumentID:     fmt.Sprintf("doc-%d", i),
			SourceName:     "google_drive",
			DisplayName:    fmt.Sprintf("Design Doc %d", i),
		}); err != nil {
			t.Fatalf("PinDocument: %v", err)
		}
	}

	search := &fakeSearch{
		chunks: map[string][]Chunk{
			"connector_google_drive": {
				{Text: "chunk a", Relevance: 0.9},
				{Text: "chunk b", Relevance: 0.8},
				{Text: "chunk c", Relevance: 0.7},
				{Text: "chunk d", Relevance: 0.6},
			},
		},
	}
	agg := NewAggregator(search, store, testRetrievalConfig(), nil)

	chunks, err := agg.PinnedChunks(ctx, conv.ID)
	if err != nil {
		t.Fatalf("PinnedChunks: %v", err)
	}

	// 4 pins * 4 chunks each would be 16; the combined cap is 12.
	if len(chunks) != PinMaxChunks {
		t.Errorf("expected %d chunks after cap, got %d", PinMaxChunks, len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "[Design Doc 0]: ") {
		t.Errorf("unexpected chunk format: %q", chunks[0])
	}
}

func TestPinnedChunksSkipsFailingPin(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	_, _ = store.PinDocument(ctx, &storage.PinnedDocument{
		ConversationID: conv.ID, DocumentID: "d1", SourceName: "github", DisplayName: "Broken",
	})
	_, _ = store.PinDocument(ctx, &storage.PinnedDocument{
		ConversationID: conv.ID, DocumentID: "d2", SourceName: "dropbox", DisplayName: "Working",
	})

	search := &fakeSearch{
		chunks: map[string][]Chunk{
			"connector_dropbox": {{Text: "content", Relevance: 0.9}},
		},
		errs: map[string]error{
			"connector_github": errors.New("index missing"),
		},
	}
	agg := NewAggregator(search, store, testRetrievalConfig(), nil)

	chunks, err := agg.PinnedChunks(ctx, conv.ID)
	if err != nil {
		t.Fatalf("PinnedChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "[Working]: content" {
		t.Errorf("expected only the working pin's chunk, got %v", chunks)
	}
}

func TestPinnedChunksIgnoresInactivePins(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	pin, _ := store.PinDocument(ctx, &storage.PinnedDocument{
		ConversationID: conv.ID, DocumentID: "d1", SourceName: "github", DisplayName: "Doc",
	})
	if err := store.UnpinDocument(ctx, pin.ID); err != nil {
		t.Fatalf("UnpinDocument: %v", err)
	}

	search := &fakeSearch{chunks: map[string][]Chunk{
		"connector_github": {{Text: "content", Relevance: 0.9}},
	}}
	agg := NewAggregator(search, store, testRetrievalConfig(), nil)

	chunks, err := agg.PinnedChunks(ctx, conv.ID)
	if err != nil {
		t.Fatalf("PinnedChunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for unpinned document, got %v", chunks)
	}
}

func TestScaffoldChunksQueriesDevResources(t *testing.T) {
	search := &fakeSearch{
		chunks: map[string][]Chunk{
			"connector_google_drive": {{Text: "scaffold doc", Relevance: 0.8}},
		},
	}
	agg := NewAggregator(search, storage.NewMemoryStore(), testRetrievalConfig(), nil)

	got := agg.ScaffoldChunks(context.Background(), "rate limiting")
	if len(got) != 1 || got[0].Text != "scaffold doc" {
		t.Errorf("unexpected scaffold chunks: %+v", got)
	}
	if got[0].Collection != "connector_google_drive" {
		t.Errorf("scaffold chunk not tagged with collection: %+v", got[0])
	}
}
