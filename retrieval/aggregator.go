package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/workspaced/convo/storage"
)

// Aggregator merges pinned-document and semantic-search results under the
// configured relevance threshold and size caps.
type Aggregator struct {
	search SemanticSearch
	store  storage.Store
	cfg    Config
	logger Logger
}

// NewAggregator creates an Aggregator. A nil logger disables logging.
func NewAggregator(search SemanticSearch, store storage.Store, cfg Config, logger Logger) *Aggregator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Aggregator{
		search: search,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// PinnedChunks returns formatted text chunks for every active pinned
// document of the conversation: the top PinTopK chunks per pin, filtered
// to that document, capped at PinMaxChunks combined. A failing pin query
// is skipped; the remaining pins still contribute.
func (a *Aggregator) PinnedChunks(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	pins, err := a.store.GetActivePins(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pins: %w", err)
	}

	var chunks []string
	for _, pin := range pins {
		collection := "connector_" + pin.SourceName
		results, err := a.search.Query(ctx, collection, pin.DisplayName, PinTopK, map[string]string{
			"source_id": pin.DocumentID,
		})
		if err != nil {
			a.logger.Warn("pinned document query failed",
				"collection", collection, "document", pin.DocumentID, "error", err)
			continue
		}
		for _, r := range results {
			chunks = append(chunks, fmt.Sprintf("[%s]: %s", pin.DisplayName, r.Text))
		}
	}

	if len(chunks) > PinMaxChunks {
		chunks = chunks[:PinMaxChunks]
	}
	return chunks, nil
}

// RAGChunks fans the query out across every configured collection
// concurrently, merges the results, discards chunks below the relevance
// threshold, sorts descending by relevance, and caps at MaxResults. A
// single failing collection is skipped; the others still contribute.
func (a *Aggregator) RAGChunks(ctx context.Context, query string) []Chunk {
	results := make([][]Chunk, len(a.cfg.Collections))

	var wg sync.WaitGroup
	wg.Add(len(a.cfg.Collections))
	for i, collection := range a.cfg.Collections {
		go func(idx int, name string) {
			defer wg.Done()
			chunks, err := a.search.Query(ctx, name, query, a.cfg.MaxResults, nil)
			if err != nil {
				a.logger.Warn("collection query failed", "collection", name, "error", err)
				return
			}
			for j := range chunks {
				chunks[j].Collection = name
			}
			results[idx] = chunks
		}(i, collection)
	}
	wg.Wait()

	var merged []Chunk
	for _, chunks := range results {
		for _, c := range chunks {
			if c.Relevance >= a.cfg.RelevanceThreshold {
				merged = append(merged, c)
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Relevance > merged[j].Relevance
	})

	if len(merged) > a.cfg.MaxResults {
		merged = merged[:a.cfg.MaxResults]
	}
	return merged
}

// ScaffoldChunks issues the targeted dev-resources query for a detected
// scaffold topic. Failures yield an empty result.
func (a *Aggregator) ScaffoldChunks(ctx context.Context, topic string) []Chunk {
	if a.cfg.DevResourcesCollection == "" {
		return nil
	}
	chunks, err := a.search.Query(ctx, a.cfg.DevResourcesCollection, topic, PinTopK, nil)
	if err != nil {
		a.logger.Warn("dev-resources query failed", "topic", topic, "error", err)
		return nil
	}
	for i := range chunks {
		chunks[i].Collection = a.cfg.DevResourcesCollection
	}
	return chunks
}
