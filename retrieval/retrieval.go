// Package retrieval merges pinned-document and semantic-search results
// into the set of context chunks offered to the window builder, and
// detects dev-scaffold triggers in user messages.
package retrieval

import (
	"context"
	"fmt"
)

// Chunk is an ephemeral retrieved knowledge fragment. Relevance is in
// [0,1]; chunks below the configured threshold are discarded.
type Chunk struct {
	Text       string            `json:"text"`
	Relevance  float64           `json:"relevance"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Collection string            `json:"collection,omitempty"`
}

// SemanticSearch is the knowledge-retrieval collaborator. Query searches
// one collection for the top-k chunks most relevant to text, optionally
// restricted by metadata filters.
type SemanticSearch interface {
	Query(ctx context.Context, collection, text string, topK int, filter map[string]string) ([]Chunk, error)
}

// Logger is the minimal logging interface used by the aggregator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}

// Config holds retrieval behavior knobs.
type Config struct {
	// Collections are the knowledge collections fanned out to on every
	// RAG query.
	Collections []string

	// DevResourcesCollection receives the extra targeted query when a
	// dev-scaffold trigger fires.
	DevResourcesCollection string

	// RelevanceThreshold is the minimum relevance for a chunk to be
	// eligible for inclusion.
	RelevanceThreshold float64

	// MaxResults caps the merged RAG result set.
	MaxResults int

	// ScaffoldTriggers is the ordered list of trigger phrases scanned for
	// dev-scaffold detection. Order matters: the first listed phrase
	// found in the message wins.
	ScaffoldTriggers []string
}

// Pinned-document retrieval limits: chunks fetched per pin and the cap on
// the combined result.
const (
	PinTopK      = 4
	PinMaxChunks = 12
)

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance_threshold must be in [0,1], got %f", c.RelevanceThreshold)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.MaxResults)
	}
	return nil
}
