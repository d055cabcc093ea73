// Package elastic provides an Elasticsearch-backed implementation of
// retrieval.SemanticSearch. Each collection maps to one index; hit scores
// are normalized against the query's max score to produce relevance
// values in (0,1].
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/workspaced/convo/retrieval"
)

// Search implements retrieval.SemanticSearch on an Elasticsearch cluster.
type Search struct {
	client *elasticsearch.Client

	// indexPrefix is prepended to collection names to form index names.
	indexPrefix string
}

// New creates a Search over the given client. indexPrefix may be empty.
func New(client *elasticsearch.Client, indexPrefix string) *Search {
	return &Search{client: client, indexPrefix: indexPrefix}
}

type searchHit struct {
	Score  float64 `json:"_score"`
	Source struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
	} `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		MaxScore float64     `json:"max_score"`
		Hits     []searchHit `json:"hits"`
	} `json:"hits"`
}

// Query implements retrieval.SemanticSearch.
func (s *Search) Query(ctx context.Context, collection, text string, topK int, filter map[string]string) ([]retrieval.Chunk, error) {
	index := s.indexPrefix + collection

	query := map[string]any{
		"size": topK,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"match": map[string]any{
						"text": text,
					},
				},
			},
		},
	}
	if len(filter) > 0 {
		var terms []map[string]any
		for field, value := range filter {
			terms = append(terms, map[string]any{
				"term": map[string]any{"metadata." + field: value},
			})
		}
		query["query"].(map[string]any)["bool"].(map[string]any)["filter"] = terms
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed for index %s: %s", index, res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	maxScore := parsed.Hits.MaxScore
	chunks := make([]retrieval.Chunk, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		relevance := 0.0
		if maxScore > 0 {
			relevance = hit.Score / maxScore
		}
		chunks = append(chunks, retrieval.Chunk{
			Text:       hit.Source.Text,
			Relevance:  relevance,
			Metadata:   hit.Source.Metadata,
			Collection: collection,
		})
	}
	return chunks, nil
}
