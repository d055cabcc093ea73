package retrieval

import (
	"testing"

	"github.com/workspaced/convo/storage"
)

func TestDetectDevScaffold(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.ScaffoldTriggers = []string{
		"how to implement",
		"documentation for",
		"code example",
	}
	agg := NewAggregator(&fakeSearch{}, storage.NewMemoryStore(), cfg, nil)

	tests := []struct {
		name      string
		message   string
		wantTopic string
		wantHit   bool
	}{
		{
			name:      "simple trigger",
			message:   "how to implement rate limiting?",
			wantTopic: "rate limiting",
			wantHit:   true,
		},
		{
			name:      "trigger mid-sentence",
			message:   "I was wondering how to implement connection pooling.",
			wantTopic: "connection pooling",
			wantHit:   true,
		},
		{
			name:      "case insensitive match, original case topic",
			message:   "How To Implement OAuth flows?!",
			wantTopic: "OAuth flows",
			wantHit:   true,
		},
		{
			name:      "trailing punctuation stripped",
			message:   "code example for retries, please... kidding: code example retries?.,!",
			wantTopic: "for retries, please... kidding: code example retries",
			wantHit:   true,
		},
		{
			name:    "no trigger",
			message: "what is the weather today",
			wantHit: false,
		},
		{
			name:    "trigger with empty topic",
			message: "how to implement?",
			wantHit: false,
		},
		{
			name:    "empty message",
			message: "",
			wantHit: false,
		},
		{
			// The scan follows configuration order: "how to implement"
			// is checked first even though "code example" occurs
			// earlier in the text.
			name:      "configuration order wins over textual order",
			message:   "code example first, but how to implement caching",
			wantTopic: "caching",
			wantHit:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, hit := agg.DetectDevScaffold(tt.message)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", topic, tt.wantTopic)
			}
		})
	}
}
