// Package tokens provides deterministic token accounting for text and
// message lists. Counting is pure: identical input always yields the same
// count, which the window builder and the summarization trigger rely on.
package tokens

import (
	"crypto/sha256"
	"sync"

	"github.com/workspaced/convo/model"
)

// Per-message and per-conversation serialization overhead, in tokens.
// These match the chat-format tax applied by OpenAI-style model endpoints.
const (
	PerMessageOverhead   = 4
	ConversationOverhead = 2
)

// Tokenizer counts tokens in a piece of text.
type Tokenizer interface {
	CountTokens(text string) int
}

// Accountant counts tokens for text and message lists using an injected
// Tokenizer. Counts for repeated content are cached by content hash.
type Accountant struct {
	tokenizer Tokenizer

	mu    sync.Mutex
	cache map[[sha256.Size]byte]int
}

// NewAccountant creates an Accountant using the given tokenizer.
func NewAccountant(tokenizer Tokenizer) *Accountant {
	return &Accountant{
		tokenizer: tokenizer,
		cache:     make(map[[sha256.Size]byte]int),
	}
}

// CountTokens returns the token count of text.
func (a *Accountant) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	key := sha256.Sum256([]byte(text))

	a.mu.Lock()
	count, ok := a.cache[key]
	a.mu.Unlock()
	if ok {
		return count
	}

	count = a.tokenizer.CountTokens(text)

	a.mu.Lock()
	a.cache[key] = count
	a.mu.Unlock()
	return count
}

// CountMessageTokens returns the total token cost of a message list: the
// sum of per-message content counts plus the fixed per-message and
// conversation overheads.
func (a *Accountant) CountMessageTokens(messages []model.Message) int {
	total := 0
	for _, msg := range messages {
		total += a.CountTokens(msg.Content)
		total += PerMessageOverhead
	}
	total += ConversationOverhead
	return total
}
