package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer counts tokens with a tiktoken BPE encoding.
// The zero value is not usable; construct with NewTiktokenTokenizer.
type TiktokenTokenizer struct {
	encoder *tiktoken.Tiktoken
}

// NewTiktokenTokenizer creates a tokenizer for the given encoding name,
// e.g. "cl100k_base".
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoder: encoder}, nil
}

// NewDefaultTokenizer creates the cl100k_base tokenizer, falling back to
// gpt2 if the primary encoding cannot be loaded.
func NewDefaultTokenizer() (*TiktokenTokenizer, error) {
	tok, err := NewTiktokenTokenizer("cl100k_base")
	if err == nil {
		return tok, nil
	}
	return NewTiktokenTokenizer("gpt2")
}

// CountTokens implements Tokenizer.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoder.Encode(text, nil, nil))
}

// EstimateTokenizer approximates token counts from character length at
// roughly four characters per token. It needs no vocabulary files and is
// used as a fallback and in tests. Any non-empty string counts as at
// least one token.
type EstimateTokenizer struct{}

// CountTokens implements Tokenizer.
func (EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
