// Package storage provides persistence for conversations, messages,
// context summaries, and pinned documents.
//
// Three implementations are provided:
//   - PostgresStore on pgx/v5 (production)
//   - SQLStore on database/sql with lib/pq
//   - MemoryStore for tests and embedded use
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Conversation is the top-level unit of chat history. The message log is
// append-only; messages are never deleted except with the whole conversation.
type Conversation struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	TotalTokensUsed int       `json:"total_tokens_used"`
	IsArchived      bool      `json:"is_archived"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Message is a single entry in a conversation's ordered log.
// SequenceNum is strictly increasing and contiguous per conversation.
// Content and SequenceNum are immutable once written; only IsSummarized
// may later flip to true.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	SequenceNum    int       `json:"sequence_num"`
	TokenCount     int       `json:"token_count"`
	IsSummarized   bool      `json:"is_summarized"`
	ModelUsed      string    `json:"model_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary is a compressed record of a contiguous message range.
// Ranges across all summaries of a conversation are pairwise disjoint and
// monotonically increasing; summaries are never mutated after creation.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SummaryText    string    `json:"summary_text"`
	StartSeq       int       `json:"start_seq"`
	EndSeq         int       `json:"end_seq"`
	TokenCount     int       `json:"token_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// PinnedDocument attaches an external document to a conversation so its
// content is considered on every turn. Unpinning soft-deletes via Active.
type PinnedDocument struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	DocumentID     string    `json:"document_id"`
	SourceName     string    `json:"source_name"`
	DisplayName    string    `json:"display_name"`
	Path           string    `json:"path,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// AggregateStats holds per-conversation counters used for the context
// utilization indicator.
type AggregateStats struct {
	TotalMessages       int `json:"total_messages"`
	TotalTokens         int `json:"total_tokens"`
	SummarizedMessages  int `json:"summarized_messages"`
	UnsummarizedTokens  int `json:"unsummarized_tokens"`
	SummaryTokens       int `json:"summary_tokens"`
	SummaryCount        int `json:"summary_count"`
	PinnedDocumentCount int `json:"pinned_document_count"`
}

// Store defines the persistence interface for the conversation engine.
// All operations are scoped to a conversation ID.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, includeArchived bool) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, conversationID uuid.UUID) error
	UpdateConversationTitle(ctx context.Context, conversationID uuid.UUID, title string) error
	// ArchiveConversation hides a conversation from default listings
	// without deleting its history.
	ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error
	// AddConversationTokens increments the aggregate token counter and
	// touches updated_at.
	AddConversationTokens(ctx context.Context, conversationID uuid.UUID, tokens int) error

	// Message operations. AppendMessage assigns the next sequence number
	// atomically; callers must serialize writers per conversation.
	AppendMessage(ctx context.Context, msg *Message) (*Message, error)
	GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error)
	GetUnsummarizedMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
	UnsummarizedTokens(ctx context.Context, conversationID uuid.UUID) (int, error)

	// Summary operations. InsertSummary writes the summary row and flips
	// is_summarized on exactly the given messages in a single transaction;
	// partial application must never be observable.
	GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*Summary, error)
	InsertSummary(ctx context.Context, summary *Summary, messageIDs []uuid.UUID) error

	// Pinned document operations
	PinDocument(ctx context.Context, pin *PinnedDocument) (*PinnedDocument, error)
	UnpinDocument(ctx context.Context, pinID uuid.UUID) error
	GetActivePins(ctx context.Context, conversationID uuid.UUID) ([]*PinnedDocument, error)

	// AggregateStats returns the stored-state counters for a conversation.
	AggregateStats(ctx context.Context, conversationID uuid.UUID) (*AggregateStats, error)
}
