package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Schema contains the DDL for all tables used by the engine.
// Apply it once at deployment (or via your migration tooling).
const Schema = `
CREATE TABLE IF NOT EXISTS convo_conversations (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	total_tokens_used INTEGER NOT NULL DEFAULT 0,
	is_archived BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS convo_messages (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES convo_conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	sequence_num INTEGER NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	is_summarized BOOLEAN NOT NULL DEFAULT FALSE,
	model_used TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (conversation_id, sequence_num)
);

CREATE INDEX IF NOT EXISTS idx_convo_messages_conversation
	ON convo_messages(conversation_id, sequence_num);

CREATE TABLE IF NOT EXISTS convo_summaries (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES convo_conversations(id) ON DELETE CASCADE,
	summary_text TEXT NOT NULL,
	start_seq INTEGER NOT NULL,
	end_seq INTEGER NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convo_summaries_conversation
	ON convo_summaries(conversation_id, start_seq);

CREATE TABLE IF NOT EXISTS convo_pinned_documents (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES convo_conversations(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	source_name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convo_pins_conversation
	ON convo_pinned_documents(conversation_id) WHERE active;
`

// PostgresStore implements Store using a pgx/v5 connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates all tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO convo_conversations (id, title, total_tokens_used, is_archived, created_at, updated_at)
		VALUES ($1, $2, 0, FALSE, $3, $4)
	`

	if _, err := s.pool.Exec(ctx, query, conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	query := `
		SELECT id, title, total_tokens_used, is_archived, created_at, updated_at
		FROM convo_conversations
		WHERE id = $1
	`

	var conv Conversation
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(
		&conv.ID,
		&conv.Title,
		&conv.TotalTokensUsed,
		&conv.IsArchived,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, includeArchived bool) ([]*Conversation, error) {
	query := `
		SELECT id, title, total_tokens_used, is_archived, created_at, updated_at
		FROM convo_conversations
		WHERE $1 OR NOT is_archived
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, query, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.Title,
			&conv.TotalTokensUsed,
			&conv.IsArchived,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM convo_conversations WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateConversationTitle(ctx context.Context, conversationID uuid.UUID, title string) error {
	query := `UPDATE convo_conversations SET title = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, conversationID, title); err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

func (s *PostgresStore) ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	query := `UPDATE convo_conversations SET is_archived = TRUE WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddConversationTokens(ctx context.Context, conversationID uuid.UUID, tokens int) error {
	query := `
		UPDATE convo_conversations
		SET total_tokens_used = total_tokens_used + $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, conversationID, tokens); err != nil {
		return fmt.Errorf("failed to update token counter: %w", err)
	}
	return nil
}

// AppendMessage inserts a message with the next sequence number. The
// sequence assignment and insert run in one transaction; combined with
// per-conversation serialization in the service this keeps sequence
// numbers contiguous and unique.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stored := *msg
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO convo_messages
			(id, conversation_id, role, content, sequence_num, token_count, is_summarized, model_used, created_at)
		SELECT $1, $2, $3, $4,
			COALESCE(MAX(sequence_num), 0) + 1,
			$5, FALSE, $6, $7
		FROM convo_messages
		WHERE conversation_id = $2
		RETURNING sequence_num
	`

	err = tx.QueryRow(ctx, query,
		stored.ID,
		stored.ConversationID,
		string(stored.Role),
		stored.Content,
		stored.TokenCount,
		stored.ModelUsed,
		stored.CreatedAt,
	).Scan(&stored.SequenceNum)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return &stored, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, sequence_num, token_count, is_summarized, model_used, created_at
		FROM convo_messages
		WHERE conversation_id = $1
		ORDER BY sequence_num ASC
	`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresStore) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM convo_messages WHERE conversation_id = $1`
	if err := s.pool.QueryRow(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetUnsummarizedMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, sequence_num, token_count, is_summarized, model_used, created_at
		FROM convo_messages
		WHERE conversation_id = $1 AND NOT is_summarized
		ORDER BY sequence_num ASC
	`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsummarized messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresStore) UnsummarizedTokens(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(token_count), 0)
		FROM convo_messages
		WHERE conversation_id = $1 AND NOT is_summarized
	`
	if err := s.pool.QueryRow(ctx, query, conversationID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum unsummarized tokens: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*Summary, error) {
	query := `
		SELECT id, conversation_id, summary_text, start_seq, end_seq, token_count, created_at
		FROM convo_summaries
		WHERE conversation_id = $1
		ORDER BY start_seq ASC
	`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(
			&sum.ID,
			&sum.ConversationID,
			&sum.SummaryText,
			&sum.StartSeq,
			&sum.EndSeq,
			&sum.TokenCount,
			&sum.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}
	return summaries, nil
}

// InsertSummary writes the summary and flips is_summarized on the covered
// messages in a single transaction.
func (s *PostgresStore) InsertSummary(ctx context.Context, summary *Summary, messageIDs []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	insert := `
		INSERT INTO convo_summaries (id, conversation_id, summary_text, start_seq, end_seq, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, insert,
		summary.ID,
		summary.ConversationID,
		summary.SummaryText,
		summary.StartSeq,
		summary.EndSeq,
		summary.TokenCount,
		summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	flip := `UPDATE convo_messages SET is_summarized = TRUE WHERE id = ANY($1)`
	if _, err := tx.Exec(ctx, flip, messageIDs); err != nil {
		return fmt.Errorf("failed to flag summarized messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) PinDocument(ctx context.Context, pin *PinnedDocument) (*PinnedDocument, error) {
	stored := *pin
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Active = true

	query := `
		INSERT INTO convo_pinned_documents
			(id, conversation_id, document_id, source_name, display_name, path, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		stored.ID,
		stored.ConversationID,
		stored.DocumentID,
		stored.SourceName,
		stored.DisplayName,
		stored.Path,
		stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pin document: %w", err)
	}
	return &stored, nil
}

func (s *PostgresStore) UnpinDocument(ctx context.Context, pinID uuid.UUID) error {
	query := `UPDATE convo_pinned_documents SET active = FALSE WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, pinID); err != nil {
		return fmt.Errorf("failed to unpin document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActivePins(ctx context.Context, conversationID uuid.UUID) ([]*PinnedDocument, error) {
	query := `
		SELECT id, conversation_id, document_id, source_name, display_name, path, active, created_at
		FROM convo_pinned_documents
		WHERE conversation_id = $1 AND active
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	var pins []*PinnedDocument
	for rows.Next() {
		var pin PinnedDocument
		if err := rows.Scan(
			&pin.ID,
			&pin.ConversationID,
			&pin.DocumentID,
			&pin.SourceName,
			&pin.DisplayName,
			&pin.Path,
			&pin.Active,
			&pin.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pins = append(pins, &pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pins: %w", err)
	}
	return pins, nil
}

func (s *PostgresStore) AggregateStats(ctx context.Context, conversationID uuid.UUID) (*AggregateStats, error) {
	stats := &AggregateStats{}

	msgQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(token_count), 0),
		       COUNT(*) FILTER (WHERE is_summarized),
		       COALESCE(SUM(token_count) FILTER (WHERE NOT is_summarized), 0)
		FROM convo_messages
		WHERE conversation_id = $1
	`
	err := s.pool.QueryRow(ctx, msgQuery, conversationID).Scan(
		&stats.TotalMessages,
		&stats.TotalTokens,
		&stats.SummarizedMessages,
		&stats.UnsummarizedTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate messages: %w", err)
	}

	sumQuery := `
		SELECT COUNT(*), COALESCE(SUM(token_count), 0)
		FROM convo_summaries
		WHERE conversation_id = $1
	`
	if err := s.pool.QueryRow(ctx, sumQuery, conversationID).Scan(&stats.SummaryCount, &stats.SummaryTokens); err != nil {
		return nil, fmt.Errorf("failed to aggregate summaries: %w", err)
	}

	pinQuery := `SELECT COUNT(*) FROM convo_pinned_documents WHERE conversation_id = $1 AND active`
	if err := s.pool.QueryRow(ctx, pinQuery, conversationID).Scan(&stats.PinnedDocumentCount); err != nil {
		return nil, fmt.Errorf("failed to count pins: %w", err)
	}

	return stats, nil
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		var msg Message
		var role string
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&role,
			&msg.Content,
			&msg.SequenceNum,
			&msg.TokenCount,
			&msg.IsSummarized,
			&msg.ModelUsed,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = Role(role)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
