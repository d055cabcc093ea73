package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SQLStore implements Store on database/sql. It targets PostgreSQL via
// lib/pq and shares the schema with PostgresStore; use it when the host
// application already manages a *sql.DB.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a Store backed by the given database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates all tables if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
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
	if _, err := s.db.ExecContext(ctx, query, conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	query := `
		SELECT id, title, total_tokens_used, is_archived, created_at, updated_at
		FROM convo_conversations
		WHERE id = $1
	`

	var conv Conversation
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&conv.ID,
		&conv.Title,
		&conv.TotalTokensUsed,
		&conv.IsArchived,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, includeArchived bool) ([]*Conversation, error) {
	query := `
		SELECT id, title, total_tokens_used, is_archived, created_at, updated_at
		FROM convo_conversations
		WHERE $1 OR NOT is_archived
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, includeArchived)
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

func (s *SQLStore) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM convo_conversations WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateConversationTitle(ctx context.Context, conversationID uuid.UUID, title string) error {
	query := `UPDATE convo_conversations SET title = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, conversationID, title); err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

func (s *SQLStore) ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	query := `UPDATE convo_conversations SET is_archived = TRUE WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, conversationID); err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) AddConversationTokens(ctx context.Context, conversationID uuid.UUID, tokens int) error {
	query := `
		UPDATE convo_conversations
		SET total_tokens_used = total_tokens_used + $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, tokens); err != nil {
		return fmt.Errorf("failed to update token counter: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

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
	err = tx.QueryRowContext(ctx, query,
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

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return &stored, nil
}

func (s *SQLStore) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, sequence_num, token_count, is_summarized, model_used, created_at
		FROM convo_messages
		WHERE conversation_id = $1
		ORDER BY sequence_num ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanSQLMessages(rows)
}

func (s *SQLStore) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM convo_messages WHERE conversation_id = $1`
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *SQLStore) GetUnsummarizedMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, sequence_num, token_count, is_summarized, model_used, created_at
		FROM convo_messages
		WHERE conversation_id = $1 AND NOT is_summarized
		ORDER BY sequence_num ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsummarized messages: %w", err)
	}
	defer rows.Close()

	return scanSQLMessages(rows)
}

func (s *SQLStore) UnsummarizedTokens(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(token_count), 0)
		FROM convo_messages
		WHERE conversation_id = $1 AND NOT is_summarized
	`
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum unsummarized tokens: %w", err)
	}
	return total, nil
}

func (s *SQLStore) GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*Summary, error) {
	query := `
		SELECT id, conversation_id, summary_text, start_seq, end_seq, token_count, created_at
		FROM convo_summaries
		WHERE conversation_id = $1
		ORDER BY start_seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
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

func (s *SQLStore) InsertSummary(ctx context.Context, summary *Summary, messageIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

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
	_, err = tx.ExecContext(ctx, insert,
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

	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = id.String()
	}
	flip := `UPDATE convo_messages SET is_summarized = TRUE WHERE id = ANY($1)`
	if _, err := tx.ExecContext(ctx, flip, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to flag summarized messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}
	return nil
}

func (s *SQLStore) PinDocument(ctx context.Context, pin *PinnedDocument) (*PinnedDocument, error) {
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
	_, err := s.db.ExecContext(ctx, query,
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

func (s *SQLStore) UnpinDocument(ctx context.Context, pinID uuid.UUID) error {
	query := `UPDATE convo_pinned_documents SET active = FALSE WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, pinID); err != nil {
		return fmt.Errorf("failed to unpin document: %w", err)
	}
	return nil
}

func (s *SQLStore) GetActivePins(ctx context.Context, conversationID uuid.UUID) ([]*PinnedDocument, error) {
	query := `
		SELECT id, conversation_id, document_id, source_name, display_name, path, active, created_at
		FROM convo_pinned_documents
		WHERE conversation_id = $1 AND active
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
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

func (s *SQLStore) AggregateStats(ctx context.Context, conversationID uuid.UUID) (*AggregateStats, error) {
	stats := &AggregateStats{}

	msgQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(token_count), 0),
		       COUNT(*) FILTER (WHERE is_summarized),
		       COALESCE(SUM(token_count) FILTER (WHERE NOT is_summarized), 0)
		FROM convo_messages
		WHERE conversation_id = $1
	`
	err := s.db.QueryRowContext(ctx, msgQuery, conversationID).Scan(
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
	if err := s.db.QueryRowContext(ctx, sumQuery, conversationID).Scan(&stats.SummaryCount, &stats.SummaryTokens); err != nil {
		return nil, fmt.Errorf("failed to aggregate summaries: %w", err)
	}

	pinQuery := `SELECT COUNT(*) FROM convo_pinned_documents WHERE conversation_id = $1 AND active`
	if err := s.db.QueryRowContext(ctx, pinQuery, conversationID).Scan(&stats.PinnedDocumentCount); err != nil {
		return nil, fmt.Errorf("failed to count pins: %w", err)
	}

	return stats, nil
}

func scanSQLMessages(rows *sql.Rows) ([]*Message, error) {
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
