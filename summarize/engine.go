// Package summarize compresses older conversation history into chained
// summaries once unsummarized token usage crosses the configured trigger.
// Raw messages are never deleted; they are flagged is_summarized and
// replaced in future context windows by their summary.
package summarize

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/workspaced/convo/model"
	"github.com/workspaced/convo/storage"
	"github.com/workspaced/convo/tokens"
)

// ErrSummarizationFailed is returned when summary generation or
// persistence fails. No state is mutated; the next trigger check retries.
var ErrSummarizationFailed = errors.New("summarization failed")

// Logger is the minimal logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}

// Config holds summarization behavior knobs.
type Config struct {
	// TriggerTokens is the unsummarized-token threshold that triggers
	// summarization.
	TriggerTokens int

	// RecentKeep messages at the tail are never summarized.
	RecentKeep int

	// OverlapMessages widens the "enough material" requirement: at least
	// RecentKeep+OverlapMessages unsummarized messages must exist before
	// a summary is attempted.
	OverlapMessages int

	// Model is the summarizer model identifier. A cheaper model than the
	// chat model is the expected choice.
	Model string

	// MaxTokens bounds the summarizer's response length.
	MaxTokens int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TriggerTokens <= 0 {
		return fmt.Errorf("trigger_tokens must be positive, got %d", c.TriggerTokens)
	}
	if c.RecentKeep < 1 {
		return fmt.Errorf("recent_keep must be at least 1, got %d", c.RecentKeep)
	}
	if c.OverlapMessages < 0 {
		return fmt.Errorf("overlap_messages must be non-negative, got %d", c.OverlapMessages)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// Engine decides when to summarize and persists the result atomically.
type Engine struct {
	store  storage.Store
	chat   model.ChatModel
	acct   *tokens.Accountant
	cfg    Config
	logger Logger
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(store storage.Store, chat model.ChatModel, acct *tokens.Accountant, cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:  store,
		chat:   chat,
		acct:   acct,
		cfg:    cfg,
		logger: logger,
	}
}

// CheckAndSummarize summarizes older history if the trigger fires.
// It returns true only when a summary was created and persisted. The call
// is idempotent: with no new messages since the last run it is a no-op.
//
// Persistence is atomic: the summary row and the is_summarized flags are
// written in one transaction, so partial application is never observable.
// On any failure no state is mutated and the next check retries.
func (e *Engine) CheckAndSummarize(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	total, err := e.store.UnsummarizedTokens(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	if total < e.cfg.TriggerTokens {
		return false, nil
	}

	unsummarized, err := e.store.GetUnsummarizedMessages(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	if len(unsummarized) <= e.cfg.RecentKeep+e.cfg.OverlapMessages {
		return false, nil
	}

	toSummarize := unsummarized[:len(unsummarized)-e.cfg.RecentKeep]
	if len(toSummarize) == 0 {
		return false, nil
	}

	transcript := RenderTranscript(toSummarize)

	e.logger.Debug("requesting summary",
		"conversation_id", conversationID,
		"messages", len(toSummarize),
		"start_seq", toSummarize[0].SequenceNum,
		"end_seq", toSummarize[len(toSummarize)-1].SequenceNum)

	completion, err := e.chat.Complete(ctx, model.Request{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		Messages: []model.Message{
			{Role: string(storage.RoleSystem), Content: SystemPrompt},
			{Role: string(storage.RoleUser), Content: BuildUserPrompt(transcript)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	if completion.Content == "" {
		return false, fmt.Errorf("%w: empty response from summarizer", ErrSummarizationFailed)
	}

	summary := &storage.Summary{
		ConversationID: conversationID,
		SummaryText:    completion.Content,
		StartSeq:       toSummarize[0].SequenceNum,
		EndSeq:         toSummarize[len(toSummarize)-1].SequenceNum,
		TokenCount:     e.acct.CountTokens(completion.Content),
	}

	ids := make([]uuid.UUID, len(toSummarize))
	for i, msg := range toSummarize {
		ids[i] = msg.ID
	}

	if err := e.store.InsertSummary(ctx, summary, ids); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	e.logger.Info("summarized conversation segment",
		"conversation_id", conversationID,
		"start_seq", summary.StartSeq,
		"end_seq", summary.EndSeq,
		"summary_tokens", summary.TokenCount)
	return true, nil
}
