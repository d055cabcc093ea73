package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workspaced/convo/hooks"
	"github.com/workspaced/convo/model"
	"github.com/workspaced/convo/orchestrate"
	"github.com/workspaced/convo/retrieval"
	"github.com/workspaced/convo/storage"
	"github.com/workspaced/convo/streaming"
	"github.com/workspaced/convo/summarize"
	"github.com/workspaced/convo/tokens"
	"github.com/workspaced/convo/tool"
	"github.com/workspaced/convo/tool/builtin"
	"github.com/workspaced/convo/window"
)

const (
	autoTitleMaxChars = 80
	streamBuffer      = 64
)

// ContextStats reports a conversation's stored context state for the
// utilization indicator.
type ContextStats struct {
	TotalMessages      int           `json:"total_messages"`
	TotalStoredTokens  int           `json:"total_stored_tokens"`
	SummarizedMessages int           `json:"summarized_messages"`
	SummaryTokens      int           `json:"summary_tokens"`
	ActiveTokens       int           `json:"active_tokens"`
	MaxContextTokens   int           `json:"max_context_tokens"`
	UtilizationPercent float64       `json:"utilization_percent"`
	Status             window.Status `json:"status"`
}

// Service is the conversation pipeline. It owns message persistence,
// retrieval, window building, the tool-call round, and summarization for
// a set of conversations.
//
// Construct one Service per process and share it; there are no package
// singletons.
type Service struct {
	cfg    Config
	store  storage.Store
	chat   model.ChatModel
	logger Logger
	hooks  *hooks.Registry

	acct         *tokens.Accountant
	builder      *window.Builder
	summarizer   *summarize.Engine
	aggregator   *retrieval.Aggregator
	registry     *tool.Registry
	executor     *tool.Executor
	orchestrator *orchestrate.Orchestrator

	// locks serializes SendMessage per conversation. Sequence assignment
	// and summarization read-then-write conversation state and are not
	// safe under concurrent writers.
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// New creates a Service. The store and chat model are required; retrieval,
// tools, and hooks are wired through options.
func New(store storage.Store, chat model.ChatModel, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: chat model is required", ErrInvalidConfig)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{toolTimeout: time.Duration(cfg.ToolTimeout)}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	logger := options.logger
	if logger == nil {
		logger = noopLogger{}
	}

	tokenizer := options.tokenizer
	if tokenizer == nil {
		tk, err := tokens.NewDefaultTokenizer()
		if err != nil {
			logger.Warn("tiktoken unavailable, using character estimate", "error", err)
			tokenizer = tokens.EstimateTokenizer{}
		} else {
			tokenizer = tk
		}
	}
	acct := tokens.NewAccountant(tokenizer)

	registry := tool.NewRegistry()
	if options.codeExecutor != nil {
		if err := registry.Register(builtin.NewExecuteCode(options.codeExecutor)); err != nil {
			return nil, err
		}
	}
	if options.imageGenerator != nil {
		if err := registry.Register(builtin.NewGenerateImage(options.imageGenerator)); err != nil {
			return nil, err
		}
	}
	for _, t := range options.tools {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	executor := tool.NewExecutor(registry)
	executor.SetTimeout(options.toolTimeout)

	s := &Service{
		cfg:      cfg,
		store:    store,
		chat:     chat,
		logger:   logger,
		hooks:    options.hooks,
		acct:     acct,
		registry: registry,
		executor: executor,
	}

	s.builder = window.NewBuilder(store, acct, cfg.windowConfig())
	s.summarizer = summarize.NewEngine(store, chat, acct, cfg.summarizeConfig(), logger)
	s.orchestrator = orchestrate.New(chat, registry, executor, options.hooks, logger)
	if options.search != nil {
		s.aggregator = retrieval.NewAggregator(options.search, store, cfg.retrievalConfig(), logger)
	}

	return s, nil
}

// SendMessage stores the user message and streams the assistant response.
// The returned stream yields tool progress lines and text deltas; it ends
// with a nil error on completion or cancellation, and a non-nil error on
// transport failure.
//
// At most one SendMessage runs per conversation at a time; concurrent
// calls for the same conversation are serialized. Different conversations
// proceed independently.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content, modelChoice string) (*streaming.Stream, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewPipelineErrorWithConversation("SendMessage", conversationID, ErrEmptyMessage)
	}
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewPipelineErrorWithConversation("SendMessage", conversationID, ErrConversationNotFound)
		}
		return nil, NewPipelineErrorWithConversation("SendMessage", conversationID, err)
	}

	out := streaming.New(streamBuffer)

	go func() {
		lock := s.conversationLock(conversationID)
		lock.Lock()
		defer lock.Unlock()

		err := s.runPipeline(ctx, conversationID, content, modelChoice, out)
		out.CloseSend(err)
	}()

	return out, nil
}

// SendMessageSync drains the stream and returns the full response text.
func (s *Service) SendMessageSync(ctx context.Context, conversationID uuid.UUID, content, modelChoice string) (string, error) {
	stream, err := s.SendMessage(ctx, conversationID, content, modelChoice)
	if err != nil {
		return "", err
	}
	return stream.Text()
}

// runPipeline executes one full turn. Every chunk written to out is also
// what ends up persisted as the assistant message.
func (s *Service) runPipeline(ctx context.Context, conversationID uuid.UUID, content, modelChoice string, out *streaming.Stream) error {
	userMsg, err := s.storeMessage(ctx, conversationID, storage.RoleUser, content, "")
	if err != nil {
		return NewPipelineErrorWithConversation("SendMessage", conversationID, err)
	}

	pinned, rag := s.retrieve(ctx, conversationID, content)

	windowMsgs, stats, err := s.builder.Build(ctx, conversationID, s.cfg.SystemPrompt, pinned, rag)
	if err != nil {
		return NewPipelineErrorWithConversation("SendMessage", conversationID, err)
	}
	s.logger.Debug("context window built",
		"conversation_id", conversationID,
		"messages", len(windowMsgs),
		"used_tokens", stats.UsedTokens,
		"status", stats.Status,
	)

	chosenModel := modelChoice
	if chosenModel == "" {
		chosenModel = s.cfg.Model
	}

	result, runErr := s.orchestrator.Run(ctx, model.Request{
		Model:       chosenModel,
		Messages:    windowMsgs,
		MaxTokens:   s.cfg.ResponseMaxTokens,
		Temperature: s.cfg.Temperature,
	}, out)
	if runErr != nil {
		return NewPipelineErrorWithConversation("SendMessage", conversationID, runErr)
	}

	// The emitted text is persisted even when the turn was cancelled, so
	// the persistence steps must outlive the request context.
	persistCtx := ctx
	if result.Cancelled {
		persistCtx = context.WithoutCancel(ctx)
	}

	assistantMsg, err := s.storeMessage(persistCtx, conversationID, storage.RoleAssistant, result.Text, chosenModel)
	if err != nil {
		return NewPipelineErrorWithConversation("SendMessage", conversationID, err)
	}

	if err := s.store.AddConversationTokens(persistCtx, conversationID, userMsg.TokenCount+assistantMsg.TokenCount); err != nil {
		return NewPipelineErrorWithConversation("SendMessage", conversationID, err)
	}

	if err := s.autoTitle(persistCtx, conversationID, content); err != nil {
		s.logger.Warn("auto-title failed", "conversation_id", conversationID, "error", err)
	}

	if result.Cancelled {
		s.logger.Info("turn cancelled", "conversation_id", conversationID, "emitted_chars", len(result.Text))
		return nil
	}

	s.checkSummarization(ctx, conversationID)
	return nil
}

// retrieve gathers pinned-document and RAG chunks for the turn. Retrieval
// failures degrade to an empty contribution, never a failed turn.
func (s *Service) retrieve(ctx context.Context, conversationID uuid.UUID, content string) (pinned, rag []string) {
	if s.aggregator == nil {
		return nil, nil
	}

	pinned, err := s.aggregator.PinnedChunks(ctx, conversationID)
	if err != nil {
		s.logger.Warn("pinned retrieval failed", "conversation_id", conversationID, "error", err)
		pinned = nil
	}

	chunks := s.aggregator.RAGChunks(ctx, content)
	if topic, ok := s.aggregator.DetectDevScaffold(content); ok {
		scaffold := s.aggregator.ScaffoldChunks(ctx, topic)
		if len(scaffold) > 0 {
			s.logger.Debug("dev-scaffold triggered", "topic", topic, "chunks", len(scaffold))
			chunks = append(chunks, scaffold...)
		}
	}
	for _, c := range chunks {
		rag = append(rag, c.Text)
	}
	return pinned, rag
}

// checkSummarization runs the summarization trigger check after a turn.
// Failures are recovered locally; the next turn retries.
func (s *Service) checkSummarization(ctx context.Context, conversationID uuid.UUID) {
	if s.hooks != nil {
		if err := s.hooks.TriggerBeforeSummarize(ctx, conversationID); err != nil {
			s.logger.Warn("before-summarize hook failed", "conversation_id", conversationID, "error", err)
			return
		}
	}

	performed, err := s.summarizer.CheckAndSummarize(ctx, conversationID)
	if err != nil {
		s.logger.Warn("summarization failed", "conversation_id", conversationID, "error", err)
		return
	}

	if s.hooks != nil {
		if err := s.hooks.TriggerAfterSummarize(ctx, conversationID, performed); err != nil {
			s.logger.Warn("after-summarize hook failed", "conversation_id", conversationID, "error", err)
		}
	}
}

func (s *Service) storeMessage(ctx context.Context, conversationID uuid.UUID, role storage.Role, content, modelUsed string) (*storage.Message, error) {
	return s.store.AppendMessage(ctx, &storage.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokenCount:     s.acct.CountTokens(content),
		ModelUsed:      modelUsed,
	})
}

// autoTitle names the conversation after the first user message of the
// first exchange.
func (s *Service) autoTitle(ctx context.Context, conversationID uuid.UUID, firstMessage string) error {
	count, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		return err
	}
	if count > 2 {
		return nil
	}
	return s.store.UpdateConversationTitle(ctx, conversationID, TitleFromMessage(firstMessage))
}

// TitleFromMessage derives a conversation title from the first user
// message: the first 80 characters, trimmed to a word boundary with an
// ellipsis when truncated.
func TitleFromMessage(message string) string {
	if len(message) <= autoTitleMaxChars {
		return strings.TrimSpace(message)
	}
	title := strings.TrimSpace(message[:autoTitleMaxChars])
	if idx := strings.LastIndex(title, " "); idx > 0 {
		title = title[:idx]
	}
	return title + "..."
}

// GetContextStats reports the stored context state of a conversation.
// Active tokens are the unsummarized message tokens plus the summary
// tokens that stand in for the summarized ones.
func (s *Service) GetContextStats(ctx context.Context, conversationID uuid.UUID) (*ContextStats, error) {
	agg, err := s.store.AggregateStats(ctx, conversationID)
	if err != nil {
		return nil, NewPipelineErrorWithConversation("GetContextStats", conversationID, err)
	}

	active := agg.UnsummarizedTokens + agg.SummaryTokens
	utilization, status := window.ComputeStatus(active, s.cfg.Context.MaxTokens,
		s.cfg.Context.WarningPercent, s.cfg.Context.CriticalPercent)

	return &ContextStats{
		TotalMessages:      agg.TotalMessages,
		TotalStoredTokens:  agg.TotalTokens,
		SummarizedMessages: agg.SummarizedMessages,
		SummaryTokens:      agg.SummaryTokens,
		ActiveTokens:       active,
		MaxContextTokens:   s.cfg.Context.MaxTokens,
		UtilizationPercent: utilization,
		Status:             status,
	}, nil
}

// CreateConversation creates a conversation. An empty title defaults to
// "New Conversation" until the first exchange names it.
func (s *Service) CreateConversation(ctx context.Context, title string) (*storage.Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}
	conv, err := s.store.CreateConversation(ctx, title)
	if err != nil {
		return nil, NewPipelineError("CreateConversation", err)
	}
	return conv, nil
}

// ListConversations lists conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, includeArchived bool) ([]*storage.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, includeArchived)
	if err != nil {
		return nil, NewPipelineError("ListConversations", err)
	}
	return convs, nil
}

// Messages returns a conversation's full message history in sequence
// order, with no truncation.
func (s *Service) Messages(ctx context.Context, conversationID uuid.UUID) ([]*storage.Message, error) {
	msgs, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, NewPipelineErrorWithConversation("Messages", conversationID, err)
	}
	return msgs, nil
}

// ArchiveConversation hides a conversation from default listings. Its
// history is kept and it can still be read and written by ID.
func (s *Service) ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.store.ArchiveConversation(ctx, conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewPipelineErrorWithConversation("ArchiveConversation", conversationID, ErrConversationNotFound)
		}
		return NewPipelineErrorWithConversation("ArchiveConversation", conversationID, err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages, summaries,
// and pins.
func (s *Service) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewPipelineErrorWithConversation("DeleteConversation", conversationID, ErrConversationNotFound)
		}
		return NewPipelineErrorWithConversation("DeleteConversation", conversationID, err)
	}
	return nil
}

// PinDocument pins a document to a conversation so its content is
// considered on every turn.
func (s *Service) PinDocument(ctx context.Context, pin *storage.PinnedDocument) (*storage.PinnedDocument, error) {
	created, err := s.store.PinDocument(ctx, pin)
	if err != nil {
		return nil, NewPipelineErrorWithConversation("PinDocument", pin.ConversationID, err)
	}
	return created, nil
}

// UnpinDocument deactivates a pin. The row is kept; only active is
// flipped.
func (s *Service) UnpinDocument(ctx context.Context, pinID uuid.UUID) error {
	if err := s.store.UnpinDocument(ctx, pinID); err != nil {
		return NewPipelineError("UnpinDocument", err)
	}
	return nil
}

// CheckAndSummarize exposes the summarization trigger check for callers
// that want to force it outside the send pipeline.
func (s *Service) CheckAndSummarize(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	return s.summarizer.CheckAndSummarize(ctx, conversationID)
}

// Registry returns the tool registry for inspection.
func (s *Service) Registry() *tool.Registry {
	return s.registry
}

func (s *Service) conversationLock(conversationID uuid.UUID) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
