package hooks

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/workspaced/convo/model"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// BeforeModelCall logs before sending a request to the chat model
func (h *LoggingHooks) BeforeModelCall(ctx context.Context, messages []model.Message) error {
	h.logger.Printf("[Convo] Sending %d messages to chat model", len(messages))
	return nil
}

// AfterModelCall logs after receiving a completion
func (h *LoggingHooks) AfterModelCall(ctx context.Context, completion *model.Completion) error {
	h.logger.Printf("[Convo] Received completion: model=%s tool_calls=%d", completion.Model, len(completion.ToolCalls))
	return nil
}

// ToolCall logs tool execution
func (h *LoggingHooks) ToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
	if err != nil {
		h.logger.Printf("[Convo] Tool '%s' failed: %v", toolName, err)
	} else {
		outputPreview := output
		if len(outputPreview) > 100 {
			outputPreview = outputPreview[:100] + "..."
		}
		h.logger.Printf("[Convo] Tool '%s' succeeded: %s", toolName, outputPreview)
	}
	return nil
}

// BeforeSummarize logs before conversation summarization
func (h *LoggingHooks) BeforeSummarize(ctx context.Context, conversationID uuid.UUID) error {
	h.logger.Printf("[Convo] Checking summarization for conversation %s", conversationID)
	return nil
}

// AfterSummarize logs after conversation summarization
func (h *LoggingHooks) AfterSummarize(ctx context.Context, conversationID uuid.UUID, performed bool) error {
	if performed {
		h.logger.Printf("[Convo] Summarized conversation %s", conversationID)
	} else {
		h.logger.Printf("[Convo] No summarization needed for conversation %s", conversationID)
	}
	return nil
}
