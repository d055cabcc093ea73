package hooks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/workspaced/convo/model"
)

// BeforeModelCallHook is called before sending a request to the chat model
type BeforeModelCallHook func(ctx context.Context, messages []model.Message) error

// AfterModelCallHook is called after receiving a completion from the chat model
type AfterModelCallHook func(ctx context.Context, completion *model.Completion) error

// ToolCallHook is called when a tool is executed
// Parameters: ctx, toolName, input, output, error
type ToolCallHook func(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error

// BeforeSummarizeHook is called before conversation summarization
type BeforeSummarizeHook func(ctx context.Context, conversationID uuid.UUID) error

// AfterSummarizeHook is called after conversation summarization.
// performed reports whether a summary was actually produced.
type AfterSummarizeHook func(ctx context.Context, conversationID uuid.UUID, performed bool) error

// Registry holds all registered hooks
type Registry struct {
	mu              sync.RWMutex
	beforeModelCall []BeforeModelCallHook
	afterModelCall  []AfterModelCallHook
	toolCall        []ToolCallHook
	beforeSummarize []BeforeSummarizeHook
	afterSummarize  []AfterSummarizeHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		beforeModelCall: []BeforeModelCallHook{},
		afterModelCall:  []AfterModelCallHook{},
		toolCall:        []ToolCallHook{},
		beforeSummarize: []BeforeSummarizeHook{},
		afterSummarize:  []AfterSummarizeHook{},
	}
}

// OnBeforeModelCall registers a hook to be called before each model request
func (r *Registry) OnBeforeModelCall(hook BeforeModelCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeModelCall = append(r.beforeModelCall, hook)
}

// OnAfterModelCall registers a hook to be called after each model completion
func (r *Registry) OnAfterModelCall(hook AfterModelCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterModelCall = append(r.afterModelCall, hook)
}

// OnToolCall registers a hook to be called when a tool is executed
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// OnBeforeSummarize registers a hook to be called before summarization
func (r *Registry) OnBeforeSummarize(hook BeforeSummarizeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeSummarize = append(r.beforeSummarize, hook)
}

// OnAfterSummarize registers a hook to be called after summarization
func (r *Registry) OnAfterSummarize(hook AfterSummarizeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterSummarize = append(r.afterSummarize, hook)
}

// TriggerBeforeModelCall calls all registered before-model-call hooks
func (r *Registry) TriggerBeforeModelCall(ctx context.Context, messages []model.Message) error {
	r.mu.RLock()
	hooks := make([]BeforeModelCallHook, len(r.beforeModelCall))
	copy(hooks, r.beforeModelCall)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, messages); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterModelCall calls all registered after-model-call hooks
func (r *Registry) TriggerAfterModelCall(ctx context.Context, completion *model.Completion) error {
	r.mu.RLock()
	hooks := make([]AfterModelCallHook, len(r.afterModelCall))
	copy(hooks, r.afterModelCall)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, completion); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCall calls all registered tool-call hooks
func (r *Registry) TriggerToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
	r.mu.RLock()
	hooks := make([]ToolCallHook, len(r.toolCall))
	copy(hooks, r.toolCall)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if hookErr := hook(ctx, toolName, input, output, err); hookErr != nil {
			return hookErr
		}
	}
	return nil
}

// TriggerBeforeSummarize calls all registered before-summarize hooks
func (r *Registry) TriggerBeforeSummarize(ctx context.Context, conversationID uuid.UUID) error {
	r.mu.RLock()
	hooks := make([]BeforeSummarizeHook, len(r.beforeSummarize))
	copy(hooks, r.beforeSummarize)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, conversationID); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterSummarize calls all registered after-summarize hooks
func (r *Registry) TriggerAfterSummarize(ctx context.Context, conversationID uuid.UUID, performed bool) error {
	r.mu.RLock()
	hooks := make([]AfterSummarizeHook, len(r.afterSummarize))
	copy(hooks, r.afterSummarize)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, conversationID, performed); err != nil {
			return err
		}
	}
	return nil
}
