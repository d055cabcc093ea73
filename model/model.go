// Package model defines the chat model collaborator contract consumed by
// the orchestration engine: a non-streaming completion call that may
// request tool use, and a streaming call yielding text deltas.
//
// Adapters for concrete providers live in subpackages (model/anthropic).
package model

import (
	"context"
	"encoding/json"

	"github.com/workspaced/convo/tool"
)

// Prompt entry roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single prompt entry sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls carries the assistant's tool requests when replaying a
	// tool round back to the model.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a role=tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-initiated request to invoke an external capability.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema tool.Schema `json:"input_schema"`
}

// Request is a single model invocation.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Completion is the result of a non-streaming call. ToolCalls is non-empty
// when the model wants tools executed before producing its final answer.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
}

// DeltaStream is a finite, non-restartable sequence of text deltas.
// Callers must drain it with Next/Current and check Err when Next returns
// false.
type DeltaStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// ChatModel is the abstract model collaborator.
type ChatModel interface {
	// Complete issues one non-streaming call. The reply may contain tool
	// calls when tools were offered in the request.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Stream issues one streaming call and returns the delta sequence.
	Stream(ctx context.Context, req Request) (DeltaStream, error)
}
