// Package tool provides the tool abstraction used by the orchestration
// round: a registry of named tools and an executor with per-call timeouts.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is the interface all tools implement.
type Tool interface {
	// Name returns the tool name used in model tool calls.
	Name() string

	// Description returns a human-readable description of the tool.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() Schema

	// Execute runs the tool and returns a compact textual result.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Schema defines the JSON Schema for a tool's input parameters.
type Schema struct {
	// Type must be "object".
	Type string `json:"type"`

	// Properties defines the tool's parameters.
	Properties map[string]Property `json:"properties"`

	// Required lists the names of required parameters.
	Required []string `json:"required,omitempty"`
}

// Property defines a single parameter in a tool schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// funcTool adapts a plain function into a Tool.
type funcTool struct {
	name        string
	description string
	schema      Schema
	fn          func(context.Context, json.RawMessage) (string, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }
func (t *funcTool) InputSchema() Schema { return t.schema }

func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

// NewFuncTool creates a Tool from a function, for tools that don't warrant
// a dedicated struct.
func NewFuncTool(
	name string,
	description string,
	schema Schema,
	fn func(context.Context, json.RawMessage) (string, error),
) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}
