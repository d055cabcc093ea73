// Package builtin provides the two tools offered to the model on every
// orchestration round: execute_code and generate_image. Each wraps an
// external collaborator behind a small interface so transports stay out
// of the engine.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/workspaced/convo/tool"
)

// ExecResult is the outcome of a sandboxed code execution.
type ExecResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Error   string `json:"error,omitempty"`
}

// CodeExecutor runs code in a sandbox with no network access and bounded
// wall-clock time. The engine relies on the collaborator to enforce both.
type CodeExecutor interface {
	Execute(ctx context.Context, code string) (*ExecResult, error)
}

type executeCodeInput struct {
	Code string `json:"code"`
}

type codeTool struct {
	executor CodeExecutor
}

// NewExecuteCode creates the execute_code tool over the given executor.
func NewExecuteCode(executor CodeExecutor) tool.Tool {
	return &codeTool{executor: executor}
}

func (t *codeTool) Name() string { return "execute_code" }

func (t *codeTool) Description() string {
	return "Execute Python code in a sandbox and return its output. Use for calculations, data transforms, and quick verification."
}

func (t *codeTool) InputSchema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"code": {
				Type:        "string",
				Description: "The code to execute",
			},
		},
		Required: []string{"code"},
	}
}

func (t *codeTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in executeCodeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid execute_code input: %w", err)
	}
	if strings.TrimSpace(in.Code) == "" {
		return "", fmt.Errorf("execute_code: empty code")
	}

	result, err := t.executor.Execute(ctx, in.Code)
	if err != nil {
		return "", fmt.Errorf("code execution failed: %w", err)
	}

	return FormatExecResult(result), nil
}

// FormatExecResult renders an execution result as compact text for the
// follow-up model call.
func FormatExecResult(result *ExecResult) string {
	var sb strings.Builder
	if result.Success {
		sb.WriteString("Execution succeeded.")
	} else {
		sb.WriteString("Execution failed.")
	}
	if result.Stdout != "" {
		sb.WriteString("\nstdout:\n")
		sb.WriteString(strings.TrimRight(result.Stdout, "\n"))
	}
	if result.Stderr != "" {
		sb.WriteString("\nstderr:\n")
		sb.WriteString(strings.TrimRight(result.Stderr, "\n"))
	}
	if result.Error != "" {
		sb.WriteString("\nerror: ")
		sb.WriteString(result.Error)
	}
	return sb.String()
}
