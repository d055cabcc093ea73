package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrToolTimeout is returned inside a Result when a tool exceeds its
// execution timeout.
var ErrToolTimeout = errors.New("tool execution timed out")

// DefaultTimeout is the per-call execution timeout when none is set.
const DefaultTimeout = 30 * time.Second

// Executor runs tool calls with error handling and per-call timeouts.
// A failed or timed-out tool produces a Result carrying the error; it
// never aborts the surrounding orchestration round.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

// NewExecutor creates an Executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		timeout:  DefaultTimeout,
	}
}

// SetTimeout overrides the per-call execution timeout.
func (e *Executor) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		e.timeout = timeout
	}
}

// Result is the outcome of one tool call.
type Result struct {
	ToolName string
	Input    json.RawMessage
	Output   string
	Err      error
	Duration time.Duration
}

// Execute runs a single tool call. Unknown tools and execution failures
// are reported through Result.Err.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) *Result {
	start := time.Now()
	result := &Result{ToolName: name, Input: input}

	t, ok := e.registry.Get(name)
	if !ok {
		result.Err = fmt.Errorf("%w: %s", ErrToolNotFound, name)
		result.Duration = time.Since(start)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := t.Execute(execCtx, input)
	result.Output = output
	result.Err = err
	result.Duration = time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.Err = fmt.Errorf("%w after %v", ErrToolTimeout, e.timeout)
	}

	return result
}
