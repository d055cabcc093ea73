// Package orchestrate runs the two-phase tool-call round against the chat
// model: a non-streaming call that may request tools, tool dispatch, and a
// final streaming call that narrates the results.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/workspaced/convo/hooks"
	"github.com/workspaced/convo/model"
	"github.com/workspaced/convo/streaming"
	"github.com/workspaced/convo/tool"
)

// ErrModelTransport indicates the chat model call itself failed. Any text
// emitted before the failure is still carried in the Result.
var ErrModelTransport = errors.New("model transport error")

// State identifies the phase of an orchestration round.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateToolDispatch   State = "tool_dispatch"
	StateFinalStreaming State = "final_streaming"
	StateDone           State = "done"
)

// Logger is the minimal logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}

// Result is the outcome of one orchestration round. Text is exactly the
// concatenation of every chunk emitted on the output stream, whether the
// round ran to completion or was cancelled partway.
type Result struct {
	Text      string
	State     State
	Cancelled bool
	ToolCalls int
}

// Orchestrator drives one model round: it asks the model for a completion,
// dispatches any requested tool calls, and streams the final narrative.
type Orchestrator struct {
	chat     model.ChatModel
	registry *tool.Registry
	executor *tool.Executor
	hooks    *hooks.Registry
	logger   Logger
}

// New creates an orchestrator. The hooks registry may be nil.
func New(chat model.ChatModel, registry *tool.Registry, executor *tool.Executor, hookReg *hooks.Registry, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		chat:     chat,
		registry: registry,
		executor: executor,
		hooks:    hookReg,
		logger:   logger,
	}
}

// definitions builds the tool schema advertised on the first model call.
func (o *Orchestrator) definitions() []model.ToolDefinition {
	if o.registry == nil {
		return nil
	}
	names := o.registry.Names()
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Run executes one round and writes every produced chunk to out. It does not
// close out; the caller owns the stream lifecycle. The returned Result.Text
// always equals the concatenation of the chunks written to out.
//
// A transport failure on either model call is returned wrapped in
// ErrModelTransport. Cancellation is not an error: the round stops early and
// Result.Cancelled is set.
func (o *Orchestrator) Run(ctx context.Context, req model.Request, out *streaming.Stream) (*Result, error) {
	res := &Result{State: StateAwaitingModel}
	var emitted strings.Builder

	req.Tools = o.definitions()

	if o.hooks != nil {
		if err := o.hooks.TriggerBeforeModelCall(ctx, req.Messages); err != nil {
			return res, fmt.Errorf("before-model-call hook failed: %w", err)
		}
	}

	completion, err := o.chat.Complete(ctx, req)
	if err != nil {
		return res, fmt.Errorf("%w: completion call failed: %v", ErrModelTransport, err)
	}
	if o.hooks != nil {
		if err := o.hooks.TriggerAfterModelCall(ctx, completion); err != nil {
			return res, fmt.Errorf("after-model-call hook failed: %w", err)
		}
	}

	if len(completion.ToolCalls) == 0 {
		if completion.Content != "" {
			if err := out.Send(ctx, streaming.Chunk{Type: streaming.ChunkTypeText, Text: completion.Content}); err != nil {
				res.Cancelled = true
				res.State = StateDone
				res.Text = emitted.String()
				return res, nil
			}
			emitted.WriteString(completion.Content)
		}
		res.State = StateDone
		res.Text = emitted.String()
		return res, nil
	}

	res.State = StateToolDispatch
	res.ToolCalls = len(completion.ToolCalls)
	toolMessages := make([]model.Message, 0, len(completion.ToolCalls))

	for _, call := range completion.ToolCalls {
		if ctx.Err() != nil {
			res.Cancelled = true
			res.Text = emitted.String()
			return res, nil
		}

		progress := fmt.Sprintf("Running %s...\n", call.Name)
		if err := out.Send(ctx, streaming.Chunk{Type: streaming.ChunkTypeProgress, Text: progress}); err != nil {
			res.Cancelled = true
			res.Text = emitted.String()
			return res, nil
		}
		emitted.WriteString(progress)

		toolMessages = append(toolMessages, model.Message{
			Role:       model.RoleTool,
			ToolCallID: call.ID,
			Content:    o.dispatch(ctx, call),
		})
	}

	res.State = StateFinalStreaming

	followUp := req
	followUp.Tools = nil
	followUp.Messages = make([]model.Message, 0, len(req.Messages)+1+len(toolMessages))
	followUp.Messages = append(followUp.Messages, req.Messages...)
	followUp.Messages = append(followUp.Messages, model.Message{
		Role:      model.RoleAssistant,
		Content:   completion.Content,
		ToolCalls: completion.ToolCalls,
	})
	followUp.Messages = append(followUp.Messages, toolMessages...)

	if o.hooks != nil {
		if err := o.hooks.TriggerBeforeModelCall(ctx, followUp.Messages); err != nil {
			res.Text = emitted.String()
			return res, fmt.Errorf("before-model-call hook failed: %w", err)
		}
	}

	deltas, err := o.chat.Stream(ctx, followUp)
	if err != nil {
		res.Text = emitted.String()
		return res, fmt.Errorf("%w: streaming call failed: %v", ErrModelTransport, err)
	}
	defer deltas.Close()

	for deltas.Next() {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		text := deltas.Current()
		if text == "" {
			continue
		}
		if err := out.Send(ctx, streaming.Chunk{Type: streaming.ChunkTypeText, Text: text}); err != nil {
			res.Cancelled = true
			break
		}
		emitted.WriteString(text)
	}

	res.Text = emitted.String()
	if !res.Cancelled {
		if err := deltas.Err(); err != nil {
			return res, fmt.Errorf("%w: stream failed: %v", ErrModelTransport, err)
		}
	}

	res.State = StateDone
	return res, nil
}

// dispatch runs a single tool call and formats its result as text for the
// follow-up model call. Execution failures and timeouts produce an error
// description instead of aborting the round.
func (o *Orchestrator) dispatch(ctx context.Context, call model.ToolCall) string {
	result := o.executor.Execute(ctx, call.Name, call.Arguments)

	content := result.Output
	if result.Err != nil {
		if errors.Is(result.Err, tool.ErrToolTimeout) {
			content = fmt.Sprintf("Tool %s timed out after %s", call.Name, result.Duration)
		} else {
			content = fmt.Sprintf("Tool %s failed: %v", call.Name, result.Err)
		}
		o.logger.Warn("tool execution failed", "tool", call.Name, "error", result.Err)
	} else {
		o.logger.Debug("tool executed", "tool", call.Name, "duration", result.Duration)
	}

	if o.hooks != nil {
		if hookErr := o.hooks.TriggerToolCall(ctx, call.Name, call.Arguments, content, result.Err); hookErr != nil {
			o.logger.Warn("tool-call hook failed", "tool", call.Name, "error", hookErr)
		}
	}
	return content
}
