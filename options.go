package convo

import (
	"time"

	"github.com/workspaced/convo/hooks"
	"github.com/workspaced/convo/retrieval"
	"github.com/workspaced/convo/tokens"
	"github.com/workspaced/convo/tool"
	"github.com/workspaced/convo/tool/builtin"
)

// Option is a functional option for configuring a Service
type Option func(*serviceOptions) error

type serviceOptions struct {
	logger         Logger
	hooks          *hooks.Registry
	tokenizer      tokens.Tokenizer
	search         retrieval.SemanticSearch
	tools          []tool.Tool
	codeExecutor   builtin.CodeExecutor
	imageGenerator builtin.ImageGenerator
	toolTimeout    time.Duration
}

// WithLogger sets the service logger
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) error {
		o.logger = logger
		return nil
	}
}

// WithHooks sets the hook registry used for observation callbacks
func WithHooks(registry *hooks.Registry) Option {
	return func(o *serviceOptions) error {
		o.hooks = registry
		return nil
	}
}

// WithTokenizer overrides the default tiktoken tokenizer
func WithTokenizer(tokenizer tokens.Tokenizer) Option {
	return func(o *serviceOptions) error {
		o.tokenizer = tokenizer
		return nil
	}
}

// WithSemanticSearch wires a semantic search collaborator. Without it,
// pinned-document and RAG retrieval are disabled and turns run on
// conversation history alone.
func WithSemanticSearch(search retrieval.SemanticSearch) Option {
	return func(o *serviceOptions) error {
		o.search = search
		return nil
	}
}

// WithTools registers additional tools beyond the builtins
func WithTools(ts ...tool.Tool) Option {
	return func(o *serviceOptions) error {
		o.tools = append(o.tools, ts...)
		return nil
	}
}

// WithCodeExecutor wires the code execution collaborator and registers
// the execute_code tool
func WithCodeExecutor(executor builtin.CodeExecutor) Option {
	return func(o *serviceOptions) error {
		o.codeExecutor = executor
		return nil
	}
}

// WithImageGenerator wires the image generation collaborator and
// registers the generate_image tool
func WithImageGenerator(generator builtin.ImageGenerator) Option {
	return func(o *serviceOptions) error {
		o.imageGenerator = generator
		return nil
	}
}

// WithToolTimeout overrides the per-tool execution timeout
func WithToolTimeout(timeout time.Duration) Option {
	return func(o *serviceOptions) error {
		o.toolTimeout = timeout
		return nil
	}
}
