package convo

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/workspaced/convo/retrieval"
	"github.com/workspaced/convo/summarize"
	"github.com/workspaced/convo/window"
)

// Duration is a time.Duration that unmarshals from YAML either as a Go
// duration string ("30s") or as integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ContextConfig holds the token budgeting and summarization knobs.
type ContextConfig struct {
	// MaxTokens is the hard model context limit.
	MaxTokens int `yaml:"max_tokens"`

	// ReservedResponseTokens is headroom reserved for the model's reply.
	// Nil means the default; an explicit zero reserves nothing.
	ReservedResponseTokens *int `yaml:"reserved_response_tokens"`

	// SummaryTriggerTokens is the unsummarized-token threshold that
	// triggers summarization.
	SummaryTriggerTokens int `yaml:"summary_trigger_tokens"`

	// RecentKeep messages at the tail are always sent verbatim and never
	// summarized.
	RecentKeep int `yaml:"recent_keep"`

	// OverlapMessages widens the minimum amount of material required
	// before a summary is attempted. Nil means the default; an explicit
	// zero disables the widening.
	OverlapMessages *int `yaml:"overlap_messages"`

	// SummaryMaxTokens bounds the summarizer's response length.
	SummaryMaxTokens int `yaml:"summary_max_tokens"`

	// WarningPercent and CriticalPercent are the utilization thresholds
	// reported in context stats.
	WarningPercent  float64 `yaml:"warning_percent"`
	CriticalPercent float64 `yaml:"critical_percent"`
}

// RetrievalConfig holds the semantic search knobs.
type RetrievalConfig struct {
	// Collections are the knowledge collections queried on every turn.
	Collections []string `yaml:"collections"`

	// DevResourcesCollection receives the extra targeted query when a
	// dev-scaffold trigger fires.
	DevResourcesCollection string `yaml:"dev_resources_collection"`

	// RelevanceThreshold is the minimum relevance for inclusion.
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// MaxResults caps the merged result set.
	MaxResults int `yaml:"max_results"`

	// ScaffoldTriggers is the ordered trigger-phrase list for dev-scaffold
	// detection.
	ScaffoldTriggers []string `yaml:"scaffold_triggers"`
}

// Config holds the full service configuration.
type Config struct {
	// Model is the chat model identifier used for conversation turns.
	Model string `yaml:"model"`

	// SummarizerModel is the model used for history summarization. A
	// cheaper model than the chat model is the expected choice.
	SummarizerModel string `yaml:"summarizer_model"`

	// SystemPrompt is the base system prompt for every turn.
	SystemPrompt string `yaml:"system_prompt"`

	// ResponseMaxTokens bounds the model's reply length per call.
	ResponseMaxTokens int `yaml:"response_max_tokens"`

	// Temperature is the sampling temperature; zero means provider default.
	Temperature float64 `yaml:"temperature"`

	// ToolTimeout bounds each individual tool execution.
	ToolTimeout Duration `yaml:"tool_timeout"`

	Context   ContextConfig   `yaml:"context"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

func intPtr(v int) *int { return &v }

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "claude-sonnet-4-5-20250929",
		SummarizerModel:   "claude-3-5-haiku-20241022",
		SystemPrompt:      "You are a helpful assistant.",
		ResponseMaxTokens: 4096,
		ToolTimeout:       Duration(30 * time.Second),
		Context: ContextConfig{
			MaxTokens:              128000,
			ReservedResponseTokens: intPtr(500),
			SummaryTriggerTokens:   96000,
			RecentKeep:             20,
			OverlapMessages:        intPtr(3),
			SummaryMaxTokens:       2048,
			WarningPercent:         80,
			CriticalPercent:        95,
		},
		Retrieval: RetrievalConfig{
			Collections: []string{
				"connector_github",
				"connector_dropbox",
				"connector_google_drive",
			},
			DevResourcesCollection: "connector_google_drive",
			RelevanceThreshold:     0.35,
			MaxResults:             8,
			ScaffoldTriggers: []string{
				"how to implement",
				"documentation for",
				"code example",
				"framework reference",
				"architecture pattern",
			},
		},
	}
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()

	if c.Model == "" {
		c.Model = def.Model
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = def.SummarizerModel
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = def.SystemPrompt
	}
	if c.ResponseMaxTokens == 0 {
		c.ResponseMaxTokens = def.ResponseMaxTokens
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = def.ToolTimeout
	}

	if c.Context.MaxTokens == 0 {
		c.Context.MaxTokens = def.Context.MaxTokens
	}
	if c.Context.ReservedResponseTokens == nil {
		c.Context.ReservedResponseTokens = def.Context.ReservedResponseTokens
	}
	if c.Context.SummaryTriggerTokens == 0 {
		c.Context.SummaryTriggerTokens = def.Context.SummaryTriggerTokens
	}
	if c.Context.RecentKeep == 0 {
		c.Context.RecentKeep = def.Context.RecentKeep
	}
	if c.Context.OverlapMessages == nil {
		c.Context.OverlapMessages = def.Context.OverlapMessages
	}
	if c.Context.SummaryMaxTokens == 0 {
		c.Context.SummaryMaxTokens = def.Context.SummaryMaxTokens
	}
	if c.Context.WarningPercent == 0 {
		c.Context.WarningPercent = def.Context.WarningPercent
	}
	if c.Context.CriticalPercent == 0 {
		c.Context.CriticalPercent = def.Context.CriticalPercent
	}

	if len(c.Retrieval.Collections) == 0 {
		c.Retrieval.Collections = def.Retrieval.Collections
	}
	if c.Retrieval.DevResourcesCollection == "" {
		c.Retrieval.DevResourcesCollection = def.Retrieval.DevResourcesCollection
	}
	if c.Retrieval.RelevanceThreshold == 0 {
		c.Retrieval.RelevanceThreshold = def.Retrieval.RelevanceThreshold
	}
	if c.Retrieval.MaxResults == 0 {
		c.Retrieval.MaxResults = def.Retrieval.MaxResults
	}
	if len(c.Retrieval.ScaffoldTriggers) == 0 {
		c.Retrieval.ScaffoldTriggers = def.Retrieval.ScaffoldTriggers
	}
}

// Validate validates the configuration. Invalid fields fail here, at
// construction, never mid-request.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: Model is required", ErrInvalidConfig)
	}
	if c.SummarizerModel == "" {
		return fmt.Errorf("%w: SummarizerModel is required", ErrInvalidConfig)
	}
	if c.ResponseMaxTokens <= 0 {
		return fmt.Errorf("%w: ResponseMaxTokens must be positive", ErrInvalidConfig)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("%w: ToolTimeout must be positive", ErrInvalidConfig)
	}
	if c.Context.SummaryTriggerTokens >= c.Context.MaxTokens {
		return fmt.Errorf("%w: SummaryTriggerTokens must be below MaxTokens", ErrInvalidConfig)
	}

	windowCfg := c.windowConfig()
	if err := windowCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	summarizeCfg := c.summarizeConfig()
	if err := summarizeCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	retrievalCfg := c.retrievalConfig()
	if err := retrievalCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) windowConfig() window.Config {
	reserved := 0
	if c.Context.ReservedResponseTokens != nil {
		reserved = *c.Context.ReservedResponseTokens
	}
	return window.Config{
		MaxTokens:              c.Context.MaxTokens,
		ReservedResponseTokens: reserved,
		RecentKeep:             c.Context.RecentKeep,
		WarningPercent:         c.Context.WarningPercent,
		CriticalPercent:        c.Context.CriticalPercent,
	}
}

func (c *Config) summarizeConfig() summarize.Config {
	overlap := 0
	if c.Context.OverlapMessages != nil {
		overlap = *c.Context.OverlapMessages
	}
	return summarize.Config{
		TriggerTokens:   c.Context.SummaryTriggerTokens,
		RecentKeep:      c.Context.RecentKeep,
		OverlapMessages: overlap,
		Model:           c.SummarizerModel,
		MaxTokens:       c.Context.SummaryMaxTokens,
	}
}

func (c *Config) retrievalConfig() retrieval.Config {
	return retrieval.Config{
		Collections:            c.Retrieval.Collections,
		DevResourcesCollection: c.Retrieval.DevResourcesCollection,
		RelevanceThreshold:     c.Retrieval.RelevanceThreshold,
		MaxResults:             c.Retrieval.MaxResults,
		ScaffoldTriggers:       c.Retrieval.ScaffoldTriggers,
	}
}

// LoadConfig reads a YAML configuration file. Values support
// ${VAR} and ${VAR:default} environment interpolation.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		return ""
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
