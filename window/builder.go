// Package window assembles the bounded message list sent to the model:
// the composed system message, chained summaries (or raw older messages
// when no summaries exist yet), and the verbatim recent tail, all under
// the configured token budget. Nothing is ever truncated from storage;
// the window is a view.
package window

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/workspaced/convo/model"
	"github.com/workspaced/convo/storage"
	"github.com/workspaced/convo/tokens"
)

// ErrBudgetExceeded is returned when the composed system message alone
// exceeds the usable budget. No partial window is returned.
var ErrBudgetExceeded = errors.New("system prompt exceeds context budget")

// Section headers injected into the system message.
const (
	pinnedHeader = "## Pinned Documents Context:"
	ragHeader    = "## Relevant Document Excerpts:"
	chunkJoiner  = "\n\n---\n\n"
)

// Config holds the window budget knobs.
type Config struct {
	// MaxTokens is the hard model context limit.
	MaxTokens int

	// ReservedResponseTokens is headroom reserved for the model's reply.
	ReservedResponseTokens int

	// RecentKeep is the number of most recent messages always included
	// verbatim and never summarized.
	RecentKeep int

	// WarningPercent and CriticalPercent are the utilization thresholds
	// for the status indicator.
	WarningPercent  float64
	CriticalPercent float64
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.ReservedResponseTokens < 0 {
		return fmt.Errorf("reserved_response_tokens must be non-negative, got %d", c.ReservedResponseTokens)
	}
	if c.ReservedResponseTokens >= c.MaxTokens {
		return fmt.Errorf("reserved_response_tokens %d leaves no budget under max_tokens %d", c.ReservedResponseTokens, c.MaxTokens)
	}
	if c.RecentKeep < 1 {
		return fmt.Errorf("recent_keep must be at least 1, got %d", c.RecentKeep)
	}
	if c.WarningPercent <= 0 || c.CriticalPercent <= 0 || c.WarningPercent > c.CriticalPercent {
		return fmt.Errorf("invalid status thresholds: warning=%f critical=%f", c.WarningPercent, c.CriticalPercent)
	}
	return nil
}

// Builder assembles context windows from stored conversation state.
type Builder struct {
	store storage.Store
	acct  *tokens.Accountant
	cfg   Config
}

// NewBuilder creates a Builder.
func NewBuilder(store storage.Store, acct *tokens.Accountant, cfg Config) *Builder {
	return &Builder{store: store, acct: acct, cfg: cfg}
}

// Build assembles the context window for one turn.
//
// The system message is the system prompt with pinned-document and
// retrieved-chunk sections appended. The last RecentKeep messages are
// always included verbatim. Older history enters as summaries when they
// exist (oldest-first monotonic scan, stopping at the first summary that
// does not fit), otherwise as raw messages packed greedily oldest-first
// until one does not fit.
//
// The returned window never costs more than MaxTokens minus
// ReservedResponseTokens; if the system message alone exceeds that,
// ErrBudgetExceeded is returned with no partial window.
func (b *Builder) Build(
	ctx context.Context,
	conversationID uuid.UUID,
	systemPrompt string,
	pinnedChunks []string,
	ragChunks []string,
) ([]model.Message, *Stats, error) {
	systemContent := composeSystem(systemPrompt, pinnedChunks, ragChunks)
	systemTokens := b.acct.CountTokens(systemContent)

	available := b.cfg.MaxTokens - b.cfg.ReservedResponseTokens - systemTokens
	if available < 0 {
		return nil, nil, fmt.Errorf("%w: system=%d budget=%d",
			ErrBudgetExceeded, systemTokens, b.cfg.MaxTokens-b.cfg.ReservedResponseTokens)
	}

	window := []model.Message{{Role: string(storage.RoleSystem), Content: systemContent}}

	all, err := b.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load messages: %w", err)
	}

	stats := &Stats{
		SystemTokens: systemTokens,
		MaxTokens:    b.cfg.MaxTokens,
	}
	for _, msg := range all {
		stats.TotalStoredTokens += msg.TokenCount
		if msg.IsSummarized {
			stats.SummarizedMessages++
		}
	}
	stats.TotalMessages = len(all)

	if len(all) == 0 {
		b.finalize(stats)
		return window, stats, nil
	}

	recent := all
	var older []*storage.Message
	if len(all) > b.cfg.RecentKeep {
		older = all[:len(all)-b.cfg.RecentKeep]
		recent = all[len(all)-b.cfg.RecentKeep:]
	}

	recentTokens := 0
	for _, msg := range recent {
		recentTokens += msg.TokenCount + tokens.PerMessageOverhead
	}
	stats.RecentTokens = recentTokens

	summaries, err := b.store.GetSummaries(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load summaries: %w", err)
	}

	summaryTokens := 0
	if len(summaries) > 0 {
		// Oldest-first monotonic scan: the first summary that does not
		// fit ends the scan, no backtracking.
		for _, sum := range summaries {
			if summaryTokens+sum.TokenCount+recentTokens > available {
				break
			}
			window = append(window, model.Message{
				Role: string(storage.RoleSystem),
				Content: fmt.Sprintf("[Conversation Summary — messages %d-%d]:\n%s",
					sum.StartSeq, sum.EndSeq, sum.SummaryText),
			})
			summaryTokens += sum.TokenCount
		}
	} else if len(older) > 0 {
		// No summaries yet: pack raw older messages greedily oldest-first
		// until one does not fit.
		remaining := available - recentTokens
		for _, msg := range older {
			cost := msg.TokenCount + tokens.PerMessageOverhead
			if remaining < cost {
				break
			}
			window = append(window, model.Message{Role: string(msg.Role), Content: msg.Content})
			summaryTokens += cost
			remaining -= cost
		}
	}
	stats.SummaryTokens = summaryTokens

	for _, msg := range recent {
		window = append(window, model.Message{Role: string(msg.Role), Content: msg.Content})
	}

	b.finalize(stats)
	return window, stats, nil
}

func (b *Builder) finalize(stats *Stats) {
	stats.UsedTokens = stats.SystemTokens + stats.SummaryTokens + stats.RecentTokens
	stats.AvailableTokens = stats.MaxTokens - stats.UsedTokens
	if stats.AvailableTokens < 0 {
		stats.AvailableTokens = 0
	}
	stats.UtilizationPercent, stats.Status = ComputeStatus(
		stats.UsedTokens, stats.MaxTokens, b.cfg.WarningPercent, b.cfg.CriticalPercent)
}

func composeSystem(systemPrompt string, pinnedChunks, ragChunks []string) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)

	if len(pinnedChunks) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(pinnedHeader)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(pinnedChunks, chunkJoiner))
	}
	if len(ragChunks) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(ragHeader)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(ragChunks, chunkJoiner))
	}
	return sb.String()
}
