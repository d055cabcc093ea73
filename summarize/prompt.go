package summarize

import (
	"fmt"
	"strings"

	"github.com/workspaced/convo/storage"
)

// SystemPrompt instructs the summarizer model.
const SystemPrompt = "You are a conversation summarizer. Create a concise but comprehensive " +
	"summary of the following conversation. Preserve key facts, decisions, " +
	"code snippets, URLs, names, and action items. The summary will be used " +
	"to maintain context in a long-running conversation. Be thorough but compact."

// BuildUserPrompt wraps the rendered transcript for the summarizer.
func BuildUserPrompt(transcript string) string {
	return fmt.Sprintf("Summarize this conversation segment:\n\n%s", transcript)
}

// RenderTranscript flattens messages into "[role]: content" lines.
func RenderTranscript(messages []*storage.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("[%s]: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
