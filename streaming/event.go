// Package streaming provides the ordered, cancellable chunk stream
// returned to callers of SendMessage. Producers push typed chunks; the
// consumer drains them with the Next/Current/Err iterator surface.
package streaming

// ChunkType distinguishes the kinds of output emitted during a turn.
type ChunkType string

const (
	// ChunkTypeText is assistant narrative content (a streamed delta or a
	// whole non-streamed reply).
	ChunkTypeText ChunkType = "text"

	// ChunkTypeProgress is a human-readable tool progress line emitted
	// before the tool executes.
	ChunkTypeProgress ChunkType = "progress"
)

// Chunk is a single unit of streamed output.
type Chunk struct {
	Type ChunkType
	Text string
}
