package streaming

import (
	"context"
	"strings"
	"sync"
)

// Stream carries chunks from the orchestration goroutine to the caller.
// Chunks are delivered in emission order, never batched or reordered.
//
// Consumer side:
//
//	for stream.Next() {
//		chunk := stream.Current()
//		...
//	}
//	if err := stream.Err(); err != nil { ... }
//
// The producer closes the stream exactly once via CloseSend; the error
// passed there, if any, becomes Err after the last chunk is drained.
type Stream struct {
	ch  chan Chunk
	cur Chunk

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// New creates a Stream with the given channel buffer size.
func New(buffer int) *Stream {
	return &Stream{ch: make(chan Chunk, buffer)}
}

// Send delivers one chunk to the consumer. It blocks until the chunk is
// accepted or ctx is done, in which case the chunk is dropped and the
// context error returned.
func (s *Stream) Send(ctx context.Context, chunk Chunk) error {
	select {
	case s.ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend marks the producer side finished. A non-nil err surfaces to
// the consumer through Err once all chunks are drained. Later calls are
// no-ops.
func (s *Stream) CloseSend(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

// Next advances to the next chunk, returning false when the stream ends.
func (s *Stream) Next() bool {
	chunk, ok := <-s.ch
	if !ok {
		return false
	}
	s.cur = chunk
	return true
}

// Current returns the chunk consumed by the last successful Next.
func (s *Stream) Current() Chunk {
	return s.cur
}

// Err returns the terminal stream error, if any. Valid after Next has
// returned false.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text drains the remaining chunks and concatenates their text. It is a
// convenience for non-streaming callers; the stream error, if any, is
// returned alongside the text accumulated so far.
func (s *Stream) Text() (string, error) {
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.cur.Text)
	}
	return sb.String(), s.Err()
}
