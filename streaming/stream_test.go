package streaming

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStreamDeliversChunksInOrder(t *testing.T) {
	s := New(4)

	go func() {
		ctx := context.Background()
		_ = s.Send(ctx, Chunk{Type: ChunkTypeProgress, Text: "Running execute_code...\n"})
		_ = s.Send(ctx, Chunk{Type: ChunkTypeText, Text: "The answer "})
		_ = s.Send(ctx, Chunk{Type: ChunkTypeText, Text: "is 4."})
		s.CloseSend(nil)
	}()

	var got []Chunk
	for s.Next() {
		got = append(got, s.Current())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if got[0].Type != ChunkTypeProgress {
		t.Errorf("expected first chunk to be progress, got %s", got[0].Type)
	}
	if got[1].Text != "The answer " || got[2].Text != "is 4." {
		t.Errorf("chunks out of order: %+v", got)
	}
}

func TestStreamTextConcatenates(t *testing.T) {
	s := New(4)

	go func() {
		ctx := context.Background()
		_ = s.Send(ctx, Chunk{Type: ChunkTypeText, Text: "hello "})
		_ = s.Send(ctx, Chunk{Type: ChunkTypeText, Text: "world"})
		s.CloseSend(nil)
	}()

	text, err := s.Text()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", text)
	}
}

func TestStreamSurfacesTerminalError(t *testing.T) {
	s := New(1)
	wantErr := errors.New("model transport error")

	go func() {
		_ = s.Send(context.Background(), Chunk{Type: ChunkTypeText, Text: "partial"})
		s.CloseSend(wantErr)
	}()

	text, err := s.Text()
	if text != "partial" {
		t.Errorf("expected partial text before error, got %q", text)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected terminal error, got %v", err)
	}
}

func TestStreamSendRespectsCancellation(t *testing.T) {
	s := New(0) // unbuffered, no consumer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, Chunk{Type: ChunkTypeText, Text: "dropped"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStreamCloseSendIdempotent(t *testing.T) {
	s := New(1)
	s.CloseSend(nil)
	s.CloseSend(errors.New("late error")) // must not panic or overwrite

	if s.Next() {
		t.Error("expected no chunks")
	}
	if err := s.Err(); err != nil {
		t.Errorf("expected nil error from first close, got %v", err)
	}
}

func TestStreamSendBlocksUntilConsumed(t *testing.T) {
	s := New(0)
	done := make(chan struct{})

	go func() {
		_ = s.Send(context.Background(), Chunk{Type: ChunkTypeText, Text: "x"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Send returned before the chunk was consumed")
	case <-time.After(10 * time.Millisecond):
	}

	if !s.Next() {
		t.Fatal("expected a chunk")
	}
	<-done
}
