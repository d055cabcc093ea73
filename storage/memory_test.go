package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestAppendMessageAssignsContiguousSequence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	for i := 0; i < 5; i++ {
		msg, err := store.AppendMessage(ctx, &Message{
			ConversationID: conv.ID,
			Role:           RoleUser,
			Content:        "content",
			TokenCount:     10,
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.SequenceNum != i+1 {
			t.Errorf("message %d got sequence %d", i, msg.SequenceNum)
		}
	}
}

func TestAppendMessageSequencePerConversation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a, _ := store.CreateConversation(ctx, "a")
	b, _ := store.CreateConversation(ctx, "b")

	m1, _ := store.AppendMessage(ctx, &Message{ConversationID: a.ID, Role: RoleUser, Content: "x"})
	m2, _ := store.AppendMessage(ctx, &Message{ConversationID: b.ID, Role: RoleUser, Content: "y"})
	m3, _ := store.AppendMessage(ctx, &Message{ConversationID: a.ID, Role: RoleAssistant, Content: "z"})

	if m1.SequenceNum != 1 || m2.SequenceNum != 1 || m3.SequenceNum != 2 {
		t.Errorf("sequences: a1=%d b1=%d a2=%d", m1.SequenceNum, m2.SequenceNum, m3.SequenceNum)
	}
}

func TestAppendMessageConcurrentNoGapsNoDuplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, _ = store.AppendMessage(ctx, &Message{
				ConversationID: conv.ID,
				Role:           RoleUser,
				Content:        "concurrent",
			})
		}()
	}
	wg.Wait()

	msgs, _ := store.GetMessages(ctx, conv.ID)
	if len(msgs) != writers {
		t.Fatalf("expected %d messages, got %d", writers, len(msgs))
	}
	seen := map[int]bool{}
	for i, msg := range msgs {
		if msg.SequenceNum != i+1 {
			t.Errorf("position %d holds sequence %d", i, msg.SequenceNum)
		}
		if seen[msg.SequenceNum] {
			t.Errorf("duplicate sequence %d", msg.SequenceNum)
		}
		seen[msg.SequenceNum] = true
	}
}

func TestMessageRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	in := &Message{
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        "the quick brown fox",
		TokenCount:     7,
		ModelUsed:      "test-model",
	}
	stored, err := store.AppendMessage(ctx, in)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := store.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.Role != in.Role || got.Content != in.Content || got.SequenceNum != stored.SequenceNum {
		t.Errorf("round trip mismatch: %+v vs %+v", got, stored)
	}
	if got.TokenCount != 7 || got.ModelUsed != "test-model" {
		t.Errorf("metadata lost: %+v", got)
	}
}

func TestInsertSummaryFlipsFlagsAtomically(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		msg, _ := store.AppendMessage(ctx, &Message{
			ConversationID: conv.ID, Role: RoleUser, Content: "m", TokenCount: 10,
		})
		if i < 3 {
			ids = append(ids, msg.ID)
		}
	}

	err := store.InsertSummary(ctx, &Summary{
		ConversationID: conv.ID,
		SummaryText:    "summary",
		StartSeq:       1,
		EndSeq:         3,
		TokenCount:     5,
	}, ids)
	if err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	msgs, _ := store.GetMessages(ctx, conv.ID)
	for _, msg := range msgs {
		want := msg.SequenceNum <= 3
		if msg.IsSummarized != want {
			t.Errorf("seq %d: is_summarized=%v want %v", msg.SequenceNum, msg.IsSummarized, want)
		}
	}

	unsummarized, _ := store.GetUnsummarizedMessages(ctx, conv.ID)
	if len(unsummarized) != 1 || unsummarized[0].SequenceNum != 4 {
		t.Errorf("unexpected unsummarized set: %+v", unsummarized)
	}

	tokens, _ := store.UnsummarizedTokens(ctx, conv.ID)
	if tokens != 10 {
		t.Errorf("UnsummarizedTokens = %d, want 10", tokens)
	}
}

func TestGetSummariesSortedByStartSeq(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	_ = store.InsertSummary(ctx, &Summary{ConversationID: conv.ID, SummaryText: "later", StartSeq: 10, EndSeq: 12}, nil)
	_ = store.InsertSummary(ctx, &Summary{ConversationID: conv.ID, SummaryText: "earlier", StartSeq: 1, EndSeq: 9}, nil)

	sums, _ := store.GetSummaries(ctx, conv.ID)
	if len(sums) != 2 || sums[0].SummaryText != "earlier" || sums[1].SummaryText != "later" {
		t.Errorf("summaries not ordered oldest first: %+v", sums)
	}
}

func TestPinLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	pin, err := store.PinDocument(ctx, &PinnedDocument{
		ConversationID: conv.ID,
		DocumentID:     "doc-1",
		SourceName:     "google_drive",
		DisplayName:    "Design Doc",
	})
	if err != nil {
		t.Fatalf("PinDocument: %v", err)
	}
	if !pin.Active {
		t.Error("new pin must be active")
	}

	active, _ := store.GetActivePins(ctx, conv.ID)
	if len(active) != 1 {
		t.Fatalf("expected 1 active pin, got %d", len(active))
	}

	if err := store.UnpinDocument(ctx, pin.ID); err != nil {
		t.Fatalf("UnpinDocument: %v", err)
	}
	active, _ = store.GetActivePins(ctx, conv.ID)
	if len(active) != 0 {
		t.Errorf("expected no active pins after unpin, got %d", len(active))
	}

	if err := store.UnpinDocument(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown pin, got %v", err)
	}
}

func TestConversationLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "first")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if err := store.UpdateConversationTitle(ctx, conv.ID, "renamed"); err != nil {
		t.Fatalf("UpdateConversationTitle: %v", err)
	}
	if err := store.AddConversationTokens(ctx, conv.ID, 42); err != nil {
		t.Fatalf("AddConversationTokens: %v", err)
	}

	got, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "renamed" || got.TotalTokensUsed != 42 {
		t.Errorf("conversation state: %+v", got)
	}

	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := store.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetConversationUnknown(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetConversation(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAggregateStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "test")

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		msg, _ := store.AppendMessage(ctx, &Message{
			ConversationID: conv.ID, Role: RoleUser, Content: "m", TokenCount: 25,
		})
		if i < 2 {
			ids = append(ids, msg.ID)
		}
	}
	_ = store.InsertSummary(ctx, &Summary{
		ConversationID: conv.ID, SummaryText: "s", StartSeq: 1, EndSeq: 2, TokenCount: 15,
	}, ids)
	_, _ = store.PinDocument(ctx, &PinnedDocument{ConversationID: conv.ID, DocumentID: "d", SourceName: "github", DisplayName: "Doc"})

	stats, err := store.AggregateStats(ctx, conv.ID)
	if err != nil {
		t.Fatalf("AggregateStats: %v", err)
	}

	if stats.TotalMessages != 4 || stats.TotalTokens != 100 {
		t.Errorf("message counters: %+v", stats)
	}
	if stats.SummarizedMessages != 2 || stats.UnsummarizedTokens != 50 {
		t.Errorf("summarization counters: %+v", stats)
	}
	if stats.SummaryCount != 1 || stats.SummaryTokens != 15 {
		t.Errorf("summary counters: %+v", stats)
	}
	if stats.PinnedDocumentCount != 1 {
		t.Errorf("pin counter: %+v", stats)
	}
}

func TestListConversationsFiltersArchived(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, _ := store.CreateConversation(ctx, "active")
	store.mu.Lock()
	archived := &Conversation{ID: uuid.New(), Title: "archived", IsArchived: true}
	store.conversations[archived.ID] = archived
	store.mu.Unlock()

	visible, _ := store.ListConversations(ctx, false)
	if len(visible) != 1 || visible[0].ID != a.ID {
		t.Errorf("expected only the active conversation, got %+v", visible)
	}

	all, _ := store.ListConversations(ctx, true)
	if len(all) != 2 {
		t.Errorf("expected 2 conversations with archived included, got %d", len(all))
	}
}
