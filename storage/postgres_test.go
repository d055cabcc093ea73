package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/workspaced/convo/internal/testutil"
	"github.com/workspaced/convo/storage"
)

func newPostgresStore(t *testing.T) *storage.PostgresStore {
	t.Helper()
	db := testutil.NewTestDB(t)
	t.Cleanup(db.Close)

	ctx := context.Background()
	store := storage.NewPostgresStore(db.Pool)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("CleanTables: %v", err)
	}
	return store
}

func TestPostgresConversationCRUD(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "integration test")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.ID == uuid.Nil || conv.Title != "integration test" {
		t.Errorf("created conversation: %+v", conv)
	}

	if err := store.UpdateConversationTitle(ctx, conv.ID, "renamed"); err != nil {
		t.Fatalf("UpdateConversationTitle: %v", err)
	}
	if err := store.AddConversationTokens(ctx, conv.ID, 100); err != nil {
		t.Fatalf("AddConversationTokens: %v", err)
	}

	got, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "renamed" || got.TotalTokensUsed != 100 {
		t.Errorf("conversation state: %+v", got)
	}

	convs, err := store.ListConversations(ctx, false)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Errorf("expected 1 conversation, got %d", len(convs))
	}

	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := store.GetConversation(ctx, conv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPostgresAppendMessageSequence(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "seq")

	for i := 0; i < 3; i++ {
		msg, err := store.AppendMessage(ctx, &storage.Message{
			ConversationID: conv.ID,
			Role:           storage.RoleUser,
			Content:        "hello",
			TokenCount:     5,
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.SequenceNum != i+1 {
			t.Errorf("append %d got sequence %d", i, msg.SequenceNum)
		}
	}

	count, err := store.CountMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 3 {
		t.Errorf("CountMessages = %d", count)
	}

	msgs, err := store.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	for i, msg := range msgs {
		if msg.SequenceNum != i+1 {
			t.Errorf("position %d holds sequence %d", i, msg.SequenceNum)
		}
	}
}

func TestPostgresSummaryTransaction(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "summary")

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		msg, err := store.AppendMessage(ctx, &storage.Message{
			ConversationID: conv.ID,
			Role:           storage.RoleUser,
			Content:        "filler",
			TokenCount:     20,
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if i < 3 {
			ids = append(ids, msg.ID)
		}
	}

	err := store.InsertSummary(ctx, &storage.Summary{
		ConversationID: conv.ID,
		SummaryText:    "they talked",
		StartSeq:       1,
		EndSeq:         3,
		TokenCount:     8,
	}, ids)
	if err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	unsummarized, err := store.GetUnsummarizedMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetUnsummarizedMessages: %v", err)
	}
	if len(unsummarized) != 1 || unsummarized[0].SequenceNum != 4 {
		t.Errorf("unsummarized set: %+v", unsummarized)
	}

	tokens, err := store.UnsummarizedTokens(ctx, conv.ID)
	if err != nil {
		t.Fatalf("UnsummarizedTokens: %v", err)
	}
	if tokens != 20 {
		t.Errorf("UnsummarizedTokens = %d", tokens)
	}

	sums, err := store.GetSummaries(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetSummaries: %v", err)
	}
	if len(sums) != 1 || sums[0].SummaryText != "they talked" || sums[0].StartSeq != 1 || sums[0].EndSeq != 3 {
		t.Errorf("stored summary: %+v", sums)
	}
}

func TestPostgresPinLifecycle(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "pins")

	pin, err := store.PinDocument(ctx, &storage.PinnedDocument{
		ConversationID: conv.ID,
		DocumentID:     "doc-123",
		SourceName:     "github",
		DisplayName:    "README",
		Path:           "/repo/README.md",
	})
	if err != nil {
		t.Fatalf("PinDocument: %v", err)
	}
	if !pin.Active {
		t.Error("new pin must be active")
	}

	active, err := store.GetActivePins(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetActivePins: %v", err)
	}
	if len(active) != 1 || active[0].DocumentID != "doc-123" {
		t.Errorf("active pins: %+v", active)
	}

	if err := store.UnpinDocument(ctx, pin.ID); err != nil {
		t.Fatalf("UnpinDocument: %v", err)
	}
	active, _ = store.GetActivePins(ctx, conv.ID)
	if len(active) != 0 {
		t.Errorf("pins still active after unpin: %+v", active)
	}
}

func TestPostgresAggregateStats(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "stats")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		msg, _ := store.AppendMessage(ctx, &storage.Message{
			ConversationID: conv.ID,
			Role:           storage.RoleUser,
			Content:        "m",
			TokenCount:     10,
		})
		if i < 2 {
			ids = append(ids, msg.ID)
		}
	}
	if err := store.InsertSummary(ctx, &storage.Summary{
		ConversationID: conv.ID, SummaryText: "s", StartSeq: 1, EndSeq: 2, TokenCount: 4,
	}, ids); err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	stats, err := store.AggregateStats(ctx, conv.ID)
	if err != nil {
		t.Fatalf("AggregateStats: %v", err)
	}
	if stats.TotalMessages != 3 || stats.TotalTokens != 30 {
		t.Errorf("message counters: %+v", stats)
	}
	if stats.SummarizedMessages != 2 || stats.UnsummarizedTokens != 10 {
		t.Errorf("summarization counters: %+v", stats)
	}
	if stats.SummaryCount != 1 || stats.SummaryTokens != 4 {
		t.Errorf("summary counters: %+v", stats)
	}
}
