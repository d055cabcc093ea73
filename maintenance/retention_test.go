package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/workspaced/convo/storage"
)

func TestRunOnceArchivesIdleConversations(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "idle")

	time.Sleep(5 * time.Millisecond)

	r := NewRetention(store, &RetentionConfig{
		IdleTimeout: time.Millisecond,
	})
	result := r.RunOnce(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("pass errors: %v", result.Errors)
	}
	if result.Archived != 1 || result.Purged != 0 {
		t.Errorf("result: %+v", result)
	}

	got, _ := store.GetConversation(ctx, conv.ID)
	if !got.IsArchived {
		t.Error("conversation not archived")
	}

	visible, _ := store.ListConversations(ctx, false)
	if len(visible) != 0 {
		t.Errorf("archived conversation still listed: %+v", visible)
	}
}

func TestRunOncePurgesExpiredArchives(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "old")
	if err := store.ArchiveConversation(ctx, conv.ID); err != nil {
		t.Fatalf("ArchiveConversation: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	r := NewRetention(store, &RetentionConfig{
		ArchivedRetention: time.Millisecond,
	})
	result := r.RunOnce(ctx)
	if result.Purged != 1 {
		t.Errorf("result: %+v", result)
	}

	if _, err := store.GetConversation(ctx, conv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestRunOnceZeroTimeoutsDisable(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	active, _ := store.CreateConversation(ctx, "active")
	archived, _ := store.CreateConversation(ctx, "archived")
	_ = store.ArchiveConversation(ctx, archived.ID)

	time.Sleep(5 * time.Millisecond)

	r := NewRetention(store, &RetentionConfig{})
	result := r.RunOnce(ctx)
	if result.Archived != 0 || result.Purged != 0 {
		t.Errorf("disabled pass still acted: %+v", result)
	}

	if got, _ := store.GetConversation(ctx, active.ID); got.IsArchived {
		t.Error("active conversation was archived")
	}
	if _, err := store.GetConversation(ctx, archived.ID); err != nil {
		t.Errorf("archived conversation was purged: %v", err)
	}
}

func TestRunOnceRecentConversationsUntouched(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	conv, _ := store.CreateConversation(ctx, "fresh")

	r := NewRetention(store, &RetentionConfig{
		IdleTimeout:       time.Hour,
		ArchivedRetention: time.Hour,
	})
	result := r.RunOnce(ctx)
	if result.Archived != 0 || result.Purged != 0 {
		t.Errorf("result: %+v", result)
	}
	if got, _ := store.GetConversation(ctx, conv.ID); got.IsArchived {
		t.Error("fresh conversation was archived")
	}
}

func TestStartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	r := NewRetention(store, nil)
	ctx := context.Background()

	if err := r.Stop(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: %v", err)
	}
	if !r.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}
