package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It is safe for
// concurrent use and is intended for tests and embedded setups where no
// database is available.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]*Message
	summaries     map[uuid.UUID][]*Summary
	pins          map[uuid.UUID][]*PinnedDocument
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]*Message),
		summaries:     make(map[uuid.UUID][]*Summary),
		pins:          make(map[uuid.UUID][]*PinnedDocument),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &Conversation{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	out := *conv
	return &out, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	out := *conv
	return &out, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, includeArchived bool) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*Conversation
	for _, conv := range s.conversations {
		if conv.IsArchived && !includeArchived {
			continue
		}
		out := *conv
		convs = append(convs, &out)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	delete(s.summaries, conversationID)
	delete(s.pins, conversationID)
	return nil
}

func (s *MemoryStore) UpdateConversationTitle(ctx context.Context, conversationID uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	conv.IsArchived = true
	return nil
}

func (s *MemoryStore) AddConversationTokens(ctx context.Context, conversationID uuid.UUID, tokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	conv.TotalTokensUsed += tokens
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	log := s.messages[msg.ConversationID]
	maxSeq := 0
	if len(log) > 0 {
		maxSeq = log[len(log)-1].SequenceNum
	}
	stored.SequenceNum = maxSeq + 1
	stored.IsSummarized = false

	s.messages[msg.ConversationID] = append(log, &stored)
	out := stored
	return &out, nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[conversationID]
	out := make([]*Message, len(log))
	for i, msg := range log {
		copied := *msg
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationID]), nil
}

func (s *MemoryStore) GetUnsummarizedMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, msg := range s.messages[conversationID] {
		if !msg.IsSummarized {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) UnsummarizedTokens(ctx context.Context, conversationID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, msg := range s.messages[conversationID] {
		if !msg.IsSummarized {
			total += msg.TokenCount
		}
	}
	return total, nil
}

func (s *MemoryStore) GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := s.summaries[conversationID]
	out := make([]*Summary, len(sums))
	for i, sum := range sums {
		copied := *sum
		out[i] = &copied
	}
	return out, nil
}

func (s *MemoryStore) InsertSummary(ctx context.Context, summary *Summary, messageIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *summary
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	ids := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = true
	}
	for _, msg := range s.messages[summary.ConversationID] {
		if ids[msg.ID] {
			msg.IsSummarized = true
		}
	}

	sums := append(s.summaries[summary.ConversationID], &stored)
	sort.Slice(sums, func(i, j int) bool { return sums[i].StartSeq < sums[j].StartSeq })
	s.summaries[summary.ConversationID] = sums
	return nil
}

func (s *MemoryStore) PinDocument(ctx context.Context, pin *PinnedDocument) (*PinnedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *pin
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Active = true

	s.pins[pin.ConversationID] = append(s.pins[pin.ConversationID], &stored)
	out := stored
	return &out, nil
}

func (s *MemoryStore) UnpinDocument(ctx context.Context, pinID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pins := range s.pins {
		for _, pin := range pins {
			if pin.ID == pinID {
				pin.Active = false
				return nil
			}
		}
	}
	return fmt.Errorf("pin %s: %w", pinID, ErrNotFound)
}

func (s *MemoryStore) GetActivePins(ctx context.Context, conversationID uuid.UUID) ([]*PinnedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PinnedDocument
	for _, pin := range s.pins[conversationID] {
		if pin.Active {
			copied := *pin
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) AggregateStats(ctx context.Context, conversationID uuid.UUID) (*AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &AggregateStats{}
	for _, msg := range s.messages[conversationID] {
		stats.TotalMessages++
		stats.TotalTokens += msg.TokenCount
		if msg.IsSummarized {
			stats.SummarizedMessages++
		} else {
			stats.UnsummarizedTokens += msg.TokenCount
		}
	}
	for _, sum := range s.summaries[conversationID] {
		stats.SummaryCount++
		stats.SummaryTokens += sum.TokenCount
	}
	for _, pin := range s.pins[conversationID] {
		if pin.Active {
			stats.PinnedDocumentCount++
		}
	}
	return stats, nil
}
