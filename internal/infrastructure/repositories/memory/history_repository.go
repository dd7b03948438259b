package memory

import (
	"context"
	"sync"

	"bidcast/internal/core/domain"
	"bidcast/internal/core/ports"
)

// MemoryHistoryRepository keeps the chat and bid logs in process memory.
// Logs are append-only; replay reads the newest entries.
type MemoryHistoryRepository struct {
	chat []domain.ChatMessage
	bids []domain.Bid
	mu   sync.RWMutex
}

func NewMemoryHistoryRepository() ports.HistoryRepository {
	return &MemoryHistoryRepository{}
}

func (r *MemoryHistoryRepository) AppendChat(ctx context.Context, msg domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chat = append(r.chat, msg)
	return nil
}

func (r *MemoryHistoryRepository) AppendBid(ctx context.Context, bid domain.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bids = append(r.bids, bid)
	return nil
}

func (r *MemoryHistoryRepository) RecentChat(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if limit >= 0 && len(r.chat) > limit {
		start = len(r.chat) - limit
	}

	out := make([]domain.ChatMessage, len(r.chat)-start)
	copy(out, r.chat[start:])
	return out, nil
}

func (r *MemoryHistoryRepository) RecentBids(ctx context.Context, limit int) ([]domain.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if limit >= 0 && len(r.bids) > limit {
		start = len(r.bids) - limit
	}

	out := make([]domain.Bid, len(r.bids)-start)
	copy(out, r.bids[start:])
	return out, nil
}
