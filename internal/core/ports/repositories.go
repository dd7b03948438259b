package ports

import (
	"context"

	"bidcast/internal/core/domain"
)

// HistoryRepository stores the chat and bid logs the hub replays to joining
// sessions. Recent* return newest-last, capped at limit.
type HistoryRepository interface {
	AppendChat(ctx context.Context, msg domain.ChatMessage) error
	AppendBid(ctx context.Context, bid domain.Bid) error
	RecentChat(ctx context.Context, limit int) ([]domain.ChatMessage, error)
	RecentBids(ctx context.Context, limit int) ([]domain.Bid, error)
}
