package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"bidcast/internal/core/domain"
	"bidcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisHistoryRepository stores chat and bid logs as Redis lists, newest at
// the tail. Lists are trimmed so replay history survives hub restarts without
// growing unbounded.
type RedisHistoryRepository struct {
	client  *redis.Client
	prefix  string
	maxKeep int64
}

func NewRedisHistoryRepository(client *redis.Client) ports.HistoryRepository {
	return &RedisHistoryRepository{
		client:  client,
		prefix:  "bidcast:history:",
		maxKeep: 500,
	}
}

func (r *RedisHistoryRepository) chatKey() string { return r.prefix + "chat" }
func (r *RedisHistoryRepository) bidsKey() string { return r.prefix + "bids" }

func (r *RedisHistoryRepository) AppendChat(ctx context.Context, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.chatKey(), data)
	pipe.LTrim(ctx, r.chatKey(), -r.maxKeep, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

func (r *RedisHistoryRepository) AppendBid(ctx context.Context, bid domain.Bid) error {
	data, err := json.Marshal(bid)
	if err != nil {
		return fmt.Errorf("failed to marshal bid: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.bidsKey(), data)
	pipe.LTrim(ctx, r.bidsKey(), -r.maxKeep, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append bid: %w", err)
	}
	return nil
}

func (r *RedisHistoryRepository) RecentChat(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, r.chatKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *RedisHistoryRepository) RecentBids(ctx context.Context, limit int) ([]domain.Bid, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, r.bidsKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read bid history: %w", err)
	}

	out := make([]domain.Bid, 0, len(raw))
	for _, item := range raw {
		var bid domain.Bid
		if err := json.Unmarshal([]byte(item), &bid); err != nil {
			continue
		}
		out = append(out, bid)
	}
	return out, nil
}
