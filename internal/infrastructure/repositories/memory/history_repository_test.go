package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bidcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepository_RecentChatReturnsNewestLast(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendChat(ctx, domain.ChatMessage{
			Username: "alice",
			Text:     fmt.Sprintf("message %d", i),
		}))
	}

	recent, err := repo.RecentChat(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "message 2", recent[0].Text)
	assert.Equal(t, "message 4", recent[2].Text)
}

func TestHistoryRepository_RecentChatFewerThanLimit(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.AppendChat(ctx, domain.ChatMessage{Username: "alice", Text: "only"}))

	recent, err := repo.RecentChat(ctx, 20)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "only", recent[0].Text)
}

func TestHistoryRepository_RecentBids(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, repo.AppendBid(ctx, domain.Bid{
			Bidder:    "bob",
			Amount:    i,
			Timestamp: time.Now(),
		}))
	}

	recent, err := repo.RecentBids(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].Amount)
	assert.Equal(t, 4, recent[1].Amount)
}

func TestHistoryRepository_ZeroLimit(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.AppendChat(ctx, domain.ChatMessage{Username: "alice", Text: "hi"}))

	recent, err := repo.RecentChat(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestHistoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.AppendChat(ctx, domain.ChatMessage{Username: "alice", Text: "hi"}))

	first, err := repo.RecentChat(ctx, 1)
	require.NoError(t, err)
	first[0].Text = "mutated"

	second, err := repo.RecentChat(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hi", second[0].Text)
}
