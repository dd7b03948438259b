package client

import (
	"testing"

	"bidcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuctionState_StartsAtOpeningPrice(t *testing.T) {
	a := NewAuctionState()
	assert.Equal(t, domain.StartingPrice, a.CurrentPrice())
	assert.Equal(t, domain.StartingPrice+1, a.MinNextBid())
}

func TestAuctionState_ValidateBid(t *testing.T) {
	a := NewAuctionState()
	a.RecordPrice(5)

	assert.ErrorIs(t, a.ValidateBid(0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, a.ValidateBid(-1), domain.ErrInvalidAmount)
	assert.ErrorIs(t, a.ValidateBid(4), domain.ErrBidTooLow)
	assert.ErrorIs(t, a.ValidateBid(5), domain.ErrBidTooLow)
	assert.NoError(t, a.ValidateBid(6))
}

func TestAuctionState_BidsMostRecentFirst(t *testing.T) {
	a := NewAuctionState()
	a.RecordBid("alice", 2)
	a.RecordBid("bob", 3)
	a.RecordBid("carol", 4)

	bids := a.Bids(0)
	require.Len(t, bids, 3)
	assert.Equal(t, "carol", bids[0].Bidder)
	assert.Equal(t, "alice", bids[2].Bidder)

	top := a.Bids(2)
	require.Len(t, top, 2)
	assert.Equal(t, "carol", top[0].Bidder)
	assert.Equal(t, "bob", top[1].Bidder)
}

func TestModerationState_SnapshotIsIdempotent(t *testing.T) {
	m := NewModerationState()

	m.ApplyBanSnapshot([]string{"b", "a"})
	assert.Equal(t, []string{"a", "b"}, m.Identities())

	m.ApplyBanSnapshot([]string{"b", "a"})
	assert.Equal(t, []string{"a", "b"}, m.Identities())

	m.ApplyBanSnapshot(nil)
	assert.Empty(t, m.Identities())
	assert.False(t, m.IsBanned("a"))
}
