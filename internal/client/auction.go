package client

import (
	"sync"
	"time"

	"bidcast/internal/core/domain"
)

// AuctionState is the client-side mirror of the auction: the authoritative
// price as last announced by the hub plus the locally observed bid log.
// Price updates are last-write-wins; the hub serializes them, so arrival
// order is the authoritative order.
type AuctionState struct {
	mu    sync.RWMutex
	price int
	bids  []domain.Bid
}

func NewAuctionState() *AuctionState {
	return &AuctionState{price: domain.StartingPrice}
}

// RecordPrice replaces the mirrored price with the announced one.
func (a *AuctionState) RecordPrice(current int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.price = current
}

// CurrentPrice returns the last announced price.
func (a *AuctionState) CurrentPrice() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.price
}

// MinNextBid is the smallest amount the hub would accept right now.
func (a *AuctionState) MinNextBid() int {
	return a.CurrentPrice() + 1
}

// ValidateBid pre-checks a bid amount against the mirrored price. The hub
// re-validates on its own authoritative state; this only saves a round trip
// for bids that cannot possibly win.
func (a *AuctionState) ValidateBid(amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if amount <= a.CurrentPrice() {
		return domain.ErrBidTooLow
	}
	return nil
}

// RecordBid prepends an observed bid to the log, most recent first.
func (a *AuctionState) RecordBid(bidder string, amount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bids = append([]domain.Bid{{
		Bidder:    bidder,
		Amount:    amount,
		Timestamp: time.Now(),
	}}, a.bids...)
}

// Bids returns up to limit observed bids, most recent first. limit <= 0
// returns the whole log.
func (a *AuctionState) Bids(limit int) []domain.Bid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := len(a.bids)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Bid, n)
	copy(out, a.bids[:n])
	return out
}
