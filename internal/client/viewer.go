package client

import (
	"context"
	"strings"
	"sync"

	"bidcast/internal/core/domain"
	"bidcast/internal/protocol"

	"go.uber.org/zap"
)

const chatLogCap = 200

// Viewer is the watching participant. It mirrors hub broadcasts into local
// state (price, viewer count, live flag, chat and bid logs), republishes them
// on the event bus, and gates outbound chat/bid/buy-now on its personal ban
// state so a banned viewer generates no traffic at all.
type Viewer struct {
	channel SessionChannel
	bus     *Bus
	logger  *zap.SugaredLogger
	auction *AuctionState

	mu          sync.RWMutex
	username    string
	banned      bool
	live        bool
	viewerCount int
	chat        []domain.ChatMessage
}

func NewViewer(channel SessionChannel, bus *Bus, logger *zap.SugaredLogger, username string) *Viewer {
	v := &Viewer{
		channel:  channel,
		bus:      bus,
		logger:   logger,
		auction:  NewAuctionState(),
		username: normalizeUsername(username),
	}
	channel.OnMessage(v.handleMessage)
	channel.OnStateChange(func(state ConnectionState) {
		bus.Publish(TopicConnectionState, state)
	})
	return v
}

// Start opens the session channel with the viewer role.
func (v *Viewer) Start(ctx context.Context) error {
	v.mu.RLock()
	username := v.username
	v.mu.RUnlock()
	return v.channel.Open(ctx, domain.RoleViewer, username)
}

// Stop closes the session channel.
func (v *Viewer) Stop() error {
	return v.channel.Close()
}

func (v *Viewer) handleMessage(msg any) {
	switch m := msg.(type) {
	case protocol.Price:
		v.auction.RecordPrice(m.Current)
		v.bus.Publish(TopicPrice, m.Current)

	case protocol.Viewers:
		v.mu.Lock()
		v.viewerCount = m.Count
		v.mu.Unlock()
		v.bus.Publish(TopicViewers, m.Count)

	case protocol.Chat:
		entry := domain.ChatMessage{Username: m.Username, Text: m.Text}
		v.mu.Lock()
		v.chat = append(v.chat, entry)
		if len(v.chat) > chatLogCap {
			v.chat = v.chat[len(v.chat)-chatLogCap:]
		}
		v.mu.Unlock()
		v.bus.Publish(TopicChat, entry)

	case protocol.Bid:
		v.auction.RecordBid(m.Username, m.Amount)
		v.bus.Publish(TopicBid, domain.Bid{Bidder: m.Username, Amount: m.Amount})

	case protocol.Frame:
		v.bus.Publish(TopicFrame, m.Data)

	case protocol.LiveStatus:
		v.mu.Lock()
		v.live = m.IsLive
		v.mu.Unlock()
		v.bus.Publish(TopicLiveStatus, m.IsLive)

	case protocol.YouAreBanned:
		v.mu.Lock()
		changed := v.banned != m.Banned
		v.banned = m.Banned
		v.mu.Unlock()
		if changed {
			v.bus.Publish(TopicBanState, m.Banned)
		}

	case protocol.BanList:
		// Broadcast to everyone; the viewer only acts on its personal
		// you_are_banned notice.

	default:
		v.logger.Debugw("viewer ignoring message", "message", msg)
	}
}

// SubmitChat sends one chat line. Empty (after trimming) and banned
// submissions are rejected locally without touching the wire.
func (v *Viewer) SubmitChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	if v.IsBanned() {
		return domain.ErrBanned
	}
	return v.channel.Send(protocol.NewChat(v.Username(), text))
}

// SubmitBid sends one bid after local validation against the mirrored price.
func (v *Viewer) SubmitBid(amount int) error {
	if v.IsBanned() {
		return domain.ErrBanned
	}
	if err := v.auction.ValidateBid(amount); err != nil {
		return err
	}
	return v.channel.Send(protocol.NewBid(v.Username(), amount))
}

// SubmitBuyNow sends a buy-now request.
func (v *Viewer) SubmitBuyNow() error {
	if v.IsBanned() {
		return domain.ErrBanned
	}
	return v.channel.Send(protocol.NewBuyNow(v.Username()))
}

// SetUsername rebinds the display name locally, for future reconnect
// handshakes, and on the hub.
func (v *Viewer) SetUsername(username string) error {
	username = normalizeUsername(username)
	v.mu.Lock()
	v.username = username
	v.mu.Unlock()
	v.channel.SetUsername(username)
	return v.channel.Send(protocol.NewSetUsername(username))
}

func (v *Viewer) Username() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.username
}

func (v *Viewer) IsBanned() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.banned
}

func (v *Viewer) IsLive() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.live
}

func (v *Viewer) ViewerCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.viewerCount
}

// ChatLog returns up to limit chat entries, oldest first. limit <= 0 returns
// everything retained.
func (v *Viewer) ChatLog(limit int) []domain.ChatMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := len(v.chat)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ChatMessage, n)
	copy(out, v.chat[len(v.chat)-n:])
	return out
}

func (v *Viewer) CurrentPrice() int { return v.auction.CurrentPrice() }

func (v *Viewer) MinNextBid() int { return v.auction.MinNextBid() }

// Bids returns observed bids, most recent first.
func (v *Viewer) Bids(limit int) []domain.Bid { return v.auction.Bids(limit) }

func normalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.DefaultUsername
	}
	return username
}
