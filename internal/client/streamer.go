package client

import (
	"context"
	"strings"
	"sync"

	"bidcast/internal/core/domain"
	"bidcast/internal/protocol"

	"go.uber.org/zap"
)

// Streamer is the broadcasting participant. It pushes captured frames through
// the session channel, mirrors the moderation set from ban_list snapshots,
// and issues fire-and-forget ban/unban requests. Auction and chat broadcasts
// are mirrored the same way the viewer mirrors them.
type Streamer struct {
	channel    SessionChannel
	bus        *Bus
	logger     *zap.SugaredLogger
	auction    *AuctionState
	moderation *ModerationState

	mu          sync.RWMutex
	username    string
	viewerCount int
	chat        []domain.ChatMessage
}

func NewStreamer(channel SessionChannel, bus *Bus, logger *zap.SugaredLogger, username string) *Streamer {
	s := &Streamer{
		channel:    channel,
		bus:        bus,
		logger:     logger,
		auction:    NewAuctionState(),
		moderation: NewModerationState(),
		username:   normalizeUsername(username),
	}
	channel.OnMessage(s.handleMessage)
	channel.OnStateChange(func(state ConnectionState) {
		bus.Publish(TopicConnectionState, state)
	})
	return s
}

// Start opens the session channel with the streamer role. The hub evicts any
// previous streamer when the handshake lands.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.RLock()
	username := s.username
	s.mu.RUnlock()
	return s.channel.Open(ctx, domain.RoleStreamer, username)
}

// Stop closes the session channel; the hub flips the live flag off for
// everyone watching.
func (s *Streamer) Stop() error {
	return s.channel.Close()
}

func (s *Streamer) handleMessage(msg any) {
	switch m := msg.(type) {
	case protocol.Price:
		s.auction.RecordPrice(m.Current)
		s.bus.Publish(TopicPrice, m.Current)

	case protocol.Viewers:
		s.mu.Lock()
		s.viewerCount = m.Count
		s.mu.Unlock()
		s.bus.Publish(TopicViewers, m.Count)

	case protocol.Chat:
		entry := domain.ChatMessage{Username: m.Username, Text: m.Text}
		s.mu.Lock()
		s.chat = append(s.chat, entry)
		if len(s.chat) > chatLogCap {
			s.chat = s.chat[len(s.chat)-chatLogCap:]
		}
		s.mu.Unlock()
		s.bus.Publish(TopicChat, entry)

	case protocol.Bid:
		s.auction.RecordBid(m.Username, m.Amount)
		s.bus.Publish(TopicBid, domain.Bid{Bidder: m.Username, Amount: m.Amount})

	case protocol.BanList:
		s.moderation.ApplyBanSnapshot(m.Banned)
		s.bus.Publish(TopicBanList, s.moderation.Identities())

	case protocol.LiveStatus:
		s.bus.Publish(TopicLiveStatus, m.IsLive)

	default:
		s.logger.Debugw("streamer ignoring message", "message", msg)
	}
}

// SendFrame pushes one encoded frame. Both "channel not open" and "queue
// full" mean the frame is dropped; the caller counts drops, nothing is
// retried or buffered.
func (s *Streamer) SendFrame(data string) error {
	return s.channel.Send(protocol.NewFrame(data))
}

// SubmitChat lets the streamer talk in the shared chat.
func (s *Streamer) SubmitChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	return s.channel.Send(protocol.NewChat(s.Username(), text))
}

// RequestBan asks the hub to ban an identity. Fire-and-forget: confirmation
// arrives as the next ban_list snapshot.
func (s *Streamer) RequestBan(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.ErrEmptyMessage
	}
	return s.channel.Send(protocol.NewBanUser(username))
}

// RequestUnban asks the hub to lift a ban. Unbanning an identity that is not
// banned is a valid no-op on the hub side.
func (s *Streamer) RequestUnban(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.ErrEmptyMessage
	}
	return s.channel.Send(protocol.NewUnbanUser(username))
}

func (s *Streamer) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Streamer) ViewerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewerCount
}

// BannedIdentities returns the mirrored ban list, sorted.
func (s *Streamer) BannedIdentities() []string {
	return s.moderation.Identities()
}

func (s *Streamer) IsBanned(username string) bool {
	return s.moderation.IsBanned(username)
}

func (s *Streamer) CurrentPrice() int { return s.auction.CurrentPrice() }

// Bids returns observed bids, most recent first.
func (s *Streamer) Bids(limit int) []domain.Bid { return s.auction.Bids(limit) }
