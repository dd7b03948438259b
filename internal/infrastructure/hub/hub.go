package hub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"bidcast/internal/core/domain"
	"bidcast/internal/core/ports"
	"bidcast/internal/protocol"
	"bidcast/pkg/config"
	"bidcast/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hub is the broadcast authority for one live session: it owns the single
// streamer slot, the viewer registry, the current price, the replayable
// chat/bid history and the moderation set, and it fans streamer-originated
// events out to every connected viewer.
type Hub struct {
	cfg     *config.Config
	logger  *zap.SugaredLogger
	history ports.HistoryRepository
	metrics ports.MetricsCollector

	mu       sync.Mutex
	streamer *session
	viewers  map[domain.ConnectionID]*session
	price    int
	banned   map[string]struct{}
}

func NewHub(cfg *config.Config, history ports.HistoryRepository, metrics ports.MetricsCollector, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		history: history,
		metrics: metrics,
		viewers: make(map[domain.ConnectionID]*session),
		price:   domain.StartingPrice,
		banned:  make(map[string]struct{}),
	}
}

// CurrentPrice returns the authoritative price.
func (h *Hub) CurrentPrice() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.price
}

// ParticipantCount counts connected participants, streamer included.
func (h *Hub) ParticipantCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.participantCountLocked()
}

// HandleSession serves one websocket connection until it closes. It owns the
// read loop; a separate writer goroutine drains the session's send queue.
func (h *Hub) HandleSession(conn *websocket.Conn) {
	sess := &session{
		id:       domain.ConnectionID(uuid.NewString()),
		conn:     conn,
		send:     make(chan []byte, h.cfg.Hub.SendBuffer),
		username: domain.DefaultUsername,
		openedAt: time.Now(),
	}
	if h.cfg.RateLimiting.Enabled {
		sess.limiter = rate.NewLimiter(
			rate.Limit(h.cfg.RateLimiting.MessagesPerSecond),
			h.cfg.RateLimiting.Burst,
		)
	}

	go sess.writePump(h.cfg.Hub.PingInterval, h.cfg.Hub.WriteTimeout, h.logger)

	if h.cfg.RateLimiting.Enabled && h.cfg.RateLimiting.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.RateLimiting.MaxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(h.cfg.Hub.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.Hub.PongTimeout))
		return nil
	})

	h.logger.Infow("session connected", "connection_id", sess.id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Infow("session read error", "connection_id", sess.id, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.cfg.Hub.ReadTimeout))
		h.handleMessage(sess, raw)
	}

	h.disconnect(sess)
}

// handleMessage decodes and routes one inbound message. Malformed payloads
// and unknown kinds are dropped with a local diagnostic; they never tear down
// the session.
func (h *Hub) handleMessage(sess *session, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			h.logger.Debugw("ignoring unknown message kind", "connection_id", sess.id, "error", err)
		} else {
			h.metrics.RecordMalformedMessage()
			h.logger.Warnw("dropping malformed message", "connection_id", sess.id, "error", err)
		}
		return
	}

	_, span := tracing.TraceSessionMessage(context.Background(), string(protocol.KindOf(msg)), string(sess.id))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Join:
		h.handleJoinLocked(sess, m)
	case protocol.Frame:
		h.handleFrameLocked(sess, m)
	case protocol.Chat:
		h.handleChatLocked(sess, m)
	case protocol.Bid:
		h.handleBidLocked(sess, m)
	case protocol.BuyNow:
		h.handleBuyNowLocked(sess, m)
	case protocol.BanRequest:
		h.handleBanRequestLocked(sess, m)
	case protocol.SetUsername:
		h.handleSetUsernameLocked(sess, m)
	default:
		// Kinds the hub only ever emits (price, viewers, ...) are ignored
		// when a client echoes them back.
		h.logger.Debugw("ignoring client-sent hub message", "connection_id", sess.id)
	}
}

func (h *Hub) handleJoinLocked(sess *session, m protocol.Join) {
	h.metrics.RecordMessage(string(protocol.KindJoin))

	sess.role = m.Role
	sess.username = normalizeUsername(m.Username)
	sess.joined = true

	if m.Role == domain.RoleStreamer {
		if prev := h.streamer; prev != nil && prev != sess {
			h.logger.Infow("evicting previous streamer", "connection_id", prev.id)
			prev.closeSend()
		}
		// The session may have joined as a viewer first; the streamer slot
		// supersedes the viewer registration.
		delete(h.viewers, sess.id)
		h.streamer = sess
		h.broadcastAllLocked(protocol.NewLiveStatus(true))
		h.sendLocked(sess, protocol.NewPrice(h.price))
		h.sendLocked(sess, protocol.NewViewers(h.participantCountLocked()))
	} else {
		h.viewers[sess.id] = sess
		h.broadcastViewerCountLocked()
		h.sendLocked(sess, protocol.NewPrice(h.price))
		h.sendLocked(sess, protocol.NewLiveStatus(h.streamer != nil))
		if _, isBanned := h.banned[sess.username]; isBanned {
			h.sendLocked(sess, protocol.NewYouAreBanned(true))
		}
	}

	// Moderation is replicated state; a joining session rebuilds its mirror
	// from this snapshot, not from future ban events.
	h.sendLocked(sess, protocol.NewBanList(h.banListLocked()))
	h.replayLocked(sess)
	h.metrics.RecordSessionOpened(m.Role)

	h.logger.Infow("session joined",
		"connection_id", sess.id,
		"role", m.Role,
		"username", sess.username,
	)
}

// replayLocked sends the recent chat and bid history so a joining (or
// rejoining) session can rebuild its local state from scratch.
func (h *Hub) replayLocked(sess *session) {
	ctx := context.Background()

	chat, err := h.history.RecentChat(ctx, h.cfg.Hub.ChatReplay)
	if err != nil {
		h.logger.Warnw("failed to load chat history", "error", err)
	}
	for _, msg := range chat {
		h.sendLocked(sess, protocol.NewChat(msg.Username, msg.Text))
	}

	bids, err := h.history.RecentBids(ctx, h.cfg.Hub.BidReplay)
	if err != nil {
		h.logger.Warnw("failed to load bid history", "error", err)
	}
	for _, bid := range bids {
		h.sendLocked(sess, protocol.NewBid(bid.Bidder, bid.Amount))
	}
}

func (h *Hub) handleFrameLocked(sess *session, m protocol.Frame) {
	if sess != h.streamer || m.Data == "" {
		return
	}

	data, err := protocol.Encode(protocol.NewFrame(m.Data))
	if err != nil {
		return
	}

	// Latest-wins: a viewer whose queue is full misses this frame but stays
	// connected; the next frame supersedes it.
	for _, viewer := range h.viewers {
		select {
		case viewer.send <- data:
			h.metrics.RecordFrameBroadcast(len(m.Data))
		default:
			h.metrics.RecordFrameDropped()
		}
	}
}

func (h *Hub) handleChatLocked(sess *session, m protocol.Chat) {
	h.metrics.RecordMessage(string(protocol.KindChat))

	username := m.Username
	if username == "" {
		username = sess.username
	}
	username = normalizeUsername(username)

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if _, isBanned := h.banned[username]; isBanned {
		h.logger.Infow("rejecting chat from banned identity", "username", username)
		return
	}
	if !sess.allow() {
		h.logger.Warnw("chat rate limit exceeded", "connection_id", sess.id)
		return
	}

	if err := h.history.AppendChat(context.Background(), domain.ChatMessage{Username: username, Text: text}); err != nil {
		h.logger.Warnw("failed to record chat message", "error", err)
	}
	h.broadcastAllLocked(protocol.NewChat(username, text))
}

func (h *Hub) handleBidLocked(sess *session, m protocol.Bid) {
	h.metrics.RecordMessage(string(protocol.KindBid))

	username := m.Username
	if username == "" {
		username = sess.username
	}
	username = normalizeUsername(username)

	if _, isBanned := h.banned[username]; isBanned {
		h.logger.Infow("rejecting bid from banned identity", "username", username)
		return
	}
	if !sess.allow() {
		h.logger.Warnw("bid rate limit exceeded", "connection_id", sess.id)
		return
	}
	if m.Amount <= h.price {
		h.logger.Debugw("rejecting stale bid", "amount", m.Amount, "current_price", h.price)
		return
	}

	h.acceptBidLocked(username, m.Amount)
}

// handleBuyNowLocked accepts a buy-now unconditionally: the price is bumped
// by one and announced as a winning bid. Item lifecycle beyond that belongs
// to the catalog collaborator.
func (h *Hub) handleBuyNowLocked(sess *session, m protocol.BuyNow) {
	h.metrics.RecordMessage(string(protocol.KindBuyNow))

	username := m.Username
	if username == "" {
		username = sess.username
	}
	username = normalizeUsername(username)

	if _, isBanned := h.banned[username]; isBanned {
		return
	}

	h.acceptBidLocked(username, h.price+1)
}

// acceptBidLocked commits an accepted bid and broadcasts bid-then-price in a
// single causally-ordered step, so no per-channel ordering can surface a
// stale price after the bid.
func (h *Hub) acceptBidLocked(username string, amount int) {
	h.price = amount

	bid := domain.Bid{Bidder: username, Amount: amount, Timestamp: time.Now()}
	if err := h.history.AppendBid(context.Background(), bid); err != nil {
		h.logger.Warnw("failed to record bid", "error", err)
	}

	h.broadcastAllLocked(protocol.NewBid(username, amount))
	h.broadcastAllLocked(protocol.NewPrice(h.price))
}

func (h *Hub) handleBanRequestLocked(sess *session, m protocol.BanRequest) {
	h.metrics.RecordMessage(string(m.Type))

	if sess != h.streamer {
		h.logger.Warnw("ignoring moderation request from non-streamer", "connection_id", sess.id)
		return
	}

	username := strings.TrimSpace(m.Username)
	if username == "" {
		return
	}

	banned := m.Type == protocol.KindBanUser
	if banned {
		h.banned[username] = struct{}{}
	} else {
		delete(h.banned, username)
	}

	h.logger.Infow("moderation set changed", "username", username, "banned", banned)

	// Full-set snapshot to everyone, then the personal notice to every
	// session bound to the affected identity.
	h.broadcastAllLocked(protocol.NewBanList(h.banListLocked()))
	for _, viewer := range h.viewers {
		if viewer.username == username {
			h.sendLocked(viewer, protocol.NewYouAreBanned(banned))
		}
	}
}

func (h *Hub) handleSetUsernameLocked(sess *session, m protocol.SetUsername) {
	h.metrics.RecordMessage(string(protocol.KindSetUsername))

	sess.username = normalizeUsername(m.Username)

	// The gate follows the identity, not the connection.
	_, isBanned := h.banned[sess.username]
	h.sendLocked(sess, protocol.NewYouAreBanned(isBanned))
}

func (h *Hub) disconnect(sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	wasStreamer := h.streamer == sess
	if wasStreamer {
		h.streamer = nil
	} else {
		if _, ok := h.viewers[sess.id]; !ok && !sess.joined {
			// Never joined; nothing to announce.
			sess.closeSend()
			return
		}
		delete(h.viewers, sess.id)
	}
	sess.closeSend()

	if wasStreamer {
		h.broadcastAllLocked(protocol.NewLiveStatus(false))
	}
	h.broadcastViewerCountLocked()

	if sess.joined {
		h.metrics.RecordSessionClosed(sess.role, time.Since(sess.openedAt))
	}

	h.logger.Infow("session disconnected",
		"connection_id", sess.id,
		"streamer", wasStreamer,
	)
}

func (h *Hub) participantCountLocked() int {
	count := len(h.viewers)
	if h.streamer != nil {
		count++
	}
	return count
}

func (h *Hub) broadcastViewerCountLocked() {
	count := h.participantCountLocked()
	h.metrics.SetViewerCount(count)
	h.broadcastAllLocked(protocol.NewViewers(count))
}

func (h *Hub) banListLocked() []string {
	out := make([]string, 0, len(h.banned))
	for username := range h.banned {
		out = append(out, username)
	}
	return out
}

// broadcastAllLocked fans one message out to the streamer and every viewer.
// A session whose queue is full is treated as stale and dropped; it will
// reconnect and rebuild state from the join replay.
func (h *Hub) broadcastAllLocked(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Errorw("failed to encode broadcast", "error", err)
		return
	}

	if h.streamer != nil {
		h.trySendLocked(h.streamer, data)
	}
	for _, viewer := range h.viewers {
		h.trySendLocked(viewer, data)
	}
}

func (h *Hub) sendLocked(sess *session, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Errorw("failed to encode message", "error", err)
		return
	}
	h.trySendLocked(sess, data)
}

func (h *Hub) trySendLocked(sess *session, data []byte) {
	select {
	case sess.send <- data:
	default:
		h.logger.Warnw("send queue full, dropping session", "connection_id", sess.id)
		if h.streamer == sess {
			h.streamer = nil
		}
		delete(h.viewers, sess.id)
		sess.closeSend()
	}
}

func normalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.DefaultUsername
	}
	return username
}
