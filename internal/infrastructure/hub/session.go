package hub

import (
	"sync"
	"time"

	"bidcast/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// session is one connected participant. Role and username are bound by the
// join handshake and may be rebound by set_username; both are guarded by the
// hub mutex. The send queue is drained by a single writer goroutine so the
// broadcast path never blocks on a slow connection.
type session struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	send chan []byte

	role     domain.Role
	username string
	joined   bool

	limiter  *rate.Limiter
	openedAt time.Time

	closeOnce sync.Once
}

// closeSend closes the send queue exactly once; the writer goroutine then
// finishes the websocket close handshake.
func (s *session) closeSend() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// allow reports whether this session may emit another chat/bid message under
// the flood-control policy. A nil limiter means rate limiting is disabled.
func (s *session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// writePump serializes all writes to the websocket connection: queued
// messages and keepalive pings. It exits when the send queue is closed or a
// write fails, closing the underlying connection either way.
func (s *session) writePump(pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debugw("write failed", "connection_id", s.id, "error", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debugw("ping failed", "connection_id", s.id, "error", err)
				return
			}
		}
	}
}
