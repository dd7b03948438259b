package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidcast/internal/core/domain"
	"bidcast/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// readOne reads a single decoded message off a server-side connection. It
// runs on handler goroutines, so failures are reported as a nil message
// rather than through the testing API.
func readOne(conn *websocket.Conn) any {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		return nil
	}
	return msg
}

func testChannelConfig(host string) ChannelConfig {
	return ChannelConfig{
		HubHost:        host,
		Path:           "/ws",
		ReconnectDelay: 50 * time.Millisecond,
		SendBuffer:     8,
		DialTimeout:    time.Second,
	}
}

// The hub dropping a connection must trigger a reconnect after the fixed
// delay, with a brand new join handshake as the first message.
func TestChannel_ReconnectSendsFreshJoin(t *testing.T) {
	joins := make(chan protocol.Join, 4)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := readOne(conn)
		join, ok := msg.(protocol.Join)
		if ok {
			joins <- join
		}
		// Drop the connection right after the handshake.
		conn.Close()
	}))
	defer ts.Close()

	ch := NewChannel(testChannelConfig(strings.TrimPrefix(ts.URL, "http://")), zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background(), domain.RoleViewer, "alice"))
	defer ch.Close()

	for i := 0; i < 2; i++ {
		select {
		case join := <-joins:
			assert.Equal(t, domain.RoleViewer, join.Role)
			assert.Equal(t, "alice", join.Username)
		case <-time.After(3 * time.Second):
			t.Fatalf("join %d never arrived", i+1)
		}
	}
}

func TestChannel_DeliversInboundAndOutbound(t *testing.T) {
	received := make(chan any, 4)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		readOne(conn) // join handshake

		data, _ := protocol.Encode(protocol.NewPrice(7))
		conn.WriteMessage(websocket.TextMessage, data)

		if msg := readOne(conn); msg != nil {
			received <- msg
		}
	}))
	defer ts.Close()

	inbound := make(chan any, 4)
	states := make(chan ConnectionState, 8)

	ch := NewChannel(testChannelConfig(strings.TrimPrefix(ts.URL, "http://")), zap.NewNop().Sugar())
	ch.OnMessage(func(msg any) { inbound <- msg })
	ch.OnStateChange(func(state ConnectionState) { states <- state })

	require.NoError(t, ch.Open(context.Background(), domain.RoleViewer, "alice"))
	defer ch.Close()

	waitForState(t, states, StateOpen)

	require.NoError(t, ch.Send(protocol.NewChat("alice", "hi")))

	select {
	case msg := <-inbound:
		assert.Equal(t, protocol.NewPrice(7), msg)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message never delivered")
	}

	select {
	case msg := <-received:
		assert.Equal(t, protocol.NewChat("alice", "hi"), msg)
	case <-time.After(2 * time.Second):
		t.Fatal("outbound message never arrived at server")
	}
}

func TestChannel_SendBeforeOpenIsDropped(t *testing.T) {
	ch := NewChannel(testChannelConfig("localhost:1"), zap.NewNop().Sugar())
	assert.ErrorIs(t, ch.Send(protocol.NewChat("alice", "hi")), ErrNotOpen)
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	ch := NewChannel(testChannelConfig("localhost:1"), zap.NewNop().Sugar())
	require.NoError(t, ch.Open(context.Background(), domain.RoleViewer, "alice"))

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, StateClosed, ch.State())
}

func TestChannelConfig_URL(t *testing.T) {
	cfg := ChannelConfig{HubHost: "hub.example.com:8080", Path: "/ws"}
	assert.Equal(t, "ws://hub.example.com:8080/ws", cfg.URL())

	cfg.Secure = true
	assert.Equal(t, "wss://hub.example.com:8080/ws", cfg.URL())
}

func waitForState(t *testing.T, states <-chan ConnectionState, want ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s never reached", want)
		}
	}
}
