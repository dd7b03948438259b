package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidcast/internal/core/domain"
	"bidcast/internal/infrastructure/monitoring"
	"bidcast/internal/infrastructure/repositories/memory"
	"bidcast/internal/protocol"
	"bidcast/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// nopMetrics satisfies the collector interface without touching a registry,
// so every test gets a fresh, side-effect-free instance.
type nopMetrics struct{}

func (nopMetrics) RecordSessionOpened(domain.Role)                {}
func (nopMetrics) RecordSessionClosed(domain.Role, time.Duration) {}
func (nopMetrics) SetViewerCount(int)                             {}
func (nopMetrics) RecordMessage(string)                           {}
func (nopMetrics) RecordFrameBroadcast(int)                       {}
func (nopMetrics) RecordFrameDropped()                            {}
func (nopMetrics) RecordMalformedMessage()                        {}

func newTestServer(t *testing.T) (*Hub, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	log := zap.NewNop().Sugar()

	h := NewHub(cfg, memory.NewMemoryHistoryRepository(), nopMetrics{}, log)
	srv := NewServer(h, cfg, monitoring.NewHealthChecker(), log)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Hub.Path
	return h, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readNext(t *testing.T, conn *websocket.Conn) any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(raw)
	require.NoError(t, err)
	return msg
}

// awaitMessage reads until a message of type T arrives, skipping everything
// else. Used where interleaved broadcasts make strict ordering irrelevant.
func awaitMessage[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readNext(t, conn)
		if v, ok := msg.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("timed out waiting for %T", zero)
	return zero
}

func TestViewerJoin_InitialState(t *testing.T) {
	_, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	sendMsg(t, conn, protocol.NewJoin(domain.RoleViewer, "alice"))

	assert.Equal(t, protocol.NewViewers(1), readNext(t, conn))
	assert.Equal(t, protocol.NewPrice(domain.StartingPrice), readNext(t, conn))
	assert.Equal(t, protocol.NewLiveStatus(false), readNext(t, conn))
	assert.Equal(t, protocol.NewBanList(nil), readNext(t, conn))
}

func TestStreamerJoin_AnnouncesLive(t *testing.T) {
	_, wsURL := newTestServer(t)

	streamer := dial(t, wsURL)
	sendMsg(t, streamer, protocol.NewJoin(domain.RoleStreamer, "host"))

	assert.Equal(t, protocol.NewLiveStatus(true), readNext(t, streamer))
	assert.Equal(t, protocol.NewPrice(domain.StartingPrice), readNext(t, streamer))
	assert.Equal(t, protocol.NewViewers(1), readNext(t, streamer))

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "alice"))

	assert.Equal(t, protocol.NewViewers(2), readNext(t, viewer))
	assert.Equal(t, protocol.NewPrice(domain.StartingPrice), readNext(t, viewer))
	assert.Equal(t, protocol.NewLiveStatus(true), readNext(t, viewer))

	// The streamer sees the registry change too.
	assert.Equal(t, protocol.NewViewers(2), awaitMessage[protocol.Viewers](t, streamer))
}

func TestChat_BroadcastAndReplayOnJoin(t *testing.T) {
	_, wsURL := newTestServer(t)

	first := dial(t, wsURL)
	sendMsg(t, first, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.LiveStatus](t, first)

	sendMsg(t, first, protocol.NewChat("alice", "hello"))
	assert.Equal(t, protocol.NewChat("alice", "hello"), awaitMessage[protocol.Chat](t, first))

	// A later join replays the chat so the newcomer can rebuild state.
	second := dial(t, wsURL)
	sendMsg(t, second, protocol.NewJoin(domain.RoleViewer, "bob"))
	assert.Equal(t, protocol.NewChat("alice", "hello"), awaitMessage[protocol.Chat](t, second))
}

func TestChat_EmptyAfterTrimIsDropped(t *testing.T) {
	h, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	sendMsg(t, conn, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.LiveStatus](t, conn)

	sendMsg(t, conn, protocol.NewChat("alice", "   \n\t "))
	sendMsg(t, conn, protocol.NewChat("alice", "real"))

	// Only the real message comes through.
	assert.Equal(t, protocol.NewChat("alice", "real"), awaitMessage[protocol.Chat](t, conn))
	assert.Equal(t, 1, h.ParticipantCount())
}

func TestBid_AcceptedThenStaleRejected(t *testing.T) {
	h, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	sendMsg(t, conn, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.BanList](t, conn)

	sendMsg(t, conn, protocol.NewBid("alice", 5))
	// Accepted bids broadcast bid then price, in that order.
	assert.Equal(t, protocol.NewBid("alice", 5), readNext(t, conn))
	assert.Equal(t, protocol.NewPrice(5), readNext(t, conn))

	// A bid at or below the current price vanishes without a trace.
	sendMsg(t, conn, protocol.NewBid("alice", 5))
	sendMsg(t, conn, protocol.NewBid("alice", 3))

	sendMsg(t, conn, protocol.NewBid("alice", 6))
	assert.Equal(t, protocol.NewBid("alice", 6), readNext(t, conn))
	assert.Equal(t, protocol.NewPrice(6), readNext(t, conn))

	assert.Equal(t, 6, h.CurrentPrice())
}

func TestBuyNow_BumpsPriceByOne(t *testing.T) {
	h, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	sendMsg(t, conn, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.BanList](t, conn)

	sendMsg(t, conn, protocol.NewBuyNow("alice"))
	assert.Equal(t, protocol.NewBid("alice", domain.StartingPrice+1), readNext(t, conn))
	assert.Equal(t, protocol.NewPrice(domain.StartingPrice+1), readNext(t, conn))
	assert.Equal(t, domain.StartingPrice+1, h.CurrentPrice())
}

func TestBidReplay_OnJoin(t *testing.T) {
	_, wsURL := newTestServer(t)

	first := dial(t, wsURL)
	sendMsg(t, first, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.LiveStatus](t, first)
	sendMsg(t, first, protocol.NewBid("alice", 4))
	awaitMessage[protocol.Price](t, first)

	second := dial(t, wsURL)
	sendMsg(t, second, protocol.NewJoin(domain.RoleViewer, "bob"))
	assert.Equal(t, protocol.NewBid("alice", 4), awaitMessage[protocol.Bid](t, second))
}

func TestBan_GatesIdentityAndNotifies(t *testing.T) {
	_, wsURL := newTestServer(t)

	streamer := dial(t, wsURL)
	sendMsg(t, streamer, protocol.NewJoin(domain.RoleStreamer, "host"))
	awaitMessage[protocol.BanList](t, streamer)

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "mallory"))
	awaitMessage[protocol.BanList](t, viewer)

	sendMsg(t, streamer, protocol.NewBanUser("mallory"))

	list := awaitMessage[protocol.BanList](t, streamer)
	assert.Equal(t, []string{"mallory"}, list.Banned)
	notice := awaitMessage[protocol.YouAreBanned](t, viewer)
	assert.True(t, notice.Banned)

	// Chat from the banned identity is suppressed hub-side.
	sendMsg(t, viewer, protocol.NewChat("mallory", "let me in"))
	sendMsg(t, streamer, protocol.NewChat("host", "moving on"))
	assert.Equal(t, protocol.NewChat("host", "moving on"), awaitMessage[protocol.Chat](t, streamer))

	// Unban restores both the snapshot and the personal gate.
	sendMsg(t, streamer, protocol.NewUnbanUser("mallory"))
	list = awaitMessage[protocol.BanList](t, viewer)
	assert.Empty(t, list.Banned)
	notice = awaitMessage[protocol.YouAreBanned](t, viewer)
	assert.False(t, notice.Banned)
}

func TestBan_NonStreamerRequestIgnored(t *testing.T) {
	_, wsURL := newTestServer(t)

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.BanList](t, viewer)

	sendMsg(t, viewer, protocol.NewBanUser("bob"))
	sendMsg(t, viewer, protocol.NewChat("alice", "still here"))

	// No ban_list snapshot precedes the chat; the request went nowhere.
	assert.Equal(t, protocol.NewChat("alice", "still here"), readNext(t, viewer))
}

func TestSetUsername_BanFollowsIdentity(t *testing.T) {
	_, wsURL := newTestServer(t)

	streamer := dial(t, wsURL)
	sendMsg(t, streamer, protocol.NewJoin(domain.RoleStreamer, "host"))
	awaitMessage[protocol.Viewers](t, streamer)
	sendMsg(t, streamer, protocol.NewBanUser("bob"))
	awaitMessage[protocol.BanList](t, streamer)

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.LiveStatus](t, viewer)

	sendMsg(t, viewer, protocol.NewSetUsername("bob"))
	notice := awaitMessage[protocol.YouAreBanned](t, viewer)
	assert.True(t, notice.Banned)
}

func TestBan_RejoinReceivesSnapshot(t *testing.T) {
	_, wsURL := newTestServer(t)

	streamer := dial(t, wsURL)
	sendMsg(t, streamer, protocol.NewJoin(domain.RoleStreamer, "host"))
	awaitMessage[protocol.BanList](t, streamer)

	sendMsg(t, streamer, protocol.NewBanUser("mallory"))
	list := awaitMessage[protocol.BanList](t, streamer)
	assert.Equal(t, []string{"mallory"}, list.Banned)

	streamer.Close()

	// A rejoining streamer rebuilds its moderation mirror from the join
	// snapshot, not from the next ban event.
	rejoined := dial(t, wsURL)
	sendMsg(t, rejoined, protocol.NewJoin(domain.RoleStreamer, "host"))
	list = awaitMessage[protocol.BanList](t, rejoined)
	assert.Equal(t, []string{"mallory"}, list.Banned)
}

func TestJoin_ViewerPromotedToStreamerNotDoubleCounted(t *testing.T) {
	h, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	sendMsg(t, conn, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.BanList](t, conn)

	sendMsg(t, conn, protocol.NewJoin(domain.RoleStreamer, "alice"))
	awaitMessage[protocol.BanList](t, conn)
	assert.Equal(t, 1, h.ParticipantCount())

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "bob"))
	awaitMessage[protocol.BanList](t, viewer)

	// Each broadcast reaches the promoted session exactly once.
	sendMsg(t, viewer, protocol.NewChat("bob", "ping"))
	sendMsg(t, viewer, protocol.NewChat("bob", "pong"))
	assert.Equal(t, protocol.NewChat("bob", "ping"), awaitMessage[protocol.Chat](t, conn))
	assert.Equal(t, protocol.NewChat("bob", "pong"), awaitMessage[protocol.Chat](t, conn))
}

func TestFrame_OnlyStreamerSourcesFrames(t *testing.T) {
	_, wsURL := newTestServer(t)

	streamer := dial(t, wsURL)
	sendMsg(t, streamer, protocol.NewJoin(domain.RoleStreamer, "host"))
	awaitMessage[protocol.Viewers](t, streamer)

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.LiveStatus](t, viewer)

	// A viewer-sent frame must never be fanned out.
	sendMsg(t, viewer, protocol.NewFrame("forged"))
	sendMsg(t, streamer, protocol.NewFrame("genuine"))

	frame := awaitMessage[protocol.Frame](t, viewer)
	assert.Equal(t, "genuine", frame.Data)
}

func TestStreamerEviction_SecondJoinWins(t *testing.T) {
	h, wsURL := newTestServer(t)

	first := dial(t, wsURL)
	sendMsg(t, first, protocol.NewJoin(domain.RoleStreamer, "host-1"))
	awaitMessage[protocol.Viewers](t, first)

	second := dial(t, wsURL)
	sendMsg(t, second, protocol.NewJoin(domain.RoleStreamer, "host-2"))
	awaitMessage[protocol.Viewers](t, second)

	// The evicted connection is closed by the hub.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.Equal(t, 1, h.ParticipantCount())
}

func TestStreamerDisconnect_EndsLive(t *testing.T) {
	_, wsURL := newTestServer(t)

	streamer := dial(t, wsURL)
	sendMsg(t, streamer, protocol.NewJoin(domain.RoleStreamer, "host"))
	awaitMessage[protocol.Viewers](t, streamer)

	viewer := dial(t, wsURL)
	sendMsg(t, viewer, protocol.NewJoin(domain.RoleViewer, "alice"))
	assert.Equal(t, protocol.NewLiveStatus(true), awaitMessage[protocol.LiveStatus](t, viewer))

	streamer.Close()

	assert.Equal(t, protocol.NewLiveStatus(false), awaitMessage[protocol.LiveStatus](t, viewer))
	assert.Equal(t, protocol.NewViewers(1), awaitMessage[protocol.Viewers](t, viewer))
}

func TestMalformedMessage_DoesNotDisconnect(t *testing.T) {
	_, wsURL := newTestServer(t)

	conn := dial(t, wsURL)
	sendMsg(t, conn, protocol.NewJoin(domain.RoleViewer, "alice"))
	awaitMessage[protocol.LiveStatus](t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))

	sendMsg(t, conn, protocol.NewChat("alice", "still alive"))
	assert.Equal(t, protocol.NewChat("alice", "still alive"), awaitMessage[protocol.Chat](t, conn))
}
