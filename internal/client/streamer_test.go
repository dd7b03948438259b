package client

import (
	"context"
	"testing"

	"bidcast/internal/core/domain"
	"bidcast/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStreamer(t *testing.T) (*Streamer, *fakeChannel, *Bus) {
	t.Helper()
	ch := &fakeChannel{}
	bus := NewBus()
	s := NewStreamer(ch, bus, zap.NewNop().Sugar(), "host")
	require.NoError(t, s.Start(context.Background()))
	return s, ch, bus
}

func TestStreamer_StartJoinsAsStreamer(t *testing.T) {
	_, ch, _ := newTestStreamer(t)
	assert.True(t, ch.opened)
	assert.Equal(t, domain.RoleStreamer, ch.role)
	assert.Equal(t, "host", ch.username)
}

// Each ban_list snapshot replaces the mirror wholesale.
func TestStreamer_BanListSnapshotReplaces(t *testing.T) {
	s, ch, _ := newTestStreamer(t)

	ch.deliver(protocol.NewBanList([]string{"mallory", "trudy"}))
	assert.Equal(t, []string{"mallory", "trudy"}, s.BannedIdentities())
	assert.True(t, s.IsBanned("mallory"))

	ch.deliver(protocol.NewBanList([]string{"trudy"}))
	assert.Equal(t, []string{"trudy"}, s.BannedIdentities())
	assert.False(t, s.IsBanned("mallory"))

	// Re-applying the same snapshot changes nothing.
	ch.deliver(protocol.NewBanList([]string{"trudy"}))
	assert.Equal(t, []string{"trudy"}, s.BannedIdentities())
}

func TestStreamer_RequestBanAndUnban(t *testing.T) {
	s, ch, _ := newTestStreamer(t)

	require.NoError(t, s.RequestBan("mallory"))
	require.NoError(t, s.RequestUnban("mallory"))

	assert.Equal(t, []any{
		protocol.NewBanUser("mallory"),
		protocol.NewUnbanUser("mallory"),
	}, ch.sentMessages())
}

func TestStreamer_RequestBanRejectsEmptyIdentity(t *testing.T) {
	s, ch, _ := newTestStreamer(t)

	assert.ErrorIs(t, s.RequestBan("  "), domain.ErrEmptyMessage)
	assert.ErrorIs(t, s.RequestUnban(""), domain.ErrEmptyMessage)
	assert.Empty(t, ch.sentMessages())
}

func TestStreamer_SendFramePropagatesDrop(t *testing.T) {
	s, ch, _ := newTestStreamer(t)

	require.NoError(t, s.SendFrame("data:image/jpeg;base64,abc"))
	assert.Equal(t, []any{protocol.NewFrame("data:image/jpeg;base64,abc")}, ch.sentMessages())

	ch.sendErr = ErrSendBufferFull
	assert.ErrorIs(t, s.SendFrame("data:image/jpeg;base64,def"), ErrSendBufferFull)
}

func TestStreamer_MirrorsAuction(t *testing.T) {
	s, ch, bus := newTestStreamer(t)

	var banLists [][]string
	bus.Subscribe(TopicBanList, func(payload any) {
		banLists = append(banLists, payload.([]string))
	})

	ch.deliver(protocol.NewPrice(9))
	ch.deliver(protocol.NewBid("alice", 9))
	ch.deliver(protocol.NewViewers(4))
	ch.deliver(protocol.NewBanList([]string{"mallory"}))

	assert.Equal(t, 9, s.CurrentPrice())
	assert.Equal(t, 4, s.ViewerCount())
	require.Len(t, s.Bids(0), 1)
	assert.Equal(t, [][]string{{"mallory"}}, banLists)
}
