package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finestructure/historyview/internal/protocol"
)

func TestInprocBroadcastReachesOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	a, b, c := hub.Join("a"), hub.Join("b"), hub.Join("c")
	for _, n := range []*Inproc{a, b, c} {
		require.NoError(t, n.Start(ctx))
	}

	require.NoError(t, a.Broadcast(protocol.NewReset([]byte("snap"))))

	for _, n := range []*Inproc{b, c} {
		select {
		case msg := <-n.Inbox():
			require.Equal(t, protocol.KindReset, msg.Kind)
			require.Equal(t, []byte("snap"), msg.State)
			require.Equal(t, a.ID(), msg.From)
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive broadcast", n.name)
		}
	}
	select {
	case <-a.Inbox():
		t.Fatal("sender received its own broadcast")
	default:
	}
}

func TestInprocRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	a, b := hub.Join("alpha"), hub.Join("beta")
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	peers := a.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, "beta", peers[0].Name)
	require.True(t, peers[0].Connected)

	require.NoError(t, b.Close())
	require.Empty(t, a.Peers())

	roster := <-a.PeerEvents()
	require.Empty(t, roster)
}

func TestInprocBroadcastBeforeStart(t *testing.T) {
	n := NewHub().Join("x")
	require.ErrorIs(t, n.Broadcast(protocol.Message{}), ErrNotStarted)
	require.NoError(t, n.Close())
	require.ErrorIs(t, n.Broadcast(protocol.Message{}), ErrClosed)
}
