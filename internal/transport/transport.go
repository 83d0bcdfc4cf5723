package transport

import (
	"context"
	"errors"

	"github.com/finestructure/historyview/internal/protocol"
)

var (
	ErrClosed      = errors.New("transport: closed")
	ErrOutboxFull  = errors.New("transport: outbox full")
	ErrNotStarted  = errors.New("transport: not started")
	ErrInvalidAddr = errors.New("transport: invalid address")

	// ErrDisconnected reports a dropped link that is being redialled.
	ErrDisconnected = errors.New("transport: disconnected")
)

// Transport moves messages between this node and its peers.
type Transport interface {
	Broadcast(msg protocol.Message) error
	Inbox() <-chan protocol.Message
	Peers() []protocol.Peer
	// PeerEvents delivers a fresh roster whenever a peer connects,
	// introduces itself or disconnects. Slow readers only see the latest roster.
	PeerEvents() <-chan []protocol.Peer
	Start(ctx context.Context) error
	Close() error
}

// PeerBook remembers peers that introduced themselves so they can be
// redialled later.
type PeerBook interface {
	Remember(ctx context.Context, addr, name string) error
}

// publishRoster replaces whatever roster is waiting in ch with peers.
func publishRoster(ch chan []protocol.Peer, peers []protocol.Peer) {
	for {
		select {
		case ch <- peers:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
