package transport

import (
	"context"
	"sync"

	"github.com/finestructure/historyview/internal/protocol"
)

// Hub connects Inproc endpoints living in the same process.
// Handy for single-process demos and tests without sockets.
type Hub struct {
	mu      sync.RWMutex
	members map[protocol.NodeID]*Inproc
}

func NewHub() *Hub {
	return &Hub{members: make(map[protocol.NodeID]*Inproc)}
}

// Join creates an endpoint named name. It becomes visible to the other
// members once started.
func (h *Hub) Join(name string) *Inproc {
	return &Inproc{
		hub:    h,
		id:     protocol.NewNodeID(),
		name:   name,
		inbox:  make(chan protocol.Message, 256),
		events: make(chan []protocol.Peer, 1),
	}
}

func (h *Hub) add(n *Inproc) {
	h.mu.Lock()
	h.members[n.id] = n
	h.mu.Unlock()
	h.announce()
}

func (h *Hub) remove(n *Inproc) {
	h.mu.Lock()
	delete(h.members, n.id)
	h.mu.Unlock()
	h.announce()
}

func (h *Hub) announce() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.members {
		publishRoster(m.events, h.rosterFor(m.id))
	}
}

func (h *Hub) rosterFor(self protocol.NodeID) []protocol.Peer {
	out := make([]protocol.Peer, 0, len(h.members))
	for id, m := range h.members {
		if id == self {
			continue
		}
		out = append(out, protocol.Peer{ID: id, Name: m.name, Addr: "inproc:" + string(id), Connected: true})
	}
	protocol.SortPeers(out)
	return out
}

// Inproc is a Transport endpoint on a Hub.
type Inproc struct {
	hub    *Hub
	id     protocol.NodeID
	name   string
	inbox  chan protocol.Message
	events chan []protocol.Peer

	mu      sync.Mutex
	started bool
	closed  bool
}

func (n *Inproc) ID() protocol.NodeID                { return n.id }
func (n *Inproc) Inbox() <-chan protocol.Message     { return n.inbox }
func (n *Inproc) PeerEvents() <-chan []protocol.Peer { return n.events }

func (n *Inproc) Peers() []protocol.Peer {
	n.hub.mu.RLock()
	defer n.hub.mu.RUnlock()
	if _, ok := n.hub.members[n.id]; !ok {
		return nil
	}
	return n.hub.rosterFor(n.id)
}

func (n *Inproc) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.started = true
	n.mu.Unlock()
	n.hub.add(n)
	go func() {
		<-ctx.Done()
		_ = n.Close()
	}()
	return nil
}

// Broadcast delivers msg to every other member. Members whose inbox is
// full miss the message.
func (n *Inproc) Broadcast(msg protocol.Message) error {
	n.mu.Lock()
	started, closed := n.started, n.closed
	n.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case !started:
		return ErrNotStarted
	}
	if msg.From == "" {
		msg.From = n.id
	}
	n.hub.mu.RLock()
	defer n.hub.mu.RUnlock()
	for id, m := range n.hub.members {
		if id == n.id {
			continue
		}
		select {
		case m.inbox <- msg:
		default:
		}
	}
	return nil
}

func (n *Inproc) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	n.hub.remove(n)
	return nil
}
