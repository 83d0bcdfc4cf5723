package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/finestructure/historyview/internal/protocol"
)

const (
	dialTimeout   = 5 * time.Second
	writeDeadline = 5 * time.Second
)

// TCPOptions configures a TCP transport.
type TCPOptions struct {
	Addr   string
	ID     protocol.NodeID
	Name   string
	Book   PeerBook
	Logger *slog.Logger
}

// TCP implements Transport with a fan-out writer and per-conn readers.
// Every message passed to Broadcast is written to all connected peers.
type TCP struct {
	addr string
	id   protocol.NodeID
	name string
	book PeerBook
	log  *slog.Logger

	inbox  chan protocol.Message
	outbox chan protocol.Message
	events chan []protocol.Peer

	ln      net.Listener
	ctx     context.Context
	started bool
	closed  bool

	mu    sync.RWMutex
	peers map[string]*tcpPeer // addr -> peer
}

type tcpPeer struct {
	conn   net.Conn
	info   protocol.Peer
	dialed bool
	wmu    sync.Mutex
}

func NewTCP(opts TCPOptions) *TCP {
	id := opts.ID
	if id == "" {
		id = protocol.NewNodeID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TCP{
		addr:   opts.Addr,
		id:     id,
		name:   opts.Name,
		book:   opts.Book,
		log:    logger.With("component", "transport"),
		inbox:  make(chan protocol.Message, 256),
		outbox: make(chan protocol.Message, 256),
		events: make(chan []protocol.Peer, 1),
		peers:  make(map[string]*tcpPeer),
	}
}

func (t *TCP) ID() protocol.NodeID                { return t.id }
func (t *TCP) Inbox() <-chan protocol.Message     { return t.inbox }
func (t *TCP) PeerEvents() <-chan []protocol.Peer { return t.events }

// Addr returns the bound listen address once started.
func (t *TCP) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ln != nil {
		return t.ln.Addr().String()
	}
	return t.addr
}

func (t *TCP) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.ln = ln
	t.ctx = ctx
	t.started = true
	t.mu.Unlock()
	t.log.Info("tcp listening", "addr", ln.Addr().String(), "node", t.id)

	// accept loop
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				t.log.Warn("accept error", "err", err)
				continue
			}
			t.attach(ctx, c.RemoteAddr().String(), c, false)
		}
	}()

	// broadcast write loop
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = t.Close()
				return
			case msg := <-t.outbox:
				t.fanOut(msg)
			}
		}
	}()
	return nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.ln != nil {
		_ = t.ln.Close()
	}
	peers := t.peers
	t.peers = map[string]*tcpPeer{}
	t.mu.Unlock()
	for _, p := range peers {
		_ = p.conn.Close()
	}
	publishRoster(t.events, nil)
	return nil
}

// Broadcast queues msg for every connected peer. It never blocks.
func (t *TCP) Broadcast(msg protocol.Message) error {
	t.mu.RLock()
	started, closed := t.started, t.closed
	t.mu.RUnlock()
	switch {
	case closed:
		return ErrClosed
	case !started:
		return ErrNotStarted
	}
	if msg.From == "" {
		msg.From = t.id
	}
	select {
	case t.outbox <- msg:
		return nil
	default:
		t.log.Warn("outbox full, dropping message", "kind", msg.Kind)
		return ErrOutboxFull
	}
}

// AddPeer dials a remote and registers it as a peer.
func (t *TCP) AddPeer(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ErrInvalidAddr
	}
	t.mu.RLock()
	ctx, started, closed := t.ctx, t.started, t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotStarted
	}
	d := net.Dialer{Timeout: dialTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	t.attach(ctx, addr, c, true)
	return nil
}

func (t *TCP) Peers() []protocol.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rosterLocked()
}

func (t *TCP) rosterLocked() []protocol.Peer {
	out := make([]protocol.Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p.info)
	}
	protocol.SortPeers(out)
	return out
}

func (t *TCP) attach(ctx context.Context, addr string, c net.Conn, dialed bool) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	p := &tcpPeer{conn: c, dialed: dialed, info: protocol.Peer{Addr: addr, Connected: true}}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = c.Close()
		return
	}
	if old, ok := t.peers[addr]; ok {
		_ = old.conn.Close()
	}
	t.peers[addr] = p
	roster := t.rosterLocked()
	t.mu.Unlock()
	t.log.Info("peer connected", "addr", addr, "dialed", dialed)
	publishRoster(t.events, roster)

	hello := protocol.Frame{Type: protocol.FrameHello, From: t.id, Name: t.name}
	if err := t.write(p, hello); err != nil {
		t.log.Warn("hello failed", "addr", addr, "err", err)
	}
	go t.readLoop(ctx, addr, p)
}

func (t *TCP) readLoop(ctx context.Context, addr string, p *tcpPeer) {
	defer t.detach(addr, p)

	r := bufio.NewReader(p.conn)
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := Decode(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			t.log.Warn("read error", "addr", addr, "err", err)
			return
		}
		switch f.Type {
		case protocol.FrameHello:
			t.introduce(ctx, addr, p, f)
		case protocol.FrameMessage:
			if f.Message == nil {
				continue
			}
			msg := *f.Message
			if msg.From == "" {
				msg.From = f.From
			}
			select {
			case t.inbox <- msg:
			case <-ctx.Done():
				return
			}
		default:
			t.log.Debug("unknown frame", "addr", addr, "type", f.Type)
		}
	}
}

func (t *TCP) introduce(ctx context.Context, addr string, p *tcpPeer, f protocol.Frame) {
	if f.From == t.id {
		t.log.Debug("dropping connection to self", "addr", addr)
		_ = p.conn.Close()
		return
	}
	t.mu.Lock()
	p.info.ID = f.From
	p.info.Name = f.Name
	var loser *tcpPeer
	for key, other := range t.peers {
		if other == p || other.info.ID != f.From {
			continue
		}
		if loser = t.duplicate(p, other); loser != nil {
			winner := p
			if loser == p {
				winner, key = other, addr
			}
			if loser.dialed && !winner.dialed {
				winner.info.Addr = loser.info.Addr
			}
			delete(t.peers, key)
		}
		break
	}
	roster := t.rosterLocked()
	t.mu.Unlock()
	if loser != nil {
		t.log.Info("dropping duplicate connection", "peer", f.From, "addr", loser.info.Addr, "dialed", loser.dialed)
		_ = loser.conn.Close()
	}
	publishRoster(t.events, roster)
	if p.dialed && t.book != nil {
		if err := t.book.Remember(ctx, addr, f.Name); err != nil {
			t.log.Warn("remember peer failed", "addr", addr, "err", err)
		}
	}
}

// duplicate picks which of two connections to the same node to close.
// When the nodes dialled each other both sides keep the connection dialled
// by the lower NodeID. A second dial in the same direction loses to the
// first; only the dialling side closes it. Returns nil to keep both.
func (t *TCP) duplicate(p, other *tcpPeer) *tcpPeer {
	if p.dialed != other.dialed {
		if p.dialed == (t.id < p.info.ID) {
			return other
		}
		return p
	}
	if p.dialed {
		return p
	}
	return nil
}

func (t *TCP) detach(addr string, p *tcpPeer) {
	_ = p.conn.Close()
	t.mu.Lock()
	if cur, ok := t.peers[addr]; ok && cur == p {
		delete(t.peers, addr)
	}
	closed := t.closed
	roster := t.rosterLocked()
	t.mu.Unlock()
	if !closed {
		publishRoster(t.events, roster)
	}
	t.log.Info("peer disconnected", "addr", addr)
}

func (t *TCP) fanOut(msg protocol.Message) {
	f := protocol.Frame{Type: protocol.FrameMessage, From: t.id, Message: &msg}
	// snapshot of peers to avoid holding lock while writing
	t.mu.RLock()
	peers := make([]*tcpPeer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.RUnlock()
	for _, p := range peers {
		if err := t.write(p, f); err != nil {
			t.log.Warn("write error", "addr", p.info.Addr, "err", err)
		}
	}
}

func (t *TCP) write(p *tcpPeer, f protocol.Frame) error {
	frame, err := Encode(f)
	if err != nil {
		return err
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err = p.conn.Write(frame)
	return err
}
