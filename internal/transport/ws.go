package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/finestructure/historyview/internal/protocol"
)

const (
	defaultRedial = 250 * time.Millisecond
	maxRedial     = 5 * time.Second
)

// WSOptions configures a websocket client transport.
type WSOptions struct {
	// URL of a relay room, e.g. ws://host:8081/ws/playground.
	URL  string
	ID   protocol.NodeID
	Name string
	// Redial is the first delay before reconnecting after the relay
	// drops the link. It doubles up to five seconds.
	Redial time.Duration
	Logger *slog.Logger
}

// WS implements Transport through a Relay. The relay owns the roster;
// this side only mirrors it.
type WS struct {
	url    string
	id     protocol.NodeID
	name   string
	redial time.Duration
	log    *slog.Logger

	inbox  chan protocol.Message
	outbox chan []byte
	events chan []protocol.Peer
	done   chan struct{}

	mu      sync.RWMutex
	conn    *websocket.Conn // nil while redialling
	roster  []protocol.Peer
	started bool
	closed  bool

	wmu sync.Mutex
}

func NewWS(opts WSOptions) *WS {
	id := opts.ID
	if id == "" {
		id = protocol.NewNodeID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	redial := opts.Redial
	if redial <= 0 {
		redial = defaultRedial
	}
	return &WS{
		url:    opts.URL,
		id:     id,
		name:   opts.Name,
		redial: redial,
		log:    logger.With("component", "transport", "relay", opts.URL),
		inbox:  make(chan protocol.Message, 256),
		outbox: make(chan []byte, 256),
		events: make(chan []protocol.Peer, 1),
		done:   make(chan struct{}),
	}
}

func (w *WS) ID() protocol.NodeID                { return w.id }
func (w *WS) Inbox() <-chan protocol.Message     { return w.inbox }
func (w *WS) PeerEvents() <-chan []protocol.Peer { return w.events }

func (w *WS) Peers() []protocol.Peer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]protocol.Peer(nil), w.roster...)
}

// Start dials the relay and introduces this node. A link dropped later
// is redialled until ctx ends or Close is called.
func (w *WS) Start(ctx context.Context) error {
	if w.url == "" {
		return ErrInvalidAddr
	}
	conn, err := w.connect(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	w.conn = conn
	w.started = true
	w.mu.Unlock()
	w.log.Info("relay connected", "node", w.id)

	go w.serve(ctx, conn)
	go w.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-w.done:
		}
	}()
	return nil
}

// Broadcast queues msg for the relay. It never blocks. Frames the relay
// would refuse are rejected here so the link stays up.
func (w *WS) Broadcast(msg protocol.Message) error {
	w.mu.RLock()
	started, closed, up := w.started, w.closed, w.conn != nil
	w.mu.RUnlock()
	switch {
	case closed:
		return ErrClosed
	case !started:
		return ErrNotStarted
	case !up:
		return ErrDisconnected
	}
	if msg.From == "" {
		msg.From = w.id
	}
	b, err := json.Marshal(protocol.Frame{Type: protocol.FrameMessage, From: w.id, Message: &msg})
	if err != nil {
		return err
	}
	if len(b) > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(b))
	}
	select {
	case w.outbox <- b:
		return nil
	default:
		w.log.Warn("outbox full, dropping message", "kind", msg.Kind)
		return ErrOutboxFull
	}
}

func (w *WS) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.conn = nil
	w.roster = nil
	w.mu.Unlock()
	close(w.done)
	if conn != nil {
		w.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.wmu.Unlock()
		_ = conn.Close()
	}
	publishRoster(w.events, nil)
	return nil
}

func (w *WS) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(MaxFrameSize)
	hello, err := json.Marshal(protocol.Frame{Type: protocol.FrameHello, From: w.id, Name: w.name})
	if err == nil {
		err = w.write(conn, hello)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// serve reads from conn and redials whenever the relay drops it.
func (w *WS) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		err := w.readLoop(conn)
		_ = conn.Close()
		w.mu.Lock()
		closed := w.closed
		if !closed {
			w.conn = nil
			w.roster = nil
		}
		w.mu.Unlock()
		if closed {
			return
		}
		w.log.Warn("relay read failed", "err", err)
		publishRoster(w.events, nil)

		if conn = w.reconnect(ctx); conn == nil {
			return
		}
	}
}

func (w *WS) reconnect(ctx context.Context) *websocket.Conn {
	delay := w.redial
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-w.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
		conn, err := w.connect(ctx)
		if err == nil {
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				_ = conn.Close()
				return nil
			}
			w.conn = conn
			w.mu.Unlock()
			w.log.Info("relay reconnected", "node", w.id)
			return conn
		}
		w.log.Debug("relay redial failed", "err", err, "retry", delay)
		delay = min(delay*2, maxRedial)
	}
}

func (w *WS) readLoop(conn *websocket.Conn) error {
	for {
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		switch f.Type {
		case protocol.FrameRoster:
			peers := make([]protocol.Peer, 0, len(f.Peers))
			for _, p := range f.Peers {
				if p.ID != w.id {
					peers = append(peers, p)
				}
			}
			protocol.SortPeers(peers)
			w.mu.Lock()
			w.roster = peers
			w.mu.Unlock()
			publishRoster(w.events, peers)
		case protocol.FrameMessage:
			if f.Message == nil {
				continue
			}
			msg := *f.Message
			if msg.From == "" {
				msg.From = f.From
			}
			select {
			case w.inbox <- msg:
			case <-w.done:
				return ErrClosed
			}
		default:
			w.log.Debug("unknown frame", "type", f.Type)
		}
	}
}

func (w *WS) writeLoop() {
	for {
		select {
		case <-w.done:
			return
		case b := <-w.outbox:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				w.log.Warn("relay down, dropping message")
				continue
			}
			if err := w.write(conn, b); err != nil {
				w.log.Warn("relay write failed", "err", err)
			}
		}
	}
}

func (w *WS) write(conn *websocket.Conn, b []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, b)
}
