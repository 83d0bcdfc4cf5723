package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/finestructure/historyview/internal/protocol"
)

// Backplane links relay instances so that clients attached to different
// relays still share a room.
type Backplane interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Subscribe(ctx context.Context, room string) (<-chan []byte, error)
}

// RelayOptions configures a Relay.
type RelayOptions struct {
	Backplane Backplane
	Logger    *slog.Logger
}

// Relay is a websocket hub. Clients join a room at /ws/{room}, introduce
// themselves with a HELLO frame and every MESSAGE frame they send is
// forwarded to the rest of the room.
type Relay struct {
	id       string
	bp       Backplane
	log      *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*relayRoom
}

type relayRoom struct {
	clients map[*relayClient]struct{}
	cancel  context.CancelFunc
}

type relayClient struct {
	conn *websocket.Conn
	info protocol.Peer
	wmu  sync.Mutex
}

// relayEnvelope is what travels over the backplane.
type relayEnvelope struct {
	Relay string         `json:"relay"`
	Frame protocol.Frame `json:"frame"`
}

func NewRelay(opts RelayOptions) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		id:    uuid.NewString(),
		bp:    opts.Backplane,
		log:   logger.With("component", "relay"),
		rooms: make(map[string]*relayRoom),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	r.router = mux.NewRouter()
	r.router.HandleFunc("/ws/{room}", r.serveWS).Methods(http.MethodGet)
	r.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return r
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Members returns the clients currently in room.
func (r *Relay) Members(room string) []protocol.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(room, nil)
}

func (r *Relay) serveWS(w http.ResponseWriter, req *http.Request) {
	room := mux.Vars(req)["room"]
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("upgrade failed", "remote", req.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxFrameSize)

	var hello protocol.Frame
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.FrameHello {
		r.log.Warn("expected hello", "remote", req.RemoteAddr, "err", err)
		return
	}
	c := &relayClient{
		conn: conn,
		info: protocol.Peer{ID: hello.From, Name: hello.Name, Addr: req.RemoteAddr, Connected: true},
	}
	r.join(room, c)
	defer r.leave(room, c)

	for {
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Debug("client read ended", "room", room, "peer", c.info.DisplayName(), "err", err)
			}
			return
		}
		if f.Type != protocol.FrameMessage || f.Message == nil {
			continue
		}
		f.From = c.info.ID
		r.deliver(room, c, f)
		if r.bp != nil {
			r.publish(req.Context(), room, f)
		}
	}
}

func (r *Relay) join(room string, c *relayClient) {
	r.mu.Lock()
	rm, ok := r.rooms[room]
	if !ok {
		rm = &relayRoom{clients: make(map[*relayClient]struct{})}
		r.rooms[room] = rm
		if r.bp != nil {
			ctx, cancel := context.WithCancel(context.Background())
			rm.cancel = cancel
			go r.follow(ctx, room)
		}
	}
	rm.clients[c] = struct{}{}
	r.mu.Unlock()
	r.log.Info("client joined", "room", room, "peer", c.info.DisplayName())
	r.announce(room)
}

func (r *Relay) leave(room string, c *relayClient) {
	r.mu.Lock()
	rm, ok := r.rooms[room]
	if ok {
		delete(rm.clients, c)
		if len(rm.clients) == 0 {
			if rm.cancel != nil {
				rm.cancel()
			}
			delete(r.rooms, room)
		}
	}
	r.mu.Unlock()
	r.log.Info("client left", "room", room, "peer", c.info.DisplayName())
	r.announce(room)
}

// announce sends every member the roster of the others.
func (r *Relay) announce(room string) {
	r.mu.Lock()
	rm, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return
	}
	type update struct {
		c     *relayClient
		peers []protocol.Peer
	}
	updates := make([]update, 0, len(rm.clients))
	for c := range rm.clients {
		updates = append(updates, update{c: c, peers: r.membersLocked(room, c)})
	}
	r.mu.Unlock()
	for _, u := range updates {
		if err := u.c.write(protocol.Frame{Type: protocol.FrameRoster, Peers: u.peers}); err != nil {
			r.log.Debug("roster write failed", "peer", u.c.info.DisplayName(), "err", err)
		}
	}
}

func (r *Relay) membersLocked(room string, except *relayClient) []protocol.Peer {
	rm, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]protocol.Peer, 0, len(rm.clients))
	for c := range rm.clients {
		if c != except {
			out = append(out, c.info)
		}
	}
	protocol.SortPeers(out)
	return out
}

// deliver writes f to every client in room except from.
func (r *Relay) deliver(room string, from *relayClient, f protocol.Frame) {
	r.mu.Lock()
	var targets []*relayClient
	if rm, ok := r.rooms[room]; ok {
		targets = make([]*relayClient, 0, len(rm.clients))
		for c := range rm.clients {
			if c != from {
				targets = append(targets, c)
			}
		}
	}
	r.mu.Unlock()
	for _, c := range targets {
		if err := c.write(f); err != nil {
			r.log.Warn("relay write failed", "room", room, "peer", c.info.DisplayName(), "err", err)
		}
	}
}

func (r *Relay) publish(ctx context.Context, room string, f protocol.Frame) {
	payload, err := json.Marshal(relayEnvelope{Relay: r.id, Frame: f})
	if err != nil {
		r.log.Warn("encode envelope", "err", err)
		return
	}
	if err := r.bp.Publish(ctx, room, payload); err != nil {
		r.log.Warn("backplane publish failed", "room", room, "err", err)
	}
}

// follow forwards frames published by other relays into the local room.
func (r *Relay) follow(ctx context.Context, room string) {
	ch, err := r.bp.Subscribe(ctx, room)
	if err != nil {
		r.log.Warn("backplane subscribe failed", "room", room, "err", err)
		return
	}
	for payload := range ch {
		var env relayEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			r.log.Debug("bad envelope", "room", room, "err", err)
			continue
		}
		if env.Relay == r.id || env.Frame.Type != protocol.FrameMessage {
			continue
		}
		r.deliver(room, nil, env.Frame)
	}
}

func (c *relayClient) write(f protocol.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(f)
}
