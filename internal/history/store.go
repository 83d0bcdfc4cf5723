package history

import (
	"bytes"
	"log/slog"

	"github.com/finestructure/historyview/internal/protocol"
)

// Broadcaster sends a message to every connected peer. Delivery is
// fire-and-forget.
type Broadcaster interface {
	Broadcast(msg protocol.Message) error
}

// Option configures a Store.
type Option func(*Store)

// WithBroadcaster injects the transport used for Broadcast effects.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Store) { s.broadcaster = b }
}

// WithLogger sets the logger used for effect diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store owns a single State and processes actions through Reduce.
// It is not safe for concurrent use; drive it from the UI goroutine.
type Store struct {
	state       State
	broadcaster Broadcaster
	log         *slog.Logger

	subscribers []func(State)
	resetFns    []func(payload []byte, origin Origin)
}

// NewStore builds a store from an initial history.
func NewStore(history []Step, broadcastEnabled bool, opts ...Option) *Store {
	return NewStoreFromState(NewState(history, broadcastEnabled), opts...)
}

// NewStoreFromState builds a store around a prepared state.
func NewStoreFromState(state State, opts ...Option) *Store {
	s := &Store{state: state.clone().Normalize(), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state.
func (s *Store) State() State { return s.state.clone() }

// Dispatch reduces a and runs the resulting effects.
func (s *Store) Dispatch(a Action) {
	next, effects := Reduce(s.state, a)
	s.state = next
	s.notify()
	for _, eff := range effects {
		s.run(eff)
	}
}

// Replace installs a fresh state pushed by the host application.
func (s *Store) Replace(state State) {
	s.state = state.clone().Normalize()
	s.notify()
}

// SetBroadcastEnabled toggles forwarding of local resets to peers.
func (s *Store) SetBroadcastEnabled(enabled bool) {
	if s.state.BroadcastEnabled == enabled {
		return
	}
	s.state.BroadcastEnabled = enabled
	s.notify()
}

// Subscribe registers fn to observe every state change.
func (s *Store) Subscribe(fn func(State)) {
	if fn != nil {
		s.subscribers = append(s.subscribers, fn)
	}
}

// OnReset registers fn to receive adopted reset payloads.
func (s *Store) OnReset(fn func(payload []byte, origin Origin)) {
	if fn != nil {
		s.resetFns = append(s.resetFns, fn)
	}
}

func (s *Store) notify() {
	if len(s.subscribers) == 0 {
		return
	}
	snapshot := s.state.clone()
	for _, fn := range s.subscribers {
		fn(snapshot)
	}
}

func (s *Store) run(eff Effect) {
	switch e := eff.(type) {
	case Broadcast:
		if s.broadcaster == nil {
			s.log.Debug("history: broadcast dropped, no transport", "kind", e.Message.Kind)
			return
		}
		if err := s.broadcaster.Broadcast(e.Message); err != nil {
			s.log.Warn("history: broadcast failed", "kind", e.Message.Kind, "err", err)
		}
	case Adopt:
		for _, fn := range s.resetFns {
			fn(bytes.Clone(e.Payload), e.Origin)
		}
	}
}
