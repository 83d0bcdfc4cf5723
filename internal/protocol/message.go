package protocol

type Kind string

const (
	KindReset Kind = "reset"
)

// Message is the payload exchanged between peers. State is opaque to
// everything below the host application.
type Message struct {
	Kind   Kind   `json:"kind"`
	Action string `json:"action"`
	State  []byte `json:"state,omitempty"`
	From   NodeID `json:"from,omitempty"`
}

// NewReset builds a reset message carrying a full state snapshot.
func NewReset(state []byte) Message {
	return Message{Kind: KindReset, State: state}
}

type FrameType string

const (
	FrameHello   FrameType = "HELLO"
	FrameMessage FrameType = "MESSAGE"
	// FrameRoster is sent by a relay to list the other members of a room.
	FrameRoster FrameType = "ROSTER"
)

// Frame is the unit written on the wire. Every connection opens with a
// HELLO frame naming the sender.
type Frame struct {
	Type    FrameType `json:"type"`
	From    NodeID    `json:"from"`
	Name    string    `json:"name,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Peers   []Peer    `json:"peers,omitempty"`
}
