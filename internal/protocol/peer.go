package protocol

import "sort"

// Peer is a remote endpoint as seen by the local transport.
type Peer struct {
	ID        NodeID `json:"id"`
	Name      string `json:"name,omitempty"`
	Addr      string `json:"addr,omitempty"`
	Connected bool   `json:"connected"`
}

// DisplayName falls back to the address when the peer has not introduced itself yet.
func (p Peer) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Addr != "" {
		return p.Addr
	}
	return string(p.ID)
}

// SortPeers orders peers by display name, then address.
func SortPeers(peers []Peer) {
	sort.SliceStable(peers, func(i, j int) bool {
		a, b := peers[i].DisplayName(), peers[j].DisplayName()
		if a != b {
			return a < b
		}
		return peers[i].Addr < peers[j].Addr
	})
}
