package repository

import "time"

// KnownPeer represents a known_peers row.
type KnownPeer struct {
	Addr      string
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
	AutoDial  bool
}
