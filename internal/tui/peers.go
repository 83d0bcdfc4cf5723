package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/finestructure/historyview/internal/protocol"
)

// PeerSource is the read-only side of the transport the view observes.
type PeerSource interface {
	Peers() []protocol.Peer
	PeerEvents() <-chan []protocol.Peer
}

// RenderPeers renders the peer list: a title and at most rows entries.
func RenderPeers(peers []protocol.Peer, rows, width int, th Theme) string {
	lines := []string{th.Title.Render("Peers")}
	if len(peers) == 0 {
		lines = append(lines, th.Empty.Render("  (no peers)"))
		return strings.Join(lines, "\n")
	}
	sorted := append([]protocol.Peer(nil), peers...)
	protocol.SortPeers(sorted)
	shown := sorted
	if rows > 0 && len(shown) > rows {
		shown = shown[:rows]
	}
	for _, p := range shown {
		dot := th.Disconnected.Render("●")
		if p.Connected {
			dot = th.Connected.Render("●")
		}
		name := ansi.Truncate(p.DisplayName(), max(width-4, 1), "…")
		lines = append(lines, "  "+dot+" "+name)
	}
	if hidden := len(sorted) - len(shown); hidden > 0 {
		lines = append(lines, th.Meta.Render("  +"+strconv.Itoa(hidden)+" more"))
	}
	return strings.Join(lines, "\n")
}

// peersHeight is the number of lines RenderPeers produces.
func peersHeight(peers []protocol.Peer, rows int) int {
	if len(peers) == 0 {
		return 2
	}
	shown := len(peers)
	if rows > 0 && shown > rows {
		return 1 + rows + 1
	}
	return 1 + shown
}
