package tui

import (
	"encoding/base64"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrEmptyDrop = errors.New("drop: no data")

const (
	dropSourcePaste     = "paste"
	dropSourceClipboard = "clipboard"
)

// dropLoadedMsg carries the items of one drop gesture back to the UI loop.
type dropLoadedMsg struct {
	Items  []string
	Source string
	Err    error
}

// DecodeSnapshot turns dropped plain text into a state payload.
func DecodeSnapshot(text string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(text), "")
	if cleaned == "" {
		return nil, ErrEmptyDrop
	}
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(cleaned)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// EncodeSnapshot is the inverse of DecodeSnapshot.
func EncodeSnapshot(state []byte) string {
	return base64.StdEncoding.EncodeToString(state)
}

func dropItems(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []string{text}
}

func loadPasteCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return dropLoadedMsg{Items: dropItems(text), Source: dropSourcePaste}
	}
}

func loadClipboardCmd(read func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := read()
		if err != nil {
			return dropLoadedMsg{Source: dropSourceClipboard, Err: err}
		}
		return dropLoadedMsg{Items: dropItems(text), Source: dropSourceClipboard}
	}
}
