package tui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/finestructure/historyview/internal/history"
	"github.com/finestructure/historyview/internal/protocol"
)

const (
	defaultWidth    = 80
	defaultPeerRows = 5
	// blank line, buttons, status, help
	footerHeight = 4
)

// Options configures a Model.
type Options struct {
	Peers         PeerSource
	Keys          *KeyRegistry
	Theme         *Theme
	Logger        *slog.Logger
	DropEnabled   bool
	PeerRows      int
	ReadClipboard func() (string, error)
}

// Model is the history view: a peer list above a selectable history list
// with delete/back/forward controls.
type Model struct {
	store         *history.Store
	peers         PeerSource
	keys          *KeyRegistry
	theme         Theme
	log           *slog.Logger
	dropEnabled   bool
	peerRows      int
	readClipboard func() (string, error)

	roster    []protocol.Peer
	cursor    int // display index, 0 is the newest step
	offset    int
	width     int
	height    int
	status    string
	searching bool
	search    textinput.Model
}

type rosterMsg []protocol.Peer

// New builds a view around an existing store so the host can observe and
// drive the same state.
func New(store *history.Store, opts Options) Model {
	if store == nil {
		store = history.NewStore(nil, false)
	}
	keys := opts.Keys
	if keys == nil {
		keys = NewKeyRegistry()
	}
	th := DefaultTheme()
	if opts.Theme != nil {
		th = *opts.Theme
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rows := opts.PeerRows
	if rows <= 0 {
		rows = defaultPeerRows
	}
	read := opts.ReadClipboard
	if read == nil {
		read = clipboard.ReadAll
	}
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "step label"
	ti.CharLimit = 64

	m := Model{
		store:         store,
		peers:         opts.Peers,
		keys:          keys,
		theme:         th,
		log:           logger.With("component", "historyview"),
		dropEnabled:   opts.DropEnabled,
		peerRows:      rows,
		readClipboard: read,
		search:        ti,
	}
	if opts.Peers != nil {
		m.roster = opts.Peers.Peers()
	}
	m.syncCursor()
	return m
}

// NewWithHistory builds a view and its store from an initial history.
func NewWithHistory(steps []history.Step, broadcastEnabled bool, opts Options, storeOpts ...history.Option) Model {
	return New(history.NewStore(steps, broadcastEnabled, storeOpts...), opts)
}

// Store returns the state container driving the view.
func (m Model) Store() *history.Store { return m.store }

// Peers returns the roster currently shown.
func (m Model) Peers() []protocol.Peer { return append([]protocol.Peer(nil), m.roster...) }

// Status returns the status line.
func (m Model) Status() string { return m.status }

// Searching reports whether the label search prompt has focus.
func (m Model) Searching() bool { return m.searching }

// Dispatch sends a to the store and keeps the cursor on the selection.
func (m *Model) Dispatch(a history.Action) {
	m.store.Dispatch(a)
	m.syncCursor()
}

// Refresh re-reads the store after the host replaced its state.
func (m *Model) Refresh() { m.syncCursor() }

func (m Model) Init() tea.Cmd {
	return waitForRoster(m.peers)
}

func waitForRoster(src PeerSource) tea.Cmd {
	if src == nil {
		return nil
	}
	ch := src.PeerEvents()
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		peers, ok := <-ch
		if !ok {
			return nil
		}
		return rosterMsg(peers)
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.search.Width = max(msg.Width-4, 10)
		m.clampOffset()
		return m, nil
	case rosterMsg:
		m.roster = []protocol.Peer(msg)
		return m, waitForRoster(m.peers)
	case dropLoadedMsg:
		m.handleDrop(msg)
		return m, nil
	case tea.MouseMsg:
		return m.handleMouse(msg)
	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKey(msg)
		}
		if msg.Paste {
			if !m.dropEnabled {
				return m, nil
			}
			return m, loadPasteCmd(string(msg.Runes))
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	b := m.keys.Lookup(msg.String(), scopeHistory)
	if b == nil {
		return m, nil
	}
	switch b.Action {
	case actionQuit:
		return m, tea.Quit
	case actionUp:
		m.moveCursor(-1)
	case actionDown:
		m.moveCursor(1)
	case actionTop:
		m.cursor = 0
		m.clampOffset()
	case actionBottom:
		m.cursor = max(len(m.store.State().History)-1, 0)
		m.clampOffset()
	case actionSelect:
		if row, ok := m.rowAt(m.cursor); ok {
			m.Dispatch(row.Tap())
		}
	case actionBack:
		m.Dispatch(history.StepBack{})
	case actionForward:
		m.Dispatch(history.StepForward{})
	case actionDelete:
		m.Dispatch(history.Delete{})
	case actionImport:
		if m.dropEnabled {
			return m, loadClipboardCmd(m.readClipboard)
		}
	case actionBroadcast:
		enabled := !m.store.State().BroadcastEnabled
		m.store.SetBroadcastEnabled(enabled)
		if enabled {
			m.status = "broadcast on"
		} else {
			m.status = "broadcast off"
		}
	case actionSearch:
		m.searching = true
		m.search.SetValue("")
		cmd := m.search.Focus()
		return m, cmd
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if b := m.keys.Lookup(msg.String(), scopeSearch); b != nil {
		switch b.Action {
		case actionConfirm:
			query := m.search.Value()
			m.searching = false
			m.search.Blur()
			if id, ok := nearestLabel(m.store.State().History, query); ok {
				m.Dispatch(history.Select{ID: id})
			}
			return m, nil
		case actionCancel:
			m.searching = false
			m.search.Blur()
			return m, nil
		case actionQuit:
			if msg.String() != "ctrl+c" {
				break
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *Model) handleDrop(msg dropLoadedMsg) {
	if msg.Err != nil {
		m.log.Debug("drop load failed", "source", msg.Source, "err", msg.Err)
		return
	}
	if len(msg.Items) == 0 {
		return
	}
	payload, err := DecodeSnapshot(msg.Items[0])
	if err != nil {
		m.log.Warn("drop decode failed", "source", msg.Source, "err", err)
		return
	}
	m.log.Info("drop adopted", "source", msg.Source, "bytes", len(payload))
	m.Dispatch(history.Reset{Payload: payload, Origin: history.OriginLocal})
	m.status = fmt.Sprintf("snapshot from %s (%d bytes)", msg.Source, len(payload))
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.moveCursor(-1)
		return m, nil
	case tea.MouseButtonWheelDown:
		m.moveCursor(1)
		return m, nil
	}
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	top := m.listTop()
	visible := m.visibleRows()
	if msg.Y >= top && msg.Y < top+visible {
		idx := m.offset + msg.Y - top
		if row, ok := m.rowAt(idx); ok {
			m.cursor = idx
			m.Dispatch(row.Tap())
		}
		return m, nil
	}
	if msg.Y == top+visible+1 {
		switch m.buttonAt(msg.X) {
		case actionDelete:
			m.Dispatch(history.Delete{})
		case actionBack:
			m.Dispatch(history.StepBack{})
		case actionForward:
			m.Dispatch(history.StepForward{})
		}
	}
	return m, nil
}

// rows returns the history newest first, as displayed.
func (m Model) rows() []RowState {
	st := m.store.State()
	n := len(st.History)
	out := make([]RowState, 0, n)
	for i := n - 1; i >= 0; i-- {
		step := st.History[i]
		out = append(out, RowState{
			Step:     step,
			Selected: st.IsSelected(step.ID),
			Cursor:   len(out) == m.cursor,
			Position: i + 1,
		})
	}
	return out
}

func (m Model) rowAt(idx int) (RowState, bool) {
	rows := m.rows()
	if idx < 0 || idx >= len(rows) {
		return RowState{}, false
	}
	return rows[idx], true
}

func (m *Model) moveCursor(delta int) {
	n := len(m.store.State().History)
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.clampOffset()
}

// syncCursor puts the cursor on the selected row, if any.
func (m *Model) syncCursor() {
	st := m.store.State()
	n := len(st.History)
	if st.Selection != nil {
		for i := n - 1; i >= 0; i-- {
			if st.History[i].ID == *st.Selection {
				m.cursor = n - 1 - i
				break
			}
		}
	}
	m.cursor = min(max(m.cursor, 0), max(n-1, 0))
	m.clampOffset()
}

func (m *Model) clampOffset() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	n := len(m.store.State().History)
	m.offset = min(max(m.offset, 0), max(n-visible, 0))
}

func (m Model) listTop() int {
	// peers block, blank line, history title
	return peersHeight(m.roster, m.peerRows) + 2
}

func (m Model) visibleRows() int {
	n := len(m.store.State().History)
	if m.height <= 0 {
		return max(n, 1)
	}
	return max(m.height-m.listTop()-footerHeight, 1)
}

func (m Model) contentWidth() int {
	if m.width > 0 {
		return m.width
	}
	return defaultWidth
}

func (m Model) buttons() (left string, right string, leftW int, backW int) {
	del := m.theme.Button.Render("Delete")
	back := m.theme.Button.Render("←")
	fwd := m.theme.Button.Render("→")
	if _, ok := m.store.State().Selected(); !ok {
		del = m.theme.ButtonMuted.Render("Delete")
	}
	return del, back + " " + fwd, lipgloss.Width(del), lipgloss.Width(back)
}

func (m Model) buttonAt(x int) Action {
	width := m.contentWidth()
	_, right, leftW, backW := m.buttons()
	rightStart := width - lipgloss.Width(right)
	switch {
	case x >= 0 && x < leftW:
		return actionDelete
	case x >= rightStart && x < rightStart+backW:
		return actionBack
	case x > rightStart+backW && x < width:
		return actionForward
	}
	return ""
}

func (m Model) View() string {
	width := m.contentWidth()
	st := m.store.State()

	var b strings.Builder
	b.WriteString(RenderPeers(m.roster, m.peerRows, width, m.theme))
	b.WriteString("\n\n")

	title := m.theme.Title.Render("History")
	flag := m.theme.Meta.Render("broadcast off")
	if st.BroadcastEnabled {
		flag = m.theme.Broadcast.Render("broadcast on")
	}
	b.WriteString(spread(title, flag, width))
	b.WriteString("\n")

	rows := m.rows()
	visible := m.visibleRows()
	if len(rows) == 0 {
		b.WriteString(m.theme.Empty.Render("  (no history)"))
		b.WriteString("\n")
		for i := 1; i < visible && m.height > 0; i++ {
			b.WriteString("\n")
		}
	} else {
		end := min(m.offset+visible, len(rows))
		for i := m.offset; i < end; i++ {
			b.WriteString(RenderRow(rows[i], width, m.theme))
			b.WriteString("\n")
		}
		for i := end - m.offset; i < visible && m.height > 0; i++ {
			b.WriteString("\n")
		}
	}

	left, right, _, _ := m.buttons()
	b.WriteString("\n")
	b.WriteString(spread(left, right, width))
	b.WriteString("\n")

	if m.searching {
		b.WriteString(m.search.View())
	} else {
		b.WriteString(m.theme.Status.Render(ansi.Truncate(m.status, width, "…")))
	}
	b.WriteString("\n")
	scope := scopeHistory
	if m.searching {
		scope = scopeSearch
	}
	b.WriteString(m.renderHelp(scope, width))
	return b.String()
}

func (m Model) renderHelp(scope string, width int) string {
	parts := make([]string, 0, 8)
	for _, h := range m.keys.helpBindings(scope) {
		help := h.Help()
		parts = append(parts, m.theme.HelpKey.Render(help.Key)+" "+m.theme.HelpDesc.Render(help.Desc))
	}
	return ansi.Truncate(strings.Join(parts, "  "), width, "…")
}

func spread(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
