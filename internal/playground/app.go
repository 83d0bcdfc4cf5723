// Package playground is a small host application for the history view.
//
// It owns a Document, records a step for every edit, travels back in time
// when a step is selected and adopts snapshots that arrive through a drop or
// from a peer.
package playground

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/finestructure/historyview/internal/history"
	"github.com/finestructure/historyview/internal/protocol"
	"github.com/finestructure/historyview/internal/transport"
	"github.com/finestructure/historyview/internal/tui"
)

// title, count, notes, blank line
const docHeight = 4

// Options configures an App.
type Options struct {
	View             tui.Options
	Transport        transport.Transport
	Logger           *slog.Logger
	BroadcastEnabled bool
}

// session is shared by every copy of App so store callbacks see the live
// document.
type session struct {
	doc      Document
	store    *history.Store
	log      *slog.Logger
	current  string
	lastFrom string
}

// App is the top-level tea.Model: the document above the history view.
type App struct {
	s     *session
	view  tui.Model
	keys  *tui.KeyRegistry
	inbox <-chan protocol.Message
	width int
}

type inboxMsg protocol.Message

// NewApp starts a playground on doc and records it as the first step.
func NewApp(doc Document, opts Options) App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	storeOpts := []history.Option{history.WithLogger(logger)}
	if opts.Transport != nil {
		storeOpts = append(storeOpts, history.WithBroadcaster(opts.Transport))
	}
	s := &session{
		doc:   doc.clone(),
		store: history.NewStore(nil, opts.BroadcastEnabled, storeOpts...),
		log:   logger.With("component", "playground"),
	}
	s.store.Subscribe(s.travel)
	s.store.OnReset(s.adopt)
	s.record("initial")

	viewOpts := opts.View
	if viewOpts.Logger == nil {
		viewOpts.Logger = logger
	}
	if viewOpts.Keys == nil {
		viewOpts.Keys = tui.NewKeyRegistry()
	}
	if err := RegisterKeys(viewOpts.Keys); err != nil {
		s.log.Warn("playground keys unavailable", "err", err)
	}
	a := App{s: s, keys: viewOpts.Keys}
	if opts.Transport != nil {
		if viewOpts.Peers == nil {
			viewOpts.Peers = opts.Transport
		}
		a.inbox = opts.Transport.Inbox()
	}
	a.view = tui.New(s.store, viewOpts)
	return a
}

// Document returns the document as currently shown.
func (a App) Document() Document { return a.s.doc.clone() }

// Store returns the history store.
func (a App) Store() *history.Store { return a.s.store }

// HistoryView returns the embedded history view.
func (a App) HistoryView() tui.Model { return a.view }

func (a App) Init() tea.Cmd {
	return tea.Batch(a.view.Init(), waitForInbox(a.inbox))
}

func waitForInbox(ch <-chan protocol.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return inboxMsg(msg)
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		msg.Height = max(msg.Height-docHeight, 1)
		a.view, cmd = a.view.Update(msg)
		return a, cmd
	case tea.MouseMsg:
		msg.Y -= docHeight
		a.view, cmd = a.view.Update(msg)
		return a, cmd
	case inboxMsg:
		a.receive(protocol.Message(msg))
		return a, waitForInbox(a.inbox)
	case tea.KeyMsg:
		if !msg.Paste && !a.view.Searching() && a.edit(msg.String()) {
			return a, nil
		}
	}
	a.view, cmd = a.view.Update(msg)
	return a, cmd
}

func (a *App) receive(msg protocol.Message) {
	if msg.Kind != protocol.KindReset {
		a.s.log.Debug("ignoring message", "kind", msg.Kind, "from", msg.From)
		return
	}
	a.s.lastFrom = a.senderName(msg.From)
	a.view.Dispatch(history.Reset{Payload: msg.State, Origin: history.OriginPeer})
	a.s.lastFrom = ""
}

func (a App) senderName(id protocol.NodeID) string {
	for _, p := range a.view.Peers() {
		if p.ID == id {
			return p.DisplayName()
		}
	}
	return string(id)
}

func (a *App) edit(key string) bool {
	b := a.keys.Lookup(key, KeyScope)
	if b == nil {
		return false
	}
	d := &a.s.doc
	var label string
	switch b.Action {
	case actionIncrement:
		d.Count++
		label = fmt.Sprintf("increment to %d", d.Count)
	case actionDecrement:
		d.Count--
		label = fmt.Sprintf("decrement to %d", d.Count)
	case actionAddNote:
		note := fmt.Sprintf("note %d", len(d.Notes)+1)
		d.Notes = append(d.Notes, note)
		label = "add " + note
	case actionClearNotes:
		if len(d.Notes) == 0 {
			return true
		}
		d.Notes = nil
		label = "clear notes"
	default:
		return false
	}
	a.s.record(label)
	a.view.Refresh()
	return true
}

// record appends the current document as a new step and selects it.
func (s *session) record(label string) {
	payload, err := s.doc.Encode()
	if err != nil {
		s.log.Error("encode document", "err", err)
		return
	}
	step := history.NewStep(label, payload)
	st := s.store.State()
	st.History = append(st.History, step)
	st.Selection = &step.ID
	s.current = step.ID
	s.store.Replace(st)
}

// travel restores the document of the selected step.
func (s *session) travel(st history.State) {
	step, ok := st.Selected()
	if !ok || step.ID == s.current {
		return
	}
	doc, err := DecodeDocument(step.State)
	if err != nil {
		s.log.Warn("selected step is not a document", "step", step.ID, "err", err)
		return
	}
	s.doc = doc
	s.current = step.ID
}

// adopt replaces the document with a reset payload and records it.
func (s *session) adopt(payload []byte, origin history.Origin) {
	doc, err := DecodeDocument(payload)
	if err != nil {
		s.log.Warn("reset payload is not a document", "origin", origin, "err", err)
		return
	}
	s.doc = doc
	label := "reset from drop"
	if origin == history.OriginPeer {
		label = "reset from peer"
		if s.lastFrom != "" {
			label = "reset from " + s.lastFrom
		}
	}
	s.log.Info("document adopted", "origin", origin, "bytes", len(payload))
	s.record(label)
}

var (
	docTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	docMeta  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
)

func (a App) View() string {
	d := a.s.doc
	width := a.width
	if width <= 0 {
		width = 80
	}
	title := d.Title
	if title == "" {
		title = "untitled"
	}
	notes := "no notes"
	if len(d.Notes) > 0 {
		notes = strings.Join(d.Notes, ", ")
	}
	var b strings.Builder
	b.WriteString(docTitle.Render(oneLine(title, width)))
	b.WriteString("\n")
	b.WriteString(oneLine(fmt.Sprintf("count %d", d.Count), width))
	b.WriteString("\n")
	b.WriteString(docMeta.Render(oneLine(notes, width)))
	b.WriteString("\n\n")
	b.WriteString(a.view.View())
	return b.String()
}

// oneLine keeps document text inside its row of the header.
func oneLine(s string, width int) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return ansi.Truncate(s, width, "…")
}
