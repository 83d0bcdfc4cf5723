package playground

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"

	"github.com/finestructure/historyview/internal/config"
	"github.com/finestructure/historyview/internal/logging"
	"github.com/finestructure/historyview/internal/protocol"
	"github.com/finestructure/historyview/internal/transport"
	"github.com/finestructure/historyview/internal/tui"
)

type fakeTransport struct {
	sent   []protocol.Message
	inbox  chan protocol.Message
	peers  []protocol.Peer
	events chan []protocol.Peer
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:  make(chan protocol.Message, 4),
		events: make(chan []protocol.Peer, 1),
	}
}

func (f *fakeTransport) Broadcast(msg protocol.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeTransport) Inbox() <-chan protocol.Message     { return f.inbox }
func (f *fakeTransport) Peers() []protocol.Peer             { return f.peers }
func (f *fakeTransport) PeerEvents() <-chan []protocol.Peer { return f.events }
func (f *fakeTransport) Start(context.Context) error        { return nil }
func (f *fakeTransport) Close() error                       { return nil }

func newTestApp(t *testing.T, broadcast bool) (App, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	app := NewApp(Document{Title: "demo"}, Options{
		View:             tui.Options{DropEnabled: true},
		Transport:        tr,
		Logger:           logging.Discard(),
		BroadcastEnabled: broadcast,
	})
	return app, tr
}

func update(t *testing.T, app App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	next, cmd := app.Update(msg)
	out, ok := next.(App)
	require.True(t, ok)
	return out, cmd
}

func keys(t *testing.T, app App, ks ...string) App {
	t.Helper()
	for _, k := range ks {
		var msg tea.KeyMsg
		switch k {
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		app, _ = update(t, app, msg)
	}
	return app
}

func snapshot(t *testing.T, d Document) []byte {
	t.Helper()
	b, err := d.Encode()
	require.NoError(t, err)
	return b
}

func paste(t *testing.T, app App, text string) App {
	t.Helper()
	app, cmd := update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text), Paste: true})
	require.NotNil(t, cmd)
	app, _ = update(t, app, cmd())
	return app
}

func TestNewAppRecordsInitialStep(t *testing.T) {
	app, _ := newTestApp(t, false)
	st := app.Store().State()
	require.Len(t, st.History, 1)
	require.Equal(t, "initial", st.History[0].Label)
	require.True(t, st.IsSelected(st.History[0].ID))
	require.Equal(t, "demo", app.Document().Title)
}

func TestEditsRecordSteps(t *testing.T) {
	app, _ := newTestApp(t, false)
	app = keys(t, app, "+", "+", "n")

	doc := app.Document()
	require.Equal(t, 2, doc.Count)
	require.Equal(t, []string{"note 1"}, doc.Notes)

	st := app.Store().State()
	require.Len(t, st.History, 4)
	require.Equal(t, "add note 1", st.History[3].Label)
	require.True(t, st.IsSelected(st.History[3].ID))
}

func TestClearWithoutNotesRecordsNothing(t *testing.T) {
	app, _ := newTestApp(t, false)
	app = keys(t, app, "x")
	require.Len(t, app.Store().State().History, 1)
}

func TestStepBackRestoresDocument(t *testing.T) {
	app, _ := newTestApp(t, false)
	app = keys(t, app, "+", "+", "+")
	require.Equal(t, 3, app.Document().Count)

	app = keys(t, app, "left", "left")
	require.Equal(t, 1, app.Document().Count)

	app = keys(t, app, "right")
	require.Equal(t, 2, app.Document().Count)
	require.Len(t, app.Store().State().History, 4)
}

func TestDropAdoptsAndBroadcasts(t *testing.T) {
	app, tr := newTestApp(t, true)
	payload := snapshot(t, Document{Title: "dropped", Count: 7})

	app = paste(t, app, tui.EncodeSnapshot(payload))

	require.Equal(t, "dropped", app.Document().Title)
	require.Equal(t, 7, app.Document().Count)
	st := app.Store().State()
	require.Len(t, st.History, 2)
	require.Equal(t, "reset from drop", st.History[1].Label)
	require.True(t, st.IsSelected(st.History[1].ID))

	require.Len(t, tr.sent, 1)
	require.Equal(t, protocol.KindReset, tr.sent[0].Kind)
	require.Equal(t, payload, tr.sent[0].State)
}

func TestDropWithBroadcastOffStaysLocal(t *testing.T) {
	app, tr := newTestApp(t, false)
	app = paste(t, app, tui.EncodeSnapshot(snapshot(t, Document{Count: 3})))
	require.Equal(t, 3, app.Document().Count)
	require.Empty(t, tr.sent)
}

func TestDropOfForeignPayloadIsIgnored(t *testing.T) {
	app, tr := newTestApp(t, true)
	app = paste(t, app, tui.EncodeSnapshot([]byte(`{"unrelated":true}`)))

	require.Equal(t, "demo", app.Document().Title)
	require.Len(t, app.Store().State().History, 1)
	// the reset itself still goes out; peers decide whether they can adopt it
	require.Len(t, tr.sent, 1)
}

func TestPeerResetIsAdoptedWithoutEcho(t *testing.T) {
	tr := newFakeTransport()
	tr.peers = []protocol.Peer{{ID: "n-bob", Name: "bob", Connected: true}}
	app := NewApp(Document{Title: "demo"}, Options{
		Transport:        tr,
		Logger:           logging.Discard(),
		BroadcastEnabled: true,
	})

	tr.inbox <- protocol.Message{Kind: protocol.KindReset, State: snapshot(t, Document{Title: "remote", Count: 9}), From: "n-bob"}
	msg := waitForInbox(tr.Inbox())()
	app, next := update(t, app, msg)
	require.NotNil(t, next, "inbox is re-armed")

	require.Equal(t, "remote", app.Document().Title)
	st := app.Store().State()
	require.Equal(t, "reset from bob", st.History[len(st.History)-1].Label)
	require.Empty(t, tr.sent)
}

func TestUnknownMessageKindIgnored(t *testing.T) {
	app, _ := newTestApp(t, true)
	app, _ = update(t, app, inboxMsg(protocol.Message{Kind: "chat"}))
	require.Len(t, app.Store().State().History, 1)
}

func TestViewShowsDocumentAboveHistory(t *testing.T) {
	app, _ := newTestApp(t, false)
	app, _ = update(t, app, tea.WindowSizeMsg{Width: 60, Height: 24})
	app = keys(t, app, "n")

	lines := strings.Split(app.View(), "\n")
	require.Len(t, lines, 24)
	require.Contains(t, lines[0], "demo")
	require.Contains(t, lines[1], "count 0")
	require.Contains(t, lines[2], "note 1")
	require.Contains(t, app.View(), "add note 1")
}

func TestViewKeepsLongDocumentInsideHeader(t *testing.T) {
	tr := newFakeTransport()
	app := NewApp(Document{Title: strings.Repeat("title ", 20) + "\nsecond line"}, Options{
		Transport: tr,
		Logger:    logging.Discard(),
	})
	app, _ = update(t, app, tea.WindowSizeMsg{Width: 30, Height: 24})
	app = keys(t, app, "n", "n", "n", "n", "n", "n")

	lines := strings.Split(app.View(), "\n")
	require.Len(t, lines, 24)
	for i := 0; i < docHeight; i++ {
		require.LessOrEqual(t, ansi.StringWidth(lines[i]), 30, "header line %d: %q", i, lines[i])
	}
	require.Contains(t, lines[1], "count 0")
	require.Empty(t, lines[3])
}

func TestRemappedEditKey(t *testing.T) {
	r := tui.NewKeyRegistry()
	require.NoError(t, RegisterKeys(r))
	require.NoError(t, r.ApplyKeybindingConfig([]config.KeybindingConfig{
		{Scope: KeyScope, Action: string(actionAddNote), Keys: []string{"a"}},
	}))
	app := NewApp(Document{Title: "demo"}, Options{
		View:      tui.Options{Keys: r},
		Transport: newFakeTransport(),
		Logger:    logging.Discard(),
	})

	app = keys(t, app, "n")
	require.Empty(t, app.Document().Notes, "n is no longer bound")
	app = keys(t, app, "a")
	require.Equal(t, []string{"note 1"}, app.Document().Notes)
}

func TestHistoryKeyCannotShadowEditKey(t *testing.T) {
	r := tui.NewKeyRegistry()
	require.NoError(t, RegisterKeys(r))
	err := r.ApplyKeybindingConfig([]config.KeybindingConfig{
		{Scope: "history", Action: "delete", Keys: []string{"n"}},
	})
	require.Error(t, err)

	app := NewApp(Document{Title: "demo"}, Options{
		View:      tui.Options{Keys: r},
		Transport: newFakeTransport(),
		Logger:    logging.Discard(),
	})
	app = keys(t, app, "n")
	require.Equal(t, []string{"note 1"}, app.Document().Notes)
	require.Len(t, app.Store().State().History, 2)
}

func TestMouseClickIsOffsetByDocument(t *testing.T) {
	app, _ := newTestApp(t, false)
	app, _ = update(t, app, tea.WindowSizeMsg{Width: 60, Height: 24})
	app = keys(t, app, "+", "+")
	require.Equal(t, 2, app.Document().Count)

	// peers block (2 lines), blank, title, then rows newest first
	y := docHeight + 4 + 2
	app, _ = update(t, app, tea.MouseMsg{X: 5, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	require.Equal(t, 0, app.Document().Count)
}

func TestTwoPlaygroundsShareDroppedSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := transport.NewHub()
	alice, bob := hub.Join("alice"), hub.Join("bob")
	require.NoError(t, alice.Start(ctx))
	require.NoError(t, bob.Start(ctx))

	a := NewApp(Document{Title: "alice"}, Options{
		View:             tui.Options{DropEnabled: true},
		Transport:        alice,
		Logger:           logging.Discard(),
		BroadcastEnabled: true,
	})
	b := NewApp(Document{Title: "bob"}, Options{
		Transport: bob,
		Logger:    logging.Discard(),
	})

	a = paste(t, a, tui.EncodeSnapshot(snapshot(t, Document{Title: "shared", Count: 4})))
	require.Equal(t, "shared", a.Document().Title)

	msg := waitForInbox(bob.Inbox())()
	b, _ = update(t, b, msg)
	require.Equal(t, "shared", b.Document().Title)
	require.Equal(t, 4, b.Document().Count)

	st := b.Store().State()
	require.Equal(t, "reset from alice", st.History[len(st.History)-1].Label)

	select {
	case echoed := <-alice.Inbox():
		t.Fatalf("bob echoed the reset back: %+v", echoed)
	default:
	}
}
