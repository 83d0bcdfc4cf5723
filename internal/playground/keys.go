package playground

import "github.com/finestructure/historyview/internal/tui"

// KeyScope names the playground bindings in a keybinding config.
const KeyScope = "playground"

const (
	actionIncrement  tui.Action = "increment"
	actionDecrement  tui.Action = "decrement"
	actionAddNote    tui.Action = "add_note"
	actionClearNotes tui.Action = "clear_notes"
)

// RegisterKeys adds the document editing keys to r. Call it before
// applying keybinding overrides so the playground scope can be rebound.
func RegisterKeys(r *tui.KeyRegistry) error {
	return r.AddHostScope(KeyScope,
		tui.Binding{Action: actionIncrement, Keys: []string{"+", "="}, Help: "count+"},
		tui.Binding{Action: actionDecrement, Keys: []string{"-"}, Help: "count-"},
		tui.Binding{Action: actionAddNote, Keys: []string{"n"}, Help: "note"},
		tui.Binding{Action: actionClearNotes, Keys: []string{"x"}, Help: "clear notes"},
	)
}
