package history

import (
	"bytes"

	"github.com/google/uuid"
)

// Step is one recorded unit of history.
type Step struct {
	ID    string
	State []byte
	Label string
}

// NewStep records a step with a fresh id. The payload is copied.
func NewStep(label string, state []byte) Step {
	return Step{ID: uuid.NewString(), State: bytes.Clone(state), Label: label}
}

func (s Step) clone() Step {
	s.State = bytes.Clone(s.State)
	return s
}

// State is the observable state of a history view.
type State struct {
	History          []Step
	Selection        *string
	BroadcastEnabled bool
}

// NewState copies history into a fresh state with no selection.
func NewState(history []Step, broadcastEnabled bool) State {
	return State{History: cloneSteps(history), BroadcastEnabled: broadcastEnabled}
}

// Selected returns the selected step, if any.
func (s State) Selected() (Step, bool) {
	if s.Selection == nil {
		return Step{}, false
	}
	idx := s.indexOf(*s.Selection)
	if idx < 0 {
		return Step{}, false
	}
	return s.History[idx], true
}

// SelectedID returns the selected id or "".
func (s State) SelectedID() string {
	if s.Selection == nil {
		return ""
	}
	return *s.Selection
}

// IsSelected reports whether id is the current selection.
func (s State) IsSelected(id string) bool {
	return s.Selection != nil && *s.Selection == id
}

// Normalize drops a selection that no longer references a step.
func (s State) Normalize() State {
	if s.Selection != nil && s.indexOf(*s.Selection) < 0 {
		s.Selection = nil
	}
	return s
}

func (s State) clone() State {
	out := s
	out.History = cloneSteps(s.History)
	if s.Selection != nil {
		out.Selection = strPtr(*s.Selection)
	}
	return out
}

func (s State) indexOf(id string) int {
	for i, step := range s.History {
		if step.ID == id {
			return i
		}
	}
	return -1
}

func (s State) selectedIndex() int {
	if s.Selection == nil {
		return -1
	}
	return s.indexOf(*s.Selection)
}

func cloneSteps(in []Step) []Step {
	if in == nil {
		return nil
	}
	out := make([]Step, len(in))
	for i, step := range in {
		out[i] = step.clone()
	}
	return out
}

func strPtr(s string) *string { return &s }
