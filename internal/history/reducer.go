package history

import (
	"bytes"

	"github.com/finestructure/historyview/internal/protocol"
)

// Effect is a side effect requested by Reduce and run by the Store.
type Effect interface {
	effect()
}

// Broadcast asks for Message to be sent to all connected peers.
type Broadcast struct {
	Message protocol.Message
}

// Adopt hands a reset payload to the host so it can rebuild its document.
type Adopt struct {
	Payload []byte
	Origin  Origin
}

func (Broadcast) effect() {}
func (Adopt) effect()     {}

// Reduce returns the state that follows s after a, plus the effects a
// requests. s is not modified. Unknown ids and empty histories are no-ops.
func Reduce(s State, a Action) (State, []Effect) {
	next := s.clone()
	switch act := a.(type) {
	case Select:
		if next.indexOf(act.ID) >= 0 {
			next.Selection = strPtr(act.ID)
		}
	case Row:
		if act.Action == RowTapped && next.indexOf(act.ID) >= 0 {
			next.Selection = strPtr(act.ID)
		}
	case Delete:
		next = deleteSelected(next)
	case StepBack:
		next = stepBack(next)
	case StepForward:
		next = stepForward(next)
	case Reset:
		payload := bytes.Clone(act.Payload)
		effects := []Effect{Adopt{Payload: payload, Origin: act.Origin}}
		if next.BroadcastEnabled && act.Origin == OriginLocal {
			effects = append(effects, Broadcast{Message: protocol.NewReset(bytes.Clone(payload))})
		}
		return next, effects
	}
	return next, nil
}

func deleteSelected(s State) State {
	idx := s.selectedIndex()
	if idx < 0 {
		s.Selection = nil
		return s
	}
	s.History = append(s.History[:idx], s.History[idx+1:]...)
	switch {
	case len(s.History) == 0:
		s.Selection = nil
	case idx < len(s.History):
		s.Selection = strPtr(s.History[idx].ID)
	default:
		s.Selection = strPtr(s.History[len(s.History)-1].ID)
	}
	return s
}

func stepBack(s State) State {
	if len(s.History) == 0 {
		return s
	}
	idx := s.selectedIndex()
	switch {
	case idx < 0:
		s.Selection = strPtr(s.History[len(s.History)-1].ID)
	case idx > 0:
		s.Selection = strPtr(s.History[idx-1].ID)
	}
	return s
}

func stepForward(s State) State {
	idx := s.selectedIndex()
	if idx < 0 || idx >= len(s.History)-1 {
		return s
	}
	s.Selection = strPtr(s.History[idx+1].ID)
	return s
}
