package history

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finestructure/historyview/internal/protocol"
)

func steps(labels ...string) []Step {
	out := make([]Step, 0, len(labels))
	for _, l := range labels {
		out = append(out, Step{ID: l, Label: l, State: []byte(l)})
	}
	return out
}

func reduceAll(s State, actions ...Action) State {
	for _, a := range actions {
		s, _ = Reduce(s, a)
	}
	return s
}

func TestSelectUnknownIDIsNoop(t *testing.T) {
	s := NewState(steps("A", "B"), false)
	next, effects := Reduce(s, Select{ID: "zzz"})
	require.Nil(t, next.Selection)
	require.Empty(t, effects)
	require.Equal(t, s, next)
}

func TestSelectIsIdempotent(t *testing.T) {
	s := NewState(steps("A", "B", "C"), false)
	once := reduceAll(s, Select{ID: "B"})
	twice := reduceAll(s, Select{ID: "B"}, Select{ID: "B"})
	require.Equal(t, once, twice)
	require.Equal(t, "B", once.SelectedID())
}

func TestSelectThenStepForward(t *testing.T) {
	s := NewState(steps("A", "B", "C"), false)
	s = reduceAll(s, Select{ID: "B"}, StepForward{})
	require.Equal(t, "C", s.SelectedID())
}

func TestStepBackWithoutSelectionSelectsLatest(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B", "C"), false), StepBack{})
	require.Equal(t, "C", s.SelectedID())

	s = reduceAll(s, StepBack{}, StepBack{}, StepBack{})
	require.Equal(t, "A", s.SelectedID(), "stepping back stops at the oldest step")
}

func TestStepForwardWithoutSelectionIsNoop(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B"), false), StepForward{})
	require.Nil(t, s.Selection)
}

func TestStepForwardStopsAtNewest(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B"), false), Select{ID: "B"}, StepForward{})
	require.Equal(t, "B", s.SelectedID())
}

func TestSteppingOnEmptyHistory(t *testing.T) {
	s := reduceAll(NewState(nil, false), StepBack{}, StepForward{}, Delete{})
	require.Nil(t, s.Selection)
	require.Empty(t, s.History)
}

func TestSteppingStaysWithinHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	hist := steps("A", "B", "C", "D", "E")
	valid := map[string]bool{}
	for _, st := range hist {
		valid[st.ID] = true
	}
	s := NewState(hist, false)
	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			s = reduceAll(s, StepBack{})
		} else {
			s = reduceAll(s, StepForward{})
		}
		if s.Selection != nil {
			require.True(t, valid[*s.Selection], "selection %q left the history", *s.Selection)
		}
	}
}

func TestDeleteWithoutSelectionIsNoop(t *testing.T) {
	s := NewState(steps("A", "B"), false)
	next := reduceAll(s, Delete{})
	require.Equal(t, s, next)
	require.Nil(t, next.Selection)
	require.Len(t, next.History, 2)
}

func TestDeleteMovesSelectionToSamePosition(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B", "C"), false), Select{ID: "B"}, Delete{})
	require.Equal(t, []string{"A", "C"}, ids(s.History))
	require.Equal(t, "C", s.SelectedID())
}

func TestDeleteNewestSelectsNewLatest(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B", "C"), false), Select{ID: "C"}, Delete{})
	require.Equal(t, []string{"A", "B"}, ids(s.History))
	require.Equal(t, "B", s.SelectedID())
}

func TestDeleteLastStepClearsSelection(t *testing.T) {
	s := reduceAll(NewState(steps("A"), false), Select{ID: "A"}, Delete{})
	require.Empty(t, s.History)
	require.Nil(t, s.Selection)
}

func TestDeleteThenStepBackNeverSelectsDeleted(t *testing.T) {
	for _, target := range []string{"A", "B", "C"} {
		s := reduceAll(NewState(steps("A", "B", "C"), false), Select{ID: target}, Delete{}, StepBack{})
		require.NotEqual(t, target, s.SelectedID())
	}
}

func TestRowTapSelects(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B"), false), Row{ID: "A", Action: RowTapped})
	require.Equal(t, "A", s.SelectedID())

	s = reduceAll(s, Row{ID: "missing", Action: RowTapped})
	require.Equal(t, "A", s.SelectedID())
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B", "C"), false), Select{ID: "A"})
	_, _ = Reduce(s, Delete{})
	require.Equal(t, []string{"A", "B", "C"}, ids(s.History))
	require.Equal(t, "A", s.SelectedID())
}

func TestResetLeavesHistoryAlone(t *testing.T) {
	s := reduceAll(NewState(steps("A", "B"), true), Select{ID: "A"})
	next, effects := Reduce(s, Reset{Payload: []byte("snap")})
	require.Equal(t, s, next)
	require.Len(t, effects, 2)
	require.Equal(t, Adopt{Payload: []byte("snap"), Origin: OriginLocal}, effects[0])
	require.Equal(t, Broadcast{Message: protocol.Message{Kind: protocol.KindReset, State: []byte("snap")}}, effects[1])
}

func TestResetWithoutBroadcast(t *testing.T) {
	_, effects := Reduce(NewState(steps("A"), false), Reset{Payload: []byte("snap")})
	require.Equal(t, []Effect{Adopt{Payload: []byte("snap"), Origin: OriginLocal}}, effects)
}

func TestPeerResetIsNotRebroadcast(t *testing.T) {
	_, effects := Reduce(NewState(nil, true), Reset{Payload: []byte("snap"), Origin: OriginPeer})
	require.Equal(t, []Effect{Adopt{Payload: []byte("snap"), Origin: OriginPeer}}, effects)
}

func TestNormalizeDropsDanglingSelection(t *testing.T) {
	s := State{History: steps("A"), Selection: strPtr("gone")}
	require.Nil(t, s.Normalize().Selection)
}

func ids(in []Step) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, s.ID)
	}
	return out
}
