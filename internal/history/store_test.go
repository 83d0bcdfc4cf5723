package history

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finestructure/historyview/internal/protocol"
)

type recordingBroadcaster struct {
	sent []protocol.Message
	err  error
}

func (r *recordingBroadcaster) Broadcast(msg protocol.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestStoreResetBroadcastsWhenEnabled(t *testing.T) {
	rec := &recordingBroadcaster{}
	store := NewStore(steps("A"), true, WithBroadcaster(rec))

	store.Dispatch(Reset{Payload: []byte{1, 2, 3}})

	require.Len(t, rec.sent, 1)
	require.Equal(t, protocol.KindReset, rec.sent[0].Kind)
	require.Equal(t, []byte{1, 2, 3}, rec.sent[0].State)
}

func TestStoreResetSilentWhenDisabled(t *testing.T) {
	rec := &recordingBroadcaster{}
	store := NewStore(steps("A"), false, WithBroadcaster(rec))

	store.Dispatch(Reset{Payload: []byte{1, 2, 3}})

	require.Empty(t, rec.sent)
}

func TestStoreBroadcastErrorIsSwallowed(t *testing.T) {
	rec := &recordingBroadcaster{err: errors.New("boom")}
	store := NewStore(nil, true, WithBroadcaster(rec))
	adopted := 0
	store.OnReset(func([]byte, Origin) { adopted++ })

	store.Dispatch(Reset{Payload: []byte("x")})

	require.Len(t, rec.sent, 1)
	require.Equal(t, 1, adopted)
}

func TestStoreWithoutBroadcaster(t *testing.T) {
	store := NewStore(nil, true)
	require.NotPanics(t, func() { store.Dispatch(Reset{Payload: []byte("x")}) })
}

func TestStoreOnResetReceivesPayload(t *testing.T) {
	store := NewStore(steps("A", "B"), false)
	var got []byte
	var origin Origin
	store.OnReset(func(p []byte, o Origin) { got, origin = p, o })

	store.Dispatch(Reset{Payload: []byte("doc"), Origin: OriginPeer})

	require.Equal(t, []byte("doc"), got)
	require.Equal(t, OriginPeer, origin)
	require.Len(t, store.State().History, 2)
}

func TestStoreSubscribersSeeChanges(t *testing.T) {
	store := NewStore(steps("A", "B", "C"), false)
	var seen []string
	store.Subscribe(func(s State) { seen = append(seen, s.SelectedID()) })

	store.Dispatch(Select{ID: "B"})
	store.Dispatch(StepForward{})
	store.Dispatch(StepForward{})

	require.Equal(t, []string{"B", "C", "C"}, seen)
}

func TestStoreReplaceNormalizes(t *testing.T) {
	store := NewStore(steps("A"), false)
	store.Replace(State{History: steps("X", "Y"), Selection: strPtr("A"), BroadcastEnabled: true})

	st := store.State()
	require.Nil(t, st.Selection)
	require.True(t, st.BroadcastEnabled)
	require.Equal(t, []string{"X", "Y"}, ids(st.History))
}

func TestStoreStateIsACopy(t *testing.T) {
	store := NewStore(steps("A"), false)
	st := store.State()
	st.History[0].Label = "mutated"
	st.History[0].State[0] = 'z'
	require.Equal(t, "A", store.State().History[0].Label)
	require.Equal(t, []byte("A"), store.State().History[0].State)
}

func TestSetBroadcastEnabled(t *testing.T) {
	rec := &recordingBroadcaster{}
	store := NewStore(nil, false, WithBroadcaster(rec))
	store.SetBroadcastEnabled(true)
	store.Dispatch(Reset{Payload: []byte("x")})
	require.Len(t, rec.sent, 1)
}

func TestNewStepCopiesPayload(t *testing.T) {
	buf := []byte("abc")
	st := NewStep("edit", buf)
	buf[0] = 'z'
	require.Equal(t, []byte("abc"), st.State)
	require.NotEmpty(t, st.ID)
}
