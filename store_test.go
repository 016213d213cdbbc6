package arbor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arborcrdt/arbor/internal/clock"
	"github.com/arborcrdt/arbor/internal/telemetry"
)

func newTestStore(t *testing.T, peerID string) *OpStore {
	t.Helper()
	clk := clock.NewMock(time.Unix(0, 0))
	return NewOpStore(peerID, clk, telemetry.Discard())
}

// S1 — Basic LWW: equal timestamps, larger peer id wins.
func TestOpStore_LWWTieBrokenByPeerID(t *testing.T) {
	a := newTestStore(t, "A")
	b := newTestStore(t, "B")

	opA := Operation{EntityID: "x", FieldKey: "p", Value: 1, HasValue: true, PeerID: "A", Timestamp: 10}
	opB := Operation{EntityID: "x", FieldKey: "p", Value: 2, HasValue: true, PeerID: "B", Timestamp: 10}

	require.NoError(t, a.Apply(opA, OriginLocal))
	require.NoError(t, a.Apply(opB, OriginRemote))
	require.NoError(t, b.Apply(opB, OriginLocal))
	require.NoError(t, b.Apply(opA, OriginRemote))

	va, ok := a.Get("x", "p")
	require.True(t, ok)
	vb, ok := b.Get("x", "p")
	require.True(t, ok)

	require.Equal(t, int64(2), va)
	require.Equal(t, int64(2), vb)
}

// S6 — Out-of-order delivery: final value matches the op with the higher
// timestamp regardless of application order.
func TestOpStore_OutOfOrderDelivery(t *testing.T) {
	s := newTestStore(t, "observer")

	op1 := Operation{EntityID: "a", FieldKey: "f", Value: 1, HasValue: true, PeerID: "A", Timestamp: 1}
	op2 := Operation{EntityID: "a", FieldKey: "f", Value: 2, HasValue: true, PeerID: "A", Timestamp: 2}

	require.NoError(t, s.Apply(op2, OriginRemote))
	require.NoError(t, s.Apply(op1, OriginRemote))

	v, ok := s.Get("a", "f")
	require.True(t, ok)
	require.Equal(t, int64(2), v)
}

func TestOpStore_SetAdvancesTimestampPastExisting(t *testing.T) {
	s := newTestStore(t, "A")

	_, err := s.Set("a", "f", 1)
	require.NoError(t, err)

	remote := Operation{EntityID: "a", FieldKey: "f", Value: 99, HasValue: true, PeerID: "A", Timestamp: 1}
	require.NoError(t, s.Apply(remote, OriginRemote))

	op2, err := s.Set("a", "f", 2)
	require.NoError(t, err)
	require.Greater(t, op2.Timestamp, remote.Timestamp)

	v, ok := s.Get("a", "f")
	require.True(t, ok)
	require.Equal(t, int64(2), v)
}

func TestOpStore_DeleteIsATombstone(t *testing.T) {
	s := newTestStore(t, "A")
	_, err := s.Set("a", "f", 1)
	require.NoError(t, err)
	_, err = s.Delete("a", "f")
	require.NoError(t, err)

	_, ok := s.Get("a", "f")
	require.False(t, ok)
}

func TestOpStore_RejectsRootMutation(t *testing.T) {
	s := newTestStore(t, "A")
	_, err := s.Set(RootID, "anything", 1)
	require.ErrorIs(t, err, ErrRootMutation)
}

func TestOpStore_RejectsMalformedOp(t *testing.T) {
	s := newTestStore(t, "A")
	err := s.Apply(Operation{EntityID: "a", FieldKey: "f", Timestamp: 1}, OriginRemote)
	require.ErrorIs(t, err, ErrInvalidOp)

	err = s.Apply(Operation{EntityID: "a", FieldKey: "f", PeerID: "A"}, OriginRemote)
	require.ErrorIs(t, err, ErrInvalidOp)
}

func TestOpStore_ObserversFireUnconditionally(t *testing.T) {
	s := newTestStore(t, "A")
	var seen []bool // one entry per notification, winning or losing

	s.Subscribe(func(op Operation, origin Origin, old int64, oldOK bool) {
		seen = append(seen, true)
	})

	require.NoError(t, s.Apply(Operation{EntityID: "a", FieldKey: "f", Value: 1, HasValue: true, PeerID: "Z", Timestamp: 5}, OriginRemote))
	// A losing op (older timestamp) must still notify observers.
	require.NoError(t, s.Apply(Operation{EntityID: "a", FieldKey: "f", Value: 2, HasValue: true, PeerID: "Z", Timestamp: 1}, OriginRemote))

	require.Len(t, seen, 2)
	v, ok := s.Get("a", "f")
	require.True(t, ok)
	require.Equal(t, int64(1), v, "the losing op must not overwrite state")
}
