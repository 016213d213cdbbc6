package arbor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arborcrdt/arbor/internal/clock"
	"github.com/arborcrdt/arbor/internal/telemetry"
)

func newTestTree(t *testing.T, peerID string) (*OpStore, *Tree) {
	t.Helper()
	clk := clock.NewMock(time.Unix(0, 0))
	store := NewOpStore(peerID, clk, telemetry.Discard())
	return store, NewTree(store, telemetry.Discard())
}

func TestTree_SimpleAttachment(t *testing.T) {
	store, tree := newTestTree(t, "A")
	_, err := store.Set("docs", RootID, 1)
	require.NoError(t, err)

	parent, ok := tree.Parent("docs")
	require.True(t, ok)
	require.Equal(t, RootID, parent)
	require.Equal(t, []string{"docs"}, tree.Children(RootID))
}

// S2 — Cycle resolution: a two-node cycle with no ready edge into a rooted
// node falls back to attaching both directly under root, by child id order.
func TestTree_CycleResolvesUnderRoot(t *testing.T) {
	store, tree := newTestTree(t, "observer")

	require.NoError(t, store.Apply(Operation{EntityID: "x", FieldKey: "y", Value: 1, HasValue: true, PeerID: "A", Timestamp: 1}, OriginRemote))
	require.NoError(t, store.Apply(Operation{EntityID: "y", FieldKey: "x", Value: 1, HasValue: true, PeerID: "B", Timestamp: 1}, OriginRemote))

	px, ok := tree.Parent("x")
	require.True(t, ok)
	py, ok := tree.Parent("y")
	require.True(t, ok)

	require.Equal(t, RootID, px)
	require.Equal(t, RootID, py)
	require.Equal(t, []string{"x", "y"}, tree.Children(RootID))
}

// S3 — Move preserves other subtree: two concurrent moves into the same
// new parent must both resolve, with the later LWW write determining the
// shared node's final parent and neither move leaving anything detached.
func TestTree_ConcurrentMovesBothResolve(t *testing.T) {
	store, tree := newTestTree(t, "observer")

	require.NoError(t, store.Apply(Operation{EntityID: "src", FieldKey: RootID, Value: 1, HasValue: true, PeerID: "seed", Timestamp: 1}, OriginRemote))
	require.NoError(t, store.Apply(Operation{EntityID: "app", FieldKey: "src", Value: 1, HasValue: true, PeerID: "seed", Timestamp: 1}, OriginRemote))
	require.NoError(t, store.Apply(Operation{EntityID: "test", FieldKey: RootID, Value: 1, HasValue: true, PeerID: "seed", Timestamp: 1}, OriginRemote))

	// Peer A moves app under test at t=5; Peer B concurrently moves src
	// under test at t=6 (later, so it should win any shared contention).
	require.NoError(t, store.Apply(Operation{EntityID: "app", FieldKey: "test", Value: 2, HasValue: true, PeerID: "A", Timestamp: 5}, OriginRemote))
	require.NoError(t, store.Apply(Operation{EntityID: "src", FieldKey: "test", Value: 2, HasValue: true, PeerID: "B", Timestamp: 6}, OriginRemote))

	appParent, ok := tree.Parent("app")
	require.True(t, ok)
	require.Equal(t, "test", appParent)

	srcParent, ok := tree.Parent("src")
	require.True(t, ok)
	require.Equal(t, "test", srcParent)

	// Nothing is detached: every node the tree has seen still has a path
	// to root — Parent succeeds for each.
	for _, id := range []string{"src", "app", "test"} {
		_, ok := tree.Parent(id)
		require.True(t, ok, "%s must still be attached", id)
	}
}

func TestTree_MissingParentAutoCreates(t *testing.T) {
	store, tree := newTestTree(t, "A")
	_, err := store.Set("orphan", "never-seen-parent", 1)
	require.NoError(t, err)

	require.True(t, tree.Exists("never-seen-parent"))
	parent, ok := tree.Parent("orphan")
	require.True(t, ok)
	require.Equal(t, "never-seen-parent", parent)
}

func TestTree_Path(t *testing.T) {
	store, tree := newTestTree(t, "A")
	_, err := store.Set("docs", RootID, 1)
	require.NoError(t, err)
	_, err = store.Set("readme", "docs", 1)
	require.NoError(t, err)

	require.Equal(t, []string{RootID}, tree.Path(RootID))
	require.Equal(t, []string{RootID, "docs"}, tree.Path("docs"))
	require.Equal(t, []string{RootID, "docs", "readme"}, tree.Path("readme"))
}
