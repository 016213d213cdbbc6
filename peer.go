package arbor

import (
	"context"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/arborcrdt/arbor/internal/clock"
	"github.com/arborcrdt/arbor/internal/config"
	"github.com/arborcrdt/arbor/internal/telemetry"
)

// Peer bundles one replica's OpStore, Tree, UndoRedo, and Edits surface
// behind a single construction point, plus the transport sink (if any) that
// forwards its local writes to other peers.
type Peer struct {
	ID string

	Store *OpStore
	Tree  *Tree
	Undo  *UndoRedo
	Edits *Edits

	log  *log.Logger
	sink Sink
}

// NewPeer constructs a Peer from cfg (DefaultConfig if nil), generating a
// google/uuid v4 peer id when cfg.PeerID is empty, using the real wall
// clock and a logrus logger configured from cfg.LogLevel.
func NewPeer(cfg *config.PeerConfig) *Peer {
	return NewPeerWithClock(cfg, clock.New())
}

// NewPeerWithClock is NewPeer with an injectable clock source, for tests
// and for deterministic demo/replay scenarios that need to control "now".
func NewPeerWithClock(cfg *config.PeerConfig, clk clock.Source) *Peer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	peerID := cfg.PeerID
	if peerID == "" {
		peerID = uuid.NewString()
	}

	logger := telemetry.New()
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	store := NewOpStore(peerID, clk, logger)
	tree := NewTree(store, logger)
	undo := NewUndoRedo(store, logger)
	edits := NewEdits(store, tree)

	return &Peer{
		ID:    peerID,
		Store: store,
		Tree:  tree,
		Undo:  undo,
		Edits: edits,
		log:   logger,
	}
}

// JoinTransport registers this peer with lb and arranges for every
// subsequent locally-originated write to be forwarded over it. ctx governs
// the lifetime of that forwarding, not of the peer itself.
func (p *Peer) JoinTransport(ctx context.Context, lb *Loopback) {
	p.sink = lb.Join(ctx, p.ID, p.Store)
	p.Store.Subscribe(func(op Operation, origin Origin, _ int64, _ bool) {
		if origin == OriginLocal && p.sink != nil {
			p.sink(op)
		}
	})
}

// Snapshot captures every currently-retained operation in the peer's
// OpStore, in a stable order, suitable for persistence (see
// config.PeerConfig.SnapshotPath) or for Diff.
func (p *Peer) Snapshot() Snapshot {
	return Snapshot{Ops: p.Store.allOps()}
}

// LoadSnapshot merges every operation in snap into the peer's OpStore as
// OriginRemote, regardless of which peer originally wrote them. Because LWW
// merge is commutative and idempotent, the replay order here does not
// affect the resulting state.
func (p *Peer) LoadSnapshot(snap Snapshot) error {
	for _, op := range snap.Ops {
		if err := p.Store.Apply(op, OriginRemote); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is a portable copy of an OpStore's retained operations.
type Snapshot struct {
	Ops []Operation
}

// allOps returns a stable-ordered copy of every operation currently
// retained by the store (one per field: its LWW winner) — tombstones
// included — since a snapshot must be able to reproduce deletions on replay.
func (s *OpStore) allOps() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]Operation, 0, len(s.fields))
	for _, op := range s.fields {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].EntityID != ops[j].EntityID {
			return ops[i].EntityID < ops[j].EntityID
		}
		return ops[i].FieldKey < ops[j].FieldKey
	})
	return ops
}

// Change describes one entity's parent assignment differing between two
// snapshots' materialized trees.
type Change struct {
	ID string

	OldParent    string
	OldHasParent bool
	NewParent    string
	NewHasParent bool
}

// Diff materializes before and after independently and reports every id
// whose parent assignment differs between the two, sorted ascending by id.
// Both snapshots are replayed into disposable, discard-logged peers; the
// live peer that produced either snapshot is untouched.
func Diff(before, after Snapshot) []Change {
	beforeTree := replaySnapshot(before)
	afterTree := replaySnapshot(after)

	ids := map[string]bool{}
	collectIDs(before.Ops, ids)
	collectIDs(after.Ops, ids)
	delete(ids, RootID)

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var changes []Change
	for _, id := range sorted {
		oldParent, oldOK := beforeTree.Parent(id)
		newParent, newOK := afterTree.Parent(id)
		if oldOK != newOK || oldParent != newParent {
			changes = append(changes, Change{
				ID:           id,
				OldParent:    oldParent,
				OldHasParent: oldOK,
				NewParent:    newParent,
				NewHasParent: newOK,
			})
		}
	}
	return changes
}

func collectIDs(ops []Operation, into map[string]bool) {
	for _, op := range ops {
		into[op.EntityID] = true
		into[op.FieldKey] = true
	}
}

// replaySnapshot materializes a throwaway Tree from a snapshot's operations,
// as Diff does for each of its two inputs.
func replaySnapshot(snap Snapshot) *Tree {
	store := NewOpStore("diff", clock.New(), telemetry.Discard())
	tree := NewTree(store, telemetry.Discard())
	for _, op := range snap.Ops {
		_ = store.Apply(op, OriginRemote)
	}
	return tree
}
