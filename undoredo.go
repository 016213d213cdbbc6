package arbor

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/arborcrdt/arbor/internal/telemetry"
)

// change is one field's prior value, recorded so it can be restored by an
// undo.
type change struct {
	entityID string
	fieldKey string
	value    int64
	hasValue bool
}

// UndoRedo is an observer on an OpStore that records inverse operations for
// local edits only and replays them respecting the same LWW discipline.
// Remote operations are ignored entirely: undo is a local-only, per-peer
// scope, not an inversion of the network.
type UndoRedo struct {
	mu    sync.Mutex
	store *OpStore
	log   telemetry.Logger

	undoStack [][]change
	redoStack [][]change
	pending   []change

	busy   bool
	depth  int
	filter map[string]bool // nil means "no filter, watch every field_key"
}

// NewUndoRedo creates an UndoRedo observing store. If fieldKeys is
// non-empty, only writes whose field_key is in that set are recorded;
// otherwise every local write is recorded.
func NewUndoRedo(store *OpStore, logger telemetry.Logger, fieldKeys ...string) *UndoRedo {
	ur := &UndoRedo{store: store, log: logger}
	if len(fieldKeys) > 0 {
		ur.filter = make(map[string]bool, len(fieldKeys))
		for _, k := range fieldKeys {
			ur.filter[k] = true
		}
	}
	store.Subscribe(ur.onOperation)
	return ur
}

func (u *UndoRedo) onOperation(op Operation, origin Origin, old int64, oldOK bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if origin != OriginLocal || u.busy {
		return
	}
	if u.filter != nil && !u.filter[op.FieldKey] {
		return
	}

	u.pending = append(u.pending, change{
		entityID: op.EntityID,
		fieldKey: op.FieldKey,
		value:    old,
		hasValue: oldOK,
	})
	u.commitLocked()
}

// commitLocked pushes the pending group to the undo stack and clears the
// redo stack, but only once the outermost Batch has completed (depth==0).
// Callers must hold u.mu.
func (u *UndoRedo) commitLocked() {
	if u.depth > 0 || len(u.pending) == 0 {
		return
	}
	u.undoStack = append(u.undoStack, u.pending)
	u.pending = nil
	u.redoStack = nil
}

// Batch groups every local edit performed inside fn into a single undo
// step. Nested batches collapse into the outermost one.
func (u *UndoRedo) Batch(fn func()) {
	u.mu.Lock()
	u.depth++
	u.mu.Unlock()

	fn()

	u.mu.Lock()
	u.depth--
	u.commitLocked()
	u.mu.Unlock()
}

// Undo pops the most recent change group and writes back every recorded
// prior value, via Set where one existed or Delete where the field was
// previously unset or tombstoned. The inverse of what Undo just wrote is
// captured and pushed to the redo stack, in reverse order, so a subsequent
// Redo replays the group forward again.
//
// Because restored values are written with fresh, newer timestamps, the
// restored state only matches the pre-edit state up to LWW dominance: a
// remote op with an older timestamp that previously lost to one of these
// fields still loses after the undo.
func (u *UndoRedo) Undo() bool {
	return u.apply(&u.undoStack, &u.redoStack)
}

// Redo re-applies the most recently undone change group. See Undo for the
// fresh-timestamp caveat, which applies symmetrically here.
func (u *UndoRedo) Redo() bool {
	return u.apply(&u.redoStack, &u.undoStack)
}

func (u *UndoRedo) apply(from, to *[][]change) bool {
	u.mu.Lock()
	if len(*from) == 0 {
		u.mu.Unlock()
		return false // popping from an empty stack is a silent no-op
	}
	group := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	u.busy = true
	u.mu.Unlock()

	inverse := make([]change, len(group))
	for i, c := range group {
		cur, curOK := u.store.Get(c.entityID, c.fieldKey)
		inverse[i] = change{entityID: c.entityID, fieldKey: c.fieldKey, value: cur, hasValue: curOK}

		var err error
		if c.hasValue {
			_, err = u.store.Set(c.entityID, c.fieldKey, c.value)
		} else {
			_, err = u.store.Delete(c.entityID, c.fieldKey)
		}
		if err != nil {
			u.log.WithFields(log.Fields{"entity": c.entityID, "field": c.fieldKey}).
				Warn("arbor: undo/redo write rejected")
		}
	}

	u.mu.Lock()
	u.busy = false
	// Reversed so that replaying the inverse group restores the original
	// sequence's effect if the opposite stack is itself later replayed.
	reversed := make([]change, len(inverse))
	for i, c := range inverse {
		reversed[len(inverse)-1-i] = c
	}
	*to = append(*to, reversed)
	u.mu.Unlock()

	return true
}
