package arbor

// Edits groups the tree's structural edit operations — AddChildToParent,
// Rename, RemoveEdge — bound to one peer's (OpStore, Tree) pair. Each edit
// computes one or more OpStore writes; the resulting tree shape is never
// mutated directly, only observed after the writes are applied.
type Edits struct {
	store *OpStore
	tree  *Tree
}

// NewEdits binds a structural-edit surface to store and tree, which must
// belong to the same peer.
func NewEdits(store *OpStore, tree *Tree) *Edits {
	return &Edits{store: store, tree: tree}
}

// AddChildToParent moves childID to be a child of newParentID, creating
// either id if it has not been seen before.
//
// Before writing the primary edit, it walks upward from both child's
// current parent and from newParentID. Any ancestor found on those chains
// whose preferred edge has drifted from its materialized tree parent (which
// happens when a cycle-breaking reattachment overrode it) gets a "rooting
// refresh": its current parent is republished with a fresh, higher counter,
// so the move doesn't let a stale edge win back control of that ancestor's
// position from a concurrent peer.
func (e *Edits) AddChildToParent(childID, newParentID string) error {
	for _, ancestor := range e.refreshCandidates(childID, newParentID) {
		parent, _ := e.tree.Parent(ancestor)
		if _, err := e.store.Set(ancestor, parent, e.tree.maxCounter(ancestor)+1); err != nil {
			return err
		}
	}
	_, err := e.store.Set(childID, newParentID, e.tree.maxCounter(childID)+1)
	return err
}

// refreshCandidates returns, in a stable walk order, every ancestor above
// child's current parent and above newParentID whose preferred edge no
// longer matches its materialized parent.
func (e *Edits) refreshCandidates(childID, newParentID string) []string {
	seen := map[string]bool{}
	var out []string

	consider := func(id string) {
		if id == "" || id == RootID || seen[id] {
			return
		}
		seen[id] = true
		pref, prefOK, cur, curOK := e.tree.preferredVsCurrent(id)
		if prefOK && (!curOK || pref != cur) {
			out = append(out, id)
		}
	}

	walkFromParentOf := func(id string) {
		parent, ok := e.tree.Parent(id)
		if !ok {
			return
		}
		consider(parent)
		for _, a := range e.tree.ancestors(parent) {
			consider(a)
		}
	}

	walkFromParentOf(childID)
	consider(newParentID)
	for _, a := range e.tree.ancestors(newParentID) {
		consider(a)
	}

	return out
}

// Rename creates newID at oldID's current position (same parent) and
// rewrites every existing child of oldID to point at newID instead. oldID
// is not deleted — it is retained as an orphan — and no tombstone
// propagation happens: a compaction/GC pass over renamed-away ids is a
// future extension, not implemented here.
//
// If oldID has never been seen, it is treated as already attached under
// root, per the "missing parent auto-creates" rule: renaming a nonexistent
// node still creates newID, under root.
func (e *Edits) Rename(oldID, newID string) error {
	oldParent, ok := e.tree.Parent(oldID)
	if !ok {
		oldParent = RootID
	}
	if _, err := e.store.Set(newID, oldParent, e.tree.maxCounter(newID)+1); err != nil {
		return err
	}
	for _, child := range e.tree.Children(oldID) {
		if _, err := e.store.Set(child, newID, e.tree.maxCounter(child)+1); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEdge tombstones the (childID, parentID) edge.
func (e *Edits) RemoveEdge(childID, parentID string) error {
	_, err := e.store.Delete(childID, parentID)
	return err
}
