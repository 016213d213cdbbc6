package arbor

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/arborcrdt/arbor/internal/telemetry"
)

// node is one entry in the Tree's arena. parent/children hold ids, not
// owning pointers, so that cyclic or multi-parented edge sets (which the
// LWW layer can freely produce) never require back-pointer surgery — only
// the id fields are rewritten during materialization.
type node struct {
	id        string
	edges     map[string]int64 // candidate parent id -> counter
	parent    string           // meaningful only when hasParent
	hasParent bool
	children  []string
}

// Tree is an observer on an OpStore that maintains a deterministic, rooted,
// acyclic tree derived from the current edge set. It is a pure function of
// that edge set: rebuilt from scratch on every notification, never from
// hidden incremental state.
type Tree struct {
	mu    sync.Mutex
	store *OpStore
	nodes map[string]*node
	log   telemetry.Logger
}

// NewTree creates a Tree observing store, with the reserved root node
// already present, and subscribes it for materialization on every write.
func NewTree(store *OpStore, logger telemetry.Logger) *Tree {
	t := &Tree{
		store: store,
		nodes: map[string]*node{
			RootID: {id: RootID, edges: map[string]int64{}},
		},
		log: logger,
	}
	store.Subscribe(t.onOperation)
	return t
}

func (t *Tree) onOperation(op Operation, origin Origin, old int64, oldOK bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.touch(op.EntityID)
	t.touch(op.FieldKey)

	// Always read the edge back from the store's current LWW winner, not
	// from op itself: op may have lost the comparison, and the edge set
	// must reflect only winning writes or materialization would depend on
	// delivery order.
	child := t.nodes[op.EntityID]
	if value, ok := t.store.Get(op.EntityID, op.FieldKey); ok {
		child.edges[op.FieldKey] = value
	} else {
		delete(child.edges, op.FieldKey)
	}

	t.materializeLocked()
}

// touch ensures a node exists for id, implicitly creating it the first time
// it is seen as an entity_id or field_key, per the lifecycle rules.
func (t *Tree) touch(id string) {
	if _, ok := t.nodes[id]; !ok {
		t.nodes[id] = &node{id: id, edges: map[string]int64{}}
	}
}

// preferredEdge returns the (parentID, counter, ok) the node would currently
// prefer: the highest counter, ties broken by larger parent id. The root
// and edge-less nodes have no preferred edge.
func preferredEdge(n *node) (parentID string, counter int64, ok bool) {
	if n.id == RootID {
		return "", 0, false
	}
	for pid, c := range n.edges {
		if !ok || c > counter || (c == counter && pid > parentID) {
			parentID, counter, ok = pid, c, true
		}
	}
	return
}

// materializeLocked runs the full four-stage algorithm. Callers must hold
// t.mu.
func (t *Tree) materializeLocked() {
	t.reset()
	rooted := t.classify()
	t.reattach(rooted)
	t.buildChildren()
}

// reset (stage 1): recompute every node's candidate parent from its edge
// set and clear its children list.
func (t *Tree) reset() {
	for _, n := range t.nodes {
		n.children = nil
		if n.id == RootID {
			n.hasParent = false
			n.parent = ""
			continue
		}
		if pid, _, ok := preferredEdge(n); ok {
			t.touch(pid)
			n.parent, n.hasParent = pid, true
		} else {
			n.parent, n.hasParent = "", false
		}
	}
}

// classify (stage 2): determines, for every node, whether following parent
// pointers reaches root. Returns the set of rooted node ids (root
// included). Uses Floyd's tortoise-and-hare per node so a cycle in the
// free LWW composition of the edge set is detected instead of looped
// forever.
func (t *Tree) classify() map[string]bool {
	rooted := map[string]bool{RootID: true}
	decided := map[string]bool{RootID: true}

	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic resolution order; doesn't affect the result

	for _, id := range ids {
		if !decided[id] {
			t.resolveChain(id, rooted, decided)
		}
	}
	return rooted
}

// parentOf returns (parentID, true) if id has a parent pointer set, else
// ("", false).
func (t *Tree) parentOf(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	n := t.nodes[id]
	if n == nil || !n.hasParent {
		return "", false
	}
	return n.parent, true
}

// resolveChain walks start's parent chain with a slow pointer (recording
// every node visited, in order) and a fast pointer advancing twice as
// quickly. The walk ends when:
//   - slow lands on an already-decided node: every recorded node inherits
//     that node's rootedness (this also memoizes across separate calls to
//     resolveChain within the same classify pass);
//   - slow runs off a dead end (a node with no parent, i.e. not root):
//     every recorded node is non-rooted;
//   - fast catches up to slow on an undecided node: a cycle exists among
//     the undecided nodes visited so far, so every recorded node is
//     non-rooted, and the cycle is logged at warn level as ErrCycleDetected.
func (t *Tree) resolveChain(start string, rooted, decided map[string]bool) {
	var chain []string
	slow, fast := start, start

	for {
		if decided[slow] {
			finishChain(chain, rooted[slow], rooted, decided)
			return
		}
		chain = append(chain, slow)

		next, ok := t.parentOf(slow)
		if !ok {
			finishChain(chain, false, rooted, decided)
			return
		}
		slow = next

		for i := 0; i < 2; i++ {
			nf, ok := t.parentOf(fast)
			if !ok {
				fast = ""
				break
			}
			fast = nf
			if decided[fast] {
				break
			}
		}
		if fast != "" && fast == slow && !decided[slow] {
			t.log.WithFields(log.Fields{"node": start, "error": ErrCycleDetected}).Warn("arbor: cycle in parent chain")
			chain = append(chain, slow)
			finishChain(chain, false, rooted, decided)
			return
		}
	}
}

func finishChain(chain []string, isRooted bool, rooted, decided map[string]bool) {
	for _, id := range chain {
		decided[id] = true
		if isRooted {
			rooted[id] = true
		}
	}
}

// reattach (stage 3): deterministically reattaches every non-rooted node
// under a rooted ancestor, using a priority queue over ready edges ordered
// by (counter desc, parent asc, child asc). Non-rooted nodes with no edges
// at all are attached directly under root first, which makes the edges
// pointing at them ready. Nodes that still have no path to a rooted node
// once the queue empties (every candidate parent is itself permanently
// unrooted, e.g. an isolated cycle with no ready edge) also fall back to
// attaching directly under root.
func (t *Tree) reattach(rooted map[string]bool) {
	deferredByParent := map[string][]readyEdge{}
	q := newEdgeQueue()

	nonRootedIDs := make([]string, 0)
	for id := range t.nodes {
		if !rooted[id] {
			nonRootedIDs = append(nonRootedIDs, id)
		}
	}
	sort.Strings(nonRootedIDs) // deterministic enumeration order

	for _, id := range nonRootedIDs {
		n := t.nodes[id]
		for pid, counter := range n.edges {
			e := readyEdge{childID: id, parentID: pid, counter: counter}
			if rooted[pid] {
				q.push(e)
			} else {
				deferredByParent[pid] = append(deferredByParent[pid], e)
			}
		}
	}

	for _, id := range nonRootedIDs {
		if len(t.nodes[id].edges) == 0 {
			t.nodes[id].parent, t.nodes[id].hasParent = RootID, true
			rooted[id] = true
			for _, promoted := range deferredByParent[id] {
				q.push(promoted)
			}
			delete(deferredByParent, id)
		}
	}

	for q.Len() > 0 {
		e := q.pop()
		if rooted[e.childID] {
			continue // already attached by an earlier, higher-priority pop
		}
		t.nodes[e.childID].parent, t.nodes[e.childID].hasParent = e.parentID, true
		rooted[e.childID] = true

		for _, promoted := range deferredByParent[e.childID] {
			q.push(promoted)
		}
		delete(deferredByParent, e.childID)
	}

	var stillUnrooted []string
	for id := range t.nodes {
		if !rooted[id] {
			stillUnrooted = append(stillUnrooted, id)
		}
	}
	sort.Strings(stillUnrooted)
	for _, id := range stillUnrooted {
		t.nodes[id].parent, t.nodes[id].hasParent = RootID, true
		rooted[id] = true
		t.log.WithFields(log.Fields{"node": id}).Warn("arbor: node had no path to root, fallback-attached")
	}
}

// buildChildren (stage 4): derives every node's children list from the
// parent pointers just computed, sorted ascending by id.
func (t *Tree) buildChildren() {
	for _, n := range t.nodes {
		if n.hasParent {
			parent := t.nodes[n.parent]
			parent.children = append(parent.children, n.id)
		}
	}
	for _, n := range t.nodes {
		sort.Strings(n.children)
	}
}

// Parent returns id's current parent, or ("", false) for the root or an
// unknown id.
func (t *Tree) Parent(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok || !n.hasParent {
		return "", false
	}
	return n.parent, true
}

// Children returns a copy of id's current children, sorted ascending by id.
func (t *Tree) Children(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}

// ancestors returns the chain of parent pointers starting at id's current
// parent, up to (but excluding) root. Used by AddChildToParent's rooting
// refresh walk.
func (t *Tree) ancestors(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var chain []string
	cur := n
	for cur.hasParent && cur.parent != RootID {
		cur = t.nodes[cur.parent]
		chain = append(chain, cur.id)
	}
	return chain
}

// preferredVsCurrent reports id's preferred edge (from its raw edge set)
// alongside its current materialized tree parent, so callers can detect
// drift caused by cycle-breaking reattachment.
func (t *Tree) preferredVsCurrent(id string) (preferred string, preferredOK bool, current string, currentOK bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return "", false, "", false
	}
	pref, _, prefOK := preferredEdge(n)
	return pref, prefOK, n.parent, n.hasParent
}

// maxCounter returns the highest counter among id's current edges, or 0 if
// it has none.
func (t *Tree) maxCounter(id string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return 0
	}
	var max int64
	found := false
	for _, c := range n.edges {
		if !found || c > max {
			max, found = c, true
		}
	}
	return max
}

// Exists reports whether id has been seen as a node at all.
func (t *Tree) Exists(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.nodes[id]
	return ok
}

// Path returns the root-to-node chain of ids ending at id, inclusive, or nil
// if id is unknown. Path(RootID) returns [RootID].
func (t *Tree) Path(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var rev []string
	for {
		rev = append(rev, n.id)
		if n.id == RootID {
			break
		}
		n = t.nodes[n.parent]
	}
	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}
