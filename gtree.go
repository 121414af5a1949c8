package textcrdt

// Summary is an additively-composable digest of a Leaf (or of a whole
// subtree of leaves): Add/Sub let a Gtree maintain per-node summaries
// incrementally, and Len extracts the one quantity the tree actually
// indexes by (a character count, in every use in this package).
//
// A Summary's zero value must be the additive identity: an empty leaf, or an
// empty subtree, summarizes to the zero value of S.
type Summary[S any] interface {
	Add(other S) S
	Sub(other S) S
	Len() uint64
}

// Leaf is the payload a Gtree stores at its fringe. Delete tombstones a leaf
// in place: the leaf keeps occupying its slot (so any stable handle into it
// stays valid) but must summarize to the zero value afterwards.
type Leaf[S Summary[S]] interface {
	Summarize() S
	Delete()
}

// rng is a half-open [start, end) range of character offsets, used
// internally by delete-range descent. It's unexported: callers work with
// plain start/end uint64 pairs.
type rng struct {
	start, end uint64
}

const noNode = -1

type ginode[S any] struct {
	summary   S
	parent    int
	hasLeaves bool
	children  []int
}

type glnode[L any] struct {
	value  L
	parent int
}

// insertionCache remembers the leaf that Insert last changed in place, and
// the total summary of everything to its left, so that a run of consecutive
// append-style insertions doesn't have to re-descend from the root every
// time. An Insert that adds leaves clears it, as does every other tree
// mutation.
type insertionCache struct {
	leaf   int
	prefix uint64
	valid  bool
}

// Gtree is a generic, grow-only, self-balancing B-tree over a sequence of
// leaves with additive per-leaf summaries. It never removes leaves or
// internal nodes once created (leaves are tombstoned via Leaf.Delete, never
// physically removed); this gives every leaf a stable integer handle for the
// lifetime of the tree.
//
// The tree is arena-backed: inodes and leaves each live in their own slice,
// and a "handle" is simply an index into the relevant slice. Because handles
// are never invalidated by later insertions (only appended to, never
// reordered or removed), they can be cached and compared safely by callers.
type Gtree[S Summary[S], L Leaf[S]] struct {
	arity   int
	inodes  []ginode[S]
	lnodes  []glnode[L]
	rootIdx int
	cache   insertionCache
}

// NewGtree creates a tree containing a single leaf, under a root inode. The
// arity must be even and at least 4; it bounds how many children an internal
// node may hold before it splits.
func NewGtree[S Summary[S], L Leaf[S]](first L, arity int) *Gtree[S, L] {
	if arity < 4 || arity%2 != 0 {
		panic("textcrdt: Gtree arity must be even and >= 4")
	}
	t := &Gtree[S, L]{arity: arity, rootIdx: 0}
	t.lnodes = append(t.lnodes, glnode[L]{value: first, parent: 0})
	t.inodes = append(t.inodes, ginode[S]{
		summary:   first.Summarize(),
		parent:    noNode,
		hasLeaves: true,
		children:  []int{0},
	})
	return t
}

// Summary returns the root's summary: the fold of every leaf in the tree.
func (t *Gtree[S, L]) Summary() S { return t.inodes[t.rootIdx].summary }

// Len is a convenience for Summary().Len().
func (t *Gtree[S, L]) Len() uint64 { return t.inodes[t.rootIdx].summary.Len() }

// NumLeaves returns the total number of leaves ever created, including
// tombstoned ones.
func (t *Gtree[S, L]) NumLeaves() int { return len(t.lnodes) }

// NumInodes returns the total number of internal nodes ever created.
func (t *Gtree[S, L]) NumInodes() int { return len(t.inodes) }

// InodeChildCount returns how many children inode idx currently holds. For
// introspection/debugging only.
func (t *Gtree[S, L]) InodeChildCount(idx int) int { return len(t.inodes[idx].children) }

// RootIdx returns the handle of the current root inode. For
// introspection/debugging only.
func (t *Gtree[S, L]) RootIdx() int { return t.rootIdx }

// InodeHasLeafChildren reports whether inode idx's children are leaves
// (true) or further inodes (false). For introspection/debugging only.
func (t *Gtree[S, L]) InodeHasLeafChildren(idx int) bool { return t.inodes[idx].hasLeaves }

// InodeChild returns the handle of inode idx's child at position pos. For
// introspection/debugging only.
func (t *Gtree[S, L]) InodeChild(idx, pos int) int { return t.inodes[idx].children[pos] }

// Clone returns a deep copy of t: independent arenas, so mutating the clone
// never affects the original.
func (t *Gtree[S, L]) Clone() *Gtree[S, L] {
	cp := &Gtree[S, L]{arity: t.arity, rootIdx: t.rootIdx, cache: t.cache}

	cp.inodes = make([]ginode[S], len(t.inodes))
	for i, n := range t.inodes {
		cp.inodes[i] = ginode[S]{
			summary:   n.summary,
			parent:    n.parent,
			hasLeaves: n.hasLeaves,
			children:  append([]int(nil), n.children...),
		}
	}

	cp.lnodes = make([]glnode[L], len(t.lnodes))
	copy(cp.lnodes, t.lnodes)

	return cp
}

// Leaf returns a mutable pointer to the leaf at idx. The pointer is only
// valid until the next call to a method that may grow the tree (Insert,
// DeleteRange); callers must not hold it across such a call.
func (t *Gtree[S, L]) Leaf(idx int) *L { return &t.lnodes[idx].value }

// ReadLeaf returns a copy of the leaf at idx.
func (t *Gtree[S, L]) ReadLeaf(idx int) L { return t.lnodes[idx].value }

// FirstLeaf returns the handle of the leftmost leaf in the tree.
func (t *Gtree[S, L]) FirstLeaf() int { return t.leftmostLeaf(t.rootIdx) }

// LastLeaf returns the handle of the rightmost leaf in the tree.
func (t *Gtree[S, L]) LastLeaf() int { return t.rightmostLeaf(t.rootIdx) }

// NextLeaf returns the leaf immediately after idx in tree order, or
// (0, false) if idx is the last leaf.
func (t *Gtree[S, L]) NextLeaf(idx int) (int, bool) {
	parentIdx := t.lnodes[idx].parent
	pos := t.indexOfLeafChild(parentIdx, idx)
	if pos+1 < len(t.inodes[parentIdx].children) {
		return t.inodes[parentIdx].children[pos+1], true
	}
	cur := parentIdx
	for {
		p := t.inodes[cur].parent
		if p == noNode {
			return 0, false
		}
		cpos := t.indexOfInodeChild(p, cur)
		if cpos+1 < len(t.inodes[p].children) {
			return t.leftmostLeaf(t.inodes[p].children[cpos+1]), true
		}
		cur = p
	}
}

// PrevLeaf returns the leaf immediately before idx in tree order, or
// (0, false) if idx is the first leaf.
func (t *Gtree[S, L]) PrevLeaf(idx int) (int, bool) {
	parentIdx := t.lnodes[idx].parent
	pos := t.indexOfLeafChild(parentIdx, idx)
	if pos > 0 {
		return t.inodes[parentIdx].children[pos-1], true
	}
	cur := parentIdx
	for {
		p := t.inodes[cur].parent
		if p == noNode {
			return 0, false
		}
		cpos := t.indexOfInodeChild(p, cur)
		if cpos > 0 {
			return t.rightmostLeaf(t.inodes[p].children[cpos-1]), true
		}
		cur = p
	}
}

// ForEachLeaf visits every leaf in tree order, including tombstones.
func (t *Gtree[S, L]) ForEachLeaf(fn func(idx int, leaf *L)) {
	idx := t.FirstLeaf()
	for {
		fn(idx, &t.lnodes[idx].value)
		next, ok := t.NextLeaf(idx)
		if !ok {
			return
		}
		idx = next
	}
}

// OffsetOfLeaf returns the sum of the summaries of every leaf preceding idx
// in tree order (i.e. its visible-length offset from the start of the
// document).
func (t *Gtree[S, L]) OffsetOfLeaf(idx int) uint64 {
	var sum uint64
	parentIdx := t.lnodes[idx].parent
	pos := t.indexOfLeafChild(parentIdx, idx)
	for i := 0; i < pos; i++ {
		sum += t.childLen(true, t.inodes[parentIdx].children[i])
	}
	child := parentIdx
	parentIdx = t.inodes[child].parent
	for parentIdx != noNode {
		p := t.indexOfInodeChild(parentIdx, child)
		for i := 0; i < p; i++ {
			sum += t.childLen(false, t.inodes[parentIdx].children[i])
		}
		child = parentIdx
		parentIdx = t.inodes[child].parent
	}
	return sum
}

// AssertInvariants validates the last-insertion cache, if any. It's meant
// for tests, not the hot path.
func (t *Gtree[S, L]) AssertInvariants() {
	if !t.cache.valid {
		return
	}
	got := t.OffsetOfLeaf(t.cache.leaf)
	if got != t.cache.prefix {
		panic("textcrdt: Gtree insertion cache offset mismatch")
	}
}

// InsertFn mutates the leaf found at the given offset (relative to the
// leaf's own start) and may return up to two brand-new leaves to be spliced
// in immediately after it, in order. Returning (nil, nil) means the existing
// leaf was mutated in place with no new leaves needed.
type InsertFn[L any] func(leaf *L, offsetInLeaf uint64) (first, second *L)

// Insert descends to the leaf containing offset and invokes f with the
// offset translated to be relative to that leaf's start. It returns the
// handles of any new leaves f produced.
func (t *Gtree[S, L]) Insert(offset uint64, f InsertFn[L]) (firstIdx int, hasFirst bool, secondIdx int, hasSecond bool) {
	leafIdx, leafStart := t.locateForInsert(offset)
	localOffset := offset - leafStart

	first, second := f(&t.lnodes[leafIdx].value, localOffset)
	parentIdx := t.lnodes[leafIdx].parent

	if first == nil && second == nil {
		t.propagateSummary(parentIdx)
		t.cache = insertionCache{leaf: leafIdx, prefix: leafStart, valid: true}
		return 0, false, 0, false
	}

	pos := t.indexOfLeafChild(parentIdx, leafIdx)
	var newChildren []int
	if first != nil {
		firstIdx = t.pushLeaf(*first, parentIdx)
		newChildren = append(newChildren, firstIdx)
		hasFirst = true
	}
	if second != nil {
		secondIdx = t.pushLeaf(*second, parentIdx)
		newChildren = append(newChildren, secondIdx)
		hasSecond = true
	}
	t.insertChildrenAt(parentIdx, pos+1, newChildren)
	t.cache = insertionCache{}
	return firstIdx, hasFirst, secondIdx, hasSecond
}

// InsertAfter creates a new leaf holding v and splices it immediately after
// existingLeaf, without touching existingLeaf's content. Used for anchor-based
// (rather than offset-based) placement.
func (t *Gtree[S, L]) InsertAfter(existingLeaf int, v L) int {
	parentIdx := t.lnodes[existingLeaf].parent
	pos := t.indexOfLeafChild(parentIdx, existingLeaf)
	idx := t.pushLeaf(v, parentIdx)
	t.insertChildrenAt(parentIdx, pos+1, []int{idx})
	t.cache = insertionCache{}
	return idx
}

// InsertBefore creates a new leaf holding v and splices it immediately
// before existingLeaf, without touching existingLeaf's content.
func (t *Gtree[S, L]) InsertBefore(existingLeaf int, v L) int {
	parentIdx := t.lnodes[existingLeaf].parent
	pos := t.indexOfLeafChild(parentIdx, existingLeaf)
	idx := t.pushLeaf(v, parentIdx)
	t.insertChildrenAt(parentIdx, pos, []int{idx})
	t.cache = insertionCache{}
	return idx
}

// MutateLeaf invokes f on the leaf at idx directly, with no offset-based
// descent, and splices up to two leaves it returns immediately after idx —
// the same splicing rule as Insert, just keyed by a known handle instead of
// an offset.
func (t *Gtree[S, L]) MutateLeaf(idx int, f func(leaf *L) (first, second *L)) (firstIdx int, hasFirst bool, secondIdx int, hasSecond bool) {
	first, second := f(&t.lnodes[idx].value)
	parentIdx := t.lnodes[idx].parent

	if first == nil && second == nil {
		t.propagateSummary(parentIdx)
		t.cache = insertionCache{}
		return 0, false, 0, false
	}

	pos := t.indexOfLeafChild(parentIdx, idx)
	var newChildren []int
	if first != nil {
		firstIdx = t.pushLeaf(*first, parentIdx)
		newChildren = append(newChildren, firstIdx)
		hasFirst = true
	}
	if second != nil {
		secondIdx = t.pushLeaf(*second, parentIdx)
		newChildren = append(newChildren, secondIdx)
		hasSecond = true
	}
	t.insertChildrenAt(parentIdx, pos+1, newChildren)
	t.cache = insertionCache{}
	return firstIdx, hasFirst, secondIdx, hasSecond
}

func (t *Gtree[S, L]) locateForInsert(offset uint64) (int, uint64) {
	if t.cache.valid {
		leafLen := t.lnodes[t.cache.leaf].value.Summarize().Len()
		if offset > t.cache.prefix && offset <= t.cache.prefix+leafLen {
			return t.cache.leaf, t.cache.prefix
		}
	}
	return t.locate(offset)
}

// locate finds the leaf whose range [start, start+len] contains offset,
// using the same "run the cumulative sum, stop at the first child whose sum
// reaches offset" rule at every level; a boundary offset between two leaves
// always resolves to the end of the left leaf.
func (t *Gtree[S, L]) locate(offset uint64) (int, uint64) {
	idx := t.rootIdx
	var prefix uint64
	for {
		in := t.inodes[idx]
		acc := uint64(0)
		pos := len(in.children) - 1
		for i, c := range in.children {
			l := t.childLen(in.hasLeaves, c)
			next := acc + l
			if next >= offset-prefix {
				pos = i
				break
			}
			acc = next
		}
		child := in.children[pos]
		if in.hasLeaves {
			return child, prefix + acc
		}
		prefix += acc
		idx = child
	}
}

func (t *Gtree[S, L]) childLen(hasLeaves bool, c int) uint64 {
	if hasLeaves {
		return t.lnodes[c].value.Summarize().Len()
	}
	return t.inodes[c].summary.Len()
}

func (t *Gtree[S, L]) leftmostLeaf(inodeIdx int) int {
	for {
		in := t.inodes[inodeIdx]
		if in.hasLeaves {
			return in.children[0]
		}
		inodeIdx = in.children[0]
	}
}

func (t *Gtree[S, L]) rightmostLeaf(inodeIdx int) int {
	for {
		in := t.inodes[inodeIdx]
		if in.hasLeaves {
			return in.children[len(in.children)-1]
		}
		inodeIdx = in.children[len(in.children)-1]
	}
}

func (t *Gtree[S, L]) indexOfLeafChild(parentIdx, leafIdx int) int {
	for i, c := range t.inodes[parentIdx].children {
		if c == leafIdx {
			return i
		}
	}
	panic("textcrdt: leaf not found among its parent's children")
}

func (t *Gtree[S, L]) indexOfInodeChild(parentIdx, childIdx int) int {
	for i, c := range t.inodes[parentIdx].children {
		if c == childIdx {
			return i
		}
	}
	panic("textcrdt: inode not found among its parent's children")
}

func (t *Gtree[S, L]) pushInode(n ginode[S]) int {
	t.inodes = append(t.inodes, n)
	return len(t.inodes) - 1
}

func (t *Gtree[S, L]) pushLeaf(v L, parent int) int {
	t.lnodes = append(t.lnodes, glnode[L]{value: v, parent: parent})
	return len(t.lnodes) - 1
}

func (t *Gtree[S, L]) recomputeInodeSummary(idx int) {
	in := &t.inodes[idx]
	var sum S
	if in.hasLeaves {
		for _, c := range in.children {
			sum = sum.Add(t.lnodes[c].value.Summarize())
		}
	} else {
		for _, c := range in.children {
			sum = sum.Add(t.inodes[c].summary)
		}
	}
	in.summary = sum
}

func (t *Gtree[S, L]) propagateSummary(idx int) {
	for idx != noNode {
		t.recomputeInodeSummary(idx)
		idx = t.inodes[idx].parent
	}
}

func (t *Gtree[S, L]) reparent(idxs []int, parentIdx int, hasLeaves bool) {
	for _, c := range idxs {
		if hasLeaves {
			t.lnodes[c].parent = parentIdx
		} else {
			t.inodes[c].parent = parentIdx
		}
	}
}

func (t *Gtree[S, L]) spliceChildren(parentIdx, pos int, newChildren []int) {
	in := &t.inodes[parentIdx]
	hasLeaves := in.hasLeaves
	children := make([]int, 0, len(in.children)+len(newChildren))
	children = append(children, in.children[:pos]...)
	children = append(children, newChildren...)
	children = append(children, in.children[pos:]...)
	in.children = children
	t.reparent(newChildren, parentIdx, hasLeaves)
}

// insertChildrenAt splices newChildren into parentIdx's children at pos,
// recomputes its summary, and splits it (bubbling the split up to the root,
// creating a new root if necessary) if it now holds more than t.arity
// children.
func (t *Gtree[S, L]) insertChildrenAt(parentIdx, pos int, newChildren []int) {
	if len(newChildren) == 0 {
		return
	}
	t.spliceChildren(parentIdx, pos, newChildren)
	t.recomputeInodeSummary(parentIdx)
	t.splitAndBubble(parentIdx)
}

func (t *Gtree[S, L]) splitAndBubble(idx int) {
	for {
		if len(t.inodes[idx].children) <= t.arity {
			t.propagateSummary(t.inodes[idx].parent)
			return
		}

		children := t.inodes[idx].children
		n := len(children)
		leftLen := (n + 1) / 2
		hasLeaves := t.inodes[idx].hasLeaves
		parentIdx := t.inodes[idx].parent

		rightChildren := append([]int(nil), children[leftLen:]...)
		t.inodes[idx].children = children[:leftLen]
		t.recomputeInodeSummary(idx)

		rightIdx := t.pushInode(ginode[S]{parent: parentIdx, hasLeaves: hasLeaves, children: rightChildren})
		t.reparent(rightChildren, rightIdx, hasLeaves)
		t.recomputeInodeSummary(rightIdx)

		if parentIdx == noNode {
			newRoot := t.pushInode(ginode[S]{parent: noNode, hasLeaves: false, children: []int{idx, rightIdx}})
			t.inodes[idx].parent = newRoot
			t.inodes[rightIdx].parent = newRoot
			t.recomputeInodeSummary(newRoot)
			t.rootIdx = newRoot
			return
		}

		pos := t.indexOfInodeChild(parentIdx, idx)
		t.spliceChildren(parentIdx, pos+1, []int{rightIdx})
		t.recomputeInodeSummary(parentIdx)
		idx = parentIdx
	}
}

// deleteSubtreeFully tombstones every leaf under idx (idx may itself be a
// leaf-level or internal-level node) without touching tree shape, and zeroes
// its summary.
func (t *Gtree[S, L]) deleteSubtreeFully(idx int, hasLeaves bool) {
	if hasLeaves {
		for _, c := range t.inodes[idx].children {
			t.lnodes[c].value.Delete()
		}
	} else {
		for _, c := range t.inodes[idx].children {
			t.deleteSubtreeFully(c, t.inodes[c].hasLeaves)
		}
	}
	var zero S
	t.inodes[idx].summary = zero
}

// DeleteRangeFn handles a deletion range that falls entirely within one
// leaf. It may split it into up to two new leaves (e.g. a tombstoned middle
// piece and a visible suffix), with the leaf itself mutated in place to
// become whatever survives to its left.
type DeleteRangeFn[L any] func(leaf *L, start, end uint64) (first, second *L)

// DeleteFromFn handles the left-boundary leaf of a multi-leaf deletion: the
// deleted region starts at `from` (relative to the leaf) and continues to
// the leaf's end. It may return a new tail leaf for the now-tombstoned
// remainder, with the original leaf mutated in place to keep only its
// visible prefix.
type DeleteFromFn[L any] func(leaf *L, from uint64) (tail *L)

// DeleteUpToFn handles the right-boundary leaf of a multi-leaf deletion: the
// deleted region starts at the leaf's beginning and continues up to `upTo`.
// It may return a new head leaf for the surviving visible suffix, with the
// original leaf mutated in place to become the tombstoned prefix.
type DeleteUpToFn[L any] func(leaf *L, upTo uint64) (head *L)

// DeleteRange tombstones every visible character in [start, end) and returns
// the handles of every new leaf created by fragmentation, in no particular
// order. A run that was fully contained becomes fully tombstoned with no
// shape change; runs straddling a boundary are split so that the tombstoned
// and surviving pieces each get their own leaf.
func (t *Gtree[S, L]) DeleteRange(start, end uint64, fRange DeleteRangeFn[L], fFrom DeleteFromFn[L], fUpTo DeleteUpToFn[L]) []int {
	t.cache = insertionCache{}

	if start == end {
		return nil
	}

	nodeIdx, rel, isLeaf := t.locateRange(rng{start: start, end: end})
	var created []int

	if isLeaf {
		t.deleteWithinLeaf(nodeIdx, rel, fRange, &created)
		return created
	}

	t.deleteAcrossChildren(nodeIdx, rel, fFrom, fUpTo, &created)
	return created
}

func (t *Gtree[S, L]) locateRange(r rng) (nodeIdx int, rel rng, isLeaf bool) {
	idx := t.rootIdx
	for {
		in := t.inodes[idx]
		acc := uint64(0)
		matched := -1
		var childStart uint64
		for i, c := range in.children {
			l := t.childLen(in.hasLeaves, c)
			ce := acc + l
			if acc <= r.start && r.end <= ce {
				matched = i
				childStart = acc
				break
			}
			acc = ce
		}
		if matched == -1 {
			return idx, r, false
		}
		child := in.children[matched]
		next := rng{start: r.start - childStart, end: r.end - childStart}
		if in.hasLeaves {
			return child, next, true
		}
		idx, r = child, next
	}
}

func (t *Gtree[S, L]) deleteWithinLeaf(leafIdx int, rel rng, fRange DeleteRangeFn[L], created *[]int) {
	first, second := fRange(&t.lnodes[leafIdx].value, rel.start, rel.end)
	parentIdx := t.lnodes[leafIdx].parent

	if first == nil && second == nil {
		t.propagateSummary(parentIdx)
		return
	}

	pos := t.indexOfLeafChild(parentIdx, leafIdx)
	var newChildren []int
	if first != nil {
		idx := t.pushLeaf(*first, parentIdx)
		newChildren = append(newChildren, idx)
		*created = append(*created, idx)
	}
	if second != nil {
		idx := t.pushLeaf(*second, parentIdx)
		newChildren = append(newChildren, idx)
		*created = append(*created, idx)
	}
	t.insertChildrenAt(parentIdx, pos+1, newChildren)
}

func (t *Gtree[S, L]) deleteFrom(idx int, from uint64, isLeaf bool, fFrom DeleteFromFn[L], created *[]int) {
	if isLeaf {
		tail := fFrom(&t.lnodes[idx].value, from)
		if tail == nil {
			t.propagateSummary(t.lnodes[idx].parent)
			return
		}
		parentIdx := t.lnodes[idx].parent
		pos := t.indexOfLeafChild(parentIdx, idx)
		tailIdx := t.pushLeaf(*tail, parentIdx)
		*created = append(*created, tailIdx)
		t.insertChildrenAt(parentIdx, pos+1, []int{tailIdx})
		return
	}

	hasLeafChildren := t.inodes[idx].hasLeaves
	children := append([]int(nil), t.inodes[idx].children...)
	acc := uint64(0)
	for _, c := range children {
		l := t.childLen(hasLeafChildren, c)
		ce := acc + l
		switch {
		case ce <= from:
		case acc >= from:
			if hasLeafChildren {
				t.lnodes[c].value.Delete()
			} else {
				t.deleteSubtreeFully(c, t.inodes[c].hasLeaves)
			}
		default:
			t.deleteFrom(c, from-acc, hasLeafChildren, fFrom, created)
		}
		acc = ce
	}
	t.recomputeInodeSummary(idx)
	t.propagateSummary(t.inodes[idx].parent)
}

func (t *Gtree[S, L]) deleteUpTo(idx int, upTo uint64, isLeaf bool, fUpTo DeleteUpToFn[L], created *[]int) {
	if isLeaf {
		head := fUpTo(&t.lnodes[idx].value, upTo)
		if head == nil {
			t.propagateSummary(t.lnodes[idx].parent)
			return
		}
		parentIdx := t.lnodes[idx].parent
		pos := t.indexOfLeafChild(parentIdx, idx)
		headIdx := t.pushLeaf(*head, parentIdx)
		*created = append(*created, headIdx)
		t.insertChildrenAt(parentIdx, pos+1, []int{headIdx})
		return
	}

	hasLeafChildren := t.inodes[idx].hasLeaves
	children := append([]int(nil), t.inodes[idx].children...)
	acc := uint64(0)
	for _, c := range children {
		l := t.childLen(hasLeafChildren, c)
		ce := acc + l
		switch {
		case acc >= upTo:
		case ce <= upTo:
			if hasLeafChildren {
				t.lnodes[c].value.Delete()
			} else {
				t.deleteSubtreeFully(c, t.inodes[c].hasLeaves)
			}
		default:
			t.deleteUpTo(c, upTo-acc, hasLeafChildren, fUpTo, created)
		}
		acc = ce
	}
	t.recomputeInodeSummary(idx)
	t.propagateSummary(t.inodes[idx].parent)
}

func (t *Gtree[S, L]) deleteAcrossChildren(idx int, rel rng, fFrom DeleteFromFn[L], fUpTo DeleteUpToFn[L], created *[]int) {
	hasLeafChildren := t.inodes[idx].hasLeaves
	children := append([]int(nil), t.inodes[idx].children...)
	acc := uint64(0)
	for _, c := range children {
		l := t.childLen(hasLeafChildren, c)
		cs, ce := acc, acc+l
		switch {
		case ce <= rel.start || cs >= rel.end:
		case cs >= rel.start && ce <= rel.end:
			if hasLeafChildren {
				t.lnodes[c].value.Delete()
			} else {
				t.deleteSubtreeFully(c, t.inodes[c].hasLeaves)
			}
		case cs < rel.start:
			t.deleteFrom(c, rel.start-cs, hasLeafChildren, fFrom, created)
		default:
			t.deleteUpTo(c, rel.end-cs, hasLeafChildren, fUpTo, created)
		}
		acc = ce
	}
	t.recomputeInodeSummary(idx)
	t.propagateSummary(t.inodes[idx].parent)
}
