package textcrdt

// defaultTreeArity is the branching factor used for every RunTree. It's
// even, as the Gtree split math requires, and large enough that the tree
// stays shallow for documents with tens of thousands of runs.
const defaultTreeArity = 64

// runKey identifies a run by its origin: the replica that created it and
// that replica's RunTs at creation. It never changes even if the run later
// fragments into several leaves.
type runKey struct {
	replica ReplicaId
	runTs   RunTs
}

// RunTree is the character-sequence backbone of a Replica: a Gtree of
// EditRun leaves in document order, plus an index from run identity to the
// (possibly several) leaves a run has fragmented into.
//
// The tree always carries a permanent, invisible, zero-length sentinel run
// as its very first leaf, playing the role of an RGA's sentinel root node:
// every anchor that names "the start of the document" resolves through it,
// which lets local and remote insertion share one placement path instead of
// special-casing offset zero.
type RunTree struct {
	tree        *Gtree[runSummary, EditRun]
	runIndices  map[runKey][]int
	sentinelIdx int
}

// NewRunTree creates an empty RunTree.
func NewRunTree() *RunTree {
	sentinel := newVisibleRun(Text{}, 0, 0, zeroInnerAnchor())
	sentinel.isVisible = false

	rt := &RunTree{
		tree:        NewGtree[runSummary, EditRun](sentinel, defaultTreeArity),
		runIndices:  make(map[runKey][]int),
		sentinelIdx: 0,
	}
	rt.registerFragment(rt.sentinelIdx)
	return rt
}

// Len returns the document's current visible character count.
func (rt *RunTree) Len() Length { return rt.tree.Len() }

// Clone returns a deep copy of rt, independent of the original.
func (rt *RunTree) Clone() *RunTree {
	cp := &RunTree{
		tree:        rt.tree.Clone(),
		runIndices:  make(map[runKey][]int, len(rt.runIndices)),
		sentinelIdx: rt.sentinelIdx,
	}
	for k, v := range rt.runIndices {
		cp.runIndices[k] = append([]int(nil), v...)
	}
	return cp
}

func (rt *RunTree) registerFragment(leafIdx int) {
	leaf := rt.tree.ReadLeaf(leafIdx)
	key := runKey{leaf.text.Inserter, leaf.runTs}
	rt.runIndices[key] = append(rt.runIndices[key], leafIdx)
}

// findFragment locates the specific leaf fragment of (replica, runTs) that
// currently holds the character originally numbered offset, and that
// character's position within the fragment.
func (rt *RunTree) findFragment(replica ReplicaId, runTs RunTs, offset Length) (leafIdx int, localOffset Length, ok bool) {
	for _, idx := range rt.runIndices[runKey{replica, runTs}] {
		leaf := rt.tree.ReadLeaf(idx)
		if leaf.text.Lo <= offset && offset < leaf.text.Hi {
			return idx, offset - leaf.text.Lo, true
		}
	}
	return 0, 0, false
}

// runGreater is the tie-break used to order concurrent siblings anchored to
// the same position. The run with the higher LamportTs sorts first; ties are
// broken by the higher ReplicaId.
func runGreater(a, b *EditRun) bool {
	if a.lamportTs != b.lamportTs {
		return a.lamportTs > b.lamportTs
	}
	return a.text.Inserter > b.text.Inserter
}

// InsertLocal places a brand-new run of length text.Len() at the given
// visible offset, splitting the run currently there if offset falls in its
// interior. It returns the leaf holding the new run and the innerAnchor it
// was placed against (the Insertion op needs this to let other replicas
// place it identically).
func (rt *RunTree) InsertLocal(offset Length, text Text, runTs RunTs, lamportTs LamportTs) (leafIdx int, parent innerAnchor) {
	var captured innerAnchor
	firstIdx, _, secondIdx, hasSecond := rt.tree.Insert(offset, func(leaf *EditRun, localOffset Length) (*EditRun, *EditRun) {
		captured = leaf.anchorAt(localOffset)
		run := newVisibleRun(text, runTs, lamportTs, captured)
		if localOffset == leaf.len() {
			return &run, nil
		}
		right := leaf.splitAt(localOffset)
		return &run, &right
	})

	rt.registerFragment(firstIdx)
	if hasSecond {
		rt.registerFragment(secondIdx)
	}
	return firstIdx, captured
}

// resolveInsertPoint finds the leaf that a run anchored to parent should be
// placed after (before any concurrent-sibling tie-break scan), splitting
// the anchor's run if the anchor doesn't already fall on a leaf boundary.
// ok is false if parent names a run this tree hasn't integrated yet.
func (rt *RunTree) resolveInsertPoint(parent innerAnchor) (afterLeaf int, ok bool) {
	if parent.isZero() {
		return rt.sentinelIdx, true
	}

	fragIdx, localOffset, found := rt.findFragment(parent.replicaID, parent.runTs, parent.offset)
	if !found {
		return 0, false
	}

	fragLen := rt.tree.ReadLeaf(fragIdx).len()
	if localOffset+1 == fragLen {
		return fragIdx, true
	}

	firstIdx, hasFirst, _, _ := rt.tree.MutateLeaf(fragIdx, func(leaf *EditRun) (*EditRun, *EditRun) {
		tail := leaf.splitAt(localOffset + 1)
		return &tail, nil
	})
	if hasFirst {
		rt.registerFragment(firstIdx)
	}
	return fragIdx, true
}

// IntegrateRemoteInsertion places a run received from another replica,
// following the RGA rule: scan right from the run's anchor past every run
// that sorts before it (runGreater) — concurrent siblings that win the
// tie-break, together with everything nested after them, which always
// carries a higher Lamport timestamp — and insert right there. ok is false if the run's parent hasn't been integrated yet, in
// which case the caller must hold the insertion in the backlog. On success,
// offset is where the run landed: the sum of visible lengths to its left.
func (rt *RunTree) IntegrateRemoteInsertion(text Text, runTs RunTs, lamportTs LamportTs, parent innerAnchor) (offset Length, ok bool) {
	afterLeaf, ready := rt.resolveInsertPoint(parent)
	if !ready {
		return 0, false
	}

	newRun := newVisibleRun(text, runTs, lamportTs, parent)

	prev := afterLeaf
	cur, hasCur := rt.tree.NextLeaf(afterLeaf)
	for hasCur {
		candidate := rt.tree.ReadLeaf(cur)
		if !runGreater(&candidate, &newRun) {
			break
		}
		prev = cur
		cur, hasCur = rt.tree.NextLeaf(cur)
	}

	idx := rt.tree.InsertAfter(prev, newRun)
	rt.registerFragment(idx)
	return rt.tree.OffsetOfLeaf(idx), true
}

// DeletedRange names a half-open interval, in a single replica's own
// character numbering, that a deletion removed from visibility.
type DeletedRange struct {
	Replica ReplicaId
	RunTs   RunTs
	Lo, Hi  Length
}

// Range is a half-open interval [Lo, Hi) of buffer offsets: positions in a
// host's own current document, as opposed to DeletedRange's origin
// coordinates. IntegrateRemoteDeletion's offsets are reported this way so a
// host knows exactly what to splice out of its own buffer.
type Range struct {
	Lo, Hi Length
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// collectDeletedRanges walks the currently-visible leaves overlapping
// [start, end) and records, per run fragment, exactly which origin
// characters are about to be removed from visibility. It must run before
// DeleteRange mutates the tree.
func (rt *RunTree) collectDeletedRanges(start, end Length) []DeletedRange {
	var out []DeletedRange
	offset := Length(0)
	leafIdx := rt.tree.FirstLeaf()
	for {
		leaf := rt.tree.ReadLeaf(leafIdx)
		visLen := leaf.Summarize().Len()
		if visLen > 0 {
			segStart, segEnd := offset, offset+visLen
			if segEnd > start && segStart < end {
				lo := max64(start, segStart) - segStart
				hi := min64(end, segEnd) - segStart
				out = append(out, DeletedRange{
					Replica: leaf.text.Inserter,
					RunTs:   leaf.runTs,
					Lo:      leaf.text.Lo + lo,
					Hi:      leaf.text.Lo + hi,
				})
			}
			offset = segEnd
		}
		if offset >= end {
			return out
		}
		next, ok := rt.tree.NextLeaf(leafIdx)
		if !ok {
			return out
		}
		leafIdx = next
	}
}

func deleteRangeWithinLeaf(leaf *EditRun, s, e Length) (*EditRun, *EditRun) {
	middle := leaf.splitAt(s)
	suffix := middle.splitAt(e - s)
	middle.Delete()
	return &middle, &suffix
}

func deleteFromLeaf(leaf *EditRun, from Length) *EditRun {
	tail := leaf.splitAt(from)
	tail.Delete()
	return &tail
}

func deleteUpToLeaf(leaf *EditRun, upTo Length) *EditRun {
	head := leaf.splitAt(upTo)
	leaf.Delete()
	return &head
}

// DeleteLocal tombstones the visible characters in [start, end) and returns
// the origin-coordinate ranges that were actually removed, for a Deletion op
// to carry to other replicas.
func (rt *RunTree) DeleteLocal(start, end Length) []DeletedRange {
	ranges := rt.collectDeletedRanges(start, end)
	created := rt.tree.DeleteRange(start, end, deleteRangeWithinLeaf, deleteFromLeaf, deleteUpToLeaf)
	for _, idx := range created {
		rt.registerFragment(idx)
	}
	return ranges
}

// DeletionOffsets reports the buffer-offset ranges that
// IntegrateRemoteDeletion(dr) would remove, computed against the tree's
// current, not-yet-mutated state. Concurrent insertions may have landed
// inside dr's original interval, so the result can be several
// non-contiguous ranges; callers that need offsets for more than one
// DeletedRange must gather them all with this method before tombstoning any
// of them, or later offsets will be thrown off by earlier tombstoning.
func (rt *RunTree) DeletionOffsets(dr DeletedRange) []Range {
	var out []Range
	for _, idx := range rt.runIndices[runKey{dr.Replica, dr.RunTs}] {
		leaf := rt.tree.ReadLeaf(idx)
		lo, hi := max64(dr.Lo, leaf.text.Lo), min64(dr.Hi, leaf.text.Hi)
		if lo >= hi || !leaf.isVisible {
			continue
		}
		bufferLo := rt.tree.OffsetOfLeaf(idx) + (lo - leaf.text.Lo)
		out = append(out, Range{Lo: bufferLo, Hi: bufferLo + (hi - lo)})
	}
	return out
}

// IntegrateRemoteDeletion tombstones every fragment of dr.Replica/dr.RunTs
// that overlaps [dr.Lo, dr.Hi). The caller is responsible for checking
// causal readiness first (see Backlog): every fragment the range touches is
// assumed to already be present.
func (rt *RunTree) IntegrateRemoteDeletion(dr DeletedRange) {
	fragments := append([]int(nil), rt.runIndices[runKey{dr.Replica, dr.RunTs}]...)
	removed := Length(0)

	for _, idx := range fragments {
		leaf := rt.tree.ReadLeaf(idx)
		lo, hi := max64(dr.Lo, leaf.text.Lo), min64(dr.Hi, leaf.text.Hi)
		if lo >= hi {
			continue
		}
		removed += hi - lo
		rt.tombstoneLeafRange(idx, lo-leaf.text.Lo, hi-leaf.text.Lo)
	}

	if removed != dr.Hi-dr.Lo {
		panic("textcrdt: remote deletion range not fully covered by known fragments")
	}
}

func (rt *RunTree) tombstoneLeafRange(idx int, localStart, localEnd Length) {
	firstIdx, hasFirst, secondIdx, hasSecond := rt.tree.MutateLeaf(idx, func(leaf *EditRun) (*EditRun, *EditRun) {
		leafLen := leaf.len()
		switch {
		case localStart == 0 && localEnd == leafLen:
			leaf.Delete()
			return nil, nil
		case localStart == 0:
			tail := leaf.splitAt(localEnd)
			leaf.Delete()
			return &tail, nil
		case localEnd == leafLen:
			tail := leaf.splitAt(localStart)
			tail.Delete()
			return &tail, nil
		default:
			middle := leaf.splitAt(localStart)
			suffix := middle.splitAt(localEnd - localStart)
			middle.Delete()
			return &middle, &suffix
		}
	})
	if hasFirst {
		rt.registerFragment(firstIdx)
	}
	if hasSecond {
		rt.registerFragment(secondIdx)
	}
}

// CreateAnchor builds a stable Anchor for the given visible offset. Offset 0
// gives StartOfDocument whatever the bias, and the document's length with
// BiasRight gives EndOfDocument.
func (rt *RunTree) CreateAnchor(offset Length, bias AnchorBias) Anchor {
	total := rt.tree.Len()
	if offset == total && bias == BiasRight {
		return EndOfDocument()
	}
	if offset == 0 {
		return StartOfDocument()
	}
	leafIdx, leafStart := rt.tree.locate(offset)
	leaf := rt.tree.ReadLeaf(leafIdx)
	return Anchor{inner: leaf.anchorAt(offset - leafStart), bias: bias}
}

// ResolveAnchor returns the visible offset a's current position maps to,
// walking past tombstones in the direction a.Bias() points when the run it
// names has since been deleted.
func (rt *RunTree) ResolveAnchor(a Anchor) Length {
	if a.inner.isZero() {
		if a.bias == BiasLeft {
			return 0
		}
		return rt.tree.Len()
	}

	fragIdx, localOffset, found := rt.findFragment(a.inner.replicaID, a.inner.runTs, a.inner.offset)
	if !found {
		panicUnknownAnchor()
	}

	leaf := rt.tree.ReadLeaf(fragIdx)
	if leaf.isVisible {
		return rt.tree.OffsetOfLeaf(fragIdx) + localOffset + 1
	}

	if a.bias == BiasLeft {
		cur, ok := fragIdx, true
		for ok {
			l := rt.tree.ReadLeaf(cur)
			if l.Summarize().Len() > 0 {
				return rt.tree.OffsetOfLeaf(cur) + l.Summarize().Len()
			}
			cur, ok = rt.tree.PrevLeaf(cur)
		}
		return 0
	}

	cur, ok := fragIdx, true
	for ok {
		l := rt.tree.ReadLeaf(cur)
		if l.Summarize().Len() > 0 {
			return rt.tree.OffsetOfLeaf(cur)
		}
		cur, ok = rt.tree.NextLeaf(cur)
	}
	return rt.tree.Len()
}

// NumRuns returns the number of run fragments currently in the tree,
// including tombstones.
func (rt *RunTree) NumRuns() int { return rt.tree.NumLeaves() }

// RunRef names one contiguous, currently-visible slice of a run: the
// character interval [Lo, Hi) in (Replica, RunTs)'s own numbering.
type RunRef struct {
	Replica ReplicaId
	RunTs   RunTs
	Lo, Hi  Length
}

// VisibleRuns returns every visible run fragment in document order. A host
// reconstructs its current text by concatenating, for each RunRef, the
// [Lo, Hi) slice of whatever text it has cached for that run's origin —
// this package never stores the characters themselves.
func (rt *RunTree) VisibleRuns() []RunRef {
	var out []RunRef
	idx := rt.tree.FirstLeaf()
	for {
		leaf := rt.tree.ReadLeaf(idx)
		if leaf.isVisible {
			out = append(out, RunRef{Replica: leaf.text.Inserter, RunTs: leaf.runTs, Lo: leaf.text.Lo, Hi: leaf.text.Hi})
		}
		next, ok := rt.tree.NextLeaf(idx)
		if !ok {
			return out
		}
		idx = next
	}
}

// OffsetOfRun returns the current visible offset of the first
// still-visible fragment of the run (replica, runTs), if any of it is
// still visible. Useful for a host that wants to know where a just-
// integrated insertion landed in its own buffer.
func (rt *RunTree) OffsetOfRun(replica ReplicaId, runTs RunTs) (Length, bool) {
	for _, idx := range rt.runIndices[runKey{replica, runTs}] {
		leaf := rt.tree.ReadLeaf(idx)
		if leaf.Summarize().Len() > 0 {
			return rt.tree.OffsetOfLeaf(idx), true
		}
	}
	return 0, false
}

// AssertInvariants checks structural consistency that should always hold;
// it's for tests, not the hot path.
func (rt *RunTree) AssertInvariants() {
	rt.tree.AssertInvariants()

	seen := make(map[int]bool)
	for key, frags := range rt.runIndices {
		for _, idx := range frags {
			if seen[idx] {
				panic("textcrdt: leaf registered under two run keys")
			}
			seen[idx] = true
			leaf := rt.tree.ReadLeaf(idx)
			if leaf.text.Inserter != key.replica || leaf.runTs != key.runTs {
				panic("textcrdt: runIndices entry doesn't match its leaf")
			}
		}
	}
}
