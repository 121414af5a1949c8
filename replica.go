package textcrdt

import (
	"fmt"
	"sort"
	"strings"
)

// Replica is one peer's view of a collaboratively edited document. It holds
// no text of its own: callers keep the actual characters in whatever buffer
// they like (a string, a rope, a text widget) and use a Replica purely to
// decide WHERE edits to that buffer land and HOW concurrent edits from other
// replicas are reconciled, by tracking run/anchor metadata instead.
//
// A Replica is single-owner and non-thread-safe: callers that share one
// across goroutines must serialize access themselves.
type Replica struct {
	id ReplicaId

	runTree *RunTree

	lamportClock LamportClock
	runClock     RunClock

	versionMap  VersionMap
	deletionMap DeletionMap

	backlog *Backlog
}

// New creates a Replica identified by id, seeded with a single visible run
// (id, [0,length)) of pre-existing content: the document this replica
// starts out "already containing", attributed to id itself rather than
// broadcast as an Insertion. id must not be zero: that id is reserved for
// the zero anchor used to mark document start/end.
func New(id ReplicaId, length Length) *Replica {
	if id == 0 {
		panic("textcrdt: replica id 0 is reserved for the zero anchor")
	}
	r := &Replica{
		id:          id,
		runTree:     NewRunTree(),
		versionMap:  NewVersionMap(id, 0),
		deletionMap: NewDeletionMap(id, 0),
		backlog:     NewBacklog(),
	}
	if length > 0 {
		runTs := r.runClock.Next()
		lamportTs := r.lamportClock.Next()
		text := NewText(id, 0, length)
		r.runTree.InsertLocal(0, text, runTs, lamportTs)
		r.versionMap.AddThis(length)
	}
	return r
}

// ID returns this replica's id.
func (r *Replica) ID() ReplicaId { return r.id }

// Len returns the document's current visible character count.
func (r *Replica) Len() Length { return r.runTree.Len() }

// Fork creates a new, independent Replica under newID that starts out with
// exactly this replica's current document content and causal history — as
// if newID had been collaborating on the document all along, but has never
// inserted or deleted anything of its own. Its own RunClock starts fresh at
// zero, since newID has no prior runs to number.
func (r *Replica) Fork(newID ReplicaId) *Replica {
	if newID == 0 {
		panic("textcrdt: replica id 0 is reserved for the zero anchor")
	}
	if newID == r.id {
		panic("textcrdt: fork id must differ from the source replica's id")
	}

	fork := &Replica{
		id:          newID,
		runTree:     r.runTree.Clone(),
		versionMap:  r.versionMap.Fork(newID, 0),
		deletionMap: r.deletionMap.Fork(newID, 0),
		backlog:     NewBacklog(),
	}
	fork.lamportClock = LamportClock{next: r.lamportClock.next}
	return fork
}

// Inserted records a local insertion of length characters at the given
// visible offset and returns the Insertion to broadcast to other replicas.
// It never touches or requires the actual character data; the host
// application owns that, keyed by the position this call implies.
//
// A zero-length insertion still advances this replica's clocks (callers
// that skip broadcasting a no-op insertion must still be able to account
// for it having "happened") but leaves the run tree untouched.
func (r *Replica) Inserted(at Length, length Length) Insertion {
	if at > r.runTree.Len() {
		panic("textcrdt: insertion offset beyond the end of the document")
	}

	lo := r.versionMap.This()
	hi := lo + length
	r.versionMap.AddThis(length)

	runTs := r.runClock.Next()
	lamportTs := r.lamportClock.Next()
	text := NewText(r.id, lo, hi)
	parent := zeroInnerAnchor()

	if length > 0 {
		_, parent = r.runTree.InsertLocal(at, text, runTs, lamportTs)
	}

	return Insertion{replica: r.id, runTs: runTs, lamportTs: lamportTs, text: text, parent: parent}
}

// Deleted tombstones the visible characters in [start, end) and returns the
// Deletion to broadcast to other replicas. An empty range is a no-op; it
// panics if start > end or if end is beyond the document's length.
func (r *Replica) Deleted(start, end Length) Deletion {
	if start > end {
		panic("textcrdt: deletion range start is after its end")
	}
	if end > r.runTree.Len() {
		panic("textcrdt: deletion range extends beyond the end of the document")
	}
	if start == end {
		return Deletion{}
	}

	ranges := r.runTree.DeleteLocal(start, end)
	if len(ranges) == 0 {
		return Deletion{}
	}

	ts := r.deletionMap.AddThis(1)

	touched := make(map[ReplicaId]struct{}, len(ranges))
	for _, rg := range ranges {
		touched[rg.Replica] = struct{}{}
	}
	snap := r.versionMap.Snapshot(touched)

	return Deletion{replica: r.id, deletionTs: ts, versionMap: snap, ranges: ranges}
}

// readiness distinguishes the three outcomes of attempting to integrate an
// op this replica has just received: it may be brand new and applicable
// right now, a redelivery of something already fully integrated, or still
// waiting on a dependency.
type readiness int

const (
	notReady readiness = iota
	alreadyApplied
	justApplied
)

// IntegrateInsertion applies an Insertion produced by another replica
// (directly, or relayed through a third party), returning the offset it
// landed at. ok is false if ins was already integrated (a harmless
// redelivery) or if its anchor hasn't been seen yet, in which case it's
// held in the backlog until BackloggedInsertions releases it.
func (r *Replica) IntegrateInsertion(ins Insertion) (offset Length, ok bool) {
	if ins.IsNoop() {
		return 0, false
	}
	offset, state := r.tryIntegrateInsertion(ins)
	if state == notReady {
		r.backlog.HoldInsertion(ins)
	}
	return offset, state == justApplied
}

// tryIntegrateInsertion attempts to apply ins now. notReady means its
// anchor isn't known yet and the caller should backlog it; alreadyApplied
// means this replica integrated it on a previous call (at-least-once
// delivery across relays is expected, so this is a no-op, not an error).
func (r *Replica) tryIntegrateInsertion(ins Insertion) (Length, readiness) {
	expected := r.versionMap.Get(ins.replica)
	switch {
	case expected >= ins.text.Hi:
		return 0, alreadyApplied
	case expected < ins.text.Lo:
		return 0, notReady
	case expected != ins.text.Lo:
		panicOutOfOrderInsertion(ins.replica, expected, ins.runTs)
	}

	offset, ok := r.runTree.IntegrateRemoteInsertion(ins.text, ins.runTs, ins.lamportTs, ins.parent)
	if !ok {
		return 0, notReady
	}

	r.versionMap.Set(ins.replica, ins.text.Hi)
	r.lamportClock.Merge(ins.lamportTs)
	return offset, justApplied
}

// IntegrateDeletion applies a Deletion produced by another replica,
// returning the buffer-offset ranges it removed, sorted ascending and
// non-overlapping: the host applies these directly to its own buffer.
// Concurrent insertions may have landed inside the deleted span, so more
// than one range can come back for a single Deletion. The result is empty
// if d was already integrated, or if it depends on insertions or prior
// deletions this replica hasn't integrated yet — in the latter case it's
// held in the backlog until BackloggedDeletions releases it.
func (r *Replica) IntegrateDeletion(d Deletion) []Range {
	if d.IsNoop() {
		return nil
	}
	ranges, state := r.tryIntegrateDeletion(d)
	if state == notReady {
		r.backlog.HoldDeletion(d)
	}
	if state != justApplied {
		return nil
	}
	return ranges
}

func (r *Replica) tryIntegrateDeletion(d Deletion) ([]Range, readiness) {
	seen := r.deletionMap.Get(d.replica)
	switch {
	case seen >= d.deletionTs:
		return nil, alreadyApplied
	case seen+1 < d.deletionTs:
		return nil, notReady
	case seen+1 != d.deletionTs:
		panicOutOfOrderDeletion(d.replica, seen+1, d.deletionTs)
	}

	if !r.versionMap.GeqAll(&d.versionMap) {
		return nil, notReady
	}

	var ranges []Range
	for _, rg := range d.ranges {
		ranges = append(ranges, r.runTree.DeletionOffsets(rg)...)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Lo < ranges[j].Lo })

	for _, rg := range d.ranges {
		r.runTree.IntegrateRemoteDeletion(rg)
	}
	r.deletionMap.Set(d.replica, d.deletionTs)
	return ranges, justApplied
}

// PendingInsertions iterates over backlogged insertions as they become
// ready to apply, one per call to Next.
type PendingInsertions struct{ r *Replica }

// Next applies the next backlogged insertion whose anchor is now known and
// returns the offset it landed at. ok is false once no backlogged insertion
// is ready yet; releasing one can make another ready, so a caller that
// wants everything unblocked keeps calling Next until it reports false.
func (p *PendingInsertions) Next() (Length, bool) {
	return p.r.backlog.TakeFirstReadyInsertion(func(ins Insertion) (Length, bool) {
		offset, state := p.r.tryIntegrateInsertion(ins)
		return offset, state == justApplied
	})
}

// BackloggedInsertions returns an iterator over remote insertions currently
// waiting on an anchor this replica hasn't integrated yet.
func (r *Replica) BackloggedInsertions() *PendingInsertions { return &PendingInsertions{r: r} }

// PendingDeletions iterates over backlogged deletions as they become ready
// to apply, one per call to Next.
type PendingDeletions struct{ r *Replica }

// Next applies the next backlogged deletion whose dependencies are now all
// integrated and returns the buffer-offset ranges it removed. ok is false
// once no backlogged deletion is ready yet.
func (p *PendingDeletions) Next() ([]Range, bool) {
	return p.r.backlog.TakeFirstReadyDeletion(func(d Deletion) ([]Range, bool) {
		ranges, state := p.r.tryIntegrateDeletion(d)
		return ranges, state == justApplied
	})
}

// BackloggedDeletions returns an iterator over remote deletions currently
// waiting on a dependency this replica hasn't integrated yet.
func (r *Replica) BackloggedDeletions() *PendingDeletions { return &PendingDeletions{r: r} }

// NumBackloggedInsertions returns how many remote insertions are currently
// held in the backlog. For introspection/debugging.
func (r *Replica) NumBackloggedInsertions() int { return r.backlog.NumBackloggedInsertions() }

// NumBackloggedDeletions returns how many remote deletions are currently
// held in the backlog. For introspection/debugging.
func (r *Replica) NumBackloggedDeletions() int { return r.backlog.NumBackloggedDeletions() }

// CreateAnchor builds a stable reference to the given visible offset, which
// remains meaningful even as concurrent edits move characters around it. It
// panics if at is beyond the document's length.
func (r *Replica) CreateAnchor(at Length, bias AnchorBias) Anchor {
	if at > r.runTree.Len() {
		panic("textcrdt: anchor offset beyond the end of the document")
	}
	return r.runTree.CreateAnchor(at, bias)
}

// ResolveAnchor returns the visible offset a currently maps to.
func (r *Replica) ResolveAnchor(a Anchor) Length {
	return r.runTree.ResolveAnchor(a)
}

// NumRuns returns the number of run fragments in the document, including
// tombstones. For introspection/debugging.
func (r *Replica) NumRuns() int { return r.runTree.NumRuns() }

// VisibleRuns returns every visible run fragment in document order. See
// RunTree.VisibleRuns.
func (r *Replica) VisibleRuns() []RunRef { return r.runTree.VisibleRuns() }

// OffsetOfRun returns the current visible offset of the insertion
// originated by (replica, runTs), if any of it is still visible. A host
// can use this after IntegrateInsertion to find where a remote op landed
// in its own buffer.
func (r *Replica) OffsetOfRun(replica ReplicaId, runTs RunTs) (Length, bool) {
	return r.runTree.OffsetOfRun(replica, runTs)
}

// EmptyLeaves returns how many run fragments contribute no visible
// characters: tombstoned fragments, the start sentinel, and zero-length
// fragments left behind by splits. For introspection/debugging.
func (r *Replica) EmptyLeaves() int {
	count := 0
	r.runTree.tree.ForEachLeaf(func(idx int, leaf *EditRun) {
		if leaf.Summarize().Len() == 0 {
			count++
		}
	})
	return count
}

// AverageInodeOccupancy returns the mean number of children across every
// internal node in the run tree. For introspection/debugging.
func (r *Replica) AverageInodeOccupancy() float64 {
	n := r.runTree.tree.NumInodes()
	if n == 0 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		total += r.runTree.tree.InodeChildCount(i)
	}
	return float64(total) / float64(n)
}

// Debug renders a human-readable dump of every run fragment in the tree, in
// document order. For tests and interactive debugging, not meant to be
// parsed.
func (r *Replica) Debug() string {
	var b strings.Builder
	fmt.Fprintf(&b, "replica %d: %d visible chars, %d runs (%d tombstoned)\n",
		r.id, r.Len(), r.NumRuns(), r.EmptyLeaves())

	r.runTree.tree.ForEachLeaf(func(idx int, leaf *EditRun) {
		state := "tombstone"
		if leaf.isVisible {
			state = "visible"
		}
		fmt.Fprintf(&b, "  [%d] replica=%d run_ts=%d range=[%d,%d) lamport=%d %s\n",
			idx, leaf.text.Inserter, leaf.runTs, leaf.text.Lo, leaf.text.Hi, leaf.lamportTs, state)
	})
	return b.String()
}

// DebugAsBtree renders the run tree's internal shape: each inode indented
// under its parent, down to the leaves it holds. For tests and interactive
// debugging, not meant to be parsed.
func (r *Replica) DebugAsBtree() string {
	var b strings.Builder
	r.debugInode(&b, r.runTree.tree.RootIdx(), 0)
	return b.String()
}

func (r *Replica) debugInode(b *strings.Builder, idx, depth int) {
	indent := strings.Repeat("  ", depth)
	n := r.runTree.tree.InodeChildCount(idx)
	hasLeaves := r.runTree.tree.InodeHasLeafChildren(idx)
	fmt.Fprintf(b, "%sinode[%d] children=%d leaves=%t\n", indent, idx, n, hasLeaves)

	for pos := 0; pos < n; pos++ {
		child := r.runTree.tree.InodeChild(idx, pos)
		if hasLeaves {
			leaf := r.runTree.tree.ReadLeaf(child)
			state := "tombstone"
			if leaf.isVisible {
				state = "visible"
			}
			fmt.Fprintf(b, "%s  leaf[%d] replica=%d run_ts=%d range=[%d,%d) %s\n",
				indent, child, leaf.text.Inserter, leaf.runTs, leaf.text.Lo, leaf.text.Hi, state)
			continue
		}
		r.debugInode(b, child, depth+1)
	}
}

// AssertInvariants checks structural consistency across the replica's run
// tree and backlog. It's for tests, not the hot path.
func (r *Replica) AssertInvariants() {
	r.runTree.AssertInvariants()
	r.backlog.AssertInvariants()
}
