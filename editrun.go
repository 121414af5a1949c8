package textcrdt

// runSummary is the additive summary EditRun leaves carry in the Gtree: just
// the visible character count. A tombstoned run summarizes to zero, so the
// Gtree's total summary is always the document's current visible length.
type runSummary struct {
	len Length
}

func (s runSummary) Add(other runSummary) runSummary {
	return runSummary{len: s.len + other.len}
}

func (s runSummary) Sub(other runSummary) runSummary {
	return runSummary{len: s.len - other.len}
}

func (s runSummary) Len() uint64 { return s.len }

// EditRun is a contiguous run of characters inserted by one replica in one
// uninterrupted insertion, and the Gtree's leaf payload.
//
// This is the run-level generalization of a single-character CRDT node (see
// e.g. a classic RGA, which tracks one tree node per character): instead of
// one node per character, one EditRun covers an entire contiguous insertion,
// which is what makes the run tree sublinear in the number of edits rather
// than linear in the number of characters.
type EditRun struct {
	// text is the character interval this run covers; bookkeeping only, the
	// characters themselves are never stored here.
	text Text

	// runTs is the originating replica's RunTs when this run was created.
	runTs RunTs

	// lamportTs is the Lamport timestamp at creation, used to order this run
	// against concurrent siblings anchored to the same position.
	lamportTs LamportTs

	// parentAnchor is the anchor this run was inserted against: the
	// identity of the run that was, at the time, immediately to its left.
	parentAnchor innerAnchor

	// isVisible is false once the run has been deleted. The run (and its
	// RunIndices entry) is never removed from the tree: it becomes a
	// tombstone so that anchors pointing into it stay resolvable.
	isVisible bool
}

func newVisibleRun(text Text, runTs RunTs, lamportTs LamportTs, parent innerAnchor) EditRun {
	return EditRun{text: text, runTs: runTs, lamportTs: lamportTs, parentAnchor: parent, isVisible: true}
}

// Summarize implements Leaf[runSummary].
func (r *EditRun) Summarize() runSummary {
	if !r.isVisible {
		return runSummary{}
	}
	return runSummary{len: r.text.Len()}
}

// Delete implements Leaf[runSummary]: tombstones the run in place. It keeps
// its character interval (so anchors into it still resolve) but stops
// contributing to any summary.
func (r *EditRun) Delete() {
	r.isVisible = false
}

// len returns the run's character-interval length, regardless of visibility.
// Used internally when locating split points; Summarize is what the Gtree
// actually sums.
func (r *EditRun) len() Length { return r.text.Len() }

// anchorAt returns the innerAnchor naming the position immediately to the
// left of the atOffset-th character of this run (an offset relative to the
// run's own start, in [0, r.len()]).
func (r *EditRun) anchorAt(atOffset Length) innerAnchor {
	if atOffset == 0 {
		return r.parentAnchor
	}
	return innerAnchor{replicaID: r.text.Inserter, runTs: r.runTs, offset: r.text.Lo + atOffset - 1}
}

// splitAt splits the run in place at atOffset (relative to the run's start):
// r keeps [0, atOffset) and the returned run covers [atOffset, len). Both
// halves keep the run's runTs, lamportTs and visibility; only the second
// half's parentAnchor changes (it now anchors to the first half's last
// character).
func (r *EditRun) splitAt(atOffset Length) EditRun {
	left, right := r.text.splitAt(atOffset)
	rightRun := EditRun{
		text:         right,
		runTs:        r.runTs,
		lamportTs:    r.lamportTs,
		parentAnchor: innerAnchor{replicaID: r.text.Inserter, runTs: r.runTs, offset: left.Hi - 1},
		isVisible:    r.isVisible,
	}
	r.text = left
	return rightRun
}

// containsCharOffset reports whether the character at relOffset (relative to
// the run's start) exists within this run, i.e. relOffset is in [0, len()).
func (r *EditRun) containsCharOffset(relOffset Length) bool {
	return relOffset < r.len()
}

var _ Leaf[runSummary] = (*EditRun)(nil)
