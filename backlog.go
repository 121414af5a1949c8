package textcrdt

// Backlog holds remote operations that arrived before this replica was
// ready to integrate them: an Insertion whose parent run hasn't been seen
// yet, or a Deletion naming characters this replica hasn't integrated yet.
//
// This generalizes the classic RGA pattern of buffering an op whose parent
// hasn't arrived yet (there, a single direct parent pointer per op): here the
// buffering is driven by anchor and version-map readiness instead, since an
// Insertion's causal dependency is "the run its anchor names" and a
// Deletion's is "every run its ranges touch".
type Backlog struct {
	insertions []Insertion
	deletions  []Deletion
}

// NewBacklog creates an empty Backlog.
func NewBacklog() *Backlog { return &Backlog{} }

// HoldInsertion buffers an Insertion that isn't integrable yet.
func (b *Backlog) HoldInsertion(ins Insertion) { b.insertions = append(b.insertions, ins) }

// HoldDeletion buffers a Deletion that isn't integrable yet.
func (b *Backlog) HoldDeletion(d Deletion) { b.deletions = append(b.deletions, d) }

// NumBackloggedInsertions returns how many insertions are currently held.
func (b *Backlog) NumBackloggedInsertions() int { return len(b.insertions) }

// NumBackloggedDeletions returns how many deletions are currently held.
func (b *Backlog) NumBackloggedDeletions() int { return len(b.deletions) }

// TakeFirstReadyInsertion scans the held insertions for the first one apply
// accepts, applying it as a side effect and removing it from the backlog.
// found is false, and nothing is removed, if apply rejects every one of
// them. Releasing one insertion can turn another — or a held deletion — from
// not-ready to ready; callers that want everything unblocked keep calling
// this (and TakeFirstReadyDeletion) until both report nothing left ready.
func (b *Backlog) TakeFirstReadyInsertion(apply func(Insertion) (Length, bool)) (offset Length, found bool) {
	for i, ins := range b.insertions {
		if offset, ok := apply(ins); ok {
			b.insertions = append(b.insertions[:i], b.insertions[i+1:]...)
			return offset, true
		}
	}
	return 0, false
}

// TakeFirstReadyDeletion is TakeFirstReadyInsertion's counterpart for held
// deletions.
func (b *Backlog) TakeFirstReadyDeletion(apply func(Deletion) ([]Range, bool)) (ranges []Range, found bool) {
	for i, d := range b.deletions {
		if ranges, ok := apply(d); ok {
			b.deletions = append(b.deletions[:i], b.deletions[i+1:]...)
			return ranges, true
		}
	}
	return nil, false
}

// AssertInvariants checks that nothing obviously inconsistent has
// accumulated in the backlog. It's for tests, not the hot path.
func (b *Backlog) AssertInvariants() {
	seen := make(map[runKey]bool, len(b.insertions))
	for _, ins := range b.insertions {
		key := runKey{ins.replica, ins.runTs}
		if seen[key] {
			panic("textcrdt: backlog holds the same insertion twice")
		}
		seen[key] = true
	}
}
