package textcrdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewRejectsZeroId(t *testing.T) {
	assert.Panics(t, func() { New(0, 0) })
}

func TestNewSeedsASingleVisibleRun(t *testing.T) {
	r := New(1, 4)

	assert.Equal(t, Length(4), r.Len())
	assert.Equal(t, []RunRef{{Replica: 1, RunTs: 0, Lo: 0, Hi: 4}}, r.VisibleRuns())

	// The seed consumes run ts 0, so the first local insertion gets run ts 1.
	ins := r.Inserted(r.Len(), 1)
	assert.Equal(t, RunTs(1), ins.RunTs())
}

func TestNewWithZeroLengthSeedsNothing(t *testing.T) {
	r := New(1, 0)
	assert.Equal(t, Length(0), r.Len())
	assert.Empty(t, r.VisibleRuns())
}

func TestInsertedAdvancesLenAndVersion(t *testing.T) {
	r := New(1, 0)
	ins := r.Inserted(0, 5)

	assert.Equal(t, Length(5), r.Len())
	assert.Equal(t, ReplicaId(1), ins.Replica())
	assert.Equal(t, RunTs(0), ins.RunTs())
	assert.False(t, ins.IsNoop())
}

func TestInsertedZeroLengthIsNoopButAdvancesClocks(t *testing.T) {
	r := New(1, 0)
	ins := r.Inserted(0, 0)

	assert.True(t, ins.IsNoop())
	assert.Equal(t, Length(0), r.Len())

	next := r.Inserted(0, 1)
	assert.Equal(t, RunTs(1), next.RunTs(), "the no-op insertion still consumed run ts 0")
}

func TestInsertedOutOfBoundsPanics(t *testing.T) {
	r := New(1, 0)
	assert.Panics(t, func() { r.Inserted(1, 1) })
}

func TestDeletedEmptyRangeIsNoop(t *testing.T) {
	r := New(1, 0)
	r.Inserted(0, 5)

	d := r.Deleted(3, 3)
	assert.True(t, d.IsNoop())
	assert.Equal(t, Length(5), r.Len())
}

func TestDeletedTombstonesAndReturnsRanges(t *testing.T) {
	r := New(1, 0)
	r.Inserted(0, 5)

	d := r.Deleted(1, 3)
	require.False(t, d.IsNoop())
	assert.Equal(t, Length(3), r.Len())
	assert.Equal(t, []DeletedRange{{Replica: 1, RunTs: 0, Lo: 1, Hi: 3}}, d.Ranges())
}

func TestForkStartsWithFreshRunClockButSharedHistory(t *testing.T) {
	r := New(1, 0)
	r.Inserted(0, 5)

	fork := r.Fork(2)
	assert.Equal(t, r.Len(), fork.Len())
	assert.Equal(t, r.VisibleRuns(), fork.VisibleRuns())

	ins := fork.Inserted(fork.Len(), 1)
	assert.Equal(t, RunTs(0), ins.RunTs(), "the fork has never inserted before, so its own run numbering starts at zero")
}

func TestForkRejectsZeroOrSameId(t *testing.T) {
	r := New(1, 0)
	assert.Panics(t, func() { r.Fork(0) })
	assert.Panics(t, func() { r.Fork(1) })
}

func TestForkIsIndependentOfSource(t *testing.T) {
	r := New(1, 0)
	r.Inserted(0, 5)
	fork := r.Fork(2)

	fork.Inserted(fork.Len(), 3)
	assert.Equal(t, Length(5), r.Len(), "mutating the fork must not affect the source")
	assert.Equal(t, Length(8), fork.Len())
}

func TestIntegrateInsertionAppliesImmediatelyWhenReady(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	ins := a.Inserted(0, 4)
	offset, ok := b.IntegrateInsertion(ins)

	assert.True(t, ok)
	assert.Equal(t, Length(0), offset)
	assert.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.VisibleRuns(), b.VisibleRuns())
	assert.Equal(t, 0, b.NumBackloggedInsertions())
}

func TestIntegrateInsertionBacklogsOnUnknownAnchorThenDrains(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	first := a.Inserted(0, 3)
	second := a.Inserted(3, 2) // anchors to the end of `first`

	_, ok := b.IntegrateInsertion(second)
	assert.False(t, ok, "second's anchor hasn't arrived yet")
	assert.Equal(t, 1, b.NumBackloggedInsertions())
	assert.Equal(t, Length(0), b.Len())

	offset, ok := b.IntegrateInsertion(first)
	assert.True(t, ok)
	assert.Equal(t, Length(0), offset)
	assert.Equal(t, 1, b.NumBackloggedInsertions(), "integrating first doesn't itself drain second: the host must call BackloggedInsertions")

	released, ok := b.BackloggedInsertions().Next()
	assert.True(t, ok)
	assert.Equal(t, Length(3), released, "second lands right after first, at offset 3")

	_, ok = b.BackloggedInsertions().Next()
	assert.False(t, ok)

	assert.Equal(t, 0, b.NumBackloggedInsertions())
	assert.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.VisibleRuns(), b.VisibleRuns())
}

func TestIntegrateInsertionRedeliveryIsIdempotent(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	ins := a.Inserted(0, 4)
	_, ok := b.IntegrateInsertion(ins)
	require.True(t, ok)
	lenBefore := b.Len()

	offset, ok := b.IntegrateInsertion(ins)
	assert.False(t, ok, "redelivering an already-integrated insertion must report not-applied")
	assert.Equal(t, Length(0), offset)
	assert.Equal(t, lenBefore, b.Len())
}

func TestIntegrateDeletionBacklogsOnMissingCausalDependencyThenDrains(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	ins := a.Inserted(0, 10)
	del := a.Deleted(2, 6)

	ranges := b.IntegrateDeletion(del)
	assert.Nil(t, ranges, "the deleted characters haven't arrived yet")
	assert.Equal(t, 1, b.NumBackloggedDeletions())

	_, ok := b.IntegrateInsertion(ins)
	require.True(t, ok)
	assert.Equal(t, 1, b.NumBackloggedDeletions(), "the deletion stays backlogged until the host explicitly drains it")

	released, ok := b.BackloggedDeletions().Next()
	assert.True(t, ok)
	assert.Equal(t, []Range{{Lo: 2, Hi: 6}}, released)

	assert.Equal(t, 0, b.NumBackloggedDeletions())
	assert.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.VisibleRuns(), b.VisibleRuns())
}

func TestIntegrateDeletionRedeliveryIsIdempotent(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	ins := a.Inserted(0, 10)
	del := a.Deleted(2, 6)
	b.IntegrateInsertion(ins)
	b.IntegrateDeletion(del)
	lenBefore := b.Len()

	ranges := b.IntegrateDeletion(del)
	assert.Nil(t, ranges)
	assert.Equal(t, lenBefore, b.Len())
}

// TestIntegrateDeletionSplitByConcurrentInsertionReturnsTwoRanges mirrors a
// deletion that arrives after a concurrent insertion has landed inside its
// original span: the single origin-coordinate range the deletion names now
// corresponds to two disjoint buffer ranges on the receiving side.
func TestIntegrateDeletionSplitByConcurrentInsertionReturnsTwoRanges(t *testing.T) {
	r1 := New(1, 4) // "abcd"
	r2 := r1.Fork(2)

	del := r1.Deleted(1, 3) // removes "bc"
	r2.Inserted(2, 1)       // concurrent local insert on r2, splitting "bc" apart

	ranges := r2.IntegrateDeletion(del)
	assert.Equal(t, []Range{{Lo: 1, Hi: 2}, {Lo: 3, Hi: 4}}, ranges)
}

func TestDocumentEndSentinelResolvesAfterConcurrentAppends(t *testing.T) {
	a := New(1, 0)
	b := New(2, 0)

	end := a.CreateAnchor(a.Len(), BiasRight)
	assert.True(t, end.IsEndOfDocument())

	ins := a.Inserted(0, 5)
	b.IntegrateInsertion(ins)

	assert.Equal(t, Length(5), a.ResolveAnchor(end))
	assert.Equal(t, Length(5), b.ResolveAnchor(EndOfDocument()))
}

// runText mirrors what a host application keeps alongside a Replica: the
// characters themselves, keyed by run identity. textcrdt never stores them.
type runText = map[runKey]string

func render(r *Replica, texts runText) string {
	out := make([]byte, 0, r.Len())
	for _, ref := range r.VisibleRuns() {
		full := texts[runKey{ref.Replica, ref.RunTs}]
		out = append(out, full[ref.Lo:ref.Hi]...)
	}
	return string(out)
}

func insertWithText(r *Replica, texts runText, at Length, s string) Insertion {
	ins := r.Inserted(at, uint64(len(s)))
	if !ins.IsNoop() {
		texts[runKey{ins.Replica(), ins.RunTs()}] = s
	}
	return ins
}

// drainAll releases every backlogged op it can, alternating insertions and
// deletions since releasing one can unblock the other, until neither has
// anything left ready.
func drainAll(r *Replica) {
	for {
		progressed := false
		if _, ok := r.BackloggedInsertions().Next(); ok {
			progressed = true
		}
		if _, ok := r.BackloggedDeletions().Next(); ok {
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func TestThreeReplicasConvergeUnderOutOfOrderDelivery(t *testing.T) {
	texts := runText{}
	alice := New(1, 0)
	bob := New(2, 0)
	carol := New(3, 0)

	seed := insertWithText(alice, texts, 0, "hello")
	bob.IntegrateInsertion(seed)
	carol.IntegrateInsertion(seed)

	aliceIns := insertWithText(alice, texts, 5, "!")
	bobIns := insertWithText(bob, texts, 0, ">>")
	carolDel := carol.Deleted(1, 3)

	// Deliver out of order: carol's deletion reaches alice before bob's
	// insertion does, and vice versa for bob.
	alice.IntegrateDeletion(carolDel)
	alice.IntegrateInsertion(bobIns)

	bob.IntegrateInsertion(aliceIns)
	bob.IntegrateDeletion(carolDel)

	carol.IntegrateInsertion(aliceIns)
	carol.IntegrateInsertion(bobIns)

	for _, r := range []*Replica{alice, bob, carol} {
		drainAll(r)
		r.AssertInvariants()
	}

	want := render(alice, texts)
	assert.Equal(t, want, render(bob, texts))
	assert.Equal(t, want, render(carol, texts))
	assert.Equal(t, 0, alice.NumBackloggedInsertions()+alice.NumBackloggedDeletions())
	assert.Equal(t, 0, bob.NumBackloggedInsertions()+bob.NumBackloggedDeletions())
	assert.Equal(t, 0, carol.NumBackloggedInsertions()+carol.NumBackloggedDeletions())
}

// TestConvergencePropertyAcrossRandomSchedules is a rapid-driven version of
// the above: a random number of replicas apply a random sequence of local
// inserts/deletes, delivered to every other replica in generation order
// (all insertions first, then all deletions), and must still converge to
// one string with an empty backlog.
func TestConvergencePropertyAcrossRandomSchedules(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numReplicas := rapid.IntRange(2, 4).Draw(rt, "numReplicas")
		texts := runText{}
		replicas := make([]*Replica, numReplicas)
		for i := range replicas {
			replicas[i] = New(ReplicaId(i+1), 0)
		}

		type pendingInsertion struct {
			from int
			ins  Insertion
		}
		type pendingDeletion struct {
			from int
			del  Deletion
		}
		var insertions []pendingInsertion
		var deletions []pendingDeletion

		steps := rapid.IntRange(1, 8).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			from := rapid.IntRange(0, numReplicas-1).Draw(rt, "from")
			r := replicas[from]
			length := r.Len()

			if length > 0 && rapid.Bool().Draw(rt, "isDelete") {
				start := rapid.Uint64Range(0, length-1).Draw(rt, "start")
				end := rapid.Uint64Range(start+1, length).Draw(rt, "end")
				d := r.Deleted(start, end)
				if !d.IsNoop() {
					deletions = append(deletions, pendingDeletion{from, d})
				}
				continue
			}

			at := rapid.Uint64Range(0, length).Draw(rt, "at")
			s := rapid.StringN(1, 3, 3).Draw(rt, "text")
			ins := insertWithText(r, texts, at, s)
			if !ins.IsNoop() {
				insertions = append(insertions, pendingInsertion{from, ins})
			}
		}

		// Deliver every op to every other replica, insertions before
		// deletions so a same-step delete doesn't race its own insert.
		for _, p := range insertions {
			for i, r := range replicas {
				if i != p.from {
					r.IntegrateInsertion(p.ins)
				}
			}
		}
		for _, p := range deletions {
			for i, r := range replicas {
				if i != p.from {
					r.IntegrateDeletion(p.del)
				}
			}
		}
		for _, r := range replicas {
			drainAll(r)
		}

		want := render(replicas[0], texts)
		for _, r := range replicas[1:] {
			if render(r, texts) != want {
				rt.Fatalf("replicas diverged: %q vs %q", want, render(r, texts))
			}
		}
		for _, r := range replicas {
			if r.NumBackloggedInsertions() != 0 || r.NumBackloggedDeletions() != 0 {
				rt.Fatalf("replica %d still has a non-empty backlog after full delivery", r.ID())
			}
			r.AssertInvariants()
		}
	})
}

func TestCommutativityOfTwoReadyInsertions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := New(1, 0)
		base.Inserted(0, rapid.Uint64Range(1, 5).Draw(rt, "seedLen"))

		a := base.Fork(2)
		b := base.Fork(3)

		insA := a.Inserted(rapid.Uint64Range(0, a.Len()).Draw(rt, "atA"), rapid.Uint64Range(1, 3).Draw(rt, "lenA"))
		insB := b.Inserted(rapid.Uint64Range(0, b.Len()).Draw(rt, "atB"), rapid.Uint64Range(1, 3).Draw(rt, "lenB"))

		orderOne := base.Fork(4)
		orderOne.IntegrateInsertion(insA)
		orderOne.IntegrateInsertion(insB)

		orderTwo := base.Fork(5)
		orderTwo.IntegrateInsertion(insB)
		orderTwo.IntegrateInsertion(insA)

		if !cmpRunRefsEqual(orderOne.VisibleRuns(), orderTwo.VisibleRuns()) {
			rt.Fatalf("integration order changed the result: %v vs %v", orderOne.VisibleRuns(), orderTwo.VisibleRuns())
		}
	})
}

func cmpRunRefsEqual(a, b []RunRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDebugAndDebugAsBtreeDoNotPanic(t *testing.T) {
	r := New(1, 0)
	r.Inserted(0, 5)
	r.Inserted(2, 1)
	r.Deleted(0, 1)

	assert.NotPanics(t, func() {
		_ = r.Debug()
		_ = r.DebugAsBtree()
	})
}

func TestIntrospectionHelpers(t *testing.T) {
	r := New(1, 0)
	r.Inserted(0, 5)
	r.Deleted(1, 3)

	assert.Equal(t, 4, r.NumRuns(), "sentinel + the original run's visible prefix, tombstoned middle, and visible suffix")
	assert.Equal(t, 2, r.EmptyLeaves(), "the sentinel and the tombstoned middle both summarize to zero")
	assert.Greater(t, r.AverageInodeOccupancy(), 0.0)
}

// TestBackloggedInsertionsIteratorYieldsOffsetsInReadinessOrder exercises a
// causal chain delivered in reverse: each insertion anchors to the one
// before it, so only the earliest is immediately applicable and the rest
// must be drained one at a time as each becomes ready.
func TestBackloggedInsertionsIteratorYieldsOffsetsInReadinessOrder(t *testing.T) {
	r1 := New(1, 2)
	r2 := r1.Fork(2)

	insC := r1.Inserted(2, 1)
	insD := r1.Inserted(3, 1)
	insE := r1.Inserted(4, 1)

	_, ok := r2.IntegrateInsertion(insE)
	assert.False(t, ok)
	_, ok = r2.IntegrateInsertion(insD)
	assert.False(t, ok)
	offset, ok := r2.IntegrateInsertion(insC)
	assert.True(t, ok)
	assert.Equal(t, Length(2), offset)

	pending := r2.BackloggedInsertions()
	next, ok := pending.Next()
	assert.True(t, ok)
	assert.Equal(t, Length(3), next)

	next, ok = pending.Next()
	assert.True(t, ok)
	assert.Equal(t, Length(4), next)

	_, ok = pending.Next()
	assert.False(t, ok)
}
