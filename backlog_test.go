package textcrdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklogHoldAndCounts(t *testing.T) {
	b := NewBacklog()
	assert.Equal(t, 0, b.NumBackloggedInsertions())
	assert.Equal(t, 0, b.NumBackloggedDeletions())

	b.HoldInsertion(Insertion{replica: 2, runTs: 0, text: NewText(2, 0, 1)})
	b.HoldDeletion(Deletion{replica: 3, deletionTs: 1, ranges: []DeletedRange{{Replica: 1, Lo: 0, Hi: 1}}})

	assert.Equal(t, 1, b.NumBackloggedInsertions())
	assert.Equal(t, 1, b.NumBackloggedDeletions())
}

func TestBacklogTakeFirstReadyInsertionReleasesWhatBecomesReady(t *testing.T) {
	b := NewBacklog()
	ready := map[ReplicaId]bool{}

	b.HoldInsertion(Insertion{replica: 2, runTs: 0, text: NewText(2, 0, 1)})
	b.HoldInsertion(Insertion{replica: 3, runTs: 0, text: NewText(3, 0, 1)})

	tryInsertion := func(ins Insertion) (Length, bool) { return 0, ready[ins.replica] }

	_, found := b.TakeFirstReadyInsertion(tryInsertion)
	assert.False(t, found, "nothing is ready yet")
	assert.Equal(t, 2, b.NumBackloggedInsertions())

	ready[2] = true
	_, found = b.TakeFirstReadyInsertion(tryInsertion)
	assert.True(t, found)
	require.Equal(t, 1, b.NumBackloggedInsertions())
}

func TestBacklogTakeFirstReadyInsertionCascadesThroughADependencyChainAcrossCalls(t *testing.T) {
	b := NewBacklog()
	// Each insertion only becomes ready once the previous one (by replica
	// id, as a stand-in for "its causal parent") has been integrated —
	// exercising repeated calls as a host-driven iterator would make them,
	// not just one pass.
	integrated := map[ReplicaId]bool{1: true}
	b.HoldInsertion(Insertion{replica: 4, runTs: 0, text: NewText(4, 0, 1)})
	b.HoldInsertion(Insertion{replica: 3, runTs: 0, text: NewText(3, 0, 1)})
	b.HoldInsertion(Insertion{replica: 2, runTs: 0, text: NewText(2, 0, 1)})

	tryInsertion := func(ins Insertion) (Length, bool) {
		depends := ins.replica - 1
		if integrated[depends] {
			integrated[ins.replica] = true
			return 0, true
		}
		return 0, false
	}

	for {
		if _, found := b.TakeFirstReadyInsertion(tryInsertion); !found {
			break
		}
	}
	assert.Equal(t, 0, b.NumBackloggedInsertions(), "repeated calls must cascade through the whole chain")
}

func TestBacklogAssertInvariantsCatchesDuplicateInsertion(t *testing.T) {
	b := NewBacklog()
	b.HoldInsertion(Insertion{replica: 1, runTs: 5})
	b.HoldInsertion(Insertion{replica: 1, runTs: 5})

	assert.Panics(t, func() { b.AssertInvariants() })
}

func TestBacklogAssertInvariantsOnHealthyBacklog(t *testing.T) {
	b := NewBacklog()
	b.HoldInsertion(Insertion{replica: 1, runTs: 5})
	b.HoldInsertion(Insertion{replica: 1, runTs: 6})
	b.HoldInsertion(Insertion{replica: 2, runTs: 5})

	assert.NotPanics(t, func() { b.AssertInvariants() })
}
