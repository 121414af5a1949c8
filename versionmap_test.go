package textcrdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionMapAddThisAndGet(t *testing.T) {
	v := NewVersionMap(1, 0)
	assert.Equal(t, uint64(0), v.Get(1))

	assert.Equal(t, uint64(5), v.AddThis(5))
	assert.Equal(t, uint64(5), v.This())
	assert.Equal(t, uint64(5), v.Get(1))
	assert.Equal(t, uint64(0), v.Get(99), "an id never seen should read as zero")
}

func TestVersionMapGeqAll(t *testing.T) {
	a := NewVersionMap(1, 10)
	b := NewVersionMap(2, 3)

	assert.False(t, a.GeqAll(&b), "a has never seen replica 2's characters")

	a.Set(2, 3)
	assert.True(t, a.GeqAll(&b))

	b.Set(1, 11)
	assert.False(t, a.GeqAll(&b))
}

func TestVersionMapMergeIsJoin(t *testing.T) {
	a := NewVersionMap(1, 10)
	b := NewVersionMap(2, 7)
	b.Set(1, 4)

	a.Merge(b)
	assert.Equal(t, uint64(10), a.Get(1), "merge takes the max, not the remote's value, for a's own higher slot")
	assert.Equal(t, uint64(7), a.Get(2))
}

func TestVersionMapMergeIsCommutativeAndIdempotent(t *testing.T) {
	seed := func() (VersionMap, VersionMap, VersionMap) {
		a := NewVersionMap(1, 5)
		b := NewVersionMap(2, 9)
		b.Set(1, 2)
		c := NewVersionMap(3, 1)
		c.Set(1, 8)
		c.Set(2, 4)
		return a, b, c
	}

	a1, b1, c1 := seed()
	a1.Merge(b1)
	a1.Merge(c1)

	a2, b2, c2 := seed()
	a2.Merge(c2)
	a2.Merge(b2)

	assert.Equal(t, a1, a2, "merge order must not affect the result")

	before := a1.Clone()
	a1.Merge(b1)
	assert.Equal(t, before, a1, "merging an already-absorbed state must be a no-op")
}

func TestVersionMapForkStartsFresh(t *testing.T) {
	v := NewVersionMap(1, 20)
	v.Set(2, 7)

	fork := v.Fork(3, 0)
	assert.Equal(t, uint64(0), fork.This())
	assert.Equal(t, uint64(20), fork.Get(1), "fork keeps the source's history")
	assert.Equal(t, uint64(7), fork.Get(2))

	fork.AddThis(4)
	assert.Equal(t, uint64(0), v.Get(3), "mutating the fork must not affect the source")
}

func TestVersionMapSnapshotLimitsToGivenIds(t *testing.T) {
	v := NewVersionMap(1, 5)
	v.Set(2, 9)
	v.Set(3, 2)

	snap := v.Snapshot(map[ReplicaId]struct{}{2: {}})
	assert.Equal(t, uint64(9), snap.Get(2))
	assert.Equal(t, uint64(0), snap.Get(3), "ids outside the snapshot set are omitted, not copied")
}

func TestDeletionMapParallelsVersionMap(t *testing.T) {
	d := NewDeletionMap(1, 0)
	assert.Equal(t, DeletionTs(1), d.AddThis(1))
	assert.Equal(t, DeletionTs(1), d.Get(1))

	fork := d.Fork(2, 0)
	assert.Equal(t, DeletionTs(0), fork.This())
	assert.Equal(t, DeletionTs(1), fork.Get(1))
}

func TestVersionMapCloneIsIndependent(t *testing.T) {
	v := NewVersionMap(1, 5)
	clone := v.Clone()
	clone.AddThis(100)

	assert.Equal(t, uint64(5), v.This())
	assert.Equal(t, uint64(105), clone.This())
}
