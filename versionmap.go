package textcrdt

// replicaCounterMap is a grow-only map from ReplicaId to a counter, with one
// slot distinguished as "this replica's own counter".
//
// It's the shared shape behind both VersionMap and DeletionMap: a per-replica
// vector of monotonically increasing values, compared and joined pointwise.
// This is the same idea as a classic GCounter (a per-node slot summed or
// maxed across replicas), just keyed by the counters this CRDT actually
// needs instead of a single running total, and without the internal mutex a
// state-based GCounter usually carries — a Replica is single-owner and
// non-thread-safe (see package docs), so locking here would only hide bugs.
type replicaCounterMap struct {
	this  ReplicaId
	slots map[ReplicaId]uint64
}

func newReplicaCounterMap(this ReplicaId, initial uint64) replicaCounterMap {
	m := replicaCounterMap{this: this, slots: make(map[ReplicaId]uint64)}
	m.slots[this] = initial
	return m
}

// get returns the counter for id, or 0 if id has never been seen.
func (m *replicaCounterMap) get(id ReplicaId) uint64 {
	return m.slots[id]
}

// set assigns the counter for id directly.
func (m *replicaCounterMap) set(id ReplicaId, value uint64) {
	m.slots[id] = value
}

// add increments the counter for id by delta and returns the new value.
func (m *replicaCounterMap) add(id ReplicaId, delta uint64) uint64 {
	v := m.slots[id] + delta
	m.slots[id] = v
	return v
}

// thisValue returns the counter for this replica's own slot.
func (m *replicaCounterMap) thisValue() uint64 {
	return m.slots[m.this]
}

// addThis increments this replica's own counter by delta and returns the new
// value.
func (m *replicaCounterMap) addThis(delta uint64) uint64 {
	return m.add(m.this, delta)
}

// geq reports whether m dominates other in the partial order: every slot in
// m is >= the corresponding slot in other (unknown ids default to 0 on both
// sides).
func (m *replicaCounterMap) geq(other *replicaCounterMap) bool {
	for id, v := range other.slots {
		if m.slots[id] < v {
			return false
		}
	}
	return true
}

// merge takes the pointwise maximum of every slot in other, the classic
// GCounter join. It backs VersionMap.Merge and DeletionMap.Merge, which only
// tests exercising the CRDT interface call; integration itself updates slots explicitly, since it
// must also enforce ordering, not just take a maximum.
func (m *replicaCounterMap) merge(other *replicaCounterMap) {
	for id, v := range other.slots {
		if v > m.slots[id] {
			m.slots[id] = v
		}
	}
}

// fork returns a copy of m with a fresh slot (defaulting to seed) for newID.
func (m *replicaCounterMap) fork(newID ReplicaId, seed uint64) replicaCounterMap {
	cp := replicaCounterMap{this: newID, slots: make(map[ReplicaId]uint64, len(m.slots)+1)}
	for id, v := range m.slots {
		cp.slots[id] = v
	}
	cp.slots[newID] = seed
	return cp
}

// clone returns a deep copy of m, keeping the same "this" replica.
func (m *replicaCounterMap) clone() replicaCounterMap {
	cp := replicaCounterMap{this: m.this, slots: make(map[ReplicaId]uint64, len(m.slots))}
	for id, v := range m.slots {
		cp.slots[id] = v
	}
	return cp
}

// VersionMap records, for every replica a Replica has integrated insertions
// from, how many characters of that replica's it has seen so far. Lookups on
// unknown ids return 0.
type VersionMap struct {
	m replicaCounterMap
}

// NewVersionMap creates a VersionMap whose own slot starts at len.
func NewVersionMap(this ReplicaId, len uint64) VersionMap {
	return VersionMap{m: newReplicaCounterMap(this, len)}
}

// Get returns the number of characters seen from id.
func (v *VersionMap) Get(id ReplicaId) uint64 { return v.m.get(id) }

// This returns the number of characters seen from this replica's own id.
func (v *VersionMap) This() uint64 { return v.m.thisValue() }

// AddThis increments this replica's own slot by delta and returns the new
// total.
func (v *VersionMap) AddThis(delta uint64) uint64 { return v.m.addThis(delta) }

// Set assigns the slot for id directly.
func (v *VersionMap) Set(id ReplicaId, value uint64) { v.m.set(id, value) }

// GeqAll reports whether v dominates other pointwise: v[id] >= other[id] for
// every id known to other.
func (v *VersionMap) GeqAll(other *VersionMap) bool { return v.m.geq(&other.m) }

// Merge implements CRDT: the pointwise join (maximum) of every slot.
func (v *VersionMap) Merge(other VersionMap) { v.m.merge(&other.m) }

// Fork returns a copy of v with newID's slot set to seed.
func (v VersionMap) Fork(newID ReplicaId, seed uint64) VersionMap {
	return VersionMap{m: v.m.fork(newID, seed)}
}

// Clone returns a deep copy of v.
func (v VersionMap) Clone() VersionMap { return VersionMap{m: v.m.clone()} }

// Snapshot returns a VersionMap limited to the given ids, each mapped to its
// current value in v. Used when producing a Deletion's version_map, which
// only needs the replicas whose runs were actually touched.
func (v *VersionMap) Snapshot(ids map[ReplicaId]struct{}) VersionMap {
	snap := VersionMap{m: replicaCounterMap{this: v.m.this, slots: make(map[ReplicaId]uint64, len(ids))}}
	for id := range ids {
		snap.m.slots[id] = v.m.get(id)
	}
	return snap
}

// DeletionMap records, for every replica a Replica has integrated deletions
// from, the highest DeletionTs seen so far. Shape-identical to VersionMap,
// just keyed on deletion sequence numbers instead of character counts.
type DeletionMap struct {
	m replicaCounterMap
}

// NewDeletionMap creates a DeletionMap whose own slot starts at ts.
func NewDeletionMap(this ReplicaId, ts uint64) DeletionMap {
	return DeletionMap{m: newReplicaCounterMap(this, ts)}
}

// Get returns the highest DeletionTs seen from id.
func (d *DeletionMap) Get(id ReplicaId) uint64 { return d.m.get(id) }

// This returns this replica's own deletion counter.
func (d *DeletionMap) This() uint64 { return d.m.thisValue() }

// AddThis increments this replica's own deletion counter and returns the new
// total.
func (d *DeletionMap) AddThis(delta uint64) uint64 { return d.m.addThis(delta) }

// Set assigns the highest DeletionTs seen from id directly.
func (d *DeletionMap) Set(id ReplicaId, ts uint64) { d.m.set(id, ts) }

// Merge implements CRDT: the pointwise join (maximum) of every slot.
func (d *DeletionMap) Merge(other DeletionMap) { d.m.merge(&other.m) }

// Fork returns a copy of d with newID's slot set to seed.
func (d DeletionMap) Fork(newID ReplicaId, seed uint64) DeletionMap {
	return DeletionMap{m: d.m.fork(newID, seed)}
}

// Clone returns a deep copy of d.
func (d DeletionMap) Clone() DeletionMap { return DeletionMap{m: d.m.clone()} }

var (
	_ CRDT[VersionMap]  = (*VersionMap)(nil)
	_ CRDT[DeletionMap] = (*DeletionMap)(nil)
)
