package textcrdt

// Insertion is the operation a Replica produces locally (Replica.Inserted)
// and consumes when it arrives from another replica
// (Replica.IntegrateInsertion). It carries no character data: the host
// application is responsible for keeping the actual text and associating it
// with the (Replica, RunTs) pair this op names.
type Insertion struct {
	replica   ReplicaId
	runTs     RunTs
	lamportTs LamportTs
	text      Text
	parent    innerAnchor
}

// Replica returns the id of the replica that originated this insertion.
func (ins Insertion) Replica() ReplicaId { return ins.replica }

// RunTs returns the originating replica's RunTs for this insertion.
func (ins Insertion) RunTs() RunTs { return ins.runTs }

// LamportTs returns the Lamport timestamp this insertion was created at.
func (ins Insertion) LamportTs() LamportTs { return ins.lamportTs }

// Len returns the number of characters this insertion adds.
func (ins Insertion) Len() Length { return ins.text.Len() }

// IsNoop reports whether this insertion adds zero characters, e.g. because
// it was built from an empty string. A no-op insertion still advances
// clocks (callers that skip broadcasting it must still record that it
// happened) but never touches the run tree.
func (ins Insertion) IsNoop() bool { return ins.text.IsEmpty() }

// Deletion is the operation a Replica produces locally (Replica.Deleted) and
// consumes when it arrives from another replica (Replica.IntegrateDeletion).
//
// Unlike Insertion, a Deletion names the characters it removes by their
// origin coordinates (replica id, RunTs, and an offset range in that
// replica's own numbering) rather than by a position in the current
// document: position is only meaningful locally, and other replicas may
// have a different run tree shape by the time this op reaches them.
type Deletion struct {
	replica    ReplicaId
	deletionTs DeletionTs
	versionMap VersionMap
	ranges     []DeletedRange
}

// Replica returns the id of the replica that originated this deletion.
func (d Deletion) Replica() ReplicaId { return d.replica }

// DeletionTs returns the originating replica's DeletionTs for this deletion.
func (d Deletion) DeletionTs() DeletionTs { return d.deletionTs }

// Ranges returns the origin-coordinate ranges this deletion removed from
// visibility.
func (d Deletion) Ranges() []DeletedRange { return d.ranges }

// IsNoop reports whether this deletion removed zero characters, as a
// Deletion produced from an empty range does.
func (d Deletion) IsNoop() bool { return len(d.ranges) == 0 }
