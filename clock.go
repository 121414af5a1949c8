package textcrdt

// ReplicaId uniquely identifies a peer taking part in a collaborative editing
// session. Id 0 is reserved: it denotes the "zero anchor", the sentinel used
// to mark the start or end of the document.
type ReplicaId uint64

// Length counts characters. It's used both for offsets into the host's
// buffer and for lengths of contiguous runs.
type Length = uint64

// LamportTs is the value of a Replica's Lamport clock at some point in time.
// It totally orders concurrent insertion runs that anchor to the same
// position: the run with the higher LamportTs was created "later" from the
// point of view of every replica, regardless of wall-clock time.
type LamportTs = uint64

// RunTs is a per-replica counter, incremented every time that replica starts
// a brand new insertion run. Unlike LamportTs it's never synchronized across
// replicas: it only needs to be unique within the runs that a single replica
// originated.
type RunTs = uint64

// DeletionTs is a per-replica counter, incremented on every local deletion.
// Deletions from the same replica must be integrated by every other replica
// in the order they were generated, and DeletionTs is what lets a replica
// detect gaps or duplicates in that order.
type DeletionTs = uint64

// LamportClock is a distributed logical clock used to determine whether a
// run was already present in the document when another run was inserted.
//
// See https://en.wikipedia.org/wiki/Lamport_timestamp.
type LamportClock struct {
	next LamportTs
}

// Highest returns the most recent timestamp handed out by Next.
func (c *LamportClock) Highest() LamportTs {
	if c.next == 0 {
		return 0
	}
	return c.next - 1
}

// Next advances the clock and returns the timestamp to attach to a newly
// created run.
func (c *LamportClock) Next() LamportTs {
	ts := c.next
	c.next++
	return ts
}

// Merge bumps the clock so that it's strictly greater than a timestamp seen
// on a remote run: local = max(local, remote) + 1.
func (c *LamportClock) Merge(remoteTs LamportTs) {
	if remoteTs >= c.next {
		c.next = remoteTs + 1
	}
}

// RunClock is a local-only counter, incremented every time a replica starts
// a new insertion run. It is never synchronized with other replicas; a fresh
// RunClock always starts at zero, even after Replica.Fork or DecodeReplica.
type RunClock struct {
	next RunTs
}

// Last returns the most recent RunTs handed out by Next.
func (c *RunClock) Last() RunTs {
	if c.next == 0 {
		return 0
	}
	return c.next - 1
}

// Next advances the clock and returns the RunTs to attach to a newly created
// run.
func (c *RunClock) Next() RunTs {
	ts := c.next
	c.next++
	return ts
}
