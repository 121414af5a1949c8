// Package textcrdt implements the core of a positional text CRDT (Conflict-free
// Replicated Data Type): a data structure that lets multiple peers edit the
// same linear character sequence concurrently, without a central coordinator,
// and guarantees that every peer converges to the same document once they've
// all seen the same set of edits.
//
// Unlike most text CRDTs, a Replica in this package never stores the text
// itself. It only tracks the identity and layout of the insertion runs a host
// application's own buffer is made of, so that local, offset-based edits can
// be turned into portable Insertion/Deletion values, and remote values can be
// turned back into offsets valid against the current local buffer. The host
// owns the actual characters (a string, a rope, a gap buffer — whatever it
// likes); this package is the pure CRDT machinery underneath.
package textcrdt

// CRDT is the join-semilattice contract satisfied by the grow-only state
// inside a Replica, namely VersionMap and DeletionMap.
//
// Replica itself is not a CRDT in this state-based sense: peers don't
// converge by calling Merge on two whole replicas. Instead a Replica
// exchanges small, individually-addressed Insertion/Deletion operations (see
// Replica.IntegrateInsertion and Replica.IntegrateDeletion), and convergence
// follows from every operation being idempotent and every pair of ready
// operations commuting. VersionMap and DeletionMap are the two pieces of
// state that do behave like classic state-based CRDTs, which is why they're
// the ones implementing this interface.
//
// Implementations must ensure that Merge is:
//
//  1. Commutative: the order in which two states are merged doesn't matter.
//  2. Associative: the grouping of merges doesn't matter.
//  3. Idempotent: merging the same state twice has no effect beyond the
//     first merge.
type CRDT[T any] interface {
	// Merge folds another replica's state into this one, taking the
	// pointwise join (the maximum, for grow-only counters) of every entry.
	Merge(other T)
}
