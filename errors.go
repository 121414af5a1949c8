package textcrdt

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by DecodeReplica. Each names one way an encoded
// replica can fail to decode; callers can test for them with errors.Is.
var (
	// ErrChecksumFailed means the payload's SHA-256 checksum didn't match
	// what was encoded alongside it: the bytes were corrupted or truncated.
	ErrChecksumFailed = errors.New("textcrdt: encoded replica checksum failed")

	// ErrDifferentProtocol means the payload was produced by a protocol
	// version this build doesn't know how to read.
	ErrDifferentProtocol = errors.New("textcrdt: encoded replica uses an unsupported protocol version")

	// ErrInvalidData means the payload decoded far enough to pass its
	// checksum but its structure doesn't make sense (e.g. trailing bytes,
	// a length that doesn't fit, a malformed varint).
	ErrInvalidData = errors.New("textcrdt: encoded replica is malformed")
)

// The following panic on conditions that should be unreachable if every
// peer in a session only ever sees ops produced by this package: they
// indicate a bug in the caller (feeding in a hand-built or corrupted op) or
// in this package itself, not a condition a well-behaved caller should
// recover from. Redelivery of an already-integrated op is deliberately NOT
// one of these conditions — at-least-once delivery across relays is
// expected, so Replica treats it as an idempotent no-op instead.

func panicOutOfOrderInsertion(replica ReplicaId, expected, got RunTs) {
	panic(fmt.Sprintf("textcrdt: out-of-order insertion from replica %d: expected run %d, got %d", replica, expected, got))
}

func panicOutOfOrderDeletion(replica ReplicaId, expected, got DeletionTs) {
	panic(fmt.Sprintf("textcrdt: out-of-order deletion from replica %d: expected deletion %d, got %d", replica, expected, got))
}

func panicUnknownAnchor() {
	panic("textcrdt: anchor refers to a run this replica hasn't integrated")
}
