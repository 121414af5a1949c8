package textcrdt

// AnchorBias is stored with every Anchor. On the zero sentinel it selects
// the boundary: BiasLeft is the start of the document, BiasRight its end.
// An anchor created inside the document names the character to its left
// and resolves to the offset just after it, so text later inserted at that
// offset lands to the anchor's right whatever the bias. When the named
// character has been deleted, ResolveAnchor scans left (BiasLeft) or right
// (BiasRight) for the nearest visible text; both scans reach the same
// offset.
type AnchorBias int

const (
	// BiasLeft means the anchor stays to the left of anything inserted at
	// its offset: new text pushes it further left is never considered, but
	// text inserted to its right does not move it.
	BiasLeft AnchorBias = iota
	// BiasRight on the zero sentinel means the end of the document, whose
	// resolved offset grows as text is appended. An anchor on a character
	// resolves the same way under either bias while that character is
	// visible.
	BiasRight
)

// Not returns the opposite bias.
func (b AnchorBias) Not() AnchorBias {
	if b == BiasLeft {
		return BiasRight
	}
	return BiasLeft
}

func (b AnchorBias) String() string {
	if b == BiasRight {
		return "right"
	}
	return "left"
}

// innerAnchor identifies a position inside a specific run: the run's
// originating replica and RunTs, plus the originator's character offset
// within that run's interval.
type innerAnchor struct {
	replicaID ReplicaId
	runTs     RunTs
	offset    Length
}

// zeroInnerAnchor is the sentinel value denoting the start or end of the
// document, depending on the bias it's paired with.
func zeroInnerAnchor() innerAnchor {
	return innerAnchor{}
}

func (a innerAnchor) isZero() bool {
	return a.replicaID == 0
}

// Anchor is a stable reference to a position in a Replica's document.
//
// Once created, an Anchor can be resolved against a Replica (possibly a
// different one, or the same one after further edits) to find the offset of
// the position it refers to, even if concurrent insertions and deletions
// have happened around it in the meantime. This makes Anchors useful for
// things like cursors and selections in a collaborative editor.
//
// See Replica.CreateAnchor and Replica.ResolveAnchor.
type Anchor struct {
	inner innerAnchor
	bias  AnchorBias
}

// StartOfDocument returns the Anchor that always resolves to offset 0.
func StartOfDocument() Anchor {
	return Anchor{inner: zeroInnerAnchor(), bias: BiasLeft}
}

// EndOfDocument returns the Anchor that always resolves to the current
// length of the document.
func EndOfDocument() Anchor {
	return Anchor{inner: zeroInnerAnchor(), bias: BiasRight}
}

// Bias returns the bias this Anchor was created with.
func (a Anchor) Bias() AnchorBias { return a.bias }

// IsStartOfDocument reports whether a is the document-start sentinel.
func (a Anchor) IsStartOfDocument() bool {
	return a.inner.isZero() && a.bias == BiasLeft
}

// IsEndOfDocument reports whether a is the document-end sentinel.
func (a Anchor) IsEndOfDocument() bool {
	return a.inner.isZero() && a.bias == BiasRight
}
