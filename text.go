package textcrdt

// Text identifies a contiguous, half-open interval of characters that a
// single replica ever inserted: character number lo (inclusive) through hi
// (exclusive) in that replica's own insertion order. A replica numbers every
// character it ever inserts contiguously starting from 0, so (ReplicaId, i)
// globally identifies a single character. Text never holds the character
// data itself, only the bookkeeping interval.
type Text struct {
	Inserter ReplicaId
	Lo       Length
	Hi       Length
}

// NewText builds a Text for the half-open range [lo, hi) originated by
// inserter.
func NewText(inserter ReplicaId, lo, hi Length) Text {
	return Text{Inserter: inserter, Lo: lo, Hi: hi}
}

// Len returns hi - lo.
func (t Text) Len() Length { return t.Hi - t.Lo }

// IsEmpty reports whether the interval is empty, used to represent a no-op
// Insertion.
func (t Text) IsEmpty() bool { return t.Lo == t.Hi }

// splitAt splits t into [lo, lo+at) and [lo+at, hi), where at is an offset
// relative to t.Lo. Panics if at is out of [0, t.Len()].
func (t Text) splitAt(at Length) (left, right Text) {
	if at > t.Len() {
		panic("textcrdt: split offset out of range")
	}
	mid := t.Lo + at
	return Text{Inserter: t.Inserter, Lo: t.Lo, Hi: mid},
		Text{Inserter: t.Inserter, Lo: mid, Hi: t.Hi}
}
