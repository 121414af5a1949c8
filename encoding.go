package textcrdt

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
)

// protocolVersion is bumped whenever the payload layout this file reads and
// writes changes incompatibly. DecodeReplica rejects anything encoded with a
// different version rather than guess at how to read it.
const protocolVersion uint16 = 1

// EncodedReplica is a checksummed, versioned snapshot of a Replica's
// document content and causal state, produced by EncodeReplica and consumed
// by DecodeReplica. Payload is itself a flat left-to-right sequence of
// varints and one-byte flags, opaque to callers; MarshalBinary/
// UnmarshalBinary are what turn this into (and back from) a single byte
// slice suitable for storage or transmission.
type EncodedReplica struct {
	ProtocolVersion uint16
	Checksum        [32]byte
	Length          uint64
	Payload         []byte
}

var (
	_ encoding.BinaryMarshaler   = EncodedReplica{}
	_ encoding.BinaryUnmarshaler = (*EncodedReplica)(nil)
)

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// EncodeReplica serializes every run fragment of r (tombstones included, in
// document order), its version and deletion maps, and its Lamport clock
// position into an EncodedReplica. Backlogged operations are not encoded.
func EncodeReplica(r *Replica) EncodedReplica {
	var payload bytes.Buffer

	putUvarint(&payload, uint64(r.id))
	putUvarint(&payload, r.lamportClock.next)

	encodeCounterMap(&payload, &r.versionMap.m)
	encodeCounterMap(&payload, &r.deletionMap.m)

	runs := make([]EditRun, 0, r.runTree.tree.NumLeaves())
	r.runTree.tree.ForEachLeaf(func(idx int, leaf *EditRun) {
		if idx == r.runTree.sentinelIdx {
			return
		}
		runs = append(runs, *leaf)
	})

	putUvarint(&payload, uint64(len(runs)))
	for _, run := range runs {
		encodeRun(&payload, run)
	}

	bytesPayload := payload.Bytes()
	return EncodedReplica{
		ProtocolVersion: protocolVersion,
		Checksum:        sha256.Sum256(bytesPayload),
		Length:          uint64(len(bytesPayload)),
		Payload:         bytesPayload,
	}
}

func encodeCounterMap(buf *bytes.Buffer, m *replicaCounterMap) {
	putUvarint(buf, uint64(len(m.slots)))
	for id, v := range m.slots {
		putUvarint(buf, uint64(id))
		putUvarint(buf, v)
	}
}

func encodeRun(buf *bytes.Buffer, r EditRun) {
	putUvarint(buf, uint64(r.text.Inserter))
	putUvarint(buf, r.runTs)
	putUvarint(buf, r.text.Lo)
	putUvarint(buf, r.text.Hi)
	putUvarint(buf, r.lamportTs)
	putUvarint(buf, uint64(r.parentAnchor.replicaID))
	putUvarint(buf, r.parentAnchor.runTs)
	putUvarint(buf, r.parentAnchor.offset)
	if r.isVisible {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// MarshalBinary flattens e into [2-byte protocol version][32-byte
// checksum][varint length][payload], suitable for writing to a file or
// socket.
func (e EncodedReplica) MarshalBinary() ([]byte, error) {
	var out bytes.Buffer
	var versionBytes [2]byte
	binary.BigEndian.PutUint16(versionBytes[:], e.ProtocolVersion)
	out.Write(versionBytes[:])
	out.Write(e.Checksum[:])
	putUvarint(&out, e.Length)
	out.Write(e.Payload)
	return out.Bytes(), nil
}

// UnmarshalBinary parses the format MarshalBinary produces. It only checks
// that the envelope is well-formed (lengths agree, enough bytes are
// present); it does not verify the checksum or protocol version against
// anything, since e has no replica to check against yet — DecodeReplica
// does that.
func (e *EncodedReplica) UnmarshalBinary(raw []byte) error {
	if len(raw) < 2+sha256.Size {
		return ErrInvalidData
	}

	version := binary.BigEndian.Uint16(raw[:2])
	var checksum [32]byte
	copy(checksum[:], raw[2:2+sha256.Size])

	br := &byteReader{data: raw[2+sha256.Size:]}
	length, err := br.uvarint()
	if err != nil {
		return err
	}
	if uint64(len(br.data)-br.pos) != length {
		return ErrInvalidData
	}

	e.ProtocolVersion = version
	e.Checksum = checksum
	e.Length = length
	e.Payload = br.data[br.pos:]
	return nil
}

type byteReader struct {
	data []byte
	pos  int
}

func (br *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(br.data[br.pos:])
	if n <= 0 {
		return 0, ErrInvalidData
	}
	br.pos += n
	return v, nil
}

func (br *byteReader) readByte() (byte, error) {
	if br.pos >= len(br.data) {
		return 0, ErrInvalidData
	}
	b := br.data[br.pos]
	br.pos++
	return b, nil
}

// DecodeReplica reconstructs a replica from an EncodedReplica under newID,
// first verifying its protocol version and checksum.
//
// Like Replica.Fork, the result starts with a fresh RunClock: newID may
// never have inserted anything of its own before, so its own run numbering
// begins at zero regardless of what the encoded replica had done. The
// encoded document content, version maps, and Lamport clock position carry
// over exactly.
func DecodeReplica(newID ReplicaId, enc EncodedReplica) (*Replica, error) {
	if newID == 0 {
		panic("textcrdt: replica id 0 is reserved for the zero anchor")
	}

	if enc.ProtocolVersion != protocolVersion {
		return nil, ErrDifferentProtocol
	}
	if sha256.Sum256(enc.Payload) != enc.Checksum {
		return nil, ErrChecksumFailed
	}
	if uint64(len(enc.Payload)) != enc.Length {
		return nil, ErrInvalidData
	}

	pr := &byteReader{data: enc.Payload}

	if _, err := pr.uvarint(); err != nil { // the source replica's own id; not needed under a fork
		return nil, err
	}
	lamportNext, err := pr.uvarint()
	if err != nil {
		return nil, err
	}

	versionSlots, err := decodeCounterMap(pr)
	if err != nil {
		return nil, err
	}
	deletionSlots, err := decodeCounterMap(pr)
	if err != nil {
		return nil, err
	}

	runCount, err := pr.uvarint()
	if err != nil {
		return nil, err
	}

	rt := NewRunTree()
	last := rt.sentinelIdx
	for i := uint64(0); i < runCount; i++ {
		run, derr := decodeRun(pr)
		if derr != nil {
			return nil, derr
		}
		idx := rt.tree.InsertAfter(last, run)
		rt.registerFragment(idx)
		last = idx
	}

	if pr.pos != len(pr.data) {
		return nil, ErrInvalidData
	}

	r := &Replica{
		id:          newID,
		runTree:     rt,
		versionMap:  VersionMap{m: replicaCounterMap{this: newID, slots: versionSlots}},
		deletionMap: DeletionMap{m: replicaCounterMap{this: newID, slots: deletionSlots}},
		backlog:     NewBacklog(),
	}
	r.lamportClock.next = lamportNext
	return r, nil
}

func decodeCounterMap(br *byteReader) (map[ReplicaId]uint64, error) {
	count, err := br.uvarint()
	if err != nil {
		return nil, err
	}
	slots := make(map[ReplicaId]uint64, count)
	for i := uint64(0); i < count; i++ {
		id, err := br.uvarint()
		if err != nil {
			return nil, err
		}
		v, err := br.uvarint()
		if err != nil {
			return nil, err
		}
		slots[ReplicaId(id)] = v
	}
	return slots, nil
}

func decodeRun(br *byteReader) (EditRun, error) {
	inserter, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	runTs, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	lo, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	hi, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	lamportTs, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	parentReplica, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	parentRunTs, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	parentOffset, err := br.uvarint()
	if err != nil {
		return EditRun{}, err
	}
	visByte, err := br.readByte()
	if err != nil {
		return EditRun{}, err
	}

	return EditRun{
		text:      Text{Inserter: ReplicaId(inserter), Lo: lo, Hi: hi},
		runTs:     runTs,
		lamportTs: lamportTs,
		parentAnchor: innerAnchor{
			replicaID: ReplicaId(parentReplica),
			runTs:     parentRunTs,
			offset:    parentOffset,
		},
		isVisible: visByte != 0,
	}, nil
}
