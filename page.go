package sbtree

import "encoding/binary"

// pageRole folds the role-flagged count field (§3.1) into a proper enum at
// the in-memory boundary; only the wire encoding (+10000/+20000) needs to
// survive byte-exact.
type pageRole int

const (
	roleLeaf pageRole = iota
	roleInterior
	roleRoot
)

const (
	countInteriorBase = 10000
	countRootBase     = 20000
)

// logicalID returns the 4-byte monotonically increasing id embedded at
// offset 0 of a page.
func logicalID(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[0:4])
}

func setLogicalID(page []byte, id uint32) {
	binary.LittleEndian.PutUint32(page[0:4], id)
}

// rawCount reads the role-encoded count field at offset 4.
func rawCount(page []byte) uint16 {
	return binary.LittleEndian.Uint16(page[4:6])
}

// role and trueCount decode the role flag in one pass: values in
// [0,10000) are a leaf, [10000,20000) an interior non-root, [20000,30000)
// the root.
func role(page []byte) pageRole {
	c := rawCount(page)
	switch {
	case c >= countRootBase:
		return roleRoot
	case c >= countInteriorBase:
		return roleInterior
	default:
		return roleLeaf
	}
}

func trueCount(page []byte) int {
	c := rawCount(page)
	switch {
	case c >= countRootBase:
		return int(c - countRootBase)
	case c >= countInteriorBase:
		return int(c - countInteriorBase)
	default:
		return int(c)
	}
}

// setCount re-encodes count with the given role's wire offset, preserving
// the +10000/+20000 contract bit-exactly.
func setCount(page []byte, r pageRole, count int) {
	var base int
	switch r {
	case roleRoot:
		base = countRootBase
	case roleInterior:
		base = countInteriorBase
	default:
		base = 0
	}
	binary.LittleEndian.PutUint16(page[4:6], uint16(base+count))
}

func setNodeHeader(page []byte, r pageRole, count int) {
	setCount(page, r, count)
}

// leafRecordOffset and friends: in a leaf node, records live contiguously
// after the header, keySize+dataSize bytes each.
func leafRecordOffset(i, recordSize int) int {
	return minPageHeaderSize + i*recordSize
}

func leafKey(page []byte, i, keySize, recordSize int) []byte {
	off := leafRecordOffset(i, recordSize)
	return page[off : off+keySize]
}

func leafValue(page []byte, i, keySize, dataSize, recordSize int) []byte {
	off := leafRecordOffset(i, recordSize) + keySize
	return page[off : off+dataSize]
}

func setLeafRecord(page []byte, i int, key, data []byte, recordSize int) {
	off := leafRecordOffset(i, recordSize)
	copy(page[off:], key)
	copy(page[off+len(key):], data)
}

// interiorKey and interiorChild: keys precede children in the page body at
// fixed maximal stride, so per-slot offsets are independent of actual count.
// maxInterior separator slots occupy [header, header+maxInterior*keySize);
// maxInterior+1 child slots follow.
func interiorKeyOffset(i, keySize int) int {
	return minPageHeaderSize + i*keySize
}

func interiorChildOffset(i, keySize, maxInterior int) int {
	return minPageHeaderSize + maxInterior*keySize + i*pageChildSize
}

func interiorKey(page []byte, i, keySize int) []byte {
	off := interiorKeyOffset(i, keySize)
	return page[off : off+keySize]
}

func setInteriorKey(page []byte, i int, key []byte, keySize int) {
	off := interiorKeyOffset(i, keySize)
	copy(page[off:off+keySize], key)
}

// childSentinel marks a child pointer slot that has never been written;
// §4.3.5 treats it as "unused" only when it is also the trailing slot for
// the node's current count.
const childSentinel = int64(0)

func interiorChildRaw(page []byte, i, keySize, maxInterior int) int64 {
	off := interiorChildOffset(i, keySize, maxInterior)
	return int64(binary.LittleEndian.Uint64(page[off : off+8]))
}

func setInteriorChild(page []byte, i int, id int64, keySize, maxInterior int) {
	off := interiorChildOffset(i, keySize, maxInterior)
	binary.LittleEndian.PutUint64(page[off:off+8], uint64(id))
}
