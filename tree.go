// Package sbtree implements a sequential, append-only, copy-on-write
// B+-tree index over a fixed-capacity page buffer, intended for
// resource-constrained, single-threaded storage (embedded flash media).
package sbtree

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const noPage = int64(-1)

// writeSlot is the single scratch slot shared by the leaf write buffer and,
// during updateIndex, the interior node currently being read-modify-written.
const writeSlot = 0

// Tree is the B+-tree engine (§4.3): sequential, append-only, copy-on-write,
// built on a PageBuffer. It holds the active path — one physical page id per
// level from root to parent-of-leaf — plus the in-progress leaf.
type Tree struct {
	cfg Config
	buf *PageBuffer

	recordSize  int
	maxLeaf     int
	maxInterior int

	levels     int
	activePath []int64

	tempKey     []byte
	bitmapState byte

	log *logrus.Logger
}

// Open computes the derived sizes and fan-out from cfg, allocates the page
// buffer, and creates the first (empty, root-flagged) page — §4.3.1.
func Open(cfg Config, storage Storage) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolveDefaults()

	recordSize := cfg.KeySize + cfg.DataSize
	maxLeaf := (cfg.PageSize - minPageHeaderSize) / recordSize
	maxInterior := (cfg.PageSize - minPageHeaderSize - pageChildSize) / (cfg.KeySize + pageChildSize)

	activePath := make([]int64, MaxLevel)
	for i := range activePath {
		activePath[i] = noPage
	}

	buf := newPageBuffer(cfg.PageSize, cfg.NumPages, storage, activePath, cfg.Logger)
	if err := buf.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	t := &Tree{
		cfg:         cfg,
		buf:         buf,
		recordSize:  recordSize,
		maxLeaf:     maxLeaf,
		maxInterior: maxInterior,
		levels:      1,
		activePath:  activePath,
		tempKey:     make([]byte, cfg.KeySize),
		log:         cfg.Logger,
	}

	root := buf.InitBufferPage(writeSlot)
	setNodeHeader(root, roleRoot, 0)
	rootID, err := buf.WritePage(writeSlot)
	if err != nil {
		return nil, fmt.Errorf("sbtree: create root: %w", err)
	}
	activePath[0] = rootID

	leaf := buf.InitBufferPage(writeSlot)
	setNodeHeader(leaf, roleLeaf, 0)

	return t, nil
}

// Close flushes the page buffer's statistics log and releases storage.
func (t *Tree) Close() error {
	return t.buf.Close()
}

// Levels reports the tree's current height (root counts as level 0).
func (t *Tree) Levels() int { return t.levels }

func (t *Tree) leafKeyAt(page []byte, i int) []byte {
	return leafKey(page, i, t.cfg.KeySize, t.recordSize)
}

func (t *Tree) leafValueAt(page []byte, i int) []byte {
	return leafValue(page, i, t.cfg.KeySize, t.cfg.DataSize, t.recordSize)
}

func (t *Tree) interiorKeyAt(page []byte, i int) []byte {
	return interiorKey(page, i, t.cfg.KeySize)
}

func (t *Tree) setInteriorKeyAt(page []byte, i int, key []byte) {
	setInteriorKey(page, i, key, t.cfg.KeySize)
}

func (t *Tree) interiorChildAt(page []byte, i int) int64 {
	return interiorChildRaw(page, i, t.cfg.KeySize, t.maxInterior)
}

func (t *Tree) setInteriorChildAt(page []byte, i int, id int64) {
	setInteriorChild(page, i, id, t.cfg.KeySize, t.maxInterior)
}

// rootWise picks the wire role for writing back the node at level L: only
// level 0 is ever the root.
func rootWise(level int) pageRole {
	if level == 0 {
		return roleRoot
	}
	return roleInterior
}

// Put inserts (key, data) — §4.3.2. Callers must supply keys in
// non-decreasing order; Put does not check this, per the Non-goals.
func (t *Tree) Put(key, data []byte) error {
	if len(key) != t.cfg.KeySize {
		return ErrKeySize
	}
	if len(data) != t.cfg.DataSize {
		return ErrDataSize
	}

	leaf := t.buf.Slot(writeSlot)
	count := trueCount(leaf)

	if count >= t.maxLeaf {
		pageNum, err := t.buf.WritePage(writeSlot)
		if err != nil {
			return fmt.Errorf("sbtree: put: write leaf: %w", err)
		}
		copy(t.tempKey, t.leafKeyAt(leaf, 0))
		if err := t.updateIndex(t.tempKey, key, pageNum); err != nil {
			return err
		}
		leaf = t.buf.InitBufferPage(writeSlot)
		setNodeHeader(leaf, roleLeaf, 0)
		count = 0
	}

	setLeafRecord(leaf, count, key, data, t.recordSize)
	setCount(leaf, roleLeaf, count+1)

	if t.cfg.Bitmap != nil && t.cfg.Bitmap.Update != nil {
		t.cfg.Bitmap.Update(key, &t.bitmapState)
	}
	return nil
}

// updateIndex walks the active path bottom-up, propagating a separator key
// for a newly written child page — §4.3.3. It is the central algorithm:
// every level is either split by creating a right sibling (full node) or
// absorbs the new pointer in place (non-full node); if the walk exhausts
// the active path, a new root is grown.
func (t *Tree) updateIndex(minKey, key []byte, pageNum int64) error {
	prevPageNum := noPage

	for L := t.levels - 1; L >= 0; L-- {
		if err := t.buf.ReadPageBuffer(t.activePath[L], writeSlot); err != nil {
			return fmt.Errorf("sbtree: updateIndex: read level %d: %w", L, err)
		}
		node := t.buf.Slot(writeSlot)
		count := trueCount(node)
		full := count >= t.maxInterior
		t.log.WithFields(logrus.Fields{"level": L, "count": count, "full": full}).Debug("updateIndex visiting level")

		if full {
			if L < t.levels-1 {
				t.setInteriorChildAt(node, count, prevPageNum)
				newID, err := t.buf.WritePage(writeSlot)
				if err != nil {
					return fmt.Errorf("sbtree: updateIndex: patch level %d: %w", L, err)
				}
				t.activePath[L] = newID
			}

			fresh := t.buf.InitBufferPage(writeSlot)
			setNodeHeader(fresh, roleInterior, 0)
			newCount := 0
			if L == t.levels-1 {
				t.setInteriorKeyAt(fresh, 0, key)
				newCount = 1
			}
			t.setInteriorChildAt(fresh, 0, pageNum)
			setCount(fresh, roleInterior, newCount)

			newID, err := t.buf.WritePage(writeSlot)
			if err != nil {
				return fmt.Errorf("sbtree: updateIndex: split level %d: %w", L, err)
			}
			prevPageNum = t.activePath[L]
			t.activePath[L] = newID
			pageNum = newID
			continue
		}

		if L == t.levels-1 {
			t.setInteriorKeyAt(node, count, key)
		} else {
			t.setInteriorKeyAt(node, count, minKey)
		}

		childIdx := count
		if L == 0 && t.levels > 1 {
			t.setInteriorChildAt(node, count+1, pageNum)
			if prevPageNum != noPage && count > 0 {
				t.setInteriorChildAt(node, count, prevPageNum)
			}
		} else {
			if prevPageNum != noPage {
				t.setInteriorChildAt(node, childIdx, prevPageNum)
				childIdx++
			}
			t.setInteriorChildAt(node, childIdx, pageNum)
		}

		setCount(node, rootWise(L), count+1)
		newID, err := t.buf.WritePage(writeSlot)
		if err != nil {
			return fmt.Errorf("sbtree: updateIndex: absorb level %d: %w", L, err)
		}
		t.activePath[L] = newID
		return nil
	}

	if t.levels >= MaxLevel {
		return ErrOutOfTreeCapacity
	}

	fresh := t.buf.InitBufferPage(writeSlot)
	setNodeHeader(fresh, roleRoot, 0)
	t.setInteriorKeyAt(fresh, 0, minKey)
	t.setInteriorChildAt(fresh, 0, prevPageNum)
	t.setInteriorChildAt(fresh, 1, t.activePath[0])
	setCount(fresh, roleRoot, 1)

	newID, err := t.buf.WritePage(writeSlot)
	if err != nil {
		return fmt.Errorf("sbtree: updateIndex: new root: %w", err)
	}
	for i := t.levels; i >= 1; i-- {
		t.activePath[i] = t.activePath[i-1]
	}
	t.activePath[0] = newID
	t.levels++
	return nil
}

// searchInterior binary-searches separators — §4.3.4. Equal keys descend
// right; the position itself (not position-1) may be the chosen child.
func (t *Tree) searchInterior(page []byte, key []byte, count int) int {
	n := count
	if n > t.maxInterior {
		n = t.maxInterior
	}
	switch n {
	case 0:
		return 0
	case 1:
		if t.cfg.Compare(key, t.interiorKeyAt(page, 0)) >= 0 {
			return 1
		}
		return 0
	}

	first, last := 0, n
	for first < last {
		middle := (first + last) / 2
		switch cmp := t.cfg.Compare(key, t.interiorKeyAt(page, middle)); {
		case cmp == 0:
			last = middle + 1
			first = last
		case cmp < 0:
			last = middle
		default:
			first = middle + 1
		}
	}
	return last
}

// searchLeaf binary-searches a leaf's records — §4.3.4. In range mode the
// insertion position is returned even on a miss; otherwise a miss is -1.
func (t *Tree) searchLeaf(page []byte, key []byte, count int, rangeMode bool) int {
	first, last := 0, count
	for first < last {
		middle := (first + last) / 2
		switch cmp := t.cfg.Compare(key, t.leafKeyAt(page, middle)); {
		case cmp == 0:
			return middle
		case cmp < 0:
			last = middle
		default:
			first = middle + 1
		}
	}
	if rangeMode {
		return last
	}
	return -1
}

// childPageID resolves a raw stored child pointer through the active-path
// remap — §4.3.5, the central invariant that makes sequential rewriting of
// copy-on-write nodes sound.
func (t *Tree) childPageID(page []byte, nodeID int64, level, childIdx int) int64 {
	count := trueCount(page)
	if childIdx == count && level < t.levels-1 && nodeID == t.activePath[level] {
		return t.activePath[level+1]
	}
	raw := t.interiorChildAt(page, childIdx)
	if raw == childSentinel && childIdx == count {
		return noPage
	}
	return raw
}

// Get performs a point lookup — §4.3.6. It reports whether the key was
// found; data, when found, is copied into out.
func (t *Tree) Get(key, out []byte) (bool, error) {
	if len(key) != t.cfg.KeySize {
		return false, ErrKeySize
	}
	if len(out) != t.cfg.DataSize {
		return false, ErrDataSize
	}

	nodeID := t.activePath[0]
	for L := 0; L < t.levels; L++ {
		slot, err := t.buf.ReadPage(nodeID)
		if err != nil {
			return false, fmt.Errorf("sbtree: get: read level %d: %w", L, err)
		}
		node := t.buf.Slot(slot)
		childIdx := t.searchInterior(node, key, trueCount(node))
		childID := t.childPageID(node, nodeID, L, childIdx)
		if childID == noPage {
			return false, nil
		}
		nodeID = childID
	}

	slot, err := t.buf.ReadPage(nodeID)
	if err != nil {
		return false, fmt.Errorf("sbtree: get: read leaf: %w", err)
	}
	leaf := t.buf.Slot(slot)
	idx := t.searchLeaf(leaf, key, trueCount(leaf), false)
	if idx < 0 {
		return false, nil
	}
	copy(out, t.leafValueAt(leaf, idx))
	return true, nil
}

// incrementKey treats key as a big-endian unsigned integer and returns
// key+1, wrapping to all-zero at the maximum representable value. Fixed-width sortable keys in this domain are conventionally
// big-endian so that byte-lexicographic and numeric order coincide.
func incrementKey(key []byte) []byte {
	out := append([]byte(nil), key...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out
		}
		out[i] = 0
	}
	return out
}

// Flush forces a write of the current (possibly partial) leaf, synthesizing
// max(leaf)+1 as the separator handed to updateIndex — §4.3.7, resolving
// the Open Question in favor of the max+1 variant. A second call with no
// intervening Put is a no-op: the leaf buffer is empty, so there is nothing
// to write (§8 property 5, idempotent flush).
func (t *Tree) Flush() error {
	leaf := t.buf.Slot(writeSlot)
	count := trueCount(leaf)
	if count == 0 {
		return nil
	}

	minKey := append([]byte(nil), t.leafKeyAt(leaf, 0)...)
	maxKey := append([]byte(nil), t.leafKeyAt(leaf, count-1)...)
	sep := incrementKey(maxKey)

	pageNum, err := t.buf.WritePage(writeSlot)
	if err != nil {
		return fmt.Errorf("sbtree: flush: write leaf: %w", err)
	}
	if err := t.updateIndex(minKey, sep, pageNum); err != nil {
		return err
	}

	newLeaf := t.buf.InitBufferPage(writeSlot)
	setNodeHeader(newLeaf, roleLeaf, 0)
	return nil
}

// DebugString walks the active path the way get does, substituting the
// active-path remap at the last child of every active-path node, and
// renders each page's role and count. It supersedes
// original_source/sbtree.c's sbtreePrint, returning the dump as a string
// instead of printing to stdout.
func (t *Tree) DebugString() string {
	out := ""
	nodeID := t.activePath[0]
	for L := 0; L < t.levels; L++ {
		slot, err := t.buf.ReadPage(nodeID)
		if err != nil {
			out += fmt.Sprintf("level %d: read error: %v\n", L, err)
			return out
		}
		node := t.buf.Slot(slot)
		out += fmt.Sprintf("level %d: page=%d role=%v count=%d\n", L, nodeID, role(node), trueCount(node))
		if L == t.levels-1 {
			break
		}
		count := trueCount(node)
		childID := t.childPageID(node, nodeID, L, count)
		if childID == noPage {
			break
		}
		nodeID = childID
	}
	return out
}
