package sbtree

// Iterator performs bounded range iteration over [minKey, maxKey] — §4.3.8.
// It holds its own copies of every page it visits rather than aliasing the
// shared buffer pool's slots, since a later Next call can trigger an
// eviction that would otherwise invalidate a previously returned slot.
type Iterator struct {
	t *Tree

	path [MaxLevel]int64
	rec  [MaxLevel + 1]int

	minKey, maxKey []byte

	currentLeaf []byte
	done        bool
}

func copyPage(src []byte) []byte {
	return append([]byte(nil), src...)
}

// InitIterator descends from the root using range-mode search, recording
// the chosen child index at every level so Next can resume from there.
func (t *Tree) InitIterator(minKey, maxKey []byte) *Iterator {
	it := &Iterator{
		t:      t,
		minKey: append([]byte(nil), minKey...),
		maxKey: append([]byte(nil), maxKey...),
	}

	nodeID := t.activePath[0]
	for L := 0; L < t.levels; L++ {
		slot, err := t.buf.ReadPage(nodeID)
		if err != nil {
			it.currentLeaf = nil
			return it
		}
		node := copyPage(t.buf.Slot(slot))
		childIdx := t.searchInterior(node, minKey, trueCount(node))
		it.path[L] = nodeID
		it.rec[L] = childIdx

		childID := t.childPageID(node, nodeID, L, childIdx)
		if childID == noPage {
			it.currentLeaf = nil
			return it
		}
		nodeID = childID
	}

	slot, err := t.buf.ReadPage(nodeID)
	if err != nil {
		it.currentLeaf = nil
		return it
	}
	leaf := copyPage(t.buf.Slot(slot))
	it.rec[t.levels] = t.searchLeaf(leaf, minKey, trueCount(leaf), true)
	it.currentLeaf = leaf
	return it
}

// Next yields the next key/value pair in range, copying into outKey/outData
// and reporting whether a value was produced — §4.3.8's 1/0 return recast
// as a bool.
func (it *Iterator) Next(outKey, outData []byte) (bool, error) {
	t := it.t
	if it.done || it.currentLeaf == nil {
		return false, nil
	}

	for {
		count := trueCount(it.currentLeaf)
		if it.rec[t.levels] >= count {
			if !it.advance() {
				it.done = true
				return false, nil
			}
			continue
		}

		pos := it.rec[t.levels]
		key := t.leafKeyAt(it.currentLeaf, pos)

		if t.cfg.Compare(key, it.minKey) < 0 {
			it.rec[t.levels]++
			continue
		}
		if t.cfg.Compare(key, it.maxKey) > 0 {
			it.done = true
			return false, nil
		}

		copy(outKey, key)
		copy(outData, t.leafValueAt(it.currentLeaf, pos))
		it.rec[t.levels]++
		return true, nil
	}
}

// advance walks the iterator path upward looking for a level with an
// unconsumed child, then re-descends from there, resetting every lower
// cursor to 0 and replacing currentLeaf.
func (it *Iterator) advance() bool {
	t := it.t
	for L := t.levels - 1; L >= 0; L-- {
		slot, err := t.buf.ReadPage(it.path[L])
		if err != nil {
			return false
		}
		node := copyPage(t.buf.Slot(slot))
		count := trueCount(node)

		limit := count
		if L == t.levels-1 {
			// the last child at the deepest interior level was already
			// consumed when this level was first entered.
			limit = count - 1
		}
		if it.rec[L] >= limit {
			continue
		}

		it.rec[L]++
		childID := t.childPageID(node, it.path[L], L, it.rec[L])
		if childID == noPage {
			return false
		}

		nodeID := childID
		for LL := L + 1; LL < t.levels; LL++ {
			s2, err := t.buf.ReadPage(nodeID)
			if err != nil {
				return false
			}
			n2 := copyPage(t.buf.Slot(s2))
			it.path[LL] = nodeID
			it.rec[LL] = 0
			childID2 := t.childPageID(n2, nodeID, LL, 0)
			if childID2 == noPage {
				return false
			}
			nodeID = childID2
		}

		s3, err := t.buf.ReadPage(nodeID)
		if err != nil {
			return false
		}
		it.currentLeaf = copyPage(t.buf.Slot(s3))
		it.rec[t.levels] = 0
		return true
	}
	return false
}
