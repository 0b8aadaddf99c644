package sbtree

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	bufferEmpty = int64(-1)
	notModified = -1
)

// PageBuffer is the page-buffer manager (§4.2): a fixed pool of page-sized
// slots serving reads through a small eviction policy and mediating every
// write as an append that consumes the next physical page number. Slot 0 is
// reserved for the tree's current write scratch (both the leaf write buffer
// and the interior node under construction during updateIndex); slot 1 is
// reserved for the root when the pool holds at least three slots.
type PageBuffer struct {
	pageSize int
	numPages int

	slots    [][]byte
	status   []int64
	modified []int

	nextPageID      uint32
	nextPageWriteID int64
	lastHit         int
	nextBufferPage  int

	storage Storage
	// activePath is borrowed from the owning Tree: a writeback triggered
	// during eviction must remap the stale ancestor slot it displaces.
	activePath []int64

	reads, writes, hits uint64

	log *logrus.Logger
}

func newPageBuffer(pageSize, numPages int, storage Storage, activePath []int64, log *logrus.Logger) *PageBuffer {
	slots := make([][]byte, numPages)
	for i := range slots {
		slots[i] = make([]byte, pageSize)
	}
	return &PageBuffer{
		pageSize:   pageSize,
		numPages:   numPages,
		slots:      slots,
		status:     make([]int64, numPages),
		modified:   make([]int, numPages),
		storage:    storage,
		activePath: activePath,
		log:        log,
	}
}

// Init resets counters and slot bookkeeping and prepares the storage
// back-end.
func (b *PageBuffer) Init() error {
	for i := range b.status {
		b.status[i] = bufferEmpty
		b.modified[i] = notModified
	}
	b.nextPageID = 0
	b.nextPageWriteID = 0
	b.lastHit = -1
	b.nextBufferPage = 1
	return b.storage.Init()
}

// Slot returns the raw bytes backing a pool slot.
func (b *PageBuffer) Slot(i int) []byte {
	return b.slots[i]
}

// ReadPage serves read(pageNum) -> slot following the eviction contract in
// §4.2: a hit scan over [1,numPages), then the fixed slot-selection rules,
// then a conditional writeback of whatever the chosen slot held.
func (b *PageBuffer) ReadPage(pageNum int64) (int, error) {
	for s := 1; s < b.numPages; s++ {
		if b.status[s] == pageNum {
			b.lastHit = s
			b.hits++
			return s, nil
		}
	}
	slot := b.selectVictim(pageNum)
	if err := b.evict(slot); err != nil {
		return 0, err
	}
	if err := b.storage.ReadPage(pageNum, b.pageSize, b.slots[slot]); err != nil {
		return 0, err
	}
	b.status[slot] = pageNum
	b.modified[slot] = notModified
	b.reads++
	return slot, nil
}

// ReadPageBuffer force-loads a page into a specific slot, bypassing the
// eviction policy — used by the tree engine when it wants slot 0
// unconditionally, e.g. walking the active path in updateIndex.
func (b *PageBuffer) ReadPageBuffer(pageNum int64, slot int) error {
	if err := b.evict(slot); err != nil {
		return err
	}
	if err := b.storage.ReadPage(pageNum, b.pageSize, b.slots[slot]); err != nil {
		return err
	}
	b.status[slot] = pageNum
	b.modified[slot] = notModified
	b.reads++
	return nil
}

// evict writes back a slot's contents if it is dirty, remapping the
// displaced active-path entry to the page number the writeback produced.
func (b *PageBuffer) evict(slot int) error {
	if b.modified[slot] == notModified {
		return nil
	}
	level := b.modified[slot]
	newID, err := b.WritePage(slot)
	if err != nil {
		return err
	}
	b.activePath[level] = newID
	return nil
}

// selectVictim implements the §4.2 slot-selection rules, in order:
// numPages==2 always picks slot 1; the root (pageNum == activePath[0])
// always picks slot 1; numPages==3 picks slot 2; otherwise the first empty
// slot in [2,numPages), else round-robin from nextBufferPage skipping the
// most recently hit slot.
func (b *PageBuffer) selectVictim(pageNum int64) int {
	switch {
	case b.numPages == 2:
		return 1
	case pageNum == b.activePath[0]:
		return 1
	case b.numPages == 3:
		return 2
	}
	for s := 2; s < b.numPages; s++ {
		if b.status[s] == bufferEmpty {
			return s
		}
	}
	s := b.nextBufferPage
	if s < 2 {
		s = 2
	}
	for s == b.lastHit {
		s++
		if s >= b.numPages {
			s = 2
		}
	}
	b.nextBufferPage = s + 1
	if b.nextBufferPage >= b.numPages {
		b.nextBufferPage = 2
	}
	return s
}

// WritePage appends the bytes currently in slot to the storage back-end as
// a brand-new physical page, embedding the next logical id into the page
// header first. Every write is an append: no physical page is ever reused.
func (b *PageBuffer) WritePage(slot int) (int64, error) {
	pageNum := b.nextPageWriteID
	b.nextPageWriteID++
	binary.LittleEndian.PutUint32(b.slots[slot][0:4], b.nextPageID)
	b.nextPageID++
	if err := b.storage.WritePage(pageNum, b.pageSize, b.slots[slot]); err != nil {
		return 0, fmt.Errorf("buffer: write slot %d: %w", slot, err)
	}
	b.status[slot] = pageNum
	b.modified[slot] = notModified
	b.writes++
	return pageNum, nil
}

// SetModified marks slot dirty and records which active-path level it
// belongs to, so a later eviction knows which activePath entry to patch.
func (b *PageBuffer) SetModified(slot, level int) {
	b.modified[slot] = level
}

// ClearModified marks any slot holding pageNum as empty and clean.
func (b *PageBuffer) ClearModified(pageNum int64) {
	for s := range b.status {
		if b.status[s] == pageNum {
			b.status[s] = bufferEmpty
			b.modified[s] = notModified
		}
	}
}

// InitBufferPage zero-fills slot and returns it, ready to be built up as a
// fresh node.
func (b *PageBuffer) InitBufferPage(slot int) []byte {
	clear(b.slots[slot])
	return b.slots[slot]
}

// ClearStats resets the read/write/hit counters without touching slot
// contents, matching original_source/dbbuffer.c's dbbufferClearStats.
func (b *PageBuffer) ClearStats() {
	b.reads, b.writes, b.hits = 0, 0, 0
}

// Stats returns the read/write/hit counters.
func (b *PageBuffer) Stats() (reads, writes, hits uint64) {
	return b.reads, b.writes, b.hits
}

// Close logs final statistics and releases the storage back-end.
func (b *PageBuffer) Close() error {
	b.log.WithFields(logrus.Fields{
		"reads":  b.reads,
		"writes": b.writes,
		"hits":   b.hits,
	}).Debug("page buffer closing")
	return b.storage.Close()
}
