package heap

import (
	"github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/storage/tuple"
)

const ErrNoEmptySlot = errors.Error("there is no empty slot")
const ErrTupleNotFound = errors.Error("tuple not found")
const ErrTupleSizeMismatch = errors.Error("tuple size not matches the table")

/**
 * Heap page format (fixed size tuples):
 * ------------------------------------------------------------
 * | HEADER BITMAP (ceil(numSlots/8)) | SLOT 0 | SLOT 1 | ... |
 * ------------------------------------------------------------
 * bit i of header is 1 when slot i is used
 */
type HeapPage struct {
	pg         *page.Page
	tupleSize  int
	numSlots   int
	headerSize int
}

// NumSlotsOf returns how many tuples of tupleSize fit a page.
// each tuple needs tupleSize bytes and one header bit
func NumSlotsOf(pageSize int, tupleSize int) int {
	return (pageSize * 8) / (tupleSize*8 + 1)
}

// NewHeapPage is a view over pg. callers hold the page latch while using it
func NewHeapPage(pg *page.Page, tupleSize int) *HeapPage {
	numSlots := NumSlotsOf(pg.Size(), tupleSize)
	return &HeapPage{pg, tupleSize, numSlots, (numSlots + 7) / 8}
}

func (hp *HeapPage) GetNumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) IsSlotUsed(slot int) bool {
	if slot < 0 || slot >= hp.numSlots {
		return false
	}
	return hp.pg.Data()[slot/8]&(1<<(slot%8)) != 0
}

func (hp *HeapPage) markSlotUsed(slot int, used bool) {
	if used {
		hp.pg.Data()[slot/8] |= 1 << (slot % 8)
	} else {
		hp.pg.Data()[slot/8] &^= 1 << (slot % 8)
	}
}

func (hp *HeapPage) GetNumEmptySlots() int {
	cnt := 0
	for i := 0; i < hp.numSlots; i++ {
		if !hp.IsSlotUsed(i) {
			cnt++
		}
	}
	return cnt
}

func (hp *HeapPage) slotOffset(slot int) int {
	return hp.headerSize + slot*hp.tupleSize
}

// InsertTuple stores tuple_ in the first empty slot and sets its RID
func (hp *HeapPage) InsertTuple(tuple_ *tuple.Tuple) (*page.RID, error) {
	if int(tuple_.Size()) != hp.tupleSize {
		return nil, ErrTupleSizeMismatch
	}
	for i := 0; i < hp.numSlots; i++ {
		if hp.IsSlotUsed(i) {
			continue
		}
		off := hp.slotOffset(i)
		copy(hp.pg.Data()[off:off+hp.tupleSize], tuple_.Data())
		hp.markSlotUsed(i, true)
		rid := page.NewRID(hp.pg.GetPageId(), uint32(i))
		tuple_.SetRID(rid)
		return rid, nil
	}
	return nil, ErrNoEmptySlot
}

func (hp *HeapPage) DeleteTuple(rid *page.RID) error {
	slot := int(rid.GetSlot())
	if rid.GetPageId() != hp.pg.GetPageId() || !hp.IsSlotUsed(slot) {
		return ErrTupleNotFound
	}
	off := hp.slotOffset(slot)
	clear(hp.pg.Data()[off : off+hp.tupleSize])
	hp.markSlotUsed(slot, false)
	return nil
}

func (hp *HeapPage) GetTuple(slot int) (*tuple.Tuple, error) {
	if !hp.IsSlotUsed(slot) {
		return nil, ErrTupleNotFound
	}
	off := hp.slotOffset(slot)
	data := make([]byte, hp.tupleSize)
	copy(data, hp.pg.Data()[off:off+hp.tupleSize])
	return tuple.NewTuple(page.NewRID(hp.pg.GetPageId(), uint32(slot)), uint32(hp.tupleSize), data), nil
}

// Tuples returns all stored tuples in slot order
func (hp *HeapPage) Tuples() []*tuple.Tuple {
	ret := make([]*tuple.Tuple, 0)
	for i := 0; i < hp.numSlots; i++ {
		if tuple_, err := hp.GetTuple(i); err == nil {
			ret = append(ret, tuple_)
		}
	}
	return ret
}
