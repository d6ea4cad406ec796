package buffer

import (
	"container/list"

	"github.com/ryogrid/SamehadaTxStore/storage/page"
)

// LRUReplacer keeps resident pages in access order. front is the most recent
type LRUReplacer struct {
	order *list.List
	elems map[page.PageID]*list.Element
}

func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{list.New(), make(map[page.PageID]*list.Element)}
}

// Touch records an access of pid
func (r *LRUReplacer) Touch(pid page.PageID) {
	if elem, ok := r.elems[pid]; ok {
		r.order.MoveToFront(elem)
		return
	}
	r.elems[pid] = r.order.PushFront(pid)
}

func (r *LRUReplacer) Remove(pid page.PageID) {
	if elem, ok := r.elems[pid]; ok {
		r.order.Remove(elem)
		delete(r.elems, pid)
	}
}

// Victim removes and returns the least recently used page which isEvictable accepts
func (r *LRUReplacer) Victim(isEvictable func(pid page.PageID) bool) (page.PageID, bool) {
	for elem := r.order.Back(); elem != nil; elem = elem.Prev() {
		pid := elem.Value.(page.PageID)
		if isEvictable(pid) {
			r.order.Remove(elem)
			delete(r.elems, pid)
			return pid, true
		}
	}
	return page.PageID{}, false
}

// Keys returns pages from least recently used one
func (r *LRUReplacer) Keys() []page.PageID {
	ret := make([]page.PageID, 0, r.order.Len())
	for elem := r.order.Back(); elem != nil; elem = elem.Prev() {
		ret = append(ret, elem.Value.(page.PageID))
	}
	return ret
}

func (r *LRUReplacer) Size() int {
	return r.order.Len()
}
