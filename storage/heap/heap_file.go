package heap

import (
	"path/filepath"

	"github.com/ncw/directio"
	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/catalog/catalog_interface"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/storage/tuple"
	"github.com/ryogrid/SamehadaTxStore/types"
	"github.com/sasha-s/go-deadlock"
	"github.com/spaolacci/murmur3"
)

// HeapFile is a page store which keeps fixed size tuples in no particular order.
// page access on tuple operations goes through fetcher, so the pages are locked
// and cached by the buffer pool.
type HeapFile struct {
	disk_manager disk.DiskManager
	tableId      types.TableID
	tupleSize    int
	fetcher      catalog_interface.PageFetcher
	appendMutex  *deadlock.Mutex
}

// TableIdOf derives table id from absolute path of the backing file
func TableIdOf(fileName string) types.TableID {
	absPath, err := filepath.Abs(fileName)
	if err != nil {
		absPath = fileName
	}
	return types.TableID(murmur3.Sum32([]byte(absPath)))
}

func NewHeapFile(disk_manager disk.DiskManager, tupleSize int) *HeapFile {
	common.SH_Assert(tupleSize > 0 && NumSlotsOf(disk_manager.GetPageSize(), tupleSize) > 0,
		"tuple size must be positive and fit a page")
	return &HeapFile{disk_manager, TableIdOf(disk_manager.GetFileName()), tupleSize, nil, new(deadlock.Mutex)}
}

// SetPageFetcher must be called before tuple operations
func (hf *HeapFile) SetPageFetcher(fetcher catalog_interface.PageFetcher) {
	hf.fetcher = fetcher
}

func (hf *HeapFile) GetTableId() types.TableID {
	return hf.tableId
}

func (hf *HeapFile) GetTupleSize() int {
	return hf.tupleSize
}

func (hf *HeapFile) GetDiskManager() disk.DiskManager {
	return hf.disk_manager
}

func (hf *HeapFile) NumPages() int32 {
	return hf.disk_manager.NumPages()
}

func (hf *HeapFile) checkPageId(pid page.PageID) error {
	if pid.TableId != hf.tableId {
		return pkgerrors.Errorf("page %v does not belong to table %d", pid, hf.tableId)
	}
	return nil
}

func (hf *HeapFile) ReadPage(pid page.PageID) (*page.Page, error) {
	if err := hf.checkPageId(pid); err != nil {
		return nil, err
	}
	data := directio.AlignedBlock(hf.disk_manager.GetPageSize())
	if err := hf.disk_manager.ReadPage(pid.PageNo, data); err != nil {
		return nil, err
	}
	return page.NewPage(pid, page.PageKindHeap, data), nil
}

func (hf *HeapFile) WritePage(pg *page.Page) error {
	if err := hf.checkPageId(pg.GetPageId()); err != nil {
		return err
	}
	pg.RLatch()
	defer pg.RUnlatch()
	return hf.disk_manager.WritePage(pg.GetPageId().PageNo, pg.Data())
}

func (hf *HeapFile) InsertTuple(txn types.TxnID, tuple_ *tuple.Tuple) ([]*page.Page, error) {
	if int(tuple_.Size()) != hf.tupleSize {
		return nil, ErrTupleSizeMismatch
	}

	numPages := hf.NumPages()
	for pageNo := int32(0); pageNo < numPages; pageNo++ {
		pid := page.NewPageID(hf.tableId, pageNo)
		heldBefore := hf.fetcher.HoldsLock(txn, pid)
		pg, err := hf.fetcher.GetPage(txn, pid, types.READ_ONLY)
		if err != nil {
			return nil, err
		}
		pg.RLatch()
		hasRoom := NewHeapPage(pg, hf.tupleSize).GetNumEmptySlots() > 0
		pg.RUnlatch()
		if !hasRoom {
			// only the header was read, so lock of a full page can be returned
			if !heldBefore {
				hf.fetcher.UnsafeReleasePage(txn, pid)
			}
			continue
		}

		if pg, err = hf.fetcher.GetPage(txn, pid, types.READ_WRITE); err != nil {
			return nil, err
		}
		if err = hf.insertToPage(pg, tuple_); err == nil {
			return []*page.Page{pg}, nil
		} else if err != ErrNoEmptySlot {
			return nil, err
		}
	}

	// every page is full. append a new one
	hf.appendMutex.Lock()
	pageNo, err := hf.disk_manager.AllocatePage()
	hf.appendMutex.Unlock()
	if err != nil {
		return nil, err
	}
	common.ShPrintf(common.DEBUG_INFO, "HeapFile::InsertTuple: page %d appended to table %d\n", pageNo, hf.tableId)

	pg, err := hf.fetcher.GetPage(txn, page.NewPageID(hf.tableId, pageNo), types.READ_WRITE)
	if err != nil {
		return nil, err
	}
	if err = hf.insertToPage(pg, tuple_); err != nil {
		return nil, err
	}
	return []*page.Page{pg}, nil
}

func (hf *HeapFile) insertToPage(pg *page.Page, tuple_ *tuple.Tuple) error {
	pg.WLatch()
	defer pg.WUnlatch()
	_, err := NewHeapPage(pg, hf.tupleSize).InsertTuple(tuple_)
	return err
}

func (hf *HeapFile) DeleteTuple(txn types.TxnID, tuple_ *tuple.Tuple) ([]*page.Page, error) {
	rid := tuple_.GetRID()
	if rid == nil {
		return nil, ErrTupleNotFound
	}
	if err := hf.checkPageId(rid.GetPageId()); err != nil {
		return nil, err
	}
	if rid.GetPageId().PageNo >= hf.NumPages() {
		return nil, ErrTupleNotFound
	}

	pg, err := hf.fetcher.GetPage(txn, rid.GetPageId(), types.READ_WRITE)
	if err != nil {
		return nil, err
	}
	pg.WLatch()
	err = NewHeapPage(pg, hf.tupleSize).DeleteTuple(rid)
	pg.WUnlatch()
	if err != nil {
		return nil, err
	}
	return []*page.Page{pg}, nil
}

func (hf *HeapFile) GetTuple(txn types.TxnID, rid *page.RID) (*tuple.Tuple, error) {
	if rid == nil {
		return nil, ErrTupleNotFound
	}
	if err := hf.checkPageId(rid.GetPageId()); err != nil {
		return nil, err
	}
	if rid.GetPageId().PageNo >= hf.NumPages() {
		return nil, ErrTupleNotFound
	}
	pg, err := hf.fetcher.GetPage(txn, rid.GetPageId(), types.READ_ONLY)
	if err != nil {
		return nil, err
	}
	pg.RLatch()
	defer pg.RUnlatch()
	return NewHeapPage(pg, hf.tupleSize).GetTuple(int(rid.GetSlot()))
}

// Scan returns every tuple of the table. all pages are locked shared
func (hf *HeapFile) Scan(txn types.TxnID) ([]*tuple.Tuple, error) {
	ret := make([]*tuple.Tuple, 0)
	numPages := hf.NumPages()
	for pageNo := int32(0); pageNo < numPages; pageNo++ {
		pg, err := hf.fetcher.GetPage(txn, page.NewPageID(hf.tableId, pageNo), types.READ_ONLY)
		if err != nil {
			return nil, err
		}
		pg.RLatch()
		ret = append(ret, NewHeapPage(pg, hf.tupleSize).Tuples()...)
		pg.RUnlatch()
	}
	return ret, nil
}
