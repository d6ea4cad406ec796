// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package buffer

import (
	"github.com/ryogrid/SamehadaTxStore/catalog/catalog_interface"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/recovery"
	"github.com/ryogrid/SamehadaTxStore/storage/access"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/storage/tuple"
	"github.com/ryogrid/SamehadaTxStore/types"
	"github.com/sasha-s/go-deadlock"
)

const ErrAllPagesDirty = errors.Error("all pages in buffer pool are dirty. can not evict any page")
const ErrTupleHasNoRID = errors.Error("tuple has no RID")

/**
 * BufferPoolManager caches at most maxPages pages of all tables.
 * it is no-steal: a page dirtied by a running transaction is never evicted,
 * and it reaches the disk only when the transaction commits or at a checkpoint.
 * every page access takes a page lock of the lock manager first.
 *
 * latch order is pool zone -> log latch -> mutex. mutex is never held
 * while waiting for a page lock.
 */
type BufferPoolManager struct {
	maxPages     int
	pageTable    map[page.PageID]*page.Page
	replacer     *LRUReplacer
	catalog      catalog_interface.CatalogInterface
	lock_manager *access.LockManager
	log_file     *recovery.LogFile
	latch        *common.OrderedLatch
	mutex        *deadlock.Mutex
}

// NewBufferPoolManager returns a empty buffer pool and registers it to log_file
func NewBufferPoolManager(maxPages int, catalog catalog_interface.CatalogInterface, lock_manager *access.LockManager, log_file *recovery.LogFile) *BufferPoolManager {
	common.SH_Assert(maxPages > 0, "buffer pool needs one page at least")
	bpm := &BufferPoolManager{
		maxPages:     maxPages,
		pageTable:    make(map[page.PageID]*page.Page),
		replacer:     NewLRUReplacer(),
		catalog:      catalog,
		lock_manager: lock_manager,
		log_file:     log_file,
		latch:        log_file.GetLatch(),
		mutex:        new(deadlock.Mutex),
	}
	log_file.SetPageCache(bpm)
	return bpm
}

func (b *BufferPoolManager) GetPoolSize() int {
	return b.maxPages
}

func (b *BufferPoolManager) GetLockManager() *access.LockManager {
	return b.lock_manager
}

// GetPage returns the cached page, reading it from its store on a miss.
// blocks until txn gets the lock of perm. ErrDeadlock is returned when
// waiting would never end, and txn should be aborted then.
func (b *BufferPoolManager) GetPage(txn types.TxnID, pid page.PageID, perm types.Permissions) (*page.Page, error) {
	if err := b.lock_manager.Acquire(txn, pid, perm); err != nil {
		return nil, err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if pg, ok := b.pageTable[pid]; ok {
		b.replacer.Touch(pid)
		return pg, nil
	}

	if len(b.pageTable) >= b.maxPages {
		if err := b.evictPage(); err != nil {
			return nil, err
		}
	}

	store, err := b.catalog.GetPageStore(pid.TableId)
	if err != nil {
		return nil, err
	}
	pg, err := store.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	b.pageTable[pid] = pg
	b.replacer.Touch(pid)
	if common.EnableDebug {
		common.ShPrintf(common.DEBUG_INFO_DETAIL, "GetPage: txn=%d page=%v read. resident=%d\n", txn, pid, len(b.pageTable))
	}
	return pg, nil
}

func (b *BufferPoolManager) HoldsLock(txn types.TxnID, pid page.PageID) bool {
	return b.lock_manager.HoldsLock(txn, pid)
}

// UnsafeReleasePage returns the lock of pid before txn completes.
// caller must be sure txn did not read or write the contents
func (b *BufferPoolManager) UnsafeReleasePage(txn types.TxnID, pid page.PageID) {
	b.lock_manager.Release(txn, pid)
}

// InsertTuple adds tuple_ to the table on behalf of txn.
// pages the store modified are marked dirty by txn and kept in the pool.
func (b *BufferPoolManager) InsertTuple(txn types.TxnID, tableId types.TableID, tuple_ *tuple.Tuple) error {
	store, err := b.catalog.GetPageStore(tableId)
	if err != nil {
		return err
	}
	pages, err := store.InsertTuple(txn, tuple_)
	if err != nil {
		return err
	}
	return b.putDirtyPages(txn, pages)
}

// DeleteTuple removes tuple_ from the table its RID points to
func (b *BufferPoolManager) DeleteTuple(txn types.TxnID, tuple_ *tuple.Tuple) error {
	if tuple_.GetRID() == nil {
		return ErrTupleHasNoRID
	}
	store, err := b.catalog.GetPageStore(tuple_.GetRID().GetPageId().TableId)
	if err != nil {
		return err
	}
	pages, err := store.DeleteTuple(txn, tuple_)
	if err != nil {
		return err
	}
	return b.putDirtyPages(txn, pages)
}

func (b *BufferPoolManager) putDirtyPages(txn types.TxnID, pages []*page.Page) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, pg := range pages {
		pid := pg.GetPageId()
		pg.MarkDirty(true, txn)
		if cached, ok := b.pageTable[pid]; ok {
			if cached != pg {
				// store read the page by itself. it is the newest copy
				b.pageTable[pid] = pg
			}
			b.replacer.Touch(pid)
			continue
		}
		if len(b.pageTable) >= b.maxPages {
			if err := b.evictPage(); err != nil {
				return err
			}
		}
		b.pageTable[pid] = pg
		b.replacer.Touch(pid)
	}
	return nil
}

// page under a exclusive lock may be in the middle of modification, so it is not evicted
func (b *BufferPoolManager) isEvictable(pid page.PageID) bool {
	if _, dirty := b.pageTable[pid].IsDirty(); dirty {
		return false
	}
	mode, _ := b.lock_manager.GetLockState(pid)
	return mode != access.EXCLUSIVE
}

// evictPage discards least recently used clean page. mutex must be held
func (b *BufferPoolManager) evictPage() error {
	pid, ok := b.replacer.Victim(b.isEvictable)
	if !ok {
		return ErrAllPagesDirty
	}
	delete(b.pageTable, pid)
	if common.EnableDebug {
		common.ShPrintf(common.DEBUG_INFO_DETAIL, "evictPage: page=%v is removed from pageTable.\n", pid)
	}
	return nil
}

// EvictPage drops one clean page. clean page has the image on disk, so nothing is written
func (b *BufferPoolManager) EvictPage() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.evictPage()
}

// DiscardPage removes pid from the pool without writing it
func (b *BufferPoolManager) DiscardPage(pid page.PageID) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.pageTable, pid)
	b.replacer.Remove(pid)
}

// flushPage writes update record, forces the log and then writes the page.
// caller holds log latch and mutex
func (b *BufferPoolManager) flushPage(held *common.LogHeld, pg *page.Page) error {
	dirtier, dirty := pg.IsDirty()
	if !dirty {
		return nil
	}
	if err := b.log_file.LogWriteWithLatch(held, dirtier, pg.GetBeforeImage(), pg); err != nil {
		return err
	}
	if err := b.log_file.ForceWithLatch(held); err != nil {
		return err
	}
	store, err := b.catalog.GetPageStore(pg.GetPageId().TableId)
	if err != nil {
		return err
	}
	if err = store.WritePage(pg); err != nil {
		return err
	}
	pg.MarkDirty(false, types.InvalidTxnID)
	// image on disk is not committed yet. commit or abort of dirtier takes care of it
	pg.SetFlushedWriter(dirtier)
	return nil
}

// FlushPages writes all pages dirtied by txn with their update records
func (b *BufferPoolManager) FlushPages(txn types.TxnID) error {
	poolHeld := b.latch.LockPool()
	defer poolHeld.Unlock()
	held := poolHeld.LockLog()
	defer held.Unlock()

	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, pid := range b.replacer.Keys() {
		pg := b.pageTable[pid]
		if dirtier, dirty := pg.IsDirty(); dirty && dirtier == txn {
			if err := b.flushPage(held, pg); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushAllPages writes every dirty page. used by checkpoint through the log
func (b *BufferPoolManager) FlushAllPages() error {
	poolHeld := b.latch.LockPool()
	defer poolHeld.Unlock()
	held := poolHeld.LockLog()
	defer held.Unlock()
	return b.FlushAllPagesWithLatch(held)
}

func (b *BufferPoolManager) FlushAllPagesWithLatch(held *common.LogHeld) error {
	common.SH_Assert(held.HoldsPool(), "flushing all pages needs pool zone")
	b.mutex.Lock()
	defer b.mutex.Unlock()

	flushed := 0
	for _, pid := range b.replacer.Keys() {
		pg := b.pageTable[pid]
		if _, dirty := pg.IsDirty(); !dirty {
			continue
		}
		if err := b.flushPage(held, pg); err != nil {
			return err
		}
		flushed++
	}
	common.ShPrintf(common.DEBUG_INFO, "FlushAllPagesWithLatch: %d pages flushed\n", flushed)
	return nil
}

/**
 * TransactionComplete finishes txn in the pool and releases all its locks.
 * on commit, dirty pages of txn are flushed with update records and
 * their current bytes become the before-image. on abort, pages txn modified
 * are replaced with their before-image. disk is not touched on abort:
 * pages already flushed for txn are restored by the log's rollback.
 * locks are kept when commit failed, so txn can be aborted after it.
 */
func (b *BufferPoolManager) TransactionComplete(txn types.TxnID, commit bool) error {
	poolHeld := b.latch.LockPool()
	held := poolHeld.LockLog()

	b.mutex.Lock()
	var err error
	for _, pid := range b.replacer.Keys() {
		pg := b.pageTable[pid]
		dirtier, dirty := pg.IsDirty()
		ownedByTxn := (dirty && dirtier == txn) || pg.GetFlushedWriter() == txn
		if !ownedByTxn {
			continue
		}
		if commit {
			if err = b.flushPage(held, pg); err != nil {
				break
			}
			pg.SetBeforeImage()
			pg.SetFlushedWriter(types.InvalidTxnID)
		} else {
			b.pageTable[pid] = pg.GetBeforeImage()
		}
	}
	b.mutex.Unlock()
	held.Unlock()
	poolHeld.Unlock()

	if err != nil {
		return err
	}
	b.lock_manager.ReleaseAll(txn)
	return nil
}

// NumResident returns number of pages in the pool
func (b *BufferPoolManager) NumResident() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.pageTable)
}

func (b *BufferPoolManager) IsResident(pid page.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, ok := b.pageTable[pid]
	return ok
}
