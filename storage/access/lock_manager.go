package access

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/golang-collections/collections/stack"
	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/types"
	"github.com/sasha-s/go-deadlock"
)

const ErrDeadlock = errors.Error("deadlock detected. transaction must be aborted")

type LockMode int32

const (
	UNLOCKED LockMode = iota
	SHARED
	EXCLUSIVE
)

func (mode LockMode) String() string {
	switch mode {
	case SHARED:
		return "SHARED"
	case EXCLUSIVE:
		return "EXCLUSIVE"
	}
	return "UNLOCKED"
}

func lockModeOf(perm types.Permissions) LockMode {
	if perm == types.READ_WRITE {
		return EXCLUSIVE
	}
	return SHARED
}

// lock state of one page. holders has exactly one member when mode is EXCLUSIVE
type pageLock struct {
	mode    LockMode
	holders mapset.Set[types.TxnID]
}

/**
 * LockManager handles transactions asking for page locks (strict 2PL).
 * a request which can not be granted waits on cond. every grant and release
 * wakes all waiters and each of them checks its own request again.
 * deadlock is found as a cycle of waits-for graph when a request blocks.
 */
type LockManager struct {
	mutex *deadlock.Mutex
	cond  *sync.Cond
	/** Lock table for page locks. */
	lock_table map[page.PageID]*pageLock
	/** pages each transaction holds lock of. */
	txn_locks map[types.TxnID]mapset.Set[page.PageID]
	/** request each blocked transaction waits for. waits-for edges are derived from lock_table with it */
	waiting map[types.TxnID]pendingRequest
}

type pendingRequest struct {
	pid  page.PageID
	mode LockMode
}

func NewLockManager() *LockManager {
	mutex := new(deadlock.Mutex)
	return &LockManager{
		mutex:      mutex,
		cond:       sync.NewCond(mutex),
		lock_table: make(map[page.PageID]*pageLock),
		txn_locks:  make(map[types.TxnID]mapset.Set[page.PageID]),
		waiting:    make(map[types.TxnID]pendingRequest),
	}
}

/**
 * Acquire blocks until txn gets the lock of pid which perm needs.
 * when waiting would make a cycle of waits-for graph, ErrDeadlock is returned
 * and txn should be aborted by the caller.
 */
func (lock_manager *LockManager) Acquire(txn types.TxnID, pid page.PageID, perm types.Permissions) error {
	mode := lockModeOf(perm)

	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	for {
		if lock_manager.isGrantable(txn, pid, mode) {
			lock_manager.grant(txn, pid, mode)
			lock_manager.clearWaitingOf(txn)
			lock_manager.cond.Broadcast()
			return nil
		}

		lock_manager.waiting[txn] = pendingRequest{pid, mode}
		if lock_manager.hasCycleFrom(txn) {
			lock_manager.clearWaitingOf(txn)
			lock_manager.cond.Broadcast()
			common.ShPrintf(common.DEBUG_INFO, "LockManager::Acquire: deadlock found. txn=%d page=%v mode=%s\n", txn, pid, mode)
			return pkgerrors.Wrapf(ErrDeadlock, "txn %d on page %v", txn, pid)
		}

		common.ShPrintf(common.DEBUG_INFO_DETAIL, "LockManager::Acquire: txn=%d waits for %v on page %v\n", txn, lock_manager.waitsFor(txn), pid)
		lock_manager.cond.Wait()
	}
}

// caller must hold mutex
func (lock_manager *LockManager) isGrantable(txn types.TxnID, pid page.PageID, mode LockMode) bool {
	lock, ok := lock_manager.lock_table[pid]
	if !ok || lock.holders.Cardinality() == 0 {
		return true
	}

	soleHolder := lock.holders.Cardinality() == 1 && lock.holders.Contains(txn)
	switch mode {
	case SHARED:
		return lock.mode == SHARED || soleHolder
	case EXCLUSIVE:
		// includes upgrade when txn is the only shared holder
		return soleHolder
	}
	return false
}

// caller must hold mutex
func (lock_manager *LockManager) grant(txn types.TxnID, pid page.PageID, mode LockMode) {
	lock, ok := lock_manager.lock_table[pid]
	if !ok {
		lock = &pageLock{UNLOCKED, mapset.NewThreadUnsafeSet[types.TxnID]()}
		lock_manager.lock_table[pid] = lock
	}

	switch mode {
	case EXCLUSIVE:
		lock.holders.Clear()
		lock.holders.Add(txn)
		lock.mode = EXCLUSIVE
	case SHARED:
		if lock.mode == EXCLUSIVE {
			// txn keeps its exclusive lock
			common.SH_Assert(lock.holders.Contains(txn), "shared lock granted under other's exclusive lock")
		} else {
			lock.holders.Add(txn)
			lock.mode = SHARED
		}
	}

	pages, ok := lock_manager.txn_locks[txn]
	if !ok {
		pages = mapset.NewThreadUnsafeSet[page.PageID]()
		lock_manager.txn_locks[txn] = pages
	}
	pages.Add(pid)
}

// waitsFor returns holders blocking the pending request of txn
// on the current lock table. caller must hold mutex
func (lock_manager *LockManager) waitsFor(txn types.TxnID) []types.TxnID {
	req, ok := lock_manager.waiting[txn]
	if !ok {
		return nil
	}
	lock, ok := lock_manager.lock_table[req.pid]
	if !ok {
		return nil
	}
	ret := make([]types.TxnID, 0, lock.holders.Cardinality())
	lock.holders.Each(func(holder types.TxnID) bool {
		if holder != txn {
			ret = append(ret, holder)
		}
		return false
	})
	return ret
}

func (lock_manager *LockManager) clearWaitingOf(txn types.TxnID) {
	delete(lock_manager.waiting, txn)
}

// hasCycleFrom reports whether start is reachable from itself
func (lock_manager *LockManager) hasCycleFrom(start types.TxnID) bool {
	visited := mapset.NewThreadUnsafeSet[types.TxnID]()
	st := stack.New()
	st.Push(start)
	for st.Len() > 0 {
		cur := st.Pop().(types.TxnID)
		for _, next := range lock_manager.waitsFor(cur) {
			if next == start {
				return true
			}
			if !visited.Contains(next) {
				visited.Add(next)
				st.Push(next)
			}
		}
	}
	return false
}

func (lock_manager *LockManager) Release(txn types.TxnID, pid page.PageID) {
	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	lock_manager.release(txn, pid)
	lock_manager.cond.Broadcast()
}

// caller must hold mutex
func (lock_manager *LockManager) release(txn types.TxnID, pid page.PageID) {
	if pages, ok := lock_manager.txn_locks[txn]; ok {
		pages.Remove(pid)
		if pages.Cardinality() == 0 {
			delete(lock_manager.txn_locks, txn)
		}
	}

	lock, ok := lock_manager.lock_table[pid]
	if !ok || !lock.holders.Contains(txn) {
		return
	}
	lock.holders.Remove(txn)
	if lock.holders.Cardinality() == 0 {
		delete(lock_manager.lock_table, pid)
	} else if lock.mode == EXCLUSIVE {
		lock.mode = SHARED
	}
}

// ReleaseAll releases every lock txn holds. called at commit and abort
func (lock_manager *LockManager) ReleaseAll(txn types.TxnID) {
	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	if pages, ok := lock_manager.txn_locks[txn]; ok {
		for _, pid := range pages.ToSlice() {
			lock_manager.release(txn, pid)
		}
	}
	delete(lock_manager.txn_locks, txn)
	lock_manager.clearWaitingOf(txn)
	lock_manager.cond.Broadcast()
}

func (lock_manager *LockManager) HoldsLock(txn types.TxnID, pid page.PageID) bool {
	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	lock, ok := lock_manager.lock_table[pid]
	return ok && lock.holders.Contains(txn)
}

// GetLockState returns current mode and holders of pid
func (lock_manager *LockManager) GetLockState(pid page.PageID) (LockMode, []types.TxnID) {
	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	lock, ok := lock_manager.lock_table[pid]
	if !ok {
		return UNLOCKED, []types.TxnID{}
	}
	return lock.mode, lock.holders.ToSlice()
}

// GetLockedPages returns pages txn holds lock of
func (lock_manager *LockManager) GetLockedPages(txn types.TxnID) []page.PageID {
	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	if pages, ok := lock_manager.txn_locks[txn]; ok {
		return pages.ToSlice()
	}
	return []page.PageID{}
}

// IsWaiting reports whether txn is blocked in Acquire now
func (lock_manager *LockManager) IsWaiting(txn types.TxnID) bool {
	lock_manager.mutex.Lock()
	defer lock_manager.mutex.Unlock()

	_, ok := lock_manager.waiting[txn]
	return ok
}
