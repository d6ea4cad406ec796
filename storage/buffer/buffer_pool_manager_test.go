// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package buffer

import (
	"testing"

	"github.com/ryogrid/SamehadaTxStore/catalog"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/recovery"
	"github.com/ryogrid/SamehadaTxStore/storage/access"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/heap"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/storage/tuple"
	testingpkg "github.com/ryogrid/SamehadaTxStore/testing/testing_assert"
	"github.com/ryogrid/SamehadaTxStore/types"
)

// 64 byte pages keep 7 tuples of 8 bytes each
const testPageSize = 64
const testTupleSize = 8
const tuplesPerPage = 7

type testEnv struct {
	bpm         *BufferPoolManager
	hf          *heap.HeapFile
	dm          disk.DiskManager
	log_file    *recovery.LogFile
	log_storage disk.LogStorage
	catalog     *catalog.Catalog
}

func newTestEnv(t *testing.T, name string, maxPages int) *testEnv {
	dm := disk.NewVirtualDiskManagerImpl(name+".db", testPageSize)
	log_storage := disk.NewVirtualLogStorageImpl(name + ".log")
	return newTestEnvOn(t, dm, log_storage, maxPages)
}

// env over existing storages simulates a restart
func newTestEnvOn(t *testing.T, dm disk.DiskManager, log_storage disk.LogStorage, maxPages int) *testEnv {
	hf := heap.NewHeapFile(dm, testTupleSize)
	catalog_ := catalog.NewCatalog()
	_, err := catalog_.AddTable("test_table", hf, testTupleSize)
	testingpkg.Ok(t, err)
	log_file := recovery.NewLogFile(log_storage, common.NewOrderedLatch(), catalog_)
	bpm := NewBufferPoolManager(maxPages, catalog_, access.NewLockManager(), log_file)
	hf.SetPageFetcher(bpm)
	return &testEnv{bpm, hf, dm, log_file, log_storage, catalog_}
}

func (env *testEnv) insert(t *testing.T, txn types.TxnID, vals ...int32) []*tuple.Tuple {
	ret := make([]*tuple.Tuple, 0, len(vals))
	for _, val := range vals {
		tuple_ := tuple.NewTupleFromInt32s(val, val*2)
		testingpkg.Ok(t, env.bpm.InsertTuple(txn, env.hf.GetTableId(), tuple_))
		ret = append(ret, tuple_)
	}
	return ret
}

func (env *testEnv) scanValues(t *testing.T, txn types.TxnID) map[int32]bool {
	tuples, err := env.hf.Scan(txn)
	testingpkg.Ok(t, err)
	ret := make(map[int32]bool)
	for _, tuple_ := range tuples {
		ret[tuple_.GetInt32(0)] = true
	}
	return ret
}

func seq(from int32, n int) []int32 {
	ret := make([]int32, n)
	for i := range ret {
		ret[i] = from + int32(i)
	}
	return ret
}

func TestLRUEvictionOfCleanPages(t *testing.T) {
	env := newTestEnv(t, "bpm_lru", 2)
	for i := 0; i < 3; i++ {
		_, err := env.dm.AllocatePage()
		testingpkg.Ok(t, err)
	}
	tableId := env.hf.GetTableId()
	pid0 := page.NewPageID(tableId, 0)
	pid1 := page.NewPageID(tableId, 1)
	pid2 := page.NewPageID(tableId, 2)

	txn := types.TxnID(1)
	for _, pid := range []page.PageID{pid0, pid1, pid0} {
		_, err := env.bpm.GetPage(txn, pid, types.READ_ONLY)
		testingpkg.Ok(t, err)
	}
	testingpkg.Equals(t, 2, env.bpm.NumResident())

	// page 1 is least recently used
	numWrites := env.dm.GetNumWrites()
	_, err := env.bpm.GetPage(txn, pid2, types.READ_ONLY)
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, env.bpm.IsResident(pid0), "")
	testingpkg.AssertFalse(t, env.bpm.IsResident(pid1), "")
	testingpkg.Assert(t, env.bpm.IsResident(pid2), "")
	// clean page is dropped without writing
	testingpkg.Equals(t, numWrites, env.dm.GetNumWrites())

	testingpkg.Ok(t, env.bpm.TransactionComplete(txn, true))
	testingpkg.Equals(t, 0, len(env.bpm.GetLockManager().GetLockedPages(txn)))
}

func TestNoStealKeepsDirtyPages(t *testing.T) {
	env := newTestEnv(t, "bpm_nosteal", 2)
	txn := types.TxnID(1)

	// two pages full of txn's tuples
	env.insert(t, txn, seq(0, tuplesPerPage*2)...)
	testingpkg.Equals(t, 2, env.bpm.NumResident())
	testingpkg.Equals(t, ErrAllPagesDirty, env.bpm.EvictPage())

	// next insert needs third page and any of resident pages can not be evicted
	err := env.bpm.InsertTuple(txn, env.hf.GetTableId(), tuple.NewTupleFromInt32s(100, 100))
	testingpkg.ErrIs(t, err, ErrAllPagesDirty)
	testingpkg.Equals(t, 2, env.bpm.NumResident())

	// nothing reached the disk before commit
	for pageNo := int32(0); pageNo < 2; pageNo++ {
		pg, err := env.hf.ReadPage(page.NewPageID(env.hf.GetTableId(), pageNo))
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, 0, len(heap.NewHeapPage(pg, testTupleSize).Tuples()))
	}

	testingpkg.Ok(t, env.bpm.TransactionComplete(txn, true))
	// committed pages are clean, so another txn can get a page
	testingpkg.Ok(t, env.bpm.InsertTuple(types.TxnID(2), env.hf.GetTableId(), tuple.NewTupleFromInt32s(100, 100)))
	testingpkg.Ok(t, env.bpm.TransactionComplete(types.TxnID(2), true))
}

func TestCommitIsDurable(t *testing.T) {
	env := newTestEnv(t, "bpm_commit", 4)
	txn := types.TxnID(1)
	env.insert(t, txn, seq(0, tuplesPerPage+3)...)

	testingpkg.Ok(t, env.bpm.TransactionComplete(txn, true))
	// one update record for each dirtied page
	testingpkg.Equals(t, 2, env.log_file.TotalRecords())

	for pageNo := int32(0); pageNo < 2; pageNo++ {
		pid := page.NewPageID(env.hf.GetTableId(), pageNo)
		onDisk, err := env.hf.ReadPage(pid)
		testingpkg.Ok(t, err)
		cached, err := env.bpm.GetPage(types.TxnID(2), pid, types.READ_ONLY)
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, cached.GetPageData(), onDisk.Data())
		_, dirty := cached.IsDirty()
		testingpkg.AssertFalse(t, dirty, "")
	}
	testingpkg.Ok(t, env.bpm.TransactionComplete(types.TxnID(2), true))

	// fresh pool on same storage sees every tuple
	restarted := newTestEnvOn(t, env.dm, env.log_storage, 4)
	testingpkg.Equals(t, tuplesPerPage+3, len(restarted.scanValues(t, types.TxnID(3))))
}

func TestAbortRestoresBeforeImage(t *testing.T) {
	env := newTestEnv(t, "bpm_abort", 4)
	committed := env.insert(t, types.TxnID(1), seq(0, 5)...)
	testingpkg.Ok(t, env.bpm.TransactionComplete(types.TxnID(1), true))

	pid := page.NewPageID(env.hf.GetTableId(), 0)
	onDiskBefore, err := env.hf.ReadPage(pid)
	testingpkg.Ok(t, err)
	numWrites := env.dm.GetNumWrites()

	txn := types.TxnID(2)
	testingpkg.Ok(t, env.bpm.DeleteTuple(txn, committed[1]))
	env.insert(t, txn, 50, 51)
	testingpkg.Equals(t, 6, len(env.scanValues(t, txn)))

	testingpkg.Ok(t, env.bpm.TransactionComplete(txn, false))
	testingpkg.Equals(t, numWrites, env.dm.GetNumWrites())
	testingpkg.Equals(t, 0, len(env.bpm.GetLockManager().GetLockedPages(txn)))

	onDiskAfter, err := env.hf.ReadPage(pid)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, onDiskBefore.Data(), onDiskAfter.Data())

	values := env.scanValues(t, types.TxnID(3))
	testingpkg.Equals(t, map[int32]bool{0: true, 1: true, 2: true, 3: true, 4: true}, values)
	cached, err := env.bpm.GetPage(types.TxnID(3), pid, types.READ_ONLY)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, onDiskBefore.Data(), cached.GetPageData())
}

func TestAbortAfterCheckpointFlush(t *testing.T) {
	env := newTestEnv(t, "bpm_cp_abort", 4)
	txn := types.TxnID(1)
	testingpkg.Ok(t, env.log_file.LogBegin(txn))
	env.insert(t, txn, seq(0, 3)...)

	// flush by checkpoint writes pages of running txn
	testingpkg.Ok(t, env.bpm.FlushAllPages())
	pid := page.NewPageID(env.hf.GetTableId(), 0)
	onDisk, err := env.hf.ReadPage(pid)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, 3, len(heap.NewHeapPage(onDisk, testTupleSize).Tuples()))

	env.insert(t, txn, 10)
	testingpkg.Ok(t, env.log_file.LogAbort(txn))
	testingpkg.Ok(t, env.bpm.TransactionComplete(txn, false))

	onDisk, err = env.hf.ReadPage(pid)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, 0, len(heap.NewHeapPage(onDisk, testTupleSize).Tuples()))
	testingpkg.Equals(t, 0, len(env.scanValues(t, types.TxnID(2))))
}

func TestCommitAfterCheckpointFlushRefreshesBeforeImage(t *testing.T) {
	env := newTestEnv(t, "bpm_cp_commit", 4)
	txn := types.TxnID(1)
	testingpkg.Ok(t, env.log_file.LogBegin(txn))
	env.insert(t, txn, 1, 2)
	testingpkg.Ok(t, env.bpm.FlushAllPages())
	testingpkg.Ok(t, env.bpm.FlushPages(txn))
	testingpkg.Ok(t, env.log_file.LogCommit(txn))
	testingpkg.Ok(t, env.bpm.TransactionComplete(txn, true))

	// abort of later txn goes back to the image txn 1 committed
	txn2 := types.TxnID(2)
	env.insert(t, txn2, 3)
	testingpkg.Ok(t, env.bpm.TransactionComplete(txn2, false))
	testingpkg.Equals(t, map[int32]bool{1: true, 2: true}, env.scanValues(t, types.TxnID(3)))
}

func TestDiscardPage(t *testing.T) {
	env := newTestEnv(t, "bpm_discard", 2)
	env.insert(t, types.TxnID(1), 1)
	pid := page.NewPageID(env.hf.GetTableId(), 0)
	testingpkg.Assert(t, env.bpm.IsResident(pid), "")
	env.bpm.DiscardPage(pid)
	testingpkg.AssertFalse(t, env.bpm.IsResident(pid), "")
	testingpkg.Equals(t, 0, env.bpm.NumResident())
	// discarded change is never written
	testingpkg.Ok(t, env.bpm.TransactionComplete(types.TxnID(1), true))
	testingpkg.Equals(t, 0, len(env.scanValues(t, types.TxnID(2))))
}
