package concurrency

import (
	"testing"
	"time"

	"github.com/ryogrid/SamehadaTxStore/catalog"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/recovery"
	"github.com/ryogrid/SamehadaTxStore/storage/access"
	"github.com/ryogrid/SamehadaTxStore/storage/buffer"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/heap"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/storage/tuple"
	testingpkg "github.com/ryogrid/SamehadaTxStore/testing/testing_assert"
	"github.com/ryogrid/SamehadaTxStore/types"
)

type txnTestEnv struct {
	tm       *TransactionManager
	bpm      *buffer.BufferPoolManager
	hf       *heap.HeapFile
	log_file *recovery.LogFile
}

func newTxnTestEnv(t *testing.T, name string) *txnTestEnv {
	dm := disk.NewVirtualDiskManagerImpl(name+".db", 64)
	hf := heap.NewHeapFile(dm, 8)
	catalog_ := catalog.NewCatalog()
	_, err := catalog_.AddTable(name, hf, 8)
	testingpkg.Ok(t, err)
	log_file := recovery.NewLogFile(disk.NewVirtualLogStorageImpl(name+".log"), common.NewOrderedLatch(), catalog_)
	bpm := buffer.NewBufferPoolManager(common.BufferPoolMaxPagesForTest, catalog_, access.NewLockManager(), log_file)
	hf.SetPageFetcher(bpm)
	return &txnTestEnv{NewTransactionManager(bpm, log_file), bpm, hf, log_file}
}

func (env *txnTestEnv) count(t *testing.T) int {
	txn, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	tuples, err := env.hf.Scan(txn.GetTransactionId())
	testingpkg.Ok(t, err)
	testingpkg.Ok(t, env.tm.Commit(txn))
	return len(tuples)
}

func TestBeginAssignsNewIds(t *testing.T) {
	env := newTxnTestEnv(t, "tm_begin")
	txn1, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	txn2, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, txn2.GetTransactionId() > txn1.GetTransactionId(), "")
	testingpkg.Equals(t, 2, env.tm.NumActiveTransactions())
	testingpkg.Equals(t, txn1, env.tm.GetTransaction(txn1.GetTransactionId()))

	// ids found in the log of previous run are skipped
	env.tm.SetNextTxnID(100)
	txn3, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, types.TxnID(101), txn3.GetTransactionId())
	env.tm.SetNextTxnID(5)
	txn4, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, types.TxnID(102), txn4.GetTransactionId())
}

func TestCommitAndAbort(t *testing.T) {
	env := newTxnTestEnv(t, "tm_commit")

	txn, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	for i := int32(0); i < 3; i++ {
		testingpkg.Ok(t, env.bpm.InsertTuple(txn.GetTransactionId(), env.hf.GetTableId(), tuple.NewTupleFromInt32s(i, i)))
	}
	testingpkg.Ok(t, env.tm.Commit(txn))
	testingpkg.Equals(t, COMMITTED, txn.GetState())
	testingpkg.Equals(t, 0, len(env.log_file.ActiveTxns()))
	// BEGIN, UPDATE and COMMIT
	testingpkg.Equals(t, 3, env.log_file.TotalRecords())
	testingpkg.ErrIs(t, env.tm.Commit(txn), ErrTxnCompleted)
	testingpkg.ErrIs(t, env.tm.Abort(txn), ErrTxnCompleted)

	txn, err = env.tm.Begin()
	testingpkg.Ok(t, err)
	testingpkg.Ok(t, env.bpm.InsertTuple(txn.GetTransactionId(), env.hf.GetTableId(), tuple.NewTupleFromInt32s(9, 9)))
	testingpkg.Ok(t, env.tm.Abort(txn))
	testingpkg.Equals(t, ABORTED, txn.GetState())
	testingpkg.Equals(t, 0, len(env.bpm.GetLockManager().GetLockedPages(txn.GetTransactionId())))

	testingpkg.Equals(t, 3, env.count(t))
	testingpkg.Equals(t, 0, env.tm.NumActiveTransactions())
}

func TestAbortOnDeadlock(t *testing.T) {
	env := newTxnTestEnv(t, "tm_deadlock")
	// two committed pages
	setup, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	for i := int32(0); i < 8; i++ {
		testingpkg.Ok(t, env.bpm.InsertTuple(setup.GetTransactionId(), env.hf.GetTableId(), tuple.NewTupleFromInt32s(i, i)))
	}
	testingpkg.Ok(t, env.tm.Commit(setup))
	pid0 := page.NewPageID(env.hf.GetTableId(), 0)
	pid1 := page.NewPageID(env.hf.GetTableId(), 1)

	txnA, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	txnB, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	_, err = env.bpm.GetPage(txnA.GetTransactionId(), pid0, types.READ_WRITE)
	testingpkg.Ok(t, err)
	_, err = env.bpm.GetPage(txnB.GetTransactionId(), pid1, types.READ_WRITE)
	testingpkg.Ok(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := env.bpm.GetPage(txnA.GetTransactionId(), pid1, types.READ_WRITE)
		done <- err
	}()
	for !env.bpm.GetLockManager().IsWaiting(txnA.GetTransactionId()) {
		time.Sleep(time.Millisecond)
	}

	_, err = env.bpm.GetPage(txnB.GetTransactionId(), pid0, types.READ_WRITE)
	testingpkg.ErrIs(t, err, access.ErrDeadlock)
	testingpkg.Ok(t, env.tm.Abort(txnB))

	testingpkg.Ok(t, <-done)
	testingpkg.Ok(t, env.tm.Commit(txnA))
	testingpkg.Equals(t, 8, env.count(t))
}

func TestCheckpointManager(t *testing.T) {
	env := newTxnTestEnv(t, "tm_checkpoint")
	txn, err := env.tm.Begin()
	testingpkg.Ok(t, err)
	testingpkg.Ok(t, env.bpm.InsertTuple(txn.GetTransactionId(), env.hf.GetTableId(), tuple.NewTupleFromInt32s(1, 1)))

	checkpoint_manager := NewCheckpointManager(env.tm, env.log_file, 5*time.Millisecond)
	testingpkg.AssertFalse(t, checkpoint_manager.IsCheckpointActive(), "")
	err = checkpoint_manager.BeginCheckpoint()
	checkpoint_manager.EndCheckpoint()
	testingpkg.Ok(t, err)
	// running txn survives the checkpoint
	testingpkg.Equals(t, []types.TxnID{txn.GetTransactionId()}, env.log_file.ActiveTxns())

	before := env.log_file.TotalRecords()
	checkpoint_manager.StartCheckpointTh()
	testingpkg.Assert(t, checkpoint_manager.IsCheckpointActive(), "")
	for i := 0; i < 500 && env.log_file.TotalRecords() == before; i++ {
		time.Sleep(2 * time.Millisecond)
	}
	checkpoint_manager.StopCheckpointTh()
	testingpkg.AssertFalse(t, checkpoint_manager.IsCheckpointActive(), "")
	testingpkg.Assert(t, env.log_file.TotalRecords() > before, "checkpoint thread appended no record")
	// thread has exited when stop returns
	stopped := env.log_file.TotalRecords()
	time.Sleep(20 * time.Millisecond)
	testingpkg.Equals(t, stopped, env.log_file.TotalRecords())
	// stop and restart are allowed
	checkpoint_manager.StopCheckpointTh()
	checkpoint_manager.StartCheckpointTh()
	testingpkg.Assert(t, checkpoint_manager.IsCheckpointActive(), "")
	checkpoint_manager.StopCheckpointTh()

	testingpkg.Ok(t, env.tm.Commit(txn))
	testingpkg.Equals(t, 1, env.count(t))

	never := NewCheckpointManager(env.tm, env.log_file, 0)
	never.StartCheckpointTh()
	testingpkg.AssertFalse(t, never.IsCheckpointActive(), "")
	never.StopCheckpointTh()
}
