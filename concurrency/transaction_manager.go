package concurrency

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/recovery"
	"github.com/ryogrid/SamehadaTxStore/storage/buffer"
	"github.com/ryogrid/SamehadaTxStore/types"
	"github.com/sasha-s/go-deadlock"
)

const ErrTxnCompleted = errors.Error("transaction is already completed")

/**
 * TransactionManager keeps track of all the transactions running in the system.
 * commit is done in the order below, so a txn is committed exactly when
 * its commit record is durable.
 *   1. dirty pages are flushed with update records
 *   2. commit record is appended and the log is forced
 *   3. pages and locks are released
 */
type TransactionManager struct {
	next_txn_id         types.TxnID
	buffer_pool_manager *buffer.BufferPoolManager
	log_file            *recovery.LogFile
	/** The global transaction latch is used for checkpointing. */
	global_txn_latch common.ReaderWriterLatch
	txn_map          map[types.TxnID]*Transaction
	mutex            *deadlock.Mutex
}

func NewTransactionManager(buffer_pool_manager *buffer.BufferPoolManager, log_file *recovery.LogFile) *TransactionManager {
	return &TransactionManager{-1, buffer_pool_manager, log_file, common.NewRWLatch(), make(map[types.TxnID]*Transaction), new(deadlock.Mutex)}
}

// SetNextTxnID makes ids of new transactions start after maxUsed.
// called after recovery so ids in the old log are not reused
func (transaction_manager *TransactionManager) SetNextTxnID(maxUsed types.TxnID) {
	transaction_manager.mutex.Lock()
	defer transaction_manager.mutex.Unlock()
	if maxUsed > transaction_manager.next_txn_id {
		transaction_manager.next_txn_id = maxUsed
	}
}

func (transaction_manager *TransactionManager) Begin() (*Transaction, error) {
	transaction_manager.global_txn_latch.RLock()
	defer transaction_manager.global_txn_latch.RUnlock()

	transaction_manager.mutex.Lock()
	transaction_manager.next_txn_id += 1
	txn := NewTransaction(transaction_manager.next_txn_id)
	transaction_manager.mutex.Unlock()

	if err := transaction_manager.log_file.LogBegin(txn.GetTransactionId()); err != nil {
		return nil, err
	}

	transaction_manager.mutex.Lock()
	transaction_manager.txn_map[txn.GetTransactionId()] = txn
	transaction_manager.mutex.Unlock()
	common.ShPrintf(common.DEBUG_INFO_DETAIL, "TransactionManager::Begin: txn=%d\n", txn.GetTransactionId())
	return txn, nil
}

// Commit makes changes of txn durable. when it fails before the commit
// record is written, txn is aborted and the error is returned
func (transaction_manager *TransactionManager) Commit(txn *Transaction) error {
	transaction_manager.global_txn_latch.RLock()
	defer transaction_manager.global_txn_latch.RUnlock()

	if txn.IsCompleted() {
		return pkgerrors.Wrapf(ErrTxnCompleted, "txn %d is %s", txn.GetTransactionId(), txn.GetState())
	}
	txn_id := txn.GetTransactionId()

	err := transaction_manager.buffer_pool_manager.FlushPages(txn_id)
	if err == nil {
		err = transaction_manager.log_file.LogCommit(txn_id)
	}
	if err != nil {
		common.ShPrintf(common.WARN, "TransactionManager::Commit: txn=%d is aborted. err=%v\n", txn_id, err)
		if abortErr := transaction_manager.abort(txn); abortErr != nil {
			return pkgerrors.Wrapf(abortErr, "abort after failed commit (%v)", err)
		}
		return pkgerrors.Wrap(err, "commit failed")
	}

	// txn is committed already here
	txn.SetState(COMMITTED)
	transaction_manager.forget(txn_id)
	if err = transaction_manager.buffer_pool_manager.TransactionComplete(txn_id, true); err != nil {
		return pkgerrors.Wrapf(err, "releasing committed txn %d", txn_id)
	}
	common.ShPrintf(common.DEBUG_INFO_DETAIL, "TransactionManager::Commit: txn=%d\n", txn_id)
	return nil
}

// Abort undoes all changes of txn and releases its locks
func (transaction_manager *TransactionManager) Abort(txn *Transaction) error {
	transaction_manager.global_txn_latch.RLock()
	defer transaction_manager.global_txn_latch.RUnlock()

	if txn.IsCompleted() {
		return pkgerrors.Wrapf(ErrTxnCompleted, "txn %d is %s", txn.GetTransactionId(), txn.GetState())
	}
	return transaction_manager.abort(txn)
}

func (transaction_manager *TransactionManager) abort(txn *Transaction) error {
	txn_id := txn.GetTransactionId()
	// pages already written for txn are rolled back from the log
	if err := transaction_manager.log_file.LogAbort(txn_id); err != nil {
		return err
	}
	txn.SetState(ABORTED)
	transaction_manager.forget(txn_id)
	if err := transaction_manager.buffer_pool_manager.TransactionComplete(txn_id, false); err != nil {
		return err
	}
	common.ShPrintf(common.DEBUG_INFO, "TransactionManager::Abort: txn=%d\n", txn_id)
	return nil
}

func (transaction_manager *TransactionManager) forget(txn_id types.TxnID) {
	transaction_manager.mutex.Lock()
	delete(transaction_manager.txn_map, txn_id)
	transaction_manager.mutex.Unlock()
}

// GetTransaction returns running transaction of txn_id or nil
func (transaction_manager *TransactionManager) GetTransaction(txn_id types.TxnID) *Transaction {
	transaction_manager.mutex.Lock()
	defer transaction_manager.mutex.Unlock()
	return transaction_manager.txn_map[txn_id]
}

func (transaction_manager *TransactionManager) NumActiveTransactions() int {
	transaction_manager.mutex.Lock()
	defer transaction_manager.mutex.Unlock()
	return len(transaction_manager.txn_map)
}

// BlockAllTransactions stops begin and completion of transactions.
// running transactions can still read and write pages
func (transaction_manager *TransactionManager) BlockAllTransactions() {
	transaction_manager.global_txn_latch.WLock()
}

func (transaction_manager *TransactionManager) ResumeTransactions() {
	transaction_manager.global_txn_latch.WUnlock()
}
