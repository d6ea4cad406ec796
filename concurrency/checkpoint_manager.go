package concurrency

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/recovery"
)

/**
 * CheckpointManager takes checkpoints periodically.
 * begin and completion of transactions are blocked while a checkpoint is taken,
 * so the active transaction list of the checkpoint record is consistent.
 */
type CheckpointManager struct {
	transaction_manager *TransactionManager
	log_file            *recovery.LogFile
	interval            time.Duration
	// checkpointing thread works when this flag is true
	isCheckpointActive atomic.Bool
	stopCh             chan struct{}
	// done when checkpointing thread exits
	wg sync.WaitGroup
}

func NewCheckpointManager(transaction_manager *TransactionManager, log_file *recovery.LogFile, interval time.Duration) *CheckpointManager {
	return &CheckpointManager{
		transaction_manager: transaction_manager,
		log_file:            log_file,
		interval:            interval,
	}
}

// StartCheckpointTh starts checkpointing thread. it does nothing when
// the thread is running already or interval is not positive
func (checkpoint_manager *CheckpointManager) StartCheckpointTh() {
	if checkpoint_manager.interval <= 0 {
		common.ShPrintf(common.ERROR, "CheckpointTh: invalid interval %v. thread is not started.\n", checkpoint_manager.interval)
		return
	}
	if !checkpoint_manager.isCheckpointActive.CompareAndSwap(false, true) {
		return
	}
	stopCh := make(chan struct{})
	checkpoint_manager.stopCh = stopCh
	checkpoint_manager.wg.Add(1)
	go func() {
		defer checkpoint_manager.wg.Done()
		ticker := time.NewTicker(checkpoint_manager.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
			}
			if !checkpoint_manager.IsCheckpointActive() {
				return
			}
			common.ShPrintf(common.DEBUG_INFO, "CheckpointTh: start checkpointing.\n")
			if err := checkpoint_manager.BeginCheckpoint(); err != nil {
				common.ShPrintf(common.ERROR, "CheckpointTh: checkpoint failed. err=%v\n", err)
			}
			checkpoint_manager.EndCheckpoint()
			common.ShPrintf(common.DEBUG_INFO, "CheckpointTh: finish checkpointing.\n")
		}
	}()
}

// BeginCheckpoint blocks transactions and writes a checkpoint.
// EndCheckpoint must be called after it even if an error is returned
func (checkpoint_manager *CheckpointManager) BeginCheckpoint() error {
	checkpoint_manager.transaction_manager.BlockAllTransactions()
	return checkpoint_manager.log_file.LogCheckpoint()
}

func (checkpoint_manager *CheckpointManager) EndCheckpoint() {
	// Allow transactions to resume, completing the checkpoint.
	checkpoint_manager.transaction_manager.ResumeTransactions()
}

// StopCheckpointTh returns after checkpoint in progress finishes and the thread exits
func (checkpoint_manager *CheckpointManager) StopCheckpointTh() {
	if checkpoint_manager.isCheckpointActive.CompareAndSwap(true, false) {
		close(checkpoint_manager.stopCh)
	}
	checkpoint_manager.wg.Wait()
}

func (checkpoint_manager *CheckpointManager) IsCheckpointActive() bool {
	return checkpoint_manager.isCheckpointActive.Load()
}
