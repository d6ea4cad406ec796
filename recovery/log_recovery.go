package recovery

import (
	"io"

	mapset "github.com/deckarep/golang-set/v2"
	pair "github.com/notEpsilon/go-pair"
	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/types"
)

// updateImages is before and after image of one update record
type updateImages = pair.Pair[*page.Page, *page.Page]

/**
 * logRecovery keeps the result of analysis phase.
 * updates are kept in log order over all transactions, so redo of winners
 * and undo of losers are done in the order the pages were written.
 */
type logRecovery struct {
	winners   mapset.Set[types.TxnID]
	losers    mapset.Set[types.TxnID]
	updates   []types.TxnID
	images    []updateImages
	maxTxnId  types.TxnID
	startPos  types.LogOffset
	numRecord int
}

func newLogRecovery() *logRecovery {
	return &logRecovery{
		winners:  mapset.NewThreadUnsafeSet[types.TxnID](),
		losers:   mapset.NewThreadUnsafeSet[types.TxnID](),
		updates:  make([]types.TxnID, 0),
		images:   make([]updateImages, 0),
		maxTxnId: types.InvalidTxnID,
		startPos: LogHeaderSize,
	}
}

func (log_recovery *logRecovery) seeTxn(txn types.TxnID) {
	if txn > log_recovery.maxTxnId {
		log_recovery.maxTxnId = txn
	}
}

/**
 * Recover is called once at startup before any transaction runs.
 * committed transactions are redone and not completed ones are undone
 * directly on page stores. then the log is reset to an empty one,
 * so calling Recover again does nothing.
 * the greatest txn id found in the log is returned (InvalidTxnID when none).
 */
func (log_file *LogFile) Recover() (types.TxnID, error) {
	poolHeld := log_file.latch.LockPool()
	defer poolHeld.Unlock()
	held := poolHeld.LockLog()
	defer held.Unlock()

	log_file.recoveryUndecided = false
	log_recovery := newLogRecovery()

	size, err := log_file.log_storage.Size()
	if err != nil {
		return types.InvalidTxnID, err
	}
	if size >= LogHeaderSize {
		if err := log_file.analyze(log_recovery); err != nil {
			return types.InvalidTxnID, err
		}
		if err := log_file.redoAndUndo(log_recovery); err != nil {
			return types.InvalidTxnID, err
		}
	}

	if err := log_file.resetLog(); err != nil {
		return types.InvalidTxnID, err
	}
	log_file.tidToFirstLogRecord = make(map[types.TxnID]types.LogOffset)
	common.ShPrintf(common.INFO, "LogFile::Recover: %d records from %d. winners=%d losers=%d\n",
		log_recovery.numRecord, log_recovery.startPos, log_recovery.winners.Cardinality(), log_recovery.losers.Cardinality())
	return log_recovery.maxTxnId, nil
}

func (log_file *LogFile) analyze(log_recovery *logRecovery) error {
	cpLoc, err := readLogHeader(log_file.log_storage)
	if err != nil {
		return err
	}

	if cpLoc != types.NoCheckpoint {
		cpRecord, err := log_file.readRecordAt(cpLoc)
		if err != nil {
			return err
		}
		if cpRecord.Log_record_type != CHECKPOINT {
			return pkgerrors.Wrapf(ErrLogCorrupted, "header points %d which is not checkpoint", cpLoc)
		}
		log_recovery.startPos = cpLoc
		// transactions active at checkpoint are losers until their commit is found
		for _, entry := range cpRecord.Active_txns {
			log_recovery.losers.Add(entry.Txn_id)
			log_recovery.seeTxn(entry.Txn_id)
			if entry.First_offset < log_recovery.startPos {
				log_recovery.startPos = entry.First_offset
			}
		}
	}

	reader, err := newLogReader(log_file.log_storage, log_recovery.startPos)
	if err != nil {
		return err
	}
	for {
		log_record, err := reader.next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		log_recovery.numRecord++
		txn := log_record.Txn_id

		switch log_record.Log_record_type {
		case BEGIN:
			log_recovery.seeTxn(txn)
			log_recovery.losers.Add(txn)
		case COMMIT:
			log_recovery.winners.Add(txn)
			log_recovery.losers.Remove(txn)
		case ABORT:
			// rollback was done before abort record was written
			log_recovery.losers.Remove(txn)
		case UPDATE:
			log_recovery.seeTxn(txn)
			log_recovery.updates = append(log_recovery.updates, txn)
			log_recovery.images = append(log_recovery.images, updateImages{First: log_record.Before_image, Second: log_record.After_image})
		case CHECKPOINT:
		}
	}
	return nil
}

func (log_file *LogFile) redoAndUndo(log_recovery *logRecovery) error {
	redone := 0
	for i, txn := range log_recovery.updates {
		if log_recovery.winners.Contains(txn) {
			if err := log_file.writePageToStore(log_recovery.images[i].Second); err != nil {
				return err
			}
			redone++
		}
	}

	undone := 0
	for i := len(log_recovery.updates) - 1; i >= 0; i-- {
		if log_recovery.losers.Contains(log_recovery.updates[i]) {
			if err := log_file.writePageToStore(log_recovery.images[i].First); err != nil {
				return err
			}
			undone++
		}
	}

	common.ShPrintf(common.DEBUG_INFO, "LogFile::redoAndUndo: redo %d images, undo %d images\n", redone, undone)
	return nil
}
