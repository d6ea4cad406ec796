package recovery

import (
	"io"
	"slices"

	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/catalog/catalog_interface"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/types"
)

const ErrTxnAlreadyBegun = errors.Error("transaction already began")
const ErrTxnNotBegun = errors.Error("transaction has no log record")

// PageCache is the part of the buffer pool the log drives.
// FlushAllPagesWithLatch is called while log latch (and pool zone) is held
type PageCache interface {
	FlushAllPagesWithLatch(held *common.LogHeld) error
	DiscardPage(pid page.PageID)
}

/**
 * LogFile is the write-ahead log.
 * every append is done under log latch. operations which also touch
 * the buffer pool (abort, rollback, checkpoint, recover) take pool zone first.
 */
type LogFile struct {
	log_storage disk.LogStorage
	latch       *common.OrderedLatch
	catalog     catalog_interface.CatalogInterface
	page_cache  PageCache

	currentOffset types.LogOffset
	// log of previous run is kept until Recover or first append decides
	recoveryUndecided bool
	totalRecords      int
	// offset of first record of each active transaction
	tidToFirstLogRecord map[types.TxnID]types.LogOffset
}

func NewLogFile(log_storage disk.LogStorage, latch *common.OrderedLatch, catalog catalog_interface.CatalogInterface) *LogFile {
	return &LogFile{
		log_storage:         log_storage,
		latch:               latch,
		catalog:             catalog,
		currentOffset:       LogHeaderSize,
		recoveryUndecided:   true,
		tidToFirstLogRecord: make(map[types.TxnID]types.LogOffset),
	}
}

// SetPageCache must be called before checkpoint, rollback or recovery
func (log_file *LogFile) SetPageCache(page_cache PageCache) {
	log_file.page_cache = page_cache
}

func (log_file *LogFile) GetLogStorage() disk.LogStorage {
	return log_file.log_storage
}

func (log_file *LogFile) GetLatch() *common.OrderedLatch {
	return log_file.latch
}

// TotalRecords returns number of records appended since open
func (log_file *LogFile) TotalRecords() int {
	held := log_file.latch.LockLog()
	defer held.Unlock()
	return log_file.totalRecords
}

// ActiveTxns returns transactions which have began and not yet completed
func (log_file *LogFile) ActiveTxns() []types.TxnID {
	held := log_file.latch.LockLog()
	defer held.Unlock()
	return log_file.activeTxnsLocked()
}

func (log_file *LogFile) activeTxnsLocked() []types.TxnID {
	ret := make([]types.TxnID, 0, len(log_file.tidToFirstLogRecord))
	for txn := range log_file.tidToFirstLogRecord {
		ret = append(ret, txn)
	}
	slices.Sort(ret)
	return ret
}

func (log_file *LogFile) readRecordAt(offset types.LogOffset) (*LogRecord, error) {
	reader, err := newLogReader(log_file.log_storage, offset)
	if err != nil {
		return nil, err
	}
	return reader.next()
}

// resetLog makes log an empty one which has no checkpoint
func (log_file *LogFile) resetLog() error {
	if err := log_file.log_storage.Replace(serializeLogHeader(types.NoCheckpoint)); err != nil {
		return err
	}
	log_file.currentOffset = LogHeaderSize
	return nil
}

// preAppend is called before every append. first append of this run
// discards log left by previous run which was not recovered
func (log_file *LogFile) preAppend(held *common.LogHeld) error {
	if log_file.recoveryUndecided {
		log_file.recoveryUndecided = false
		common.ShPrintf(common.DEBUG_INFO, "LogFile::preAppend: discard log of previous run\n")
		return log_file.resetLog()
	}
	return nil
}

func (log_file *LogFile) appendRecord(held *common.LogHeld, log_record *LogRecord) (types.LogOffset, error) {
	if err := log_file.preAppend(held); err != nil {
		return -1, err
	}
	start := log_file.currentOffset
	buf := log_record.Serialize(start)
	if _, err := log_file.log_storage.WriteAt(buf, int64(start)); err != nil {
		return -1, err
	}
	log_file.currentOffset += types.LogOffset(len(buf))
	log_file.totalRecords++
	return start, nil
}

func (log_file *LogFile) LogBegin(txn types.TxnID) error {
	held := log_file.latch.LockLog()
	defer held.Unlock()

	if _, ok := log_file.tidToFirstLogRecord[txn]; ok {
		return pkgerrors.Wrapf(ErrTxnAlreadyBegun, "txn %d", txn)
	}
	start, err := log_file.appendRecord(held, NewLogRecordTxn(BEGIN, txn))
	if err != nil {
		return err
	}
	log_file.tidToFirstLogRecord[txn] = start
	common.ShPrintf(common.DEBUG_INFO_DETAIL, "LogFile::LogBegin: txn=%d offset=%d\n", txn, start)
	return nil
}

// LogCommit appends commit record and forces the log.
// txn is committed only when nil is returned
func (log_file *LogFile) LogCommit(txn types.TxnID) error {
	held := log_file.latch.LockLog()
	defer held.Unlock()

	if _, err := log_file.appendRecord(held, NewLogRecordTxn(COMMIT, txn)); err != nil {
		return err
	}
	if err := log_file.ForceWithLatch(held); err != nil {
		return err
	}
	delete(log_file.tidToFirstLogRecord, txn)
	common.ShPrintf(common.DEBUG_INFO_DETAIL, "LogFile::LogCommit: txn=%d\n", txn)
	return nil
}

// LogAbort rolls back txn and appends abort record
func (log_file *LogFile) LogAbort(txn types.TxnID) error {
	poolHeld := log_file.latch.LockPool()
	defer poolHeld.Unlock()
	held := poolHeld.LockLog()
	defer held.Unlock()

	if err := log_file.rollback(held, txn); err != nil {
		return err
	}
	if _, err := log_file.appendRecord(held, NewLogRecordTxn(ABORT, txn)); err != nil {
		return err
	}
	if err := log_file.ForceWithLatch(held); err != nil {
		return err
	}
	delete(log_file.tidToFirstLogRecord, txn)
	common.ShPrintf(common.DEBUG_INFO, "LogFile::LogAbort: txn=%d\n", txn)
	return nil
}

// LogWrite appends update record of txn. before and after are images of same page
func (log_file *LogFile) LogWrite(txn types.TxnID, before *page.Page, after *page.Page) error {
	held := log_file.latch.LockLog()
	defer held.Unlock()
	return log_file.LogWriteWithLatch(held, txn, before, after)
}

func (log_file *LogFile) LogWriteWithLatch(held *common.LogHeld, txn types.TxnID, before *page.Page, after *page.Page) error {
	common.SH_Assert(before.GetPageId() == after.GetPageId(), "before and after image must be of same page")
	_, err := log_file.appendRecord(held, NewLogRecordUpdate(txn, before, after))
	return err
}

// Force makes appended records durable
func (log_file *LogFile) Force() error {
	held := log_file.latch.LockLog()
	defer held.Unlock()
	return log_file.ForceWithLatch(held)
}

func (log_file *LogFile) ForceWithLatch(held *common.LogHeld) error {
	return log_file.log_storage.Sync()
}

// Rollback writes before images of txn back to page stores
func (log_file *LogFile) Rollback(txn types.TxnID) error {
	poolHeld := log_file.latch.LockPool()
	defer poolHeld.Unlock()
	held := poolHeld.LockLog()
	defer held.Unlock()
	return log_file.rollback(held, txn)
}

func (log_file *LogFile) rollback(held *common.LogHeld, txn types.TxnID) error {
	common.SH_Assert(held.HoldsPool(), "rollback needs pool zone")
	if err := log_file.preAppend(held); err != nil {
		return err
	}

	firstOffset, ok := log_file.tidToFirstLogRecord[txn]
	if !ok {
		return pkgerrors.Wrapf(ErrTxnNotBegun, "txn %d", txn)
	}

	befores := make([]*page.Page, 0)
	reader, err := newLogReader(log_file.log_storage, firstOffset)
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
		if log_record.Log_record_type == UPDATE && log_record.Txn_id == txn {
			befores = append(befores, log_record.Before_image)
		}
	}

	// reverse order, so oldest image of each page wins
	for i := len(befores) - 1; i >= 0; i-- {
		if err := log_file.writePageToStore(befores[i]); err != nil {
			return err
		}
	}
	common.ShPrintf(common.DEBUG_INFO, "LogFile::rollback: txn=%d %d images restored\n", txn, len(befores))
	return nil
}

func (log_file *LogFile) writePageToStore(pg *page.Page) error {
	store, err := log_file.catalog.GetPageStore(pg.GetPageId().TableId)
	if err != nil {
		return err
	}
	if err = store.WritePage(pg); err != nil {
		return err
	}
	if log_file.page_cache != nil {
		log_file.page_cache.DiscardPage(pg.GetPageId())
	}
	return nil
}

/**
 * LogCheckpoint forces the log, flushes all dirty pages and writes
 * a checkpoint record of active transactions. then the log is truncated.
 */
func (log_file *LogFile) LogCheckpoint() error {
	poolHeld := log_file.latch.LockPool()
	defer poolHeld.Unlock()
	held := poolHeld.LockLog()
	defer held.Unlock()

	if err := log_file.preAppend(held); err != nil {
		return err
	}

	if err := log_file.ForceWithLatch(held); err != nil {
		return err
	}
	if log_file.page_cache != nil {
		if err := log_file.page_cache.FlushAllPagesWithLatch(held); err != nil {
			return err
		}
	}

	active := log_file.activeTxnsLocked()
	entries := make([]CheckpointEntry, 0, len(active))
	for _, txn := range active {
		entries = append(entries, CheckpointEntry{txn, log_file.tidToFirstLogRecord[txn]})
	}
	cpOffset, err := log_file.appendRecord(held, NewLogRecordCheckpoint(entries))
	if err != nil {
		return err
	}
	if _, err = log_file.log_storage.WriteAt(serializeLogHeader(cpOffset), 0); err != nil {
		return err
	}
	if err = log_file.ForceWithLatch(held); err != nil {
		return err
	}
	common.ShPrintf(common.INFO, "LogFile::LogCheckpoint: checkpoint at %d. active txns: %d\n", cpOffset, len(entries))

	return log_file.logTruncate(held)
}

// LogTruncate drops records which are not needed by any recovery
func (log_file *LogFile) LogTruncate() error {
	held := log_file.latch.LockLog()
	defer held.Unlock()
	return log_file.logTruncate(held)
}

/**
 * records before min(checkpoint, first record of txns active at checkpoint)
 * are dropped. offsets in kept records, checkpoint entries, header and
 * first record bookkeeping are renumbered.
 */
func (log_file *LogFile) logTruncate(held *common.LogHeld) error {
	if err := log_file.preAppend(held); err != nil {
		return err
	}

	cpLoc, err := readLogHeader(log_file.log_storage)
	if err != nil {
		return err
	}
	if cpLoc == types.NoCheckpoint {
		return nil
	}

	cpRecord, err := log_file.readRecordAt(cpLoc)
	if err != nil {
		return err
	}
	if cpRecord.Log_record_type != CHECKPOINT {
		return pkgerrors.Wrapf(ErrLogCorrupted, "header points %d which is not checkpoint", cpLoc)
	}
	minLogRecord := cpLoc
	for _, entry := range cpRecord.Active_txns {
		if entry.First_offset < minLogRecord {
			minLogRecord = entry.First_offset
		}
	}
	if minLogRecord <= LogHeaderSize {
		return nil
	}

	renumber := func(offset types.LogOffset) types.LogOffset {
		return offset - minLogRecord + LogHeaderSize
	}

	content := serializeLogHeader(renumber(cpLoc))
	reader, err := newLogReader(log_file.log_storage, minLogRecord)
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
		if log_record.Log_record_type == CHECKPOINT {
			for i := range log_record.Active_txns {
				log_record.Active_txns[i].First_offset = renumber(log_record.Active_txns[i].First_offset)
			}
		}
		content = append(content, log_record.Serialize(renumber(log_record.Start_offset))...)
	}

	if err = log_file.log_storage.Replace(content); err != nil {
		return err
	}
	for txn, first := range log_file.tidToFirstLogRecord {
		if first < minLogRecord {
			common.ShPrintf(common.WARN, "LogFile::logTruncate: first record of txn %d is dropped\n", txn)
			delete(log_file.tidToFirstLogRecord, txn)
			continue
		}
		log_file.tidToFirstLogRecord[txn] = renumber(first)
	}
	log_file.currentOffset = types.LogOffset(len(content))
	common.ShPrintf(common.INFO, "LogFile::logTruncate: %d bytes dropped\n", minLogRecord-LogHeaderSize)
	return nil
}

// Shutdown takes last checkpoint and closes the log
func (log_file *LogFile) Shutdown() error {
	err := log_file.LogCheckpoint()
	log_file.log_storage.ShutDown()
	return err
}
