package recovery

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/types"
)

const ErrLogCorrupted = errors.Error("log file is corrupted")

/** The type of the log record. */
type LogRecordType int32

const (
	ABORT      LogRecordType = 1
	COMMIT     LogRecordType = 2
	UPDATE     LogRecordType = 3
	BEGIN      LogRecordType = 4
	CHECKPOINT LogRecordType = 5
)

func (log_record_type LogRecordType) String() string {
	switch log_record_type {
	case ABORT:
		return "ABORT"
	case COMMIT:
		return "COMMIT"
	case UPDATE:
		return "UPDATE"
	case BEGIN:
		return "BEGIN"
	case CHECKPOINT:
		return "CHECKPOINT"
	}
	return fmt.Sprintf("INVALID(%d)", int32(log_record_type))
}

const (
	// log header is offset of last checkpoint record
	LogHeaderSize = 8
	Int32Size     = 4
	Int64Size     = 8
)

/**
 * Log file format:
 *   | last checkpoint offset (int64, -1 means none) | record | record | ...
 *
 * For EACH log record:
 *   | type (int32) | txn id (int64) | payload | start offset of this record (int64) |
 *
 * payload of UPDATE:
 *   | before image | after image |
 * page image:
 *   | page kind (int32) | page id kind (int32) | n (int32) | id ints (int32 * n) | data len (int32) | data |
 * payload of CHECKPOINT (txn id is -1):
 *   | count (int32) | txn id (int64), first record offset (int64) | ... |
 * BEGIN, COMMIT and ABORT have no payload.
 */
type LogRecord struct {
	Log_record_type LogRecordType
	Txn_id          types.TxnID

	// UPDATE
	Before_image *page.Page
	After_image  *page.Page

	// CHECKPOINT
	Active_txns []CheckpointEntry

	// offset in log file where this record starts
	Start_offset types.LogOffset
}

// CheckpointEntry is an active transaction at checkpoint and offset of its first record
type CheckpointEntry struct {
	Txn_id       types.TxnID
	First_offset types.LogOffset
}

func NewLogRecordTxn(log_record_type LogRecordType, txn_id types.TxnID) *LogRecord {
	return &LogRecord{Log_record_type: log_record_type, Txn_id: txn_id}
}

func NewLogRecordUpdate(txn_id types.TxnID, before *page.Page, after *page.Page) *LogRecord {
	return &LogRecord{Log_record_type: UPDATE, Txn_id: txn_id, Before_image: before, After_image: after}
}

func NewLogRecordCheckpoint(active_txns []CheckpointEntry) *LogRecord {
	return &LogRecord{Log_record_type: CHECKPOINT, Txn_id: types.InvalidTxnID, Active_txns: active_txns}
}

// Serialize encodes the record which is written at start
func (log_record *LogRecord) Serialize(start types.LogOffset) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int32(log_record.Log_record_type))
	binary.Write(buf, binary.LittleEndian, int64(log_record.Txn_id))

	switch log_record.Log_record_type {
	case UPDATE:
		writePageImage(buf, log_record.Before_image)
		writePageImage(buf, log_record.After_image)
	case CHECKPOINT:
		binary.Write(buf, binary.LittleEndian, int32(len(log_record.Active_txns)))
		for _, entry := range log_record.Active_txns {
			binary.Write(buf, binary.LittleEndian, int64(entry.Txn_id))
			binary.Write(buf, binary.LittleEndian, int64(entry.First_offset))
		}
	}

	binary.Write(buf, binary.LittleEndian, int64(start))
	return buf.Bytes()
}

func writePageImage(buf *bytes.Buffer, pg *page.Page) {
	pid := pg.GetPageId()
	idInts := pid.Serialize()
	data := pg.GetPageData()

	binary.Write(buf, binary.LittleEndian, int32(pg.GetKind()))
	binary.Write(buf, binary.LittleEndian, int32(pid.GetIdKind()))
	binary.Write(buf, binary.LittleEndian, int32(len(idInts)))
	for _, val := range idInts {
		binary.Write(buf, binary.LittleEndian, val)
	}
	binary.Write(buf, binary.LittleEndian, int32(len(data)))
	buf.Write(data)
}

// logReader reads records sequentially from offset until end
type logReader struct {
	log_storage disk.LogStorage
	offset      int64
	end         int64
}

func newLogReader(log_storage disk.LogStorage, offset types.LogOffset) (*logReader, error) {
	end, err := log_storage.Size()
	if err != nil {
		return nil, err
	}
	return &logReader{log_storage, int64(offset), end}, nil
}

func (reader *logReader) readBytes(n int) ([]byte, error) {
	if n < 0 || reader.offset+int64(n) > reader.end {
		return nil, pkgerrors.Wrapf(ErrLogCorrupted, "truncated record at offset %d", reader.offset)
	}
	buf := make([]byte, n)
	if _, err := reader.log_storage.ReadAt(buf, reader.offset); err != nil && err != io.EOF {
		return nil, pkgerrors.Wrapf(err, "log read failed at offset %d", reader.offset)
	}
	reader.offset += int64(n)
	return buf, nil
}

func (reader *logReader) readInt32() (int32, error) {
	buf, err := reader.readBytes(Int32Size)
	if err != nil {
		return 0, err
	}
	var ret int32
	binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ret)
	return ret, nil
}

func (reader *logReader) readInt64() (int64, error) {
	buf, err := reader.readBytes(Int64Size)
	if err != nil {
		return 0, err
	}
	var ret int64
	binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ret)
	return ret, nil
}

func (reader *logReader) readPageImage() (*page.Page, error) {
	kind, err := reader.readInt32()
	if err != nil {
		return nil, err
	}
	idKind, err := reader.readInt32()
	if err != nil {
		return nil, err
	}
	numInts, err := reader.readInt32()
	if err != nil {
		return nil, err
	}
	if numInts < 0 || numInts > 16 {
		return nil, pkgerrors.Wrapf(ErrLogCorrupted, "bad page id length %d at offset %d", numInts, reader.offset)
	}
	idInts := make([]int32, numInts)
	for i := range idInts {
		if idInts[i], err = reader.readInt32(); err != nil {
			return nil, err
		}
	}
	dataLen, err := reader.readInt32()
	if err != nil {
		return nil, err
	}
	data, err := reader.readBytes(int(dataLen))
	if err != nil {
		return nil, err
	}

	pg, err := page.NewPageFromImage(page.PageKind(kind), page.PageIdKind(idKind), idInts, data)
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrLogCorrupted, "bad page image at offset %d: %v", reader.offset, err)
	}
	return pg, nil
}

// next decodes the record at current offset. io.EOF is returned at end of log
func (reader *logReader) next() (*LogRecord, error) {
	if reader.offset >= reader.end {
		return nil, io.EOF
	}
	start := reader.offset

	recordType, err := reader.readInt32()
	if err != nil {
		return nil, err
	}
	txnId, err := reader.readInt64()
	if err != nil {
		return nil, err
	}
	log_record := &LogRecord{Log_record_type: LogRecordType(recordType), Txn_id: types.TxnID(txnId)}

	switch log_record.Log_record_type {
	case BEGIN, COMMIT, ABORT:
	case UPDATE:
		if log_record.Before_image, err = reader.readPageImage(); err != nil {
			return nil, err
		}
		if log_record.After_image, err = reader.readPageImage(); err != nil {
			return nil, err
		}
	case CHECKPOINT:
		count, err := reader.readInt32()
		if err != nil {
			return nil, err
		}
		if count < 0 {
			return nil, pkgerrors.Wrapf(ErrLogCorrupted, "bad checkpoint count %d at offset %d", count, start)
		}
		log_record.Active_txns = make([]CheckpointEntry, 0, count)
		for i := int32(0); i < count; i++ {
			entryTxn, err := reader.readInt64()
			if err != nil {
				return nil, err
			}
			firstOffset, err := reader.readInt64()
			if err != nil {
				return nil, err
			}
			log_record.Active_txns = append(log_record.Active_txns, CheckpointEntry{types.TxnID(entryTxn), types.LogOffset(firstOffset)})
		}
	default:
		return nil, pkgerrors.Wrapf(ErrLogCorrupted, "unknown record type %d at offset %d", recordType, start)
	}

	trailer, err := reader.readInt64()
	if err != nil {
		return nil, err
	}
	if trailer != start {
		return nil, pkgerrors.Wrapf(ErrLogCorrupted, "record at offset %d has trailer %d", start, trailer)
	}
	log_record.Start_offset = types.LogOffset(start)
	return log_record, nil
}

func readLogHeader(log_storage disk.LogStorage) (types.LogOffset, error) {
	reader, err := newLogReader(log_storage, 0)
	if err != nil {
		return types.NoCheckpoint, err
	}
	if reader.end < LogHeaderSize {
		return types.NoCheckpoint, nil
	}
	cp, err := reader.readInt64()
	if err != nil {
		return types.NoCheckpoint, err
	}
	return types.LogOffset(cp), nil
}

func serializeLogHeader(cp types.LogOffset) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int64(cp))
	return buf.Bytes()
}
