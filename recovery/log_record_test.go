package recovery

import (
	"io"
	"testing"

	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	testingpkg "github.com/ryogrid/SamehadaTxStore/testing/testing_assert"
	"github.com/ryogrid/SamehadaTxStore/types"
)

func newImage(pageNo int32, fill byte) *page.Page {
	data := make([]byte, 32)
	for i := range data {
		data[i] = fill
	}
	return page.NewPage(page.NewPageID(7, pageNo), page.PageKindHeap, data)
}

func TestLogRecordEncodeDecode(t *testing.T) {
	log_storage := disk.NewVirtualLogStorageImpl("record_test.log")
	records := []*LogRecord{
		NewLogRecordTxn(BEGIN, 3),
		NewLogRecordUpdate(3, newImage(1, 0x00), newImage(1, 0xAB)),
		NewLogRecordCheckpoint([]CheckpointEntry{{3, LogHeaderSize}, {5, 100}}),
		NewLogRecordTxn(COMMIT, 3),
		NewLogRecordTxn(ABORT, 5),
	}
	content := serializeLogHeader(types.NoCheckpoint)
	offsets := make([]types.LogOffset, 0)
	for _, log_record := range records {
		offsets = append(offsets, types.LogOffset(len(content)))
		content = append(content, log_record.Serialize(types.LogOffset(len(content)))...)
	}
	testingpkg.Ok(t, log_storage.Replace(content))

	cp, err := readLogHeader(log_storage)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, types.NoCheckpoint, cp)

	reader := mustLogReader(t, log_storage, LogHeaderSize)
	for i, expected := range records {
		log_record, err := reader.next()
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, expected.Log_record_type, log_record.Log_record_type)
		testingpkg.Equals(t, expected.Txn_id, log_record.Txn_id)
		testingpkg.Equals(t, offsets[i], log_record.Start_offset)
	}
	_, err = reader.next()
	testingpkg.Equals(t, io.EOF, err)

	// payloads
	update, err := mustLogReader(t, log_storage, offsets[1]).next()
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, page.NewPageID(7, 1), update.After_image.GetPageId())
	testingpkg.Equals(t, page.PageKindHeap, update.After_image.GetKind())
	testingpkg.Equals(t, newImage(1, 0xAB).Data(), update.After_image.Data())
	testingpkg.Equals(t, newImage(1, 0x00).Data(), update.Before_image.Data())

	checkpoint, err := mustLogReader(t, log_storage, offsets[2]).next()
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, types.InvalidTxnID, checkpoint.Txn_id)
	testingpkg.Equals(t, []CheckpointEntry{{3, LogHeaderSize}, {5, 100}}, checkpoint.Active_txns)
}

func TestCorruptedLogIsDetected(t *testing.T) {
	log_storage := disk.NewVirtualLogStorageImpl("corrupt_test.log")
	update := NewLogRecordUpdate(1, newImage(0, 1), newImage(0, 2)).Serialize(LogHeaderSize)

	// truncated in the middle of after image
	content := append(serializeLogHeader(types.NoCheckpoint), update[:len(update)-20]...)
	testingpkg.Ok(t, log_storage.Replace(content))
	_, err := mustLogReader(t, log_storage, LogHeaderSize).next()
	testingpkg.ErrIs(t, err, ErrLogCorrupted)

	// trailer does not match start of the record
	content = append(serializeLogHeader(types.NoCheckpoint), NewLogRecordTxn(BEGIN, 1).Serialize(99)...)
	testingpkg.Ok(t, log_storage.Replace(content))
	_, err = mustLogReader(t, log_storage, LogHeaderSize).next()
	testingpkg.ErrIs(t, err, ErrLogCorrupted)

	// unknown type
	content = append(serializeLogHeader(types.NoCheckpoint), (&LogRecord{Log_record_type: 42, Txn_id: 1}).Serialize(LogHeaderSize)...)
	testingpkg.Ok(t, log_storage.Replace(content))
	_, err = mustLogReader(t, log_storage, LogHeaderSize).next()
	testingpkg.ErrIs(t, err, ErrLogCorrupted)
	testingpkg.Equals(t, "INVALID(42)", LogRecordType(42).String())
}

func mustLogReader(t *testing.T, log_storage disk.LogStorage, offset types.LogOffset) *logReader {
	t.Helper()
	reader, err := newLogReader(log_storage, offset)
	testingpkg.Ok(t, err)
	return reader
}
