package recovery

import (
	"fmt"
	"io"

	"github.com/ryogrid/SamehadaTxStore/storage/disk"
)

// PrintLog writes records of the log in human readable form
func (log_file *LogFile) PrintLog(w io.Writer) error {
	held := log_file.latch.LockLog()
	defer held.Unlock()
	return PrintLogStorage(w, log_file.log_storage)
}

// PrintLogStorage dumps log_storage which may not be opened by a LogFile
func PrintLogStorage(w io.Writer, log_storage disk.LogStorage) error {
	size, err := log_storage.Size()
	if err != nil {
		return err
	}
	if size < LogHeaderSize {
		fmt.Fprintln(w, "(empty log)")
		return nil
	}
	cpLoc, err := readLogHeader(log_storage)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "last checkpoint: %d\n", cpLoc)

	reader, err := newLogReader(log_storage, LogHeaderSize)
	if err != nil {
		return err
	}
	for {
		log_record, err := reader.next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			fmt.Fprintf(w, "broken record: %v\n", err)
			return err
		}

		switch log_record.Log_record_type {
		case UPDATE:
			fmt.Fprintf(w, "%08d %s txn=%d page=%v kind=%s size=%d\n", log_record.Start_offset, log_record.Log_record_type,
				log_record.Txn_id, log_record.After_image.GetPageId(), log_record.After_image.GetKind(), log_record.After_image.Size())
		case CHECKPOINT:
			fmt.Fprintf(w, "%08d %s active=%d\n", log_record.Start_offset, log_record.Log_record_type, len(log_record.Active_txns))
			for _, entry := range log_record.Active_txns {
				fmt.Fprintf(w, "         txn=%d first=%d\n", entry.Txn_id, entry.First_offset)
			}
		default:
			fmt.Fprintf(w, "%08d %s txn=%d\n", log_record.Start_offset, log_record.Log_record_type, log_record.Txn_id)
		}
	}
}
