package samehada

import (
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/catalog"
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/concurrency"
	"github.com/ryogrid/SamehadaTxStore/recovery"
	"github.com/ryogrid/SamehadaTxStore/storage/access"
	"github.com/ryogrid/SamehadaTxStore/storage/buffer"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
	"github.com/ryogrid/SamehadaTxStore/storage/heap"
	"github.com/ryogrid/SamehadaTxStore/types"
)

type ShutdownPattern int

const (
	ShutdownPatternRemoveFiles ShutdownPattern = iota
	ShutdownPatternCloseFiles
)

type SamehadaInstance struct {
	config              *common.Config
	log_storage         disk.LogStorage
	disk_managers       []disk.DiskManager
	catalog             *catalog.Catalog
	log_file            *recovery.LogFile
	lock_manager        *access.LockManager
	bpm                 *buffer.BufferPoolManager
	transaction_manager *concurrency.TransactionManager
	checkpoint_manger   *concurrency.CheckpointManager
}

func NewSamehadaInstanceForTesting() *SamehadaInstance {
	config := common.NewConfig()
	config.EnableOnMemStorage = true
	config.BufferPoolMaxPages = common.BufferPoolMaxPagesForTest
	ret, err := NewSamehadaInstance(config)
	if err != nil {
		panic(err)
	}
	return ret
}

/**
 * NewSamehadaInstance opens the log and wires all components.
 * tables must be created with CreateTable and then Recover must be called
 * before any transaction begins. log of previous run is kept until then.
 */
func NewSamehadaInstance(config *common.Config) (*SamehadaInstance, error) {
	common.SetLogLevel(config.LogLevel)
	common.SetLatchDeadlockDetection(config.EnableLatchDeadlockDetection)

	var log_storage disk.LogStorage
	logPath := filepath.Join(config.DBDir, config.LogFileName)
	if config.EnableOnMemStorage {
		log_storage = disk.NewVirtualLogStorageImpl(logPath)
	} else {
		if err := os.MkdirAll(config.DBDir, 0755); err != nil {
			return nil, pkgerrors.Wrapf(err, "can not create db dir %s", config.DBDir)
		}
		var err error
		if log_storage, err = disk.NewLogStorageImpl(logPath); err != nil {
			return nil, err
		}
	}

	catalog_ := catalog.NewCatalog()
	log_file := recovery.NewLogFile(log_storage, common.NewOrderedLatch(), catalog_)
	lock_manager := access.NewLockManager()
	bpm := buffer.NewBufferPoolManager(config.BufferPoolMaxPages, catalog_, lock_manager, log_file)
	transaction_manager := concurrency.NewTransactionManager(bpm, log_file)
	checkpoint_manager := concurrency.NewCheckpointManager(transaction_manager, log_file, config.CheckpointInterval())

	return &SamehadaInstance{
		config:              config,
		log_storage:         log_storage,
		disk_managers:       make([]disk.DiskManager, 0),
		catalog:             catalog_,
		log_file:            log_file,
		lock_manager:        lock_manager,
		bpm:                 bpm,
		transaction_manager: transaction_manager,
		checkpoint_manger:   checkpoint_manager,
	}, nil
}

// CreateTable opens (or creates) heap file of name in db dir and registers it
func (si *SamehadaInstance) CreateTable(name string, tupleSize int) (*catalog.TableMetadata, error) {
	if si.catalog.GetTableByName(name) != nil {
		return nil, pkgerrors.Wrap(catalog.ErrTableAlreadyExists, name)
	}

	fileName := filepath.Join(si.config.DBDir, name+".db")
	var disk_manager disk.DiskManager
	if si.config.EnableOnMemStorage {
		disk_manager = disk.NewVirtualDiskManagerImpl(fileName, si.config.PageSize)
	} else {
		var err error
		if disk_manager, err = disk.NewDiskManagerImpl(fileName, si.config.PageSize); err != nil {
			return nil, err
		}
	}

	heap_file := heap.NewHeapFile(disk_manager, tupleSize)
	heap_file.SetPageFetcher(si.bpm)
	table, err := si.catalog.AddTable(name, heap_file, tupleSize)
	if err != nil {
		disk_manager.ShutDown()
		return nil, err
	}
	si.disk_managers = append(si.disk_managers, disk_manager)
	common.ShPrintf(common.INFO, "CreateTable: %s tableId=%d pages=%d\n", name, table.TableId(), heap_file.NumPages())
	return table, nil
}

// Recover replays the log of previous run and makes new txn ids follow the old ones.
// checkpointing thread starts after it
func (si *SamehadaInstance) Recover() error {
	maxTxnId, err := si.log_file.Recover()
	if err != nil {
		return err
	}
	if maxTxnId != types.InvalidTxnID {
		si.transaction_manager.SetNextTxnID(maxTxnId)
	}
	si.checkpoint_manger.StartCheckpointTh()
	return nil
}

func (si *SamehadaInstance) GetConfig() *common.Config {
	return si.config
}

func (si *SamehadaInstance) GetCatalog() *catalog.Catalog {
	return si.catalog
}

func (si *SamehadaInstance) GetLogFile() *recovery.LogFile {
	return si.log_file
}

func (si *SamehadaInstance) GetLogStorage() disk.LogStorage {
	return si.log_storage
}

func (si *SamehadaInstance) GetBufferPoolManager() *buffer.BufferPoolManager {
	return si.bpm
}

func (si *SamehadaInstance) GetLockManager() *access.LockManager {
	return si.lock_manager
}

func (si *SamehadaInstance) GetTransactionManager() *concurrency.TransactionManager {
	return si.transaction_manager
}

func (si *SamehadaInstance) GetCheckpointManager() *concurrency.CheckpointManager {
	return si.checkpoint_manger
}

// Shutdown takes last checkpoint and closes all files
func (si *SamehadaInstance) Shutdown(pattern ShutdownPattern) error {
	si.checkpoint_manger.StopCheckpointTh()
	si.transaction_manager.BlockAllTransactions()
	err := si.log_file.Shutdown()
	si.transaction_manager.ResumeTransactions()

	for _, disk_manager := range si.disk_managers {
		disk_manager.ShutDown()
		if pattern == ShutdownPatternRemoveFiles {
			disk_manager.RemoveDBFile()
		}
	}
	if pattern == ShutdownPatternRemoveFiles {
		si.log_storage.RemoveLogFile()
	}
	return err
}

// CloseFilesForTesting closes files without flushing anything. same as a crash
func (si *SamehadaInstance) CloseFilesForTesting() {
	si.checkpoint_manger.StopCheckpointTh()
	for _, disk_manager := range si.disk_managers {
		disk_manager.ShutDown()
	}
	si.log_storage.ShutDown()
}
