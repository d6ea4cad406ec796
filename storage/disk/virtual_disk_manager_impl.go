package disk

import (
	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
)

// VirtualDiskManagerImpl is the on-memory implementation of DiskManager
type VirtualDiskManagerImpl struct {
	db          *memfile.File
	fileName    string
	pageSize    int
	numPages    int32
	numWrites   uint64
	size        int64
	dbFileMutex *deadlock.Mutex
}

func NewVirtualDiskManagerImpl(dbFilename string, pageSize int) DiskManager {
	file := memfile.New(make([]byte, 0))
	return &VirtualDiskManagerImpl{file, dbFilename, pageSize, 0, 0, 0, new(deadlock.Mutex)}
}

// ShutDown closes of the database file
func (d *VirtualDiskManagerImpl) ShutDown() {
	// do nothing
}

// Write a page to the database file
func (d *VirtualDiskManagerImpl) WritePage(pageNo int32, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.writePage(pageNo, pageData)
}

// caller must hold dbFileMutex
func (d *VirtualDiskManagerImpl) writePage(pageNo int32, pageData []byte) error {
	if len(pageData) != d.pageSize {
		return errors.Errorf("page data length %d not equals page size %d", len(pageData), d.pageSize)
	}

	offset := int64(pageNo) * int64(d.pageSize)
	if _, err := d.db.WriteAt(pageData, offset); err != nil {
		return errors.Wrapf(err, "write of page %d of %s failed", pageNo, d.fileName)
	}

	if offset+int64(len(pageData)) > d.size {
		d.size = offset + int64(len(pageData))
		d.numPages = int32(d.size / int64(d.pageSize))
	}
	d.numWrites++

	return nil
}

// Read a page from the database file
func (d *VirtualDiskManagerImpl) ReadPage(pageNo int32, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageNo) * int64(d.pageSize)
	if pageNo < 0 || offset+int64(d.pageSize) > d.size {
		return errors.Errorf("I/O error past end of file: page %d of %s", pageNo, d.fileName)
	}

	if _, err := d.db.ReadAt(pageData[:d.pageSize], offset); err != nil {
		return errors.Wrapf(err, "read of page %d of %s failed", pageNo, d.fileName)
	}
	return nil
}

func (d *VirtualDiskManagerImpl) AllocatePage() (int32, error) {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	pageNo := d.numPages
	if err := d.writePage(pageNo, make([]byte, d.pageSize)); err != nil {
		return -1, err
	}
	return pageNo, nil
}

func (d *VirtualDiskManagerImpl) NumPages() int32 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.numPages
}

func (d *VirtualDiskManagerImpl) GetPageSize() int {
	return d.pageSize
}

// GetNumWrites returns the number of disk writes
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.numWrites
}

func (d *VirtualDiskManagerImpl) GetFileName() string {
	return d.fileName
}

// Size returns the size of the file in disk
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.size
}

// ATTENTION: this method can be call after calling of Shutdown method
func (d *VirtualDiskManagerImpl) RemoveDBFile() {
	// do nothing
}
