// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package disk

import (
	"io"
	"os"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
)

// DiskManagerImpl is the disk implementation of DiskManager
type DiskManagerImpl struct {
	db          *os.File
	fileName    string
	pageSize    int
	numPages    int32
	numWrites   uint64
	size        int64
	dbFileMutex *deadlock.Mutex
}

// NewDiskManagerImpl opens (or creates) dbFilename
func NewDiskManagerImpl(dbFilename string, pageSize int) (DiskManager, error) {
	file, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open db file %s", dbFilename)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "file info error %s", dbFilename)
	}

	fileSize := fileInfo.Size()
	nPages := int32(fileSize / int64(pageSize))

	return &DiskManagerImpl{file, dbFilename, pageSize, nPages, 0, fileSize, new(deadlock.Mutex)}, nil
}

// ShutDown closes of the database file
func (d *DiskManagerImpl) ShutDown() {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	d.db.Close()
}

// Write a page to the database file
func (d *DiskManagerImpl) WritePage(pageNo int32, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.writePage(pageNo, pageData)
}

// caller must hold dbFileMutex
func (d *DiskManagerImpl) writePage(pageNo int32, pageData []byte) error {
	if len(pageData) != d.pageSize {
		return errors.Errorf("page data length %d not equals page size %d", len(pageData), d.pageSize)
	}

	offset := int64(pageNo) * int64(d.pageSize)
	bytesWritten, err := d.db.WriteAt(pageData, offset)
	if err != nil {
		return errors.Wrapf(err, "I/O error while writing page %d of %s", pageNo, d.fileName)
	}

	if offset+int64(bytesWritten) > d.size {
		d.size = offset + int64(bytesWritten)
		d.numPages = int32(d.size / int64(d.pageSize))
	}
	d.numWrites++

	if err = d.db.Sync(); err != nil {
		return errors.Wrapf(err, "sync of %s failed", d.fileName)
	}
	return nil
}

// Read a page from the database file
func (d *DiskManagerImpl) ReadPage(pageNo int32, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageNo) * int64(d.pageSize)
	if pageNo < 0 || offset+int64(d.pageSize) > d.size {
		return errors.Errorf("I/O error past end of file: page %d of %s", pageNo, d.fileName)
	}

	buf := directio.AlignedBlock(d.pageSize)
	_, err := d.db.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "I/O error while reading page %d of %s", pageNo, d.fileName)
	}
	copy(pageData, buf)
	return nil
}

func (d *DiskManagerImpl) AllocatePage() (int32, error) {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	pageNo := d.numPages
	if err := d.writePage(pageNo, make([]byte, d.pageSize)); err != nil {
		return -1, err
	}
	return pageNo, nil
}

func (d *DiskManagerImpl) NumPages() int32 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.numPages
}

func (d *DiskManagerImpl) GetPageSize() int {
	return d.pageSize
}

// GetNumWrites returns the number of disk writes
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.numWrites
}

func (d *DiskManagerImpl) GetFileName() string {
	return d.fileName
}

// Size returns the size of the file in disk
func (d *DiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.size
}

// ATTENTION: this method can be call after calling of Shutdown method
func (d *DiskManagerImpl) RemoveDBFile() {
	os.Remove(d.fileName)
}
