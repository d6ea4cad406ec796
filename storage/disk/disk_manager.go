package disk

// DiskManager is responsible for interacting with disk.
// one instance backs one table file. page number * page size is the offset
type DiskManager interface {
	ReadPage(pageNo int32, pageData []byte) error
	WritePage(pageNo int32, pageData []byte) error
	// AllocatePage appends a zero cleared page and returns its number
	AllocatePage() (int32, error)
	NumPages() int32
	GetPageSize() int
	GetNumWrites() uint64
	GetFileName() string
	Size() int64
	ShutDown()
	RemoveDBFile()
}

// LogStorage is the byte level backend of the recovery log
type LogStorage interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	// Replace swaps whole content with data atomically
	Replace(data []byte) error
	Size() (int64, error)
	Sync() error
	GetFileName() string
	ShutDown()
	RemoveLogFile()
}
