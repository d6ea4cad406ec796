package disk

import (
	"github.com/dsnet/golib/memfile"
	"github.com/sasha-s/go-deadlock"
)

// VirtualLogStorageImpl keeps the log on memory
type VirtualLogStorageImpl struct {
	log          *memfile.File
	fileName_log string
	logFileMutex *deadlock.Mutex
}

func NewVirtualLogStorageImpl(logFilename string) LogStorage {
	return &VirtualLogStorageImpl{memfile.New(make([]byte, 0)), logFilename, new(deadlock.Mutex)}
}

func (l *VirtualLogStorageImpl) ReadAt(p []byte, off int64) (int, error) {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	return l.log.ReadAt(p, off)
}

func (l *VirtualLogStorageImpl) WriteAt(p []byte, off int64) (int, error) {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	return l.log.WriteAt(p, off)
}

func (l *VirtualLogStorageImpl) Replace(data []byte) error {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	l.log = memfile.New(buf)
	return nil
}

func (l *VirtualLogStorageImpl) Size() (int64, error) {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	return int64(len(l.log.Bytes())), nil
}

func (l *VirtualLogStorageImpl) Sync() error {
	return nil
}

func (l *VirtualLogStorageImpl) GetFileName() string {
	return l.fileName_log
}

func (l *VirtualLogStorageImpl) ShutDown() {
	// do nothing
}

func (l *VirtualLogStorageImpl) RemoveLogFile() {
	// do nothing
}
