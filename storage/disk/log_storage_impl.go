package disk

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
)

// LogStorageImpl keeps the log in a os file
type LogStorageImpl struct {
	log          *os.File
	fileName_log string
	logFileMutex *deadlock.Mutex
}

func NewLogStorageImpl(logFilename string) (LogStorage, error) {
	file, err := os.OpenFile(logFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open log file %s", logFilename)
	}
	return &LogStorageImpl{file, logFilename, new(deadlock.Mutex)}, nil
}

func (l *LogStorageImpl) ReadAt(p []byte, off int64) (int, error) {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	return l.log.ReadAt(p, off)
}

func (l *LogStorageImpl) WriteAt(p []byte, off int64) (int, error) {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	n, err := l.log.WriteAt(p, off)
	if err != nil {
		return n, errors.Wrapf(err, "I/O error while writing log %s", l.fileName_log)
	}
	return n, nil
}

func (l *LogStorageImpl) Size() (int64, error) {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	fileInfo, err := l.log.Stat()
	if err != nil {
		return -1, errors.Wrapf(err, "stat of log %s failed", l.fileName_log)
	}
	return fileInfo.Size(), nil
}

func (l *LogStorageImpl) Sync() error {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	return errors.Wrapf(l.log.Sync(), "sync of log %s failed", l.fileName_log)
}

// Replace writes data to a temporary file and renames it over the log
func (l *LogStorageImpl) Replace(data []byte) error {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()

	tmpName := l.fileName_log + ".tmp"
	tmp, err := os.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Wrapf(err, "can't open temporary log file %s", tmpName)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "I/O error while writing %s", tmpName)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync of %s failed", tmpName)
	}
	l.log.Close()
	if err = os.Rename(tmpName, l.fileName_log); err != nil {
		tmp.Close()
		// keep using old file
		l.log, _ = os.OpenFile(l.fileName_log, os.O_RDWR|os.O_CREATE, 0666)
		return errors.Wrapf(err, "rename of %s failed", tmpName)
	}
	l.log = tmp
	return nil
}

func (l *LogStorageImpl) GetFileName() string {
	return l.fileName_log
}

func (l *LogStorageImpl) ShutDown() {
	l.logFileMutex.Lock()
	defer l.logFileMutex.Unlock()
	l.log.Close()
}

// ATTENTION: this method can be call after calling of Shutdown method
func (l *LogStorageImpl) RemoveLogFile() {
	os.Remove(l.fileName_log)
}
