package common

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const (
	// default size of a data page in byte
	DefaultPageSize = 4096
	// default max number of pages the buffer pool keeps resident
	DefaultBufferPoolMaxPages = 50
	// buffer pool size used by unit tests
	BufferPoolMaxPagesForTest = 10
	// checkpoint intarval of the background checkpointing thread
	DefaultCheckpointIntervalMsec = 30 * 1000
	DefaultLogFileName            = "samehada.log"
	DefaultDBDir                  = "./"
)

const EnableDebug bool = false

// when true, table files and the log are kept on memory (memfile)
const EnableOnMemStorage = false

// Config holds the tunables of one storage instance
type Config struct {
	PageSize                     int
	BufferPoolMaxPages           int
	DBDir                        string
	LogFileName                  string
	EnableOnMemStorage           bool
	CheckpointIntervalMsec       int
	LogLevel                     string
	EnableLatchDeadlockDetection bool
}

func NewConfig() *Config {
	return &Config{
		PageSize:                     DefaultPageSize,
		BufferPoolMaxPages:           DefaultBufferPoolMaxPages,
		DBDir:                        DefaultDBDir,
		LogFileName:                  DefaultLogFileName,
		EnableOnMemStorage:           EnableOnMemStorage,
		CheckpointIntervalMsec:       DefaultCheckpointIntervalMsec,
		LogLevel:                     "info",
		EnableLatchDeadlockDetection: false,
	}
}

// LoadConfig reads [storage] section of ini file at path.
// keys which are not written fall back to defaults of NewConfig.
func LoadConfig(path string) (*Config, error) {
	cfgFile, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return parseConfig(cfgFile)
}

func parseConfig(cfgFile *ini.File) (*Config, error) {
	ret := NewConfig()
	section := cfgFile.Section("storage")

	ret.PageSize = section.Key("page_size").MustInt(ret.PageSize)
	ret.BufferPoolMaxPages = section.Key("buffer_pool_max_pages").MustInt(ret.BufferPoolMaxPages)
	ret.DBDir = section.Key("db_dir").MustString(ret.DBDir)
	ret.LogFileName = section.Key("log_file").MustString(ret.LogFileName)
	ret.EnableOnMemStorage = section.Key("on_mem_storage").MustBool(ret.EnableOnMemStorage)
	ret.CheckpointIntervalMsec = section.Key("checkpoint_interval_msec").MustInt(ret.CheckpointIntervalMsec)
	ret.LogLevel = section.Key("log_level").MustString(ret.LogLevel)
	ret.EnableLatchDeadlockDetection = section.Key("latch_deadlock_detection").MustBool(ret.EnableLatchDeadlockDetection)

	if ret.CheckpointIntervalMsec <= 0 {
		return nil, errors.Errorf("checkpoint_interval_msec must be positive: %d", ret.CheckpointIntervalMsec)
	}
	if ret.PageSize <= 0 || ret.BufferPoolMaxPages <= 0 {
		return nil, errors.Errorf("page_size and buffer_pool_max_pages must be positive: %d, %d", ret.PageSize, ret.BufferPoolMaxPages)
	}
	return ret, nil
}

func (cfg *Config) CheckpointInterval() time.Duration {
	return time.Duration(cfg.CheckpointIntervalMsec) * time.Millisecond
}
