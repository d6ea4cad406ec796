package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/recovery"
	"github.com/ryogrid/SamehadaTxStore/storage/disk"
)

// current SamehadaTxStore can be used as an embedded library form only.
// so, this entry point is a tool for dumping a log file
func main() {
	logPath := flag.String("log", common.DefaultLogFileName, "path of log file to dump")
	configPath := flag.String("config", "", "ini file. log_file and db_dir of [storage] section are used when given")
	flag.Parse()

	path := *logPath
	if *configPath != "" {
		config, err := common.LoadConfig(*configPath)
		if err != nil {
			common.ShPrintf(common.FATAL, "can not load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		common.SetLogLevel(config.LogLevel)
		path = filepath.Join(config.DBDir, config.LogFileName)
	}

	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "log file %s not found\n", path)
		os.Exit(1)
	}
	log_storage, err := disk.NewLogStorageImpl(path)
	if err != nil {
		common.ShPrintf(common.FATAL, "can not open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer log_storage.ShutDown()

	if err = recovery.PrintLogStorage(os.Stdout, log_storage); err != nil {
		common.ShPrintf(common.ERROR, "%v\n", err)
		os.Exit(1)
	}
}
