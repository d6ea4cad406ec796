package common

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int32

const (
	DEBUG_INFO_DETAIL LogLevel = 1
	DEBUG_INFO                 = 2
	DEBUGGING                  = 8
	INFO                       = 16
	WARN                       = 32
	ERROR                      = 64
	FATAL                      = 128
)

// bitmask of levels which are output
var LogLevelSetting LogLevel = INFO | WARN | ERROR | FATAL

var Logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(logrus.DebugLevel)
	return l
}

// SetLogLevel changes both the bitmask and the level of Logger.
// unknown names are treated as "info"
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug_detail":
		LogLevelSetting = DEBUG_INFO_DETAIL | DEBUG_INFO | DEBUGGING | INFO | WARN | ERROR | FATAL
	case "debug":
		LogLevelSetting = DEBUG_INFO | DEBUGGING | INFO | WARN | ERROR | FATAL
	case "warn":
		LogLevelSetting = WARN | ERROR | FATAL
	case "error":
		LogLevelSetting = ERROR | FATAL
	default:
		LogLevelSetting = INFO | WARN | ERROR | FATAL
	}
}

func ShPrintf(logLevel LogLevel, fmtStl string, a ...interface{}) {
	if logLevel&LogLevelSetting == 0 {
		return
	}
	fmtStl = strings.TrimSuffix(fmtStl, "\n")
	switch {
	case logLevel >= ERROR:
		Logger.Errorf(fmtStl, a...)
	case logLevel >= WARN:
		Logger.Warnf(fmtStl, a...)
	case logLevel >= INFO:
		Logger.Infof(fmtStl, a...)
	default:
		Logger.Debugf(fmtStl, a...)
	}
}
