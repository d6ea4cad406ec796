package types

// TableID identifies a table (and its page store)
type TableID int32

// LogOffset is a byte offset in the log file
type LogOffset int64

// NoCheckpoint is written in log header when no checkpoint is taken
const NoCheckpoint = LogOffset(-1)
