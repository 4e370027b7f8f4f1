package models

import "time"

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) Valid() bool {
	return l == LogLevelInfo || l == LogLevelWarn || l == LogLevelError
}

// LogEntry is one append-only activity record. A nil ItemID scopes it to a batch or the process.
type LogEntry struct {
	ID        int64          `db:"id" json:"id"`
	ItemID    *int64         `db:"item_id" json:"item_id"`
	Level     LogLevel       `db:"level" json:"level"`
	Step      string         `db:"step" json:"step"`
	Message   string         `db:"message" json:"message"`
	Meta      map[string]any `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
