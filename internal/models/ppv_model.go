package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PPVDefinition struct {
	ID           int64           `db:"id" json:"id"`
	PPVNumber    int             `db:"ppv_number" json:"ppv_number"`
	Description  string          `db:"description" json:"description"`
	Message      string          `db:"message" json:"message"`
	Price        decimal.Decimal `db:"price" json:"price"`
	VaultListID  string          `db:"vault_list_id" json:"vault_list_id,omitempty"`
	ScheduleDay  int             `db:"schedule_day" json:"schedule_day"`
	ScheduleTime string          `db:"schedule_time" json:"schedule_time"`
	LastSentAt   *time.Time      `db:"last_sent_at" json:"last_sent_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type PPVMedia struct {
	PPVID     int64  `db:"ppv_id" json:"ppv_id"`
	MediaID   string `db:"media_id" json:"media_id"`
	IsPreview bool   `db:"is_preview" json:"is_preview"`
}

type PPVSendRecord struct {
	PPVID  int64     `db:"ppv_id" json:"ppv_id"`
	FanID  int64     `db:"fan_id" json:"fan_id"`
	Cycle  string    `db:"cycle" json:"cycle"`
	SentAt time.Time `db:"sent_at" json:"sent_at"`
}

// Cycle is the "YYYY-MM" send cycle containing t, in UTC.
func Cycle(t time.Time) string {
	return t.UTC().Format("2006-01")
}
