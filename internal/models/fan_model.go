package models

import "time"

// Fan is a roster entry with its reachability flags already resolved by the store.
type Fan struct {
	ID             int64     `db:"id" json:"id"`
	PlatformUserID string    `db:"platform_user_id" json:"platform_user_id"`
	Username       string    `db:"username" json:"username"`
	Name           string    `db:"name" json:"name"`
	GeneratedName  string    `db:"generated_name" json:"generated_name,omitempty"`
	Subscribed     bool      `json:"subscribed"`
	CanReceiveChat bool      `json:"can_receive_chat"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// FanUpsert carries roster fields as reported by the platform; nil flags are stored as NULL.
type FanUpsert struct {
	PlatformUserID string
	Username       string
	Name           string
	IsSubscribed   *bool
	CanReceiveChat *bool
}
