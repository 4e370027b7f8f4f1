package models

import "time"

type Destination string

const (
	DestinationPost    Destination = "post"
	DestinationMessage Destination = "message"
	DestinationBoth    Destination = "both"
)

func (d Destination) Valid() bool {
	switch d {
	case DestinationPost, DestinationMessage, DestinationBoth:
		return true
	}
	return false
}

func (d Destination) NeedsPost() bool {
	return d == DestinationPost || d == DestinationBoth
}

func (d Destination) NeedsMessage() bool {
	return d == DestinationMessage || d == DestinationBoth
}

type LocalStatus string

const (
	StatusDraft     LocalStatus = "draft"
	StatusPending   LocalStatus = "pending"
	StatusScheduled LocalStatus = "scheduled"
	StatusReady     LocalStatus = "ready"
	StatusQueued    LocalStatus = "queued"
	StatusSent      LocalStatus = "sent"
	StatusError     LocalStatus = "error"
)

func (s LocalStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusScheduled, StatusReady, StatusQueued, StatusSent, StatusError:
		return true
	}
	return false
}

// Per-destination sub-status values for PostStatus and MessageStatus.
const (
	RemoteStatusQueued    = "queued"
	RemoteStatusPublished = "published"
	RemoteStatusSent      = "sent"
	RemoteStatusFailed    = "failed"
)

type ScheduleItem struct {
	ID             int64       `db:"id" json:"id"`
	BatchID        string      `db:"batch_id" json:"batch_id,omitempty"`
	SourceFilename string      `db:"source_filename" json:"source_filename"`
	MediaURL       string      `db:"media_url" json:"media_url"`
	Caption        string      `db:"caption" json:"caption"`
	MessageBody    string      `db:"message_body" json:"message_body"`
	ScheduleTime   *time.Time  `db:"schedule_time" json:"schedule_time,omitempty"`
	Timezone       string      `db:"timezone" json:"timezone,omitempty"`
	Destination    Destination `db:"destination" json:"destination"`
	LocalStatus    LocalStatus `db:"local_status" json:"local_status"`
	PostStatus     string      `db:"post_status" json:"post_status,omitempty"`
	MessageStatus  string      `db:"message_status" json:"message_status,omitempty"`
	PostMediaID    string      `db:"post_media_id" json:"post_media_id,omitempty"`
	MessageMediaID string      `db:"message_media_id" json:"message_media_id,omitempty"`
	PostQueueID    string      `db:"post_queue_id" json:"post_queue_id,omitempty"`
	MessageBatchID string      `db:"message_batch_id" json:"message_batch_id,omitempty"`
	LastError      string      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// PostDone reports whether the feed-post side effects are complete.
func (i *ScheduleItem) PostDone() bool {
	return i.PostQueueID != "" && (i.PostStatus == RemoteStatusPublished || i.PostStatus == RemoteStatusSent)
}

func (i *ScheduleItem) MessageDone() bool {
	return i.MessageBatchID != ""
}
