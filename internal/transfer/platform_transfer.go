package transfer

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexibleID accepts ids the platform returns either as JSON numbers or strings.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

func (f FlexibleID) Int64() (int64, error) { return strconv.ParseInt(string(f), 10, 64) }

type Account struct {
	ID       FlexibleID `json:"id"`
	Username string     `json:"onlyfans_username"`
}

type AccountList struct {
	Data []Account `json:"data"`
}

type MediaUploadResponse struct {
	PrefixedID FlexibleID `json:"prefixed_id"`
	ID         FlexibleID `json:"id"`
}

// MediaID prefers the prefixed handle, which is what send endpoints accept.
func (m MediaUploadResponse) MediaID() string {
	if m.PrefixedID != "" {
		return string(m.PrefixedID)
	}
	return string(m.ID)
}

type ScrapeMediaRequest struct {
	URL string `json:"url"`
}

type QueuedPostRequest struct {
	Text          string   `json:"text"`
	MediaFiles    []string `json:"mediaFiles,omitempty"`
	ScheduledDate string   `json:"scheduledDate,omitempty"`
	SaveForLater  bool     `json:"saveForLater,omitempty"`
}

type QueuedPostResponse struct {
	Data struct {
		ID      FlexibleID `json:"id"`
		QueueID FlexibleID `json:"queueId"`
	} `json:"data"`
}

// QueueID is the handle used by publish and list-queue.
func (q QueuedPostResponse) QueueIDValue() string {
	if q.Data.QueueID != "" {
		return string(q.Data.QueueID)
	}
	return string(q.Data.ID)
}

type PublishResponse struct {
	Data struct {
		ID     FlexibleID `json:"id"`
		Status string     `json:"status"`
	} `json:"data"`
}

// ListEnvelope is the paginated list shape shared by followings, queue and fans.
type ListEnvelope[T any] struct {
	Data struct {
		List    []T  `json:"list"`
		HasMore bool `json:"hasMore"`
	} `json:"data"`
}

type FollowingUser struct {
	ID FlexibleID `json:"id"`
}

type MassMessageRequest struct {
	UserIDs    []string `json:"userIds"`
	Text       string   `json:"text"`
	MediaFiles []string `json:"mediaFiles,omitempty"`
}

type MassMessageResponse struct {
	Data struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
}

type QueueEntry struct {
	ID         FlexibleID `json:"id"`
	EntityType string     `json:"entityType"`
	Status     string     `json:"status"`
}

// IsDraft reports whether the platform still holds the entry unpublished.
func (q QueueEntry) IsDraft() bool {
	return q.Status == "" || q.Status == "draft"
}

type ChatMessageRequest struct {
	Text       string   `json:"text"`
	MediaFiles []string `json:"mediaFiles,omitempty"`
	Previews   []string `json:"previews,omitempty"`
	Price      float64  `json:"price,omitempty"`
}

type ChatMessageResponse struct {
	Data struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
}

type PlatformFan struct {
	ID                    FlexibleID        `json:"id"`
	Username              string            `json:"username"`
	Name                  string            `json:"name"`
	SubscribedOn          *bool             `json:"subscribedOn"`
	CanReceiveChatMessage *bool             `json:"canReceiveChatMessage"`
	SubscribedByData      *SubscriptionData `json:"subscribedByData,omitempty"`
}

type SubscriptionData struct {
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	ExpiredAt string  `json:"expiredAt"`
}

type FanPage struct {
	Fans    []PlatformFan
	HasMore bool
}

// QueueListing is the platform queue as far as it was read. Complete is false
// when the listing stopped at the configured bound with entries left.
type QueueListing struct {
	Entries  []QueueEntry
	Complete bool
}

type PlatformError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
