package queue

import (
	"github.com/maheshrc27/fanflow/internal/service"
)

type Queue struct {
	ds service.DispatchService
}

func NewQueue(ds service.DispatchService) *Queue {
	return &Queue{ds: ds}
}

const TaskTypeDispatch = "dispatch:items"

type DispatchPayload struct {
	ItemIDs []int64 `json:"item_ids"`
	Force   bool    `json:"force,omitempty"`
}
