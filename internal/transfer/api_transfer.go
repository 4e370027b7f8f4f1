package transfer

type CreateItemRequest struct {
	SourceFilename string `json:"source_filename"`
	MediaURL       string `json:"media_url" validate:"required,url"`
	Caption        string `json:"caption"`
	MessageBody    string `json:"message_body"`
	ScheduleTime   string `json:"schedule_time"`
	Timezone       string `json:"timezone"`
	Destination    string `json:"destination" validate:"required,oneof=post message both"`
}

type DispatchRequest struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1,max=100"`
	Force   bool    `json:"force"`
}

// BulkPost describes one file of a multipart bulk scheduling request.
type BulkPost struct {
	Filename     string `json:"filename" validate:"required"`
	Caption      string `json:"caption"`
	MessageBody  string `json:"message_body"`
	ScheduleTime string `json:"schedule_time"`
	Timezone     string `json:"timezone"`
	Destination  string `json:"destination" validate:"omitempty,oneof=post message both"`
	ImageURL     string `json:"image_url" validate:"omitempty,url"`
}

type PPVMediaRequest struct {
	MediaID   string `json:"media_id" validate:"required"`
	IsPreview bool   `json:"is_preview"`
}

type CreatePPVRequest struct {
	PPVNumber    int               `json:"ppv_number" validate:"required,min=1"`
	Description  string            `json:"description"`
	Message      string            `json:"message" validate:"required"`
	Price        string            `json:"price" validate:"required,numeric"`
	VaultListID  string            `json:"vault_list_id"`
	ScheduleDay  int               `json:"schedule_day" validate:"required,min=1,max=31"`
	ScheduleTime string            `json:"schedule_time" validate:"required,datetime=15:04"`
	Media        []PPVMediaRequest `json:"media" validate:"dive"`
}

type BroadcastRequest struct {
	FanIDs     []string `json:"fan_ids" validate:"required,min=1,dive,required"`
	Text       string   `json:"text" validate:"required"`
	MediaFiles []string `json:"media_files"`
	Price      string   `json:"price" validate:"omitempty,numeric"`
}

type CaptionRequest struct {
	Topic string `json:"topic" validate:"required,max=500"`
	Tone  string `json:"tone" validate:"omitempty,max=50"`
	Count int    `json:"count" validate:"omitempty,min=1,max=10"`
}
