package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
)

type ScheduleHandler struct {
	s service.ScheduleService
}

func NewScheduleHandler(s service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{s: s}
}

// ScheduleBulk accepts a multipart form: "posts" holds a JSON array of post
// descriptors, "files" the media named by each descriptor's filename.
func (h *ScheduleHandler) ScheduleBulk(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, apperror.Validation("unable to parse form"))
	}

	var posts []transfer.BulkPost
	if err := json.Unmarshal([]byte(c.FormValue("posts")), &posts); err != nil {
		return respondError(c, apperror.Validation("posts must be a JSON array"))
	}
	if len(posts) == 0 {
		return respondError(c, apperror.Validation("no posts provided"))
	}
	for i := range posts {
		if err := validateStruct(&posts[i]); err != nil {
			return respondError(c, apperror.Validation("post %d: %s", i, apperror.As(err).Message))
		}
	}

	files, err := readFiles(form.File["files"])
	if err != nil {
		return respondError(c, err)
	}

	res, err := h.s.ScheduleBulk(c.UserContext(), service.BulkScheduleRequest{
		Posts:               posts,
		Files:               files,
		RetryMissingUploads: c.FormValue("retry_missing_uploads") == "true",
		BatchID:             c.FormValue("batch_id"),
	})
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	switch {
	case !res.Persisted && res.Failed > 0:
		status = fiber.StatusUnprocessableEntity
	case !res.Persisted:
		// a retry with nothing left to store
		status = fiber.StatusOK
	case res.Failed > 0:
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(res)
}

func readFiles(headers []*multipart.FileHeader) ([]service.BulkFile, error) {
	files := make([]service.BulkFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		files = append(files, service.BulkFile{Filename: fh.Filename, Data: data})
	}
	return files, nil
}
