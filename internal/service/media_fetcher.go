package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/fanflow/pkg/apperror"
)

const maxMediaBytes = 200 << 20

var allowedMediaTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {},
}

type FetchedMedia struct {
	Data     []byte
	MimeType string
	Filename string
}

// MediaFetcher downloads source media so it can be re-uploaded to the platform.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedMedia, error)
}

type httpMediaFetcher struct {
	client *http.Client
}

// NewMediaFetcher uses its own client; media hosts never see platform credentials.
func NewMediaFetcher(timeout time.Duration) MediaFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpMediaFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *httpMediaFetcher) Fetch(ctx context.Context, url string) (*FetchedMedia, error) {
	if url == "" {
		return nil, apperror.Validation("item has no media url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperror.Validation("invalid media url")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUpstream, err, "media download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, apperror.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("media download returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUpstream, err, "media download interrupted")
	}
	if len(data) > maxMediaBytes {
		return nil, apperror.Validation("media exceeds %d bytes", maxMediaBytes)
	}

	mimeType, err := DetectMedia(data)
	if err != nil {
		return nil, err
	}
	name := path.Base(req.URL.Path)
	if name == "." || name == "/" || name == "" {
		name = "media"
	}
	return &FetchedMedia{Data: data, MimeType: mimeType, Filename: name}, nil
}

// DetectMedia sniffs the content type and rejects anything that is not a
// supported image or video.
func DetectMedia(data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return "", apperror.Validation("unsupported file type")
	}
	if _, ok := allowedMediaTypes[strings.ToLower(kind.Extension)]; !ok {
		return "", apperror.Validation("file type %s is not allowed", kind.Extension)
	}
	return kind.MIME.Value, nil
}
