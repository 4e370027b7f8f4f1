package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	ProviderCloudflare = "cloudflare"
	ProviderR2         = "r2"

	imageDeliveryHost = "https://imagedelivery.net"
)

type UploadedImage struct {
	ImageID string `json:"image_id"`
	URL     string `json:"url"`
}

// ImageStore hosts source images and hands back public URLs. Callers resolve the
// configuration once with GetConfig and pass it to the network operations, so a
// partially configured store never reaches the network.
type ImageStore interface {
	GetConfig() (*config.ImageStoreConfig, error)
	VerifyToken(ctx context.Context, cfg *config.ImageStoreConfig) error
	Upload(ctx context.Context, data []byte, filename, mimeType string, cfg *config.ImageStoreConfig) (*UploadedImage, error)
}

// NewImageStore picks the provider named by IMAGE_STORE_PROVIDER.
func NewImageStore(settings config.ImageStoreConfig, client *http.Client) ImageStore {
	if strings.EqualFold(settings.Provider, ProviderR2) {
		return NewR2Service(settings)
	}
	return NewCloudflareImageStore(settings, client)
}

// BuildDeliveryURL returns the public variant URL of a hosted image.
func BuildDeliveryURL(accountHash, variant, imageID string) string {
	if variant == "" {
		variant = "public"
	}
	return fmt.Sprintf("%s/%s/%s/%s", imageDeliveryHost, accountHash, imageID, variant)
}

type cloudflareImageStore struct {
	settings config.ImageStoreConfig
	client   *http.Client
}

func NewCloudflareImageStore(settings config.ImageStoreConfig, client *http.Client) ImageStore {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &cloudflareImageStore{settings: settings, client: client}
}

func (s *cloudflareImageStore) GetConfig() (*config.ImageStoreConfig, error) {
	cf := s.settings.Cloudflare
	var missing []string
	if cf.AccountID == "" {
		missing = append(missing, "CLOUDFLARE_ACCOUNT_ID")
	}
	if cf.APIToken == "" {
		missing = append(missing, "CLOUDFLARE_API_TOKEN")
	}
	if cf.AccountHash == "" {
		missing = append(missing, "CLOUDFLARE_ACCOUNT_HASH")
	}
	if len(missing) > 0 {
		return nil, apperror.Config(missing...)
	}
	cfg := s.settings
	if cfg.Cloudflare.BaseURL == "" {
		cfg.Cloudflare.BaseURL = "https://api.cloudflare.com"
	}
	return &cfg, nil
}

type cloudflareEnvelope struct {
	Success bool `json:"success"`
	Result  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"result"`
}

func (s *cloudflareImageStore) VerifyToken(ctx context.Context, cfg *config.ImageStoreConfig) error {
	endpoint := strings.TrimRight(cfg.Cloudflare.BaseURL, "/") + "/client/v4/user/tokens/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "build token verification request")
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Cloudflare.APIToken)

	envelope, status, requestID, err := s.do(req)
	if err != nil {
		return err
	}
	if status >= 500 {
		return apperror.Upstream("image store token verification unavailable").WithUpstream(status, requestID)
	}
	if status != http.StatusOK || !envelope.Success || envelope.Result.Status != "active" {
		return apperror.Auth("image store token rejected").WithUpstream(status, requestID)
	}
	return nil
}

func (s *cloudflareImageStore) Upload(ctx context.Context, data []byte, filename, mimeType string, cfg *config.ImageStoreConfig) (*UploadedImage, error) {
	if len(data) == 0 {
		return nil, apperror.Validation("empty image payload for %q", filename)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(filename, `"`, "")))
	if mimeType != "" {
		header.Set("Content-Type", mimeType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "build upload form")
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "build upload form")
	}
	if err := writer.Close(); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "build upload form")
	}

	endpoint := fmt.Sprintf("%s/client/v4/accounts/%s/images/v1", strings.TrimRight(cfg.Cloudflare.BaseURL, "/"), cfg.Cloudflare.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "build upload request")
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Cloudflare.APIToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	envelope, status, requestID, err := s.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 || !envelope.Success || envelope.Result.ID == "" {
		if status >= 200 && status < 300 {
			status = http.StatusBadGateway
		}
		classified := apperror.FromHTTPStatus(status, fmt.Sprintf("image upload failed for %q", filename))
		classified.RequestID = requestID
		log.Warn().Int("upstream_status", status).Str("request_id", requestID).Str("filename", filename).Msg("image store upload rejected")
		return nil, classified
	}

	return &UploadedImage{
		ImageID: envelope.Result.ID,
		URL:     BuildDeliveryURL(cfg.Cloudflare.AccountHash, cfg.Cloudflare.Variant, envelope.Result.ID),
	}, nil
}

// do executes req and decodes the Cloudflare envelope. Transport failures come
// back as upstream errors; the body is never surfaced to callers.
func (s *cloudflareImageStore) do(req *http.Request) (*cloudflareEnvelope, int, string, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn().Str("error", utils.SanitizeString(err.Error())).Msg("image store request failed")
		return nil, 0, "", apperror.Wrap(apperror.KindUpstream, err, "image store unreachable")
	}
	defer resp.Body.Close()

	requestID := utils.MaskID(resp.Header.Get("cf-ray"))
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, requestID, apperror.Wrap(apperror.KindUpstream, err, "read image store response").WithUpstream(resp.StatusCode, requestID)
	}

	var envelope cloudflareEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode < 300 {
			return nil, resp.StatusCode, requestID, apperror.Upstream("malformed image store response").WithUpstream(resp.StatusCode, requestID)
		}
	}
	return &envelope, resp.StatusCode, requestID, nil
}
