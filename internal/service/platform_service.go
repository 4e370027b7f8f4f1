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
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	UploadEndpointDefault = "default"
	UploadEndpointV1      = "v1"

	MediaModeUpload = "upload"
	MediaModeScrape = "scrape"

	platformPageSize     = 100
	platformErrBodyLimit = 2048
)

// PlatformService is the gateway to the creator platform API. Every call goes
// through one request wrapper that resolves the account and classifies failures.
type PlatformService interface {
	GetAccountID(ctx context.Context) (string, error)
	UploadMedia(ctx context.Context, data []byte, filename, mimeType string) (string, error)
	ScrapeMedia(ctx context.Context, mediaURL string) (string, error)
	CreateQueuedPost(ctx context.Context, req transfer.QueuedPostRequest) (string, error)
	PublishQueuedPost(ctx context.Context, queueID string) (string, error)
	ListActiveFollowings(ctx context.Context) ([]string, error)
	CreateMassMessage(ctx context.Context, req transfer.MassMessageRequest) (string, error)
	ListQueue(ctx context.Context) (*transfer.QueueListing, error)
	SendChatMessage(ctx context.Context, fanID string, req transfer.ChatMessageRequest) (string, error)
	ListActiveFans(ctx context.Context, limit, offset int) (*transfer.FanPage, error)
}

type PlatformOption func(*platformService)

// WithBaseTransport replaces the round tripper under the bearer-token transport.
func WithBaseTransport(rt http.RoundTripper) PlatformOption {
	return func(s *platformService) {
		if rt != nil {
			s.base = rt
		}
	}
}

type platformService struct {
	cfg    config.PlatformConfig
	base   http.RoundTripper
	client *http.Client

	mu        sync.Mutex
	accountID string
}

func NewPlatformService(cfg config.PlatformConfig, opts ...PlatformOption) PlatformService {
	s := &platformService{cfg: cfg, base: http.DefaultTransport, accountID: strings.TrimSpace(cfg.AccountID)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.cfg.Timeout <= 0 {
		s.cfg.Timeout = 60 * time.Second
	}
	if s.cfg.MaxRecipients <= 0 {
		s.cfg.MaxRecipients = 5000
	}
	if s.cfg.MaxQueueEntries <= 0 {
		s.cfg.MaxQueueEntries = 2000
	}
	s.client = &http.Client{
		Timeout: s.cfg.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
			Base:   s.base,
		},
	}
	return s
}

// GetAccountID returns the configured account or the first account the key can
// see. The lookup happens once per process.
func (s *platformService) GetAccountID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountID != "" {
		return s.accountID, nil
	}
	if s.cfg.APIKey == "" {
		return "", apperror.Config("PLATFORM_API_KEY")
	}

	var accounts transfer.AccountList
	if err := s.do(ctx, http.MethodGet, "/accounts", nil, "", nil, &accounts); err != nil {
		return "", err
	}
	if len(accounts.Data) == 0 || accounts.Data[0].ID == "" {
		return "", apperror.Config("PLATFORM_ACCOUNT_ID")
	}
	s.accountID = accounts.Data[0].ID.String()
	log.Info().Str("account_id", utils.MaskID(s.accountID)).Msg("resolved platform account")
	return s.accountID, nil
}

func (s *platformService) UploadMedia(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", apperror.Validation("empty media payload")
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
		return "", apperror.Wrap(apperror.KindInternal, err, "build media form")
	}
	if _, err := part.Write(data); err != nil {
		return "", apperror.Wrap(apperror.KindInternal, err, "build media form")
	}
	if err := writer.Close(); err != nil {
		return "", apperror.Wrap(apperror.KindInternal, err, "build media form")
	}

	path := "/media/upload"
	if s.cfg.UploadEndpoint == UploadEndpointV1 {
		path = "/v1" + path
	}

	var resp transfer.MediaUploadResponse
	if err := s.accountRequest(ctx, http.MethodPost, path, nil, writer.FormDataContentType(), body, &resp); err != nil {
		return "", err
	}
	return mediaIDFrom(resp)
}

func (s *platformService) ScrapeMedia(ctx context.Context, mediaURL string) (string, error) {
	if mediaURL == "" {
		return "", apperror.Validation("media url is required for scrape")
	}
	var resp transfer.MediaUploadResponse
	if err := s.accountJSON(ctx, http.MethodPost, "/media/scrape", transfer.ScrapeMediaRequest{URL: mediaURL}, &resp); err != nil {
		return "", err
	}
	return mediaIDFrom(resp)
}

func (s *platformService) CreateQueuedPost(ctx context.Context, req transfer.QueuedPostRequest) (string, error) {
	var resp transfer.QueuedPostResponse
	if err := s.accountJSON(ctx, http.MethodPost, "/posts", req, &resp); err != nil {
		return "", err
	}
	id := resp.QueueIDValue()
	if id == "" {
		return "", apperror.Upstream("post response carried no queue id")
	}
	return id, nil
}

func (s *platformService) PublishQueuedPost(ctx context.Context, queueID string) (string, error) {
	var resp transfer.PublishResponse
	path := "/queue/" + url.PathEscape(queueID) + "/publish"
	if err := s.accountJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.Status == "" {
		return "published", nil
	}
	return resp.Data.Status, nil
}

func (s *platformService) ListActiveFollowings(ctx context.Context) ([]string, error) {
	users, _, err := collectPages[transfer.FollowingUser](ctx, s, "/following/active", s.cfg.MaxRecipients)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != "" {
			ids = append(ids, u.ID.String())
		}
	}
	return ids, nil
}

func (s *platformService) CreateMassMessage(ctx context.Context, req transfer.MassMessageRequest) (string, error) {
	if len(req.UserIDs) == 0 {
		return "", apperror.Validation("mass message has no recipients")
	}
	var resp transfer.MassMessageResponse
	if err := s.accountJSON(ctx, http.MethodPost, "/mass-messaging", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", apperror.Upstream("mass message response carried no id")
	}
	return resp.Data.ID.String(), nil
}

func (s *platformService) ListQueue(ctx context.Context) (*transfer.QueueListing, error) {
	entries, complete, err := collectPages[transfer.QueueEntry](ctx, s, "/queue", s.cfg.MaxQueueEntries)
	if err != nil {
		return nil, err
	}
	return &transfer.QueueListing{Entries: entries, Complete: complete}, nil
}

func (s *platformService) SendChatMessage(ctx context.Context, fanID string, req transfer.ChatMessageRequest) (string, error) {
	if fanID == "" {
		return "", apperror.Validation("fan id is required")
	}
	var resp transfer.ChatMessageResponse
	path := "/chats/" + url.PathEscape(fanID) + "/messages"
	if err := s.accountJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.Data.ID.String(), nil
}

func (s *platformService) ListActiveFans(ctx context.Context, limit, offset int) (*transfer.FanPage, error) {
	if limit <= 0 || limit > platformPageSize {
		limit = platformPageSize
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var resp transfer.ListEnvelope[transfer.PlatformFan]
	if err := s.accountRequest(ctx, http.MethodGet, "/fans/active", query, "", nil, &resp); err != nil {
		return nil, err
	}
	return &transfer.FanPage{Fans: resp.Data.List, HasMore: resp.Data.HasMore}, nil
}

// collectPages walks an offset-paginated list until it runs out or reaches
// limit. complete reports whether the list ran out before the limit cut it.
func collectPages[T any](ctx context.Context, s *platformService, path string, limit int) (all []T, complete bool, err error) {
	for offset := 0; len(all) < limit; offset += platformPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(platformPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page transfer.ListEnvelope[T]
		if err := s.accountRequest(ctx, http.MethodGet, path, query, "", nil, &page); err != nil {
			return nil, false, err
		}
		all = append(all, page.Data.List...)
		if !page.Data.HasMore || len(page.Data.List) == 0 {
			complete = len(all) <= limit
			break
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, complete, nil
}

func mediaIDFrom(resp transfer.MediaUploadResponse) (string, error) {
	id := resp.MediaID()
	if id == "" {
		return "", apperror.Upstream("media response carried no id")
	}
	return id, nil
}

func (s *platformService) accountJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperror.Wrap(apperror.KindInternal, err, "encode platform request")
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return s.accountRequest(ctx, method, path, nil, contentType, body, out)
}

func (s *platformService) accountRequest(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	accountID, err := s.GetAccountID(ctx)
	if err != nil {
		return err
	}
	prefix := "/" + url.PathEscape(accountID)
	if strings.HasPrefix(path, "/v1/") {
		prefix = "/v1" + prefix
		path = strings.TrimPrefix(path, "/v1")
	}
	return s.do(ctx, method, prefix+path, query, contentType, body, out)
}

// do is the single request path. Non-2xx responses are classified by status and
// their bodies are sanitized before they can reach an error message.
func (s *platformService) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	if s.cfg.APIKey == "" {
		return apperror.Config("PLATFORM_API_KEY")
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "build platform request")
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn().Str("method", method).Str("error", utils.SanitizeString(err.Error())).Msg("platform request failed")
		return apperror.Wrap(apperror.KindUpstream, err, fmt.Sprintf("platform %s request failed", method))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, platformErrBodyLimit))
		classified := apperror.FromHTTPStatus(resp.StatusCode, platformErrorMessage(resp.StatusCode, raw))
		classified.RequestID = utils.MaskID(resp.Header.Get("X-Request-Id"))
		log.Warn().
			Str("method", method).
			Int("status", resp.StatusCode).
			Str("kind", string(classified.Kind)).
			Str("request_id", classified.RequestID).
			Msg("platform request rejected")
		return classified
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return apperror.Wrap(apperror.KindUpstream, err, "decode platform response")
	}
	return nil
}

func platformErrorMessage(status int, raw []byte) string {
	var body transfer.PlatformError
	detail := ""
	if err := json.Unmarshal(raw, &body); err == nil {
		detail = body.Message
		if detail == "" {
			detail = body.Error
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	detail = utils.Truncate(utils.SanitizeString(detail), 200)
	return fmt.Sprintf("platform returned %d: %s", status, detail)
}
