package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlatform(t *testing.T, handler http.HandlerFunc, mutate func(*config.PlatformConfig)) (PlatformService, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.PlatformConfig{
		BaseURL:        srv.URL,
		APIKey:         "platform-key-123",
		AccountID:      "acct_1",
		UploadEndpoint: UploadEndpointDefault,
		MediaMode:      MediaModeUpload,
		MaxRecipients:  5000,
		Timeout:        5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPlatformService(cfg, WithBaseTransport(srv.Client().Transport)), srv
}

func TestPlatformSendsBearerToken(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer platform-key-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/acct_1/media/scrape", r.URL.Path)

		var body transfer.ScrapeMediaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://cdn.example.com/a.jpg", body.URL)
		_, _ = io.WriteString(w, `{"prefixed_id":"ofapi_media_9","id":9}`)
	}, nil)

	id, err := svc.ScrapeMedia(context.Background(), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "ofapi_media_9", id)
}

func TestPlatformResolvesAccountOnce(t *testing.T) {
	var accountCalls atomic.Int32
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts":
			accountCalls.Add(1)
			_, _ = io.WriteString(w, `{"data":[{"id":"acct_77"}]}`)
		case "/acct_77/media/scrape":
			_, _ = io.WriteString(w, `{"id":123}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, func(c *config.PlatformConfig) { c.AccountID = "" })

	for i := 0; i < 3; i++ {
		id, err := svc.ScrapeMedia(context.Background(), "https://cdn.example.com/a.jpg")
		require.NoError(t, err)
		assert.Equal(t, "123", id)
	}
	assert.Equal(t, int32(1), accountCalls.Load())
}

func TestPlatformNoAccountsIsConfigError(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	}, func(c *config.PlatformConfig) { c.AccountID = "" })

	_, err := svc.GetAccountID(context.Background())
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.KindConfig, appErr.Kind)
	assert.Equal(t, []string{"PLATFORM_ACCOUNT_ID"}, appErr.Missing)
}

func TestPlatformMissingKeyMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, func(c *config.PlatformConfig) { c.APIKey = "" })

	_, err := svc.ScrapeMedia(context.Background(), "https://cdn.example.com/a.jpg")
	assert.True(t, apperror.IsKind(err, apperror.KindConfig))
	assert.Equal(t, int32(0), calls.Load())
}

func TestPlatformStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		kind      apperror.Kind
		retryable bool
	}{
		{http.StatusUnauthorized, apperror.KindAuth, false},
		{http.StatusForbidden, apperror.KindAuth, false},
		{http.StatusTooManyRequests, apperror.KindRateLimited, true},
		{http.StatusNotFound, apperror.KindNotFound, false},
		{http.StatusUnprocessableEntity, apperror.KindValidation, false},
		{http.StatusInternalServerError, apperror.KindUpstream, true},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"message":"denied for Bearer platform-key-123"}`)
			}, nil)

			_, err := svc.CreateQueuedPost(context.Background(), transfer.QueuedPostRequest{Text: "hi", SaveForLater: true})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Equal(t, tt.retryable, apperror.IsRetryable(err))
			assert.NotContains(t, err.Error(), "platform-key-123")
			assert.Equal(t, int32(1), calls.Load(), "rate limits are surfaced, not retried")
		})
	}
}

func TestPlatformUploadEndpointSelection(t *testing.T) {
	for _, endpoint := range []string{UploadEndpointDefault, UploadEndpointV1} {
		t.Run(endpoint, func(t *testing.T) {
			var paths []string
			svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
				paths = append(paths, r.URL.Path)
				_, header, err := r.FormFile("file")
				require.NoError(t, err)
				assert.Equal(t, "a.png", header.Filename)
				_, _ = io.WriteString(w, `{"prefixed_id":"m_1"}`)
			}, func(c *config.PlatformConfig) { c.UploadEndpoint = endpoint })

			id, err := svc.UploadMedia(context.Background(), []byte("png"), "a.png", "image/png")
			require.NoError(t, err)
			assert.Equal(t, "m_1", id)

			want := "/acct_1/media/upload"
			if endpoint == UploadEndpointV1 {
				want = "/v1/acct_1/media/upload"
			}
			assert.Equal(t, []string{want}, paths)
		})
	}
}

func TestPlatformFollowingsAreBoundedByMaxRecipients(t *testing.T) {
	var pages atomic.Int32
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acct_1/following/active", r.URL.Path)
		pages.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		list := make([]map[string]any, 0, 100)
		for i := 0; i < 100; i++ {
			list = append(list, map[string]any{"id": offset + i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"list": list, "hasMore": true}})
	}, func(c *config.PlatformConfig) { c.MaxRecipients = 250 })

	ids, err := svc.ListActiveFollowings(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 250)
	assert.Equal(t, "0", ids[0])
	assert.Equal(t, "249", ids[249])
	assert.Equal(t, int32(3), pages.Load())
}

func TestPlatformQueueListingHasItsOwnBound(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acct_1/queue", r.URL.Path)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		list := make([]map[string]any, 0, 100)
		for i := 0; i < 100; i++ {
			list = append(list, map[string]any{"id": offset + i, "status": "draft"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"list": list, "hasMore": offset < 200}})
	}, func(c *config.PlatformConfig) {
		c.MaxRecipients = 50
		c.MaxQueueEntries = 150
	})

	listing, err := svc.ListQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing.Entries, 150)
	assert.False(t, listing.Complete)
}

func TestPlatformQueueListingComplete(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"list":[{"id":1,"status":"draft"}],"hasMore":false}}`)
	}, nil)

	listing, err := svc.ListQueue(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing.Entries, 1)
	assert.True(t, listing.Complete)
}

func TestPlatformFollowingsStopWhenExhausted(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"list":[{"id":"u1"},{"id":2}],"hasMore":false}}`)
	}, nil)

	ids, err := svc.ListActiveFollowings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "2"}, ids)
}

func TestPlatformPostPublishAndMassMessage(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/acct_1/posts":
			var body transfer.QueuedPostRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"m_1"}, body.MediaFiles)
			_, _ = io.WriteString(w, `{"data":{"id":555}}`)
		case "/acct_1/queue/555/publish":
			_, _ = io.WriteString(w, `{"data":{"id":555,"status":"published"}}`)
		case "/acct_1/mass-messaging":
			var body transfer.MassMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"u1"}, body.UserIDs)
			_, _ = io.WriteString(w, `{"data":{"id":"mm_7"}}`)
		default:
			http.NotFound(w, r)
		}
	}, nil)

	ctx := context.Background()
	queueID, err := svc.CreateQueuedPost(ctx, transfer.QueuedPostRequest{Text: "hello", MediaFiles: []string{"m_1"}, SaveForLater: true})
	require.NoError(t, err)
	assert.Equal(t, "555", queueID)

	status, err := svc.PublishQueuedPost(ctx, queueID)
	require.NoError(t, err)
	assert.Equal(t, "published", status)

	batchID, err := svc.CreateMassMessage(ctx, transfer.MassMessageRequest{UserIDs: []string{"u1"}, Text: "hey", MediaFiles: []string{"m_2"}})
	require.NoError(t, err)
	assert.Equal(t, "mm_7", batchID)
}

func TestPlatformListActiveFansPassesPaging(t *testing.T) {
	svc, _ := newTestPlatform(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acct_1/fans/active", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "100", r.URL.Query().Get("offset"))
		fmt.Fprint(w, `{"data":{"list":[{"id":42,"username":"fan42","name":"Fan","subscribedOn":true,"canReceiveChatMessage":false}],"hasMore":true}}`)
	}, nil)

	page, err := svc.ListActiveFans(context.Background(), 50, 100)
	require.NoError(t, err)
	require.Len(t, page.Fans, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, "42", page.Fans[0].ID.String())
	require.NotNil(t, page.Fans[0].SubscribedOn)
	assert.True(t, *page.Fans[0].SubscribedOn)
}
