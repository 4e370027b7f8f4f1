package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// R2Service stores images in a Cloudflare R2 bucket through the S3 API.
type R2Service struct {
	settings config.ImageStoreConfig
}

func NewR2Service(settings config.ImageStoreConfig) *R2Service {
	return &R2Service{settings: settings}
}

func (r *R2Service) GetConfig() (*config.ImageStoreConfig, error) {
	r2 := r.settings.R2
	var missing []string
	if r2.AccountID == "" && r2.Endpoint == "" {
		missing = append(missing, "R2_ACCOUNT_ID")
	}
	if r2.AccessKey == "" {
		missing = append(missing, "R2_ACCESS_KEY")
	}
	if r2.SecretKey == "" {
		missing = append(missing, "R2_SECRET_KEY")
	}
	if r2.BucketName == "" {
		missing = append(missing, "R2_BUCKET_NAME")
	}
	if r2.PublicURL == "" {
		missing = append(missing, "R2_PUBLIC_URL")
	}
	if len(missing) > 0 {
		return nil, apperror.Config(missing...)
	}
	cfg := r.settings
	return &cfg, nil
}

func (r *R2Service) R2Client(ctx context.Context, cfg *config.ImageStoreConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindConfig, err, "load r2 client config")
	}

	endpoint := cfg.R2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2.AccountID)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// VerifyToken checks the key pair can reach the bucket.
func (r *R2Service) VerifyToken(ctx context.Context, cfg *config.ImageStoreConfig) error {
	client, err := r.R2Client(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.R2.BucketName)})
	if err != nil {
		classified := classifyR2Error(err, "r2 bucket verification failed")
		if classified.Kind != apperror.KindUpstream && classified.Kind != apperror.KindRateLimited {
			classified.Kind = apperror.KindAuth
			classified.StatusCode = apperror.MetadataFor(apperror.KindAuth).HTTPStatus
		}
		return classified
	}
	return nil
}

func (r *R2Service) Upload(ctx context.Context, data []byte, filename, mimeType string, cfg *config.ImageStoreConfig) (*UploadedImage, error) {
	if len(data) == 0 {
		return nil, apperror.Validation("empty image payload for %q", filename)
	}
	client, err := r.R2Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "generate object key")
	}
	key := id + objectExtension(filename)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(cfg.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		classified := classifyR2Error(err, fmt.Sprintf("image upload failed for %q", filename))
		log.Warn().Int("upstream_status", classified.UpstreamStatus).Str("request_id", classified.RequestID).Str("filename", filename).Msg("r2 upload rejected")
		return nil, classified
	}

	return &UploadedImage{
		ImageID: key,
		URL:     strings.TrimRight(cfg.R2.PublicURL, "/") + "/" + key,
	}, nil
}

func classifyR2Error(err error, message string) *apperror.Error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		classified := apperror.FromHTTPStatus(respErr.HTTPStatusCode(), message)
		classified.RequestID = utils.MaskID(respErr.ServiceRequestID())
		return classified
	}
	return apperror.Wrap(apperror.KindUpstream, err, message)
}

func objectExtension(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		return strings.ToLower(filename[i:])
	}
	return ""
}
