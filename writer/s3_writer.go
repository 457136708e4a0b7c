package writer

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "vertexflow/config"
	"vertexflow/logger"
)

// S3Mirror uploads a copy of the finished report to S3 so historical runs
// can be compared without keeping local files around. Upload failures are
// reported to the caller but the local report on disk always stands.
type S3Mirror struct {
	config *appconfig.Config
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Log
}

// NewS3Mirror creates an S3Mirror from the storage configuration. It uses
// static credentials when configured and the default AWS credential chain
// otherwise.
func NewS3Mirror(cfg *appconfig.Config) (*S3Mirror, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_mirror").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	mirror := &S3Mirror{
		config: cfg,
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Storage.S3.Bucket,
		prefix: strings.Trim(cfg.Storage.S3.Prefix, "/"),
		log:    log,
	}

	log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": mirror.bucket,
		"prefix": mirror.prefix,
		"region": cfg.Storage.S3.Region,
	}).Info("s3 mirror initialized")

	return mirror, nil
}

// Upload stores the report body under a timestamped key tagged with the
// run ID.
func (m *S3Mirror) Upload(ctx context.Context, body string, runID string, at time.Time) error {
	key := fmt.Sprintf("vertexrates-%s-%s.txt", at.UTC().Format("20060102T150405Z"), runID)
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", m.bucket, key, err)
	}

	m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": m.bucket,
		"key":    key,
		"bytes":  len(body),
	}).Info("report mirrored to s3")
	return nil
}
