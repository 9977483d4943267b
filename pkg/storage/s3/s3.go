// Package s3 mirrors dump files to S3-compatible object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/supporttools/sqlsweep/pkg/config"
)

const uploadTimeout = 5 * time.Minute

// ObjectAPI is the part of the S3 client the mirror uses
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Mirror copies dump files to a bucket and removes them again on expiry
type Mirror struct {
	api    ObjectAPI
	bucket string
	prefix string
	log    logrus.FieldLogger
}

// NewMirror creates a Mirror from the S3 settings
func NewMirror(ctx context.Context, cfg config.S3Config, log logrus.FieldLogger) (*Mirror, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}
	return NewMirrorWithAPI(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewMirrorWithAPI creates a Mirror over an existing client
func NewMirrorWithAPI(api ObjectAPI, bucket, prefix string, log logrus.FieldLogger) *Mirror {
	return &Mirror{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		log:    log,
	}
}

func newClient(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("AWS SDK config initialization error: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// ObjectKey returns the key a local dump file is stored under
func (m *Mirror) ObjectKey(path string) string {
	name := filepath.Base(path)
	if m.prefix == "" {
		return name
	}
	return strings.TrimSuffix(m.prefix, "/") + "/" + name
}

// Upload copies the file at path to the bucket
func (m *Mirror) Upload(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file for S3 upload: %w", err)
	}
	defer file.Close()

	key := m.ObjectKey(path)
	m.log.WithFields(logrus.Fields{"bucket": m.bucket, "key": key}).Debug("Uploading backup to S3")

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = m.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			m.log.WithFields(logrus.Fields{"url": urlErr.URL, "op": urlErr.Op}).Debug("S3 request failed")
		}
		return fmt.Errorf("failed to upload backup to S3: %w", err)
	}

	m.log.Infof("Uploaded backup to s3://%s/%s", m.bucket, key)
	return nil
}

// Delete removes the mirrored copy of the file at path
func (m *Mirror) Delete(ctx context.Context, path string) error {
	key := m.ObjectKey(path)
	_, err := m.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", m.bucket, key, err)
	}

	m.log.Infof("Removed expired S3 backup: %s", key)
	return nil
}
