// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
)

// S3Configuration contains the configuration of the S3 archive
type S3Configuration struct {
	AccessID      string `env:"AWS_ACCESS_KEY_ID" description:"empty for the default credential chain"`
	AccessKey     string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSBucketName string `env:"ARCHIVE_BUCKET"`
	AWSRegion     string `env:"AWS_REGION"`
	KeyPrefix     string `env:"ARCHIVE_KEY_PREFIX"`
}

// S3 archives messages as objects of an S3 bucket
type S3 struct {
	uploader    *manager.Uploader
	bucket      string
	baseKeyName string
}

// NewS3 returns a new S3 archive
func NewS3(ctx context.Context, c S3Configuration) (*S3, error) {
	if c.AWSBucketName == "" {
		return nil, fmt.Errorf("AWSBucketName must not be empty")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.AWSRegion)}
	if c.AccessID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessID, c.AccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	logger.Default().Debugln("S3 archive enabled for bucket", c.AWSBucketName)
	return &S3{
		uploader:    manager.NewUploader(s3.NewFromConfig(cfg)),
		bucket:      c.AWSBucketName,
		baseKeyName: c.KeyPrefix,
	}, nil
}

// Put uploads the payload of msg into a new object and returns its key
func (s *S3) Put(ctx context.Context, msg codec.RawMessage) (string, error) {
	key := Key(s.baseKeyName, msg.Topic, msg.ReceivedAt)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(msg.Payload),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"topic": msg.Topic},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}
