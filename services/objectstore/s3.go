// Package objectstore implements upload.ObjectStore on an S3 compatible store (MinIO).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/maany-shr/eclass/core"
	"github.com/maany-shr/eclass/core/upload"
)

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	logger  core.Logger
}

var _ upload.ObjectStore = (*s3Store)(nil)

// NewS3Store connects to the store at conf.Endpoint() with static credentials.
func NewS3Store(ctx context.Context, conf core.ObjectStoreConfig, logger core.Logger) (upload.ObjectStore, error) {
	accessKey, secretKey := conf.AccessKey, conf.SecretKey
	if accessKey == "" {
		accessKey = "local"
	}
	if secretKey == "" {
		secretKey = "local"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(conf.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(conf.Endpoint())
		o.UsePathStyle = true
	})
	return &s3Store{client: client, presign: s3.NewPresignClient(client), logger: logger}, nil
}

func (s *s3Store) PresignPut(ctx context.Context, obj upload.Object, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Name),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	s.logger.Debug(fmt.Sprintf("presigned upload of %s in bucket %s", obj.Name, obj.Bucket))
	return req.URL, nil
}

func (s *s3Store) PresignGet(ctx context.Context, obj upload.Object, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Name),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	s.logger.Debug(fmt.Sprintf("presigned download of %s in bucket %s", obj.Name, obj.Bucket))
	return req.URL, nil
}

func (s *s3Store) Exists(ctx context.Context, obj upload.Object) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Name),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *s3Store) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		s.logger.Info(fmt.Sprintf("bucket %s already exists", bucket))
		return nil
	}
	if !isNotFound(err) {
		return err
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return err
	}
	s.logger.Info(fmt.Sprintf("bucket %s created", bucket))
	return nil
}

func (s *s3Store) Ping(ctx context.Context) error {
	_, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	return err
}

// isNotFound reports whether err is a 404 from HeadObject/HeadBucket, which come back without an error code.
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	var re interface{ HTTPStatusCode() int }
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
