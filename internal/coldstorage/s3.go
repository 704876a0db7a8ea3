package coldstorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Store is an AWS S3 (or S3-compatible) ColdStorage backend.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store for bucket, namespacing keys under prefix.
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("coldstorage: s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("coldstorage: load aws config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

func (s *S3Store) key(imageID string) string {
	if s.prefix == "" {
		return imageID
	}
	return s.prefix + "/" + imageID
}

func (s *S3Store) Archive(ctx context.Context, imageID string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(imageID)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("coldstorage: s3 put: %w", err)
	}
	return nil
}

func (s *S3Store) Retrieve(ctx context.Context, imageID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(imageID)),
	})
	if err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("coldstorage: s3 get: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	removed := 0
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return removed, fmt.Errorf("coldstorage: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && isExpired(*obj.LastModified, retentionDays) {
				if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(s.bucket),
					Key:    obj.Key,
				}); err != nil {
					return removed, fmt.Errorf("coldstorage: s3 delete: %w", err)
				}
				removed++
			}
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}
	return removed, nil
}

var _ ColdStorage = (*S3Store)(nil)
