package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	region     string
	publicRead bool
}

// NewS3Store loads credentials the usual AWS way. A non-empty endpoint points the client
// at an S3 compatible store such as MinIO, using path-style addressing.
func NewS3Store(ctx context.Context, region, bucket, endpoint string, publicRead bool) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return newS3Store(cfg, bucket, endpoint, publicRead), nil
}

func newS3Store(cfg aws.Config, bucket, endpoint string, publicRead bool) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		region:     cfg.Region,
		publicRead: publicRead,
	}
}

// Delete removes the object. S3 answers success for keys that do not exist, which makes
// repeated deletes safe.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the object URL when the bucket is public, otherwise "".
func (s *S3Store) PublicURL(key string) string {
	if !s.publicRead {
		return ""
	}
	u := url.URL{Scheme: "https", Host: fmt.Sprintf("%s.s3.%s.amazonaws.com", s.bucket, s.region), Path: "/" + key}
	return u.String()
}

func (s *S3Store) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
