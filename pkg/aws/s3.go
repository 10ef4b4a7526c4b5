package aws

import (
	"bytes"
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LabelUploader stores a label document and returns a shareable link.
type LabelUploader interface {
	UploadLabel(ctx context.Context, key string, data []byte) (string, error)
}

// S3LabelStore uploads purchased label PDFs to an S3 bucket and hands back
// presigned download links.
type S3LabelStore struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	linkExpiry time.Duration
}

// NewS3LabelStore creates a label store backed by the given bucket.
func NewS3LabelStore(cfg sdkaws.Config, bucket string) *S3LabelStore {
	client := s3.NewFromConfig(cfg)
	return &S3LabelStore{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		linkExpiry: 7 * 24 * time.Hour,
	}
}

// UploadLabel puts the PDF under key and returns a presigned GET URL.
func (s *S3LabelStore) UploadLabel(ctx context.Context, key string, data []byte) (string, error) {
	contentType := "application/pdf"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload label %s: %w", key, err)
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, func(o *s3.PresignOptions) {
		o.Expires = s.linkExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign label %s: %w", key, err)
	}

	return presigned.URL, nil
}
