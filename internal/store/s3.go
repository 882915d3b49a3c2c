package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Provider stores files as objects under a key prefix.
type S3Provider struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Provider creates an S3-backed provider.
func NewS3Provider(client *s3.Client, bucket, prefix string) (*S3Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	return &S3Provider{client: client, bucket: bucket, prefix: prefix}, nil
}

func (p *S3Provider) key(name string) string {
	return path.Join(p.prefix, name)
}

// Read implements FileProvider, mapping a missing object to os.ErrNotExist.
func (p *S3Provider) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(name)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", p.bucket, p.key(name), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", p.bucket, p.key(name), err)
	}
	return data, nil
}

// Write implements FileProvider.
func (p *S3Provider) Write(ctx context.Context, name string, data []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", p.bucket, p.key(name), err)
	}
	return nil
}
