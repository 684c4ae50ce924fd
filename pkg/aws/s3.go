package aws

import (
	"bytes"
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PayloadArchiver writes verified provider bodies to a bucket, one object per
// event, server-side encrypted.
type PayloadArchiver struct {
	client S3API
	bucket string
}

func NewPayloadArchiver(cfg sdkaws.Config, bucket string) *PayloadArchiver {
	return NewPayloadArchiverWithClient(s3.NewFromConfig(cfg), bucket)
}

func NewPayloadArchiverWithClient(client S3API, bucket string) *PayloadArchiver {
	return &PayloadArchiver{client: client, bucket: bucket}
}

func (a *PayloadArchiver) Archive(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               sdkaws.String(a.bucket),
		Key:                  sdkaws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          sdkaws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s to s3://%s: %w", key, a.bucket, err)
	}
	return nil
}
