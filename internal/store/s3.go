package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3BytesTier backs object_storage.backend = "s3-compatible" (spec
// §6.6), grounded on the teacher's S3 client usage for its OSS bytes
// tier in pkg/serve/odb.
type S3BytesTier struct {
	client  *s3.Client
	bucket  string
	presign *s3.PresignClient
}

func NewS3BytesTier(client *s3.Client, bucket string) *S3BytesTier {
	return &S3BytesTier{
		client:  client,
		bucket:  bucket,
		presign: s3.NewPresignClient(client),
	}
}

func (t *S3BytesTier) PutStream(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("store: s3 put %s: %w", key, err)
	}
	return nil
}

func (t *S3BytesTier) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("store: s3 get %s: %w", key, err)
	}
	return out.Body, nil
}

func (t *S3BytesTier) GetRangeStream(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, fmt.Errorf("store: s3 get-range %s: %w", key, err)
	}
	return out.Body, nil
}

// SignedURL issues presigned GET or PUT URLs, used directly by the LFS
// batch endpoint (spec §4.M) so object bytes flow client<->bytes-tier
// without transiting the server.
func (t *S3BytesTier) SignedURL(ctx context.Context, key, method string, ttl time.Duration) (string, error) {
	switch method {
	case "GET":
		req, err := t.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	case "PUT":
		req, err := t.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	default:
		return "", fmt.Errorf("store: unsupported presign method %q", method)
	}
}

func (t *S3BytesTier) Exists(ctx context.Context, key string) (bool, error) {
	_, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (t *S3BytesTier) Delete(ctx context.Context, key string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	return err
}
