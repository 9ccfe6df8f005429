package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalogerr"
)

// S3Tier persists cache blobs to an S3-compatible object store (Cloudflare
// R2, MinIO, AWS S3). Adapted from the upload pipeline's R2 client — same
// credential wiring, generalized to the cache's get/put/delete contract.
type S3Tier struct {
	client     *s3.Client
	bucketName string
	publicURL  string
	prefix     string
}

// NewS3Tier builds a tier from explicit R2/S3-style configuration.
func NewS3Tier(accountID, accessKeyID, secretAccessKey, bucketName, publicURL, prefix string) (*S3Tier, error) {
	if accountID == "" || accessKeyID == "" || secretAccessKey == "" || bucketName == "" {
		return nil, fmt.Errorf("missing object storage configuration")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	})

	return &S3Tier{client: client, bucketName: bucketName, publicURL: publicURL, prefix: prefix}, nil
}

func (t *S3Tier) key(id uuid.UUID) string {
	if t.prefix == "" {
		return id.String()
	}
	return t.prefix + "/" + id.String()
}

func (t *S3Tier) Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucketName),
		Key:    aws.String(t.key(id)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read object body: %w", err)
	}
	return data, true, nil
}

func (t *S3Tier) Put(ctx context.Context, id uuid.UUID, blob []byte) (string, error) {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucketName),
		Key:    aws.String(t.key(id)),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "QuotaExceededException" || apiErr.ErrorCode() == "InsufficientStorage") {
			return "", catalogerr.StorageFull("persistent cache write refused for space", err)
		}
		return "", fmt.Errorf("put object: %w", err)
	}
	return t.urlFor(id), nil
}

func (t *S3Tier) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucketName),
		Key:    aws.String(t.key(id)),
	})
	return err
}

func (t *S3Tier) urlFor(id uuid.UUID) string {
	if t.publicURL != "" {
		return fmt.Sprintf("%s/%s", t.publicURL, t.key(id))
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s/%s",
		os.Getenv("R2_ACCOUNT_ID"), t.bucketName, t.key(id))
}
