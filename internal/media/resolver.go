// Package media resolves recording objects into signed playback URLs and
// integrity signatures.
package media

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrObjectNotFound is returned when the recording key does not exist in the
// bucket.
var ErrObjectNotFound = errors.New("media object not found")

// Resolver turns an object key into a playback URL and a content signature.
type Resolver interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Checksum(ctx context.Context, key string) (string, error)
}

type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Resolver resolves recordings stored in a single S3 bucket.
type S3Resolver struct {
	bucket  string
	objects objectAPI
	presign presignAPI
}

// NewS3Resolver wires a resolver over an S3 client.
func NewS3Resolver(client *s3.Client, bucket string) *S3Resolver {
	return &S3Resolver{
		bucket:  bucket,
		objects: client,
		presign: s3.NewPresignClient(client),
	}
}

func (r *S3Resolver) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Checksum streams the object and returns its SHA-512 digest in hex.
func (r *S3Resolver) Checksum(ctx context.Context, key string) (string, error) {
	out, err := r.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("get object %s: %w", key, ErrObjectNotFound)
		}
		return "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	h := sha512.New()
	if _, err := io.Copy(h, out.Body); err != nil {
		return "", fmt.Errorf("read object %s: %w", key, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
