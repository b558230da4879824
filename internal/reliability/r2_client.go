// Package reliability adapts the backup/restore concern to finintel's two
// stores: MetaStore (sqlite file) and ResearchStore's locally staged PDF
// reports (spec §6 filesystem layout `<root>/research/...`). Grounded on
// the teacher's reliability package shape (BackupService/R2BackupService
// split); the R2 client itself is written fresh against aws-sdk-go-v2 since
// the teacher's own r2_client.go was not part of this retrieval.
package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// R2Client wraps an S3-compatible client pointed at a Cloudflare R2 bucket.
// R2 exposes the S3 API at an account-scoped endpoint, so the only
// difference from plain S3 is the BaseEndpoint and forced path-style
// addressing.
type R2Client struct {
	s3       *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewR2Client builds an R2Client from static credentials and an account ID.
func NewR2Client(accountID, accessKeyID, secretAccessKey, bucketName string, log zerolog.Logger) (*R2Client, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		s3:       client,
		uploader: manager.NewUploader(client),
		bucket:   bucketName,
		log:      log.With().Str("component", "r2_client").Logger(),
	}, nil
}

// Upload streams body to the bucket under key.
func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to r2: %w", key, err)
	}
	return nil
}

// ObjectSummary is the subset of s3.Object fields this package consumes.
type ObjectSummary struct {
	Key  *string
	Size *int64
}

// List returns every object whose key starts with prefix.
func (c *R2Client) List(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	var out []ObjectSummary
	var continuationToken *string
	for {
		resp, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list r2 objects: %w", err)
		}
		for _, obj := range resp.Contents {
			out = append(out, ObjectSummary{Key: obj.Key, Size: obj.Size})
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuationToken = resp.NextContinuationToken
	}
	return out, nil
}

// Delete removes a single object.
func (c *R2Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from r2: %w", key, err)
	}
	return nil
}

// Download fetches an object's full body.
func (c *R2Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from r2: %w", key, err)
	}
	return resp.Body, nil
}
