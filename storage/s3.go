package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/docsig/signature-service/interfaces"
)

// S3Backend persists directory entries in an Amazon S3 or compatible
// bucket, one JSON object per entry under a configurable prefix.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates an S3 storage backend. If accessKey and secretKey
// are empty the default credential chain is used.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		// Most S3-compatible services require path-style addressing.
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// Save writes an entry, overwriting any previous object for its id.
func (b *S3Backend) Save(ctx context.Context, entry *interfaces.DirectoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	key := b.objectKey(entry.ID)
	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store entry in S3: %w", err)
	}

	b.log.Debug("Stored directory entry", slog.String("key", key), slog.Int("size", len(data)))
	return nil
}

// Delete removes the object for id. A missing object is not an error.
func (b *S3Backend) Delete(ctx context.Context, id string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(id)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil
		}
		return fmt.Errorf("failed to delete entry from S3: %w", err)
	}
	return nil
}

// Load lists and reads every entry object under the prefix.
func (b *S3Backend) Load(ctx context.Context) ([]*interfaces.DirectoryEntry, error) {
	var entries []*interfaces.DirectoryEntry

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(b.prefix),
	}
	err := b.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}

			out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
				Bucket: aws.String(b.bucketName),
				Key:    aws.String(key),
			})
			if err != nil {
				b.log.Warn("Failed to fetch entry object", "key", key, "err", err)
				continue
			}

			data, err := io.ReadAll(out.Body)
			out.Body.Close()
			if err != nil {
				b.log.Warn("Failed to read entry object", "key", key, "err", err)
				continue
			}

			var entry interfaces.DirectoryEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				b.log.Warn("Skipping unparsable entry object", "key", key, "err", err)
				continue
			}
			entries = append(entries, &entry)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries in S3: %w", err)
	}

	return entries, nil
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s-%s", b.bucketName, b.prefix)
}

func (b *S3Backend) objectKey(id string) string {
	return path.Join(b.prefix, id+".json")
}
