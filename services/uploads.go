package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rpupo63/portfolio-api/errs"
)

const maxUploadExtLength = 10

// Upload is one file received from an admin.
type Upload struct {
	OriginalName string
	ContentType  string
	Size         int64
	Body         io.Reader
}

// FileStore persists uploads and returns the URL they are served from.
type FileStore interface {
	Save(ctx context.Context, upload Upload) (string, error)
}

// uploadName builds a collision-free name that keeps the original extension,
// truncated to ten characters.
func uploadName(now time.Time, originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	ext = strings.Map(func(r rune) rune {
		switch {
		case r == '.', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, ext)
	if len(ext) > maxUploadExtLength {
		ext = ext[:maxUploadExtLength]
	}
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString()[:8], ext)
}

// LocalFileStore writes uploads into a directory served under URLPrefix.
type LocalFileStore struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

func NewLocalFileStore(dir, urlPrefix string) (*LocalFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalFileStore{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/"), now: time.Now}, nil
}

func (s *LocalFileStore) Dir() string { return s.dir }

func (s *LocalFileStore) Save(ctx context.Context, upload Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uploadName(s.now(), upload.OriginalName)
	dest := filepath.Join(s.dir, name)

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, upload.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return s.urlPrefix + "/" + name, nil
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3FileStore puts uploads in a bucket under the uploads/ prefix.
type S3FileStore struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

func NewS3FileStore(ctx context.Context, region, bucket, publicBaseURL string) (*S3FileStore, error) {
	if bucket == "" {
		return nil, errs.NewConfigError("S3_BUCKET", errors.New("required for the s3 upload backend"))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return newS3FileStore(s3.NewFromConfig(cfg), bucket, publicBaseURL), nil
}

func newS3FileStore(client objectPutter, bucket, publicBaseURL string) *S3FileStore {
	return &S3FileStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

func (s *S3FileStore) Save(ctx context.Context, upload Upload) (string, error) {
	key := path.Join("uploads", uploadName(s.now(), upload.OriginalName))
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   upload.Body,
	}
	if upload.ContentType != "" {
		input.ContentType = aws.String(upload.ContentType)
	}
	if upload.Size > 0 {
		input.ContentLength = aws.Int64(upload.Size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.publicBaseURL + "/" + key, nil
}
