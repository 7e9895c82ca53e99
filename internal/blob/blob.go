// Package blob hands out presigned upload URLs for progress photos stored in an
// S3-compatible bucket (DigitalOcean Spaces by default).
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fuelupapp/fuelup-server/internal/errors"
)

const (
	defaultFolder    = "photos"
	defaultExpiry    = time.Hour
	maxFilenameBytes = 200
)

// Config describes the bucket.
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UploadExpiry  time.Duration
	UsePathStyle  bool
}

// Upload is a presigned PUT plus where the object will be readable afterwards.
type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"key"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type deleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store presigns uploads into and deletes objects from one bucket.
type Store struct {
	cfg       Config
	presigner presigner
	objects   deleter
	now       func() time.Time
}

// New builds a Store with static credentials. The endpoint defaults to the
// Spaces endpoint of the configured region.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.Unavailable("photo storage is not configured")
	}
	if cfg.Region == "" {
		cfg.Region = "nyc3"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", cfg.Region)
	}
	if cfg.UploadExpiry <= 0 {
		cfg.UploadExpiry = defaultExpiry
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		cfg:       cfg,
		presigner: s3.NewPresignClient(client),
		objects:   client,
		now:       time.Now,
	}, nil
}

// PresignUpload returns a URL the client can PUT the photo to. The object key
// is {folder}/{unixMillis}-{filename}.
func (s *Store) PresignUpload(ctx context.Context, folder, filename, contentType string) (*Upload, error) {
	name := sanitizeSegment(path.Base(strings.ReplaceAll(filename, `\`, "/")))
	if name == "" || name == "." {
		return nil, errors.Validation("filename is required")
	}
	if len(name) > maxFilenameBytes {
		name = name[len(name)-maxFilenameBytes:]
	}
	if contentType == "" {
		return nil, errors.Validation("contentType is required")
	}

	dir, err := cleanFolder(folder)
	if err != nil {
		return nil, err
	}

	now := s.now()
	key := fmt.Sprintf("%s/%d-%s", dir, now.UnixMilli(), name)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}, s3.WithPresignExpires(s.cfg.UploadExpiry))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnavailable, "failed to generate upload URL")
	}

	return &Upload{
		UploadURL: req.URL,
		Key:       key,
		PublicURL: s.PublicURL(key),
		ExpiresAt: now.Add(s.cfg.UploadExpiry),
	}, nil
}

// Delete removes an object. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return errors.Validationf("invalid photo key %q", key)
	}
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "failed to delete photo")
	}
	return nil
}

// PublicURL is where a stored object can be fetched without credentials.
func (s *Store) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

func cleanFolder(folder string) (string, error) {
	if folder == "" {
		return defaultFolder, nil
	}
	parts := strings.Split(strings.Trim(folder, "/"), "/")
	for i, p := range parts {
		if p == "" || p == "." || p == ".." {
			return "", errors.Validationf("invalid folder %q", folder)
		}
		parts[i] = sanitizeSegment(p)
	}
	return strings.Join(parts, "/"), nil
}

// sanitizeSegment keeps letters, digits, '.', '_' and '-'; anything else becomes '-'.
func sanitizeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
