package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/blob"
	"github.com/fuelupapp/fuelup-server/internal/config"
)

// PhotoStorage holds the photo bucket client. Store is nil when the bucket
// is not configured.
type PhotoStorage struct {
	Store *blob.Store
}

// ProvidePhotoStorage provides the S3-compatible photo bucket.
func ProvidePhotoStorage(i do.Injector) (*PhotoStorage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	if !cfg.Blob.Enabled() {
		log.Info("Photo storage disabled; bucket credentials not configured")
		return &PhotoStorage{}, nil
	}

	bs, err := blob.New(context.Background(), blob.Config{
		Endpoint:      cfg.Blob.Endpoint,
		Region:        cfg.Blob.Region,
		Bucket:        cfg.Blob.Bucket,
		AccessKey:     cfg.Blob.AccessKey,
		SecretKey:     cfg.Blob.SecretKey,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
		UploadExpiry:  cfg.Blob.UploadExpiry,
		UsePathStyle:  cfg.Blob.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("photo storage: %w", err)
	}

	log.Info("Photo storage ready", "bucket", cfg.Blob.Bucket, "region", cfg.Blob.Region)

	return &PhotoStorage{Store: bs}, nil
}
