package blob

import (
	"context"
	"fmt"

	"opsreport/internal/infra/blob/fs"
	"opsreport/internal/infra/blob/memory"
	"opsreport/internal/infra/blob/s3"
)

// S3Config carries the bucket and endpoint settings for the s3 driver.
type S3Config = s3.Config

// Config selects and parameterizes a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the blob.Store described by cfg. An empty driver selects the
// filesystem backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory store, used by tests of dependent packages.
func NewMemory() Store { return memory.New() }
