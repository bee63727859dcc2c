package commands

import (
	"context"
	"log/slog"

	"github.com/hupe1980/spill/backing"
	"github.com/hupe1980/spill/blobstore"
	"github.com/hupe1980/spill/blobstore/minio"
	"github.com/hupe1980/spill/blobstore/s3"
	"github.com/hupe1980/spill/block"
	"github.com/hupe1980/spill/config"
)

// matrixBackend routes file:// paths to LocalRoot, and s3:// and minio://
// paths to their configured buckets.
func matrixBackend(ctx context.Context, cfg config.BackingConfig, log *slog.Logger) (*backing.Router[*block.Matrix], error) {
	opts := []backing.Option{
		backing.WithDefaultFormat(cfg.Format),
		backing.WithLogger(log),
	}

	r := backing.NewRouter(backing.NewMatrixStore(blobstore.NewLocalStore(cfg.LocalRoot), opts...))

	if m := cfg.MinIO; m != nil {
		client, err := minio.Dial(m.Endpoint, m.AccessKey, m.SecretKey, m.Secure)
		if err != nil {
			return nil, err
		}
		r.Handle("minio", backing.NewMatrixStore(minio.NewStore(client, m.Bucket, minio.WithPrefix(m.Prefix)), opts...))
	}

	if cfg.S3 == nil {
		return r, nil
	}

	s3opts := []s3.Option{s3.WithPrefix(cfg.S3.Prefix)}
	if cfg.S3.Region != "" {
		s3opts = append(s3opts, s3.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.Endpoint != "" {
		s3opts = append(s3opts, s3.WithEndpoint(cfg.S3.Endpoint))
	}
	store, err := s3.New(ctx, cfg.S3.Bucket, s3opts...)
	if err != nil {
		return nil, err
	}
	r.Handle("s3", backing.NewMatrixStore(store, opts...))
	return r, nil
}
