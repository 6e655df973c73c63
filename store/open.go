package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	// Path is the filesystem root for fs, or "bucket/prefix" for s3.
	Path        string
	Region      string
	Endpoint    string
	S3PathStyle bool
	RedisURL    string
	RedisPrefix string
}

// Open constructs the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFS, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("store path is required for %s backend", BackendFS)
		}
		return NewLodeFS(opts.Path), nil
	case BackendS3:
		bucket, prefix := ParseS3Path(opts.Path)
		return NewLodeS3(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.Region,
			Endpoint:     opts.Endpoint,
			UsePathStyle: opts.S3PathStyle,
		})
	case BackendRedis:
		return NewRedis(ctx, RedisConfig{URL: opts.RedisURL, Namespace: opts.RedisPrefix})
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s, %s, %s or %s)",
			opts.Backend, BackendFS, BackendS3, BackendRedis, BackendMemory)
	}
}
