// Package archive stores snapshots of imported places as JSON objects, on
// the local filesystem or in an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DriverNone       = ""
	DriverFilesystem = "fs"
	DriverS3         = "s3"
)

// Archive writes one immutable object per key.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
}

type Options struct {
	Driver string
	// Dir is the root directory for the fs driver.
	Dir string
	S3  S3Options
}

// Open returns the archive selected by opts.Driver, or nil when archiving
// is disabled.
func Open(ctx context.Context, opts Options) (Archive, error) {
	switch opts.Driver {
	case DriverNone:
		return nil, nil
	case DriverFilesystem:
		return NewFilesystem(opts.Dir)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", opts.Driver)
	}
}

// cleanKey rejects keys that are empty, absolute or escape the root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", errors.New("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", errors.New("invalid key traversal")
	}
	return clean, nil
}
