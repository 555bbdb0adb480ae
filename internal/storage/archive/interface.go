// Package archive keeps backtest reports and ledger exports in cold
// storage, either a local directory or an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/core"
)

// ErrNotFound is returned by Read for a key that holds no object.
var ErrNotFound = errors.New("archive: object not found")

// Storage is a flat object store addressed by slash-separated keys.
type Storage interface {
	Write(ctx context.Context, key string, data []byte) error
	// Read returns ErrNotFound when key holds nothing.
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// New opens the backend named by cfg.Type.
func New(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		if cfg.Path == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.archive.path is required for localfs"))
		}
		return NewLocalFS(cfg.Path)
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.archive.s3.bucket is required"))
		}
		return NewS3(S3Config(cfg.S3))
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}
