package storage

import (
	"context"
	"fmt"
	"path"

	"opencsg.com/pulp-migrator/common/config"
)

// ArtifactStorage is the content-addressed store migrated artifacts
// land in. Store must be idempotent: storing the same digest twice is
// a no-op, whichever run got there first wins.
type ArtifactStorage interface {
	// Store places the file at srcPath under the given sha256 digest
	// and returns the storage-relative path of the artifact.
	Store(ctx context.Context, srcPath, sha256Hex string, size int64) (string, error)
	Exists(ctx context.Context, sha256Hex string) (bool, error)
	Remove(ctx context.Context, relPath string) error
}

func NewArtifactStorage(cfg *config.Config) (ArtifactStorage, error) {
	switch cfg.Storage.Backend {
	case "fs":
		return NewFSStorage(cfg.Storage.MediaRoot), nil
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// ArtifactPath returns the storage-relative location for a digest,
// sharded by the first two hex characters.
func ArtifactPath(sha256Hex string) string {
	return path.Join("media", "artifact", sha256Hex[:2], sha256Hex[2:])
}
