package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minio/sha256-simd"

	"opencsg.com/pulp-migrator/common/errorx"
)

// FSStorage keeps artifacts on a local or mounted filesystem under a
// media root. It prefers hardlinks so a migration sharing a filesystem
// with the legacy storage copies nothing.
type FSStorage struct {
	root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{root: root}
}

func (s *FSStorage) Store(ctx context.Context, srcPath, sha256Hex string, size int64) (string, error) {
	relPath := ArtifactPath(sha256Hex)
	dstPath := filepath.Join(s.root, relPath)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", err
	}

	err := os.Link(srcPath, dstPath)
	if err == nil {
		return relPath, nil
	}
	if errors.Is(err, fs.ErrExist) {
		// another run or an earlier slice already stored this digest
		return relPath, nil
	}

	// cross-device or permission trouble, fall back to a verifying copy
	slog.Debug("hardlink failed, copying artifact",
		slog.String("src", srcPath), slog.Any("error", err))
	if err := s.copyAndVerify(ctx, srcPath, dstPath, sha256Hex, size); err != nil {
		return "", err
	}
	return relPath, nil
}

func (s *FSStorage) copyAndVerify(ctx context.Context, srcPath, dstPath, sha256Hex string, size int64) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".copy-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	h := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		return err
	}
	if size >= 0 && written != size {
		return errorx.ArtifactValidation(srcPath, sha256Hex, hex.EncodeToString(h.Sum(nil)))
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != sha256Hex {
		return errorx.ArtifactValidation(srcPath, sha256Hex, got)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	err = os.Rename(tmp.Name(), dstPath)
	if err != nil && errors.Is(err, fs.ErrExist) {
		return nil
	}
	return err
}

func (s *FSStorage) Exists(ctx context.Context, sha256Hex string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, ArtifactPath(sha256Hex)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSStorage) Remove(ctx context.Context, relPath string) error {
	err := os.Remove(filepath.Join(s.root, relPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
