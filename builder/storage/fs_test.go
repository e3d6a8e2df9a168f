package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/common/errorx"
)

func writeSource(t *testing.T, dir, name, content string) (string, string, int64) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sum := sha256.Sum256([]byte(content))
	return path, hex.EncodeToString(sum[:]), int64(len(content))
}

func TestFSStorage_Store(t *testing.T) {
	ctx := context.TODO()
	src := t.TempDir()
	root := t.TempDir()
	store := NewFSStorage(root)

	srcPath, digest, size := writeSource(t, src, "a.iso", "hello artifact")

	relPath, err := store.Store(ctx, srcPath, digest, size)
	require.NoError(t, err)
	require.Equal(t, ArtifactPath(digest), relPath)

	stored, err := os.ReadFile(filepath.Join(root, relPath))
	require.NoError(t, err)
	require.Equal(t, "hello artifact", string(stored))

	exists, err := store.Exists(ctx, digest)
	require.NoError(t, err)
	require.True(t, exists)

	// storing the same digest again is a no-op
	relPath2, err := store.Store(ctx, srcPath, digest, size)
	require.NoError(t, err)
	require.Equal(t, relPath, relPath2)
}

func TestFSStorage_StoreVerifiesCopy(t *testing.T) {
	ctx := context.TODO()
	src := t.TempDir()
	store := NewFSStorage(t.TempDir())

	srcPath, _, size := writeSource(t, src, "bad.iso", "corrupted bytes")
	wrongDigest := "00" + hex.EncodeToString(make([]byte, 31))

	// the hardlink path never reads the bytes, exercise the copy path
	// directly
	dstPath := filepath.Join(t.TempDir(), "out")
	err := store.copyAndVerify(ctx, srcPath, dstPath, wrongDigest, size)
	require.Error(t, err)
	require.ErrorIs(t, err, errorx.ErrArtifactValidation)

	// size mismatch is also a validation failure
	_, goodDigest, _ := writeSource(t, src, "sized.iso", "exact")
	err = store.copyAndVerify(ctx, filepath.Join(src, "sized.iso"), dstPath, goodDigest, 999)
	require.Error(t, err)
	require.ErrorIs(t, err, errorx.ErrArtifactValidation)
}

func TestFSStorage_Remove(t *testing.T) {
	ctx := context.TODO()
	src := t.TempDir()
	root := t.TempDir()
	store := NewFSStorage(root)

	srcPath, digest, size := writeSource(t, src, "a.iso", "bytes")
	relPath, err := store.Store(ctx, srcPath, digest, size)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, relPath))
	exists, err := store.Exists(ctx, digest)
	require.NoError(t, err)
	require.False(t, exists)

	// removing twice is fine
	require.NoError(t, store.Remove(ctx, relPath))
}
