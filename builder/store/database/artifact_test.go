package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
)

func TestArtifactStore_GetOrCreate(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewArtifactStoreWithDB(db)

	first, err := store.GetOrCreate(ctx, &database.Artifact{
		File: "media/artifact/ab/cdef", Size: 10, Sha256: "abcdef",
	})
	require.NoError(t, err)

	// same digest resolves to the same row
	second, err := store.GetOrCreate(ctx, &database.Artifact{
		File: "media/artifact/ab/cdef", Size: 10, Sha256: "abcdef",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestArtifactStore_DeleteOrphans(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewArtifactStoreWithDB(db)

	kept, err := store.GetOrCreate(ctx, &database.Artifact{
		File: "media/artifact/ke/pt", Size: 1, Sha256: "kept",
	})
	require.NoError(t, err)
	_, err = store.GetOrCreate(ctx, &database.Artifact{
		File: "media/artifact/or/phan", Size: 1, Sha256: "orphan",
	})
	require.NoError(t, err)

	content := createContent(t, db, "holder")
	_, err = store.CreateContentArtifact(ctx, &database.ContentArtifact{
		ContentID: content.ID, ArtifactID: &kept.ID, RelativePath: "kept",
	})
	require.NoError(t, err)

	paths, err := store.DeleteOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"media/artifact/or/phan"}, paths)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// referenced artifact survived
	_, err = store.FindBySha256(ctx, "kept")
	require.NoError(t, err)
}
