package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
)

func TestRepositoryStore_GetOrCreate(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewRepositoryStoreWithDB(db)

	repo, created, err := store.GetOrCreate(ctx, "zoo", "file.file")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "file.file", repo.PulpType)

	// repositories start with an empty version 0
	version, err := store.LatestVersion(ctx, repo.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), version.Number)
	require.True(t, version.Complete)

	again, created, err := store.GetOrCreate(ctx, "zoo", "file.file")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, repo.ID, again.ID)
}

func createContent(t *testing.T, db *database.DB, name string) *database.Content {
	t.Helper()
	store := database.NewContentStoreWithDB(db)
	content, err := store.Create(context.TODO(), &database.Content{
		PulpType: "file.file",
		Name:     name,
		Digest:   name + "-digest",
	})
	require.NoError(t, err)
	return content
}

func TestRepositoryStore_NewVersion(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewRepositoryStoreWithDB(db)

	repo, _, err := store.GetOrCreate(ctx, "zoo", "file.file")
	require.NoError(t, err)

	a := createContent(t, db, "a")
	b := createContent(t, db, "b")
	c := createContent(t, db, "c")

	v1, err := store.NewVersion(ctx, repo.ID, []int64{a.ID, b.ID})
	require.NoError(t, err)
	require.NotNil(t, v1)
	require.Equal(t, int64(1), v1.Number)
	require.True(t, v1.Complete)

	ids, err := store.VersionContentIDs(ctx, v1)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{a.ID, b.ID}, ids)

	// same membership again is not a new version
	unchanged, err := store.NewVersion(ctx, repo.ID, []int64{b.ID, a.ID})
	require.NoError(t, err)
	require.Nil(t, unchanged)

	// mirror semantics: b removed, c added
	v2, err := store.NewVersion(ctx, repo.ID, []int64{a.ID, c.ID})
	require.NoError(t, err)
	require.NotNil(t, v2)
	require.Equal(t, int64(2), v2.Number)

	ids, err = store.VersionContentIDs(ctx, v2)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{a.ID, c.ID}, ids)

	// the old version still answers with its own membership
	ids, err = store.VersionContentIDs(ctx, v1)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{a.ID, b.ID}, ids)

	latest, err := store.LatestVersion(ctx, repo.ID)
	require.NoError(t, err)
	require.Equal(t, v2.ID, latest.ID)
}

func TestRepositoryStore_NewVersionEmpty(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewRepositoryStoreWithDB(db)

	repo, _, err := store.GetOrCreate(ctx, "empty", "file.file")
	require.NoError(t, err)

	// empty incoming set matches the empty version 0
	version, err := store.NewVersion(ctx, repo.ID, nil)
	require.NoError(t, err)
	require.Nil(t, version)
}

func TestRepositoryStore_Delete(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewRepositoryStoreWithDB(db)

	repo, _, err := store.GetOrCreate(ctx, "doomed", "file.file")
	require.NoError(t, err)
	a := createContent(t, db, "a")
	_, err = store.NewVersion(ctx, repo.ID, []int64{a.ID})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, repo.ID))

	_, err = store.FindByName(ctx, "doomed")
	require.Error(t, err)

	repos, err := store.ListByType(ctx, "file.file")
	require.NoError(t, err)
	require.Empty(t, repos)
}
