package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
)

func TestPulp2ContentStore_BulkInsertIgnore(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2ContentStoreWithDB(db)

	rows := []database.Pulp2Content{
		{Pulp2ID: "u1", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 100},
		{Pulp2ID: "u2", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 200},
	}
	require.NoError(t, store.BulkInsertIgnore(ctx, rows))
	// same batch again is ignored, not duplicated
	require.NoError(t, store.BulkInsertIgnore(ctx, rows))

	count, err := store.CountByType(ctx, "iso")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	resolved, err := store.ResolveIDs(ctx, rows)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	for _, row := range resolved {
		require.NotZero(t, row.ID)
	}
}

func TestPulp2ContentStore_MaxLastUpdatedAndExistsAt(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2ContentStoreWithDB(db)

	// empty table has no high-water mark
	hwm, err := store.MaxLastUpdated(ctx, "iso")
	require.NoError(t, err)
	require.Equal(t, int64(0), hwm)

	require.NoError(t, store.BulkInsertIgnore(ctx, []database.Pulp2Content{
		{Pulp2ID: "u1", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 100},
		{Pulp2ID: "u2", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 250},
	}))

	hwm, err = store.MaxLastUpdated(ctx, "iso")
	require.NoError(t, err)
	require.Equal(t, int64(250), hwm)

	// the same-second tie break: a unit already stored at the mark is
	// not a new candidate
	exists, err := store.ExistsAt(ctx, "iso", "u2", 250)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.ExistsAt(ctx, "iso", "u3", 250)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPulp2ContentStore_PruneMissing(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2ContentStoreWithDB(db)

	require.NoError(t, store.BulkInsertIgnore(ctx, []database.Pulp2Content{
		{Pulp2ID: "keep", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 1},
		{Pulp2ID: "gone", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 2},
		{Pulp2ID: "other", Pulp2ContentTypeID: "rpm", Pulp2LastUpdated: 3},
	}))

	pruned, err := store.PruneMissing(ctx, "iso", []string{"keep"})
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	count, err := store.CountByType(ctx, "iso")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// other types are untouched
	count, err = store.CountByType(ctx, "rpm")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestPulp2ContentStore_RelatePulp3(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2ContentStoreWithDB(db)

	require.NoError(t, store.BulkInsertIgnore(ctx, []database.Pulp2Content{
		{Pulp2ID: "u1", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 1},
		{Pulp2ID: "u2", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 2},
	}))
	rows, err := store.ListUnmigrated(ctx, "iso")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	content := createContent(t, db, "u1")
	require.NoError(t, store.RelatePulp3(ctx, map[int64]int64{rows[0].ID: content.ID}))

	unmigrated, err := store.ListUnmigrated(ctx, "iso")
	require.NoError(t, err)
	require.Len(t, unmigrated, 1)
	require.Equal(t, rows[1].ID, unmigrated[0].ID)
}

func TestPulp2ContentStore_FindByRepoMembership(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2ContentStoreWithDB(db)
	repoStore := database.NewPulp2RepositoryStoreWithDB(db)
	memberStore := database.NewPulp2RepoContentStoreWithDB(db)

	repo, _, err := repoStore.Upsert(ctx, &database.Pulp2Repository{
		Pulp2ObjectID: "oid1", Pulp2RepoID: "zoo", Pulp2RepoType: "iso-repo",
	})
	require.NoError(t, err)

	require.NoError(t, store.BulkInsertIgnore(ctx, []database.Pulp2Content{
		{Pulp2ID: "in", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 1},
		{Pulp2ID: "out", Pulp2ContentTypeID: "iso", Pulp2LastUpdated: 2},
	}))
	require.NoError(t, memberStore.ReplaceForRepo(ctx, repo.ID, []database.Pulp2RepoContent{
		{Pulp2RepositoryID: repo.ID, Pulp2UnitID: "in", Pulp2ContentTypeID: "iso"},
	}))

	members, err := store.FindByRepoMembership(ctx, repo)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "in", members[0].Pulp2ID)
}
