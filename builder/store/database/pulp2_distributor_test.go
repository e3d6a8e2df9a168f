package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
)

func createLegacyRepo(t *testing.T, db *database.DB, repoID string, migrated bool) *database.Pulp2Repository {
	t.Helper()
	store := database.NewPulp2RepositoryStoreWithDB(db)
	repo, _, err := store.Upsert(context.TODO(), &database.Pulp2Repository{
		Pulp2ObjectID: "oid-" + repoID,
		Pulp2RepoID:   repoID,
		Pulp2RepoType: "iso-repo",
		IsMigrated:    migrated,
	})
	require.NoError(t, err)
	return repo
}

func TestPulp2DistributorStore_Upsert(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2DistributorStoreWithDB(db)
	repo := createLegacyRepo(t, db, "zoo", true)

	dist, existed, err := store.Upsert(ctx, &database.Pulp2Distributor{
		Pulp2ObjectID: "d1",
		Pulp2ID:       "zoo_distributor",
		Pulp2TypeID:   "iso_distributor",
		Pulp2Config:   map[string]interface{}{"relative_url": "zoo"},
	}, []int64{repo.ID})
	require.NoError(t, err)
	require.False(t, existed)

	// rerun keeps bindings and migration state
	dist.IsMigrated = true
	require.NoError(t, store.Update(ctx, dist))

	again, existed, err := store.Upsert(ctx, &database.Pulp2Distributor{
		Pulp2ObjectID: "d1",
		Pulp2ID:       "zoo_distributor",
		Pulp2TypeID:   "iso_distributor",
		Pulp2Config:   map[string]interface{}{"relative_url": "zoo2"},
	}, []int64{repo.ID})
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, dist.ID, again.ID)
	require.True(t, again.IsMigrated)
}

func TestPulp2DistributorStore_ListOutdated(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2DistributorStoreWithDB(db)

	steady := createLegacyRepo(t, db, "steady", true)
	churned := createLegacyRepo(t, db, "churned", false)

	_, _, err := store.Upsert(ctx, &database.Pulp2Distributor{
		Pulp2ObjectID: "d-steady", Pulp2ID: "steady", Pulp2TypeID: "iso_distributor",
	}, []int64{steady.ID})
	require.NoError(t, err)
	_, _, err = store.Upsert(ctx, &database.Pulp2Distributor{
		Pulp2ObjectID: "d-churned", Pulp2ID: "churned", Pulp2TypeID: "iso_distributor",
	}, []int64{churned.ID})
	require.NoError(t, err)

	outdated, err := store.ListOutdated(ctx, []string{"iso_distributor"})
	require.NoError(t, err)
	require.Len(t, outdated, 1)
	require.Equal(t, "d-churned", outdated[0].Pulp2ObjectID)
}

func TestPulp2DistributorStore_TearDownServing(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2DistributorStoreWithDB(db)
	publications := database.NewPublicationStoreWithDB(db)
	distributions := database.NewDistributionStoreWithDB(db)
	repo := createLegacyRepo(t, db, "zoo", true)

	pub, err := publications.Create(ctx, &database.Publication{
		PulpType:            "file.file",
		RepositoryVersionID: 7,
	})
	require.NoError(t, err)

	a, _, err := store.Upsert(ctx, &database.Pulp2Distributor{
		Pulp2ObjectID: "da", Pulp2ID: "a", Pulp2TypeID: "iso_distributor",
	}, []int64{repo.ID})
	require.NoError(t, err)
	b, _, err := store.Upsert(ctx, &database.Pulp2Distributor{
		Pulp2ObjectID: "db", Pulp2ID: "b", Pulp2TypeID: "iso_distributor",
	}, []int64{repo.ID})
	require.NoError(t, err)

	// both distributors share the publication, each with its own
	// distribution
	var distributionIDs []int64
	for _, dist := range []*database.Pulp2Distributor{a, b} {
		served, err := distributions.Upsert(ctx, &database.Distribution{
			Name:          "serve-" + dist.Pulp2ID,
			PulpType:      "file.file",
			BasePath:      "base/" + dist.Pulp2ID,
			PublicationID: &pub.ID,
		})
		require.NoError(t, err)
		distributionIDs = append(distributionIDs, served.ID)
		dist.Pulp3PublicationID = &pub.ID
		dist.Pulp3DistributionID = &served.ID
		dist.IsMigrated = true
		require.NoError(t, store.Update(ctx, dist))
	}

	siblings, err := store.ListByPublicationID(ctx, pub.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 2)

	err = store.TearDownServing(ctx, &pub.ID, distributionIDs, []int64{a.ID, b.ID})
	require.NoError(t, err)

	_, err = publications.FindByID(ctx, pub.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
	for _, dist := range []*database.Pulp2Distributor{a, b} {
		_, err = distributions.FindByName(ctx, "serve-"+dist.Pulp2ID)
		require.ErrorIs(t, err, sql.ErrNoRows)
	}
	for _, objectID := range []string{"da", "db"} {
		row, err := store.FindByObjectID(ctx, objectID)
		require.NoError(t, err)
		require.Nil(t, row.Pulp3PublicationID)
		require.Nil(t, row.Pulp3DistributionID)
		require.False(t, row.IsMigrated)
	}
}
