package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
	"opencsg.com/pulp-migrator/common/types"
)

func TestRepoSetupStore_StatusMachine(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewRepoSetupStoreWithDB(db)

	// first run: fresh relations are "new"
	require.NoError(t, store.SetImporter(ctx, "zoo", "iso", "zoo"))
	require.NoError(t, store.SetDistributors(ctx, "zoo", "iso", []string{"zoo", "zoo-cdn"}))

	rows, err := store.ListByRepoID(ctx, "zoo")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Equal(t, types.RepoSetupNew, row.Status)
	}

	changed, err := store.ListNotUpToDateRepoIDs(ctx, []string{"iso"})
	require.NoError(t, err)
	require.Equal(t, []string{"zoo"}, changed)

	require.NoError(t, store.Finalize(ctx, []string{"iso"}))

	// second run repeats the importer, drops "zoo-cdn" and adds "mirror"
	require.NoError(t, store.SetImporter(ctx, "zoo", "iso", "zoo"))
	require.NoError(t, store.SetDistributors(ctx, "zoo", "iso", []string{"zoo", "mirror"}))

	rows, err = store.ListByRepoID(ctx, "zoo")
	require.NoError(t, err)
	statuses := map[string]types.RepoSetupStatus{}
	for _, row := range rows {
		if row.ResourceType == types.ResourceDistributor {
			statuses[row.Pulp2ResourceRepo] = row.Status
		}
	}
	require.Equal(t, types.RepoSetupUpToDate, statuses["zoo"])
	require.Equal(t, types.RepoSetupNew, statuses["mirror"])
	require.Equal(t, types.RepoSetupOld, statuses["zoo-cdn"])

	changed, err = store.ListNotUpToDateRepoIDs(ctx, []string{"iso"})
	require.NoError(t, err)
	require.Equal(t, []string{"zoo"}, changed)

	// finalize drops the relation the plan no longer names
	require.NoError(t, store.Finalize(ctx, []string{"iso"}))
	rows, err = store.ListByRepoID(ctx, "zoo")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.NotEqual(t, "zoo-cdn", row.Pulp2ResourceRepo)
		require.Equal(t, types.RepoSetupOld, row.Status)
	}
}

func TestRepoSetupStore_UnchangedPlanIsUpToDate(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewRepoSetupStoreWithDB(db)

	require.NoError(t, store.SetImporter(ctx, "zoo", "iso", "zoo"))
	require.NoError(t, store.SetDistributors(ctx, "zoo", "iso", []string{"zoo"}))
	require.NoError(t, store.Finalize(ctx, []string{"iso"}))

	// identical rerun flips everything to up_to_date
	require.NoError(t, store.SetImporter(ctx, "zoo", "iso", "zoo"))
	require.NoError(t, store.SetDistributors(ctx, "zoo", "iso", []string{"zoo"}))

	changed, err := store.ListNotUpToDateRepoIDs(ctx, []string{"iso"})
	require.NoError(t, err)
	require.Empty(t, changed)
}
