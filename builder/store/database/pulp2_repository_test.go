package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
)

func TestPulp2RepositoryStore_MarkChangedRelations(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2RepositoryStoreWithDB(db)

	changed := createLegacyRepo(t, db, "changed", true)
	steady := createLegacyRepo(t, db, "steady", true)

	require.NoError(t, store.MarkChangedRelations(ctx, []string{"changed"}))

	row, err := store.FindByPulp2RepoID(ctx, changed.Pulp2RepoID)
	require.NoError(t, err)
	require.False(t, row.IsMigrated)

	row, err = store.FindByPulp2RepoID(ctx, steady.Pulp2RepoID)
	require.NoError(t, err)
	require.True(t, row.IsMigrated)
}

// Rerunning an unchanged plan must leave migrated repositories alone:
// after the previous run's relations are finalized, the repeated
// relations are all up to date, so no repo id comes back for clearing.
func TestPulp2RepositoryStore_UnchangedRerunKeepsMigrated(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2RepositoryStoreWithDB(db)
	setups := database.NewRepoSetupStoreWithDB(db)

	repo := createLegacyRepo(t, db, "zoo", true)

	// first run
	require.NoError(t, setups.SetImporter(ctx, "zoo", "iso", "zoo"))
	require.NoError(t, setups.SetDistributors(ctx, "zoo", "iso", []string{"zoo"}))
	require.NoError(t, setups.Finalize(ctx, []string{"iso"}))

	// identical second run
	require.NoError(t, setups.SetImporter(ctx, "zoo", "iso", "zoo"))
	require.NoError(t, setups.SetDistributors(ctx, "zoo", "iso", []string{"zoo"}))

	changed, err := setups.ListNotUpToDateRepoIDs(ctx, []string{"iso"})
	require.NoError(t, err)
	require.Empty(t, changed)

	require.NoError(t, store.MarkChangedRelations(ctx, changed))
	require.NoError(t, setups.Finalize(ctx, []string{"iso"}))

	row, err := store.FindByPulp2RepoID(ctx, repo.Pulp2RepoID)
	require.NoError(t, err)
	require.True(t, row.IsMigrated)
}

func TestPulp2RepositoryStore_MarkNotInPlanEmpty(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2RepositoryStoreWithDB(db)

	createLegacyRepo(t, db, "zoo", true)
	createLegacyRepo(t, db, "aux", false)

	// a plan matching no repository of the family is valid and puts
	// every row out of plan
	require.NoError(t, store.MarkNotInPlan(ctx, "iso-repo", nil))

	for _, repoID := range []string{"zoo", "aux"} {
		row, err := store.FindByPulp2RepoID(ctx, repoID)
		require.NoError(t, err)
		require.True(t, row.NotInPlan)
	}

	require.NoError(t, store.MarkNotInPlan(ctx, "iso-repo", []string{"zoo"}))
	row, err := store.FindByPulp2RepoID(ctx, "zoo")
	require.NoError(t, err)
	require.False(t, row.NotInPlan)
}