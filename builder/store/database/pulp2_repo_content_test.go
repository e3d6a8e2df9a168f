package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/tests"
)

// A per-repo unit that joins another repository without changing keeps
// its old timestamp, so the incremental selection never picks it up.
// The membership snapshot is what reveals the missing (unit, repo) row.
func TestPulp2RepoContentStore_UnitsMissingPerRepoRows(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	store := database.NewPulp2RepoContentStoreWithDB(db)
	contents := database.NewPulp2ContentStoreWithDB(db)

	first := createLegacyRepo(t, db, "first", true)
	second := createLegacyRepo(t, db, "second", true)

	// e1 was pre-migrated while only "first" held it
	require.NoError(t, contents.BulkInsertIgnore(ctx, []database.Pulp2Content{
		{Pulp2ID: "e1", Pulp2ContentTypeID: "erratum", Pulp2LastUpdated: 100, Pulp2RepoID: &first.ID},
	}))
	require.NoError(t, store.ReplaceForRepo(ctx, first.ID, []database.Pulp2RepoContent{
		{Pulp2RepositoryID: first.ID, Pulp2UnitID: "e1", Pulp2ContentTypeID: "erratum"},
	}))

	missing, err := store.UnitsMissingPerRepoRows(ctx, "erratum")
	require.NoError(t, err)
	require.Empty(t, missing)

	// e1 joins "second" with no change to the unit itself
	require.NoError(t, store.ReplaceForRepo(ctx, second.ID, []database.Pulp2RepoContent{
		{Pulp2RepositoryID: second.ID, Pulp2UnitID: "e1", Pulp2ContentTypeID: "erratum"},
	}))

	missing, err = store.UnitsMissingPerRepoRows(ctx, "erratum")
	require.NoError(t, err)
	require.Equal(t, []string{"e1"}, missing)

	// once the pair row exists the unit is covered again
	require.NoError(t, contents.BulkInsertIgnore(ctx, []database.Pulp2Content{
		{Pulp2ID: "e1", Pulp2ContentTypeID: "erratum", Pulp2LastUpdated: 100, Pulp2RepoID: &second.ID},
	}))
	missing, err = store.UnitsMissingPerRepoRows(ctx, "erratum")
	require.NoError(t, err)
	require.Empty(t, missing)
}