package premigrate_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/common/tests"
	"opencsg.com/pulp-migrator/common/types"
	"opencsg.com/pulp-migrator/migrator/plugins"
	"opencsg.com/pulp-migrator/migrator/premigrate"
	"opencsg.com/pulp-migrator/migrator/progress"
)

// stubLegacy serves units from fixed per-collection fixtures.
type stubLegacy struct {
	units map[string][]legacy.Unit
}

func (s *stubLegacy) ListUnitIDs(ctx context.Context, collection string) ([]string, error) {
	var ids []string
	for _, unit := range s.units[collection] {
		ids = append(ids, unit.ID())
	}
	return ids, nil
}

func (s *stubLegacy) ListUnitsSince(ctx context.Context, collection string, since int64) ([]legacy.Unit, error) {
	var units []legacy.Unit
	for _, unit := range s.units[collection] {
		if unit.LastUpdated() >= since {
			units = append(units, unit)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].LastUpdated() < units[j].LastUpdated() })
	return units, nil
}

func (s *stubLegacy) FindUnits(ctx context.Context, collection string, ids []string) ([]legacy.Unit, error) {
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var units []legacy.Unit
	for _, unit := range s.units[collection] {
		if wanted[unit.ID()] {
			units = append(units, unit)
		}
	}
	return units, nil
}

func (s *stubLegacy) ListRepositories(ctx context.Context, repoType string) ([]legacy.Repository, error) {
	return nil, nil
}

func (s *stubLegacy) FindRepository(ctx context.Context, repoID string) (*legacy.Repository, error) {
	return nil, legacy.ErrNoDocuments
}

func (s *stubLegacy) ImporterForRepo(ctx context.Context, repoID string, typeIDs []string) (*legacy.Importer, error) {
	return nil, legacy.ErrNoDocuments
}

func (s *stubLegacy) DistributorsForRepo(ctx context.Context, repoID string, typeIDs []string) ([]legacy.Distributor, error) {
	return nil, nil
}

func (s *stubLegacy) ListRepoContentUnits(ctx context.Context, repoID string, unitTypeIDs []string) ([]legacy.RepoContentUnit, error) {
	return nil, nil
}

func (s *stubLegacy) ListLazyCatalogEntries(ctx context.Context, unitTypeIDs []string) ([]legacy.LazyCatalogEntry, error) {
	return nil, nil
}

func isoUnit(id string, lastUpdated int64) legacy.Unit {
	return legacy.Unit{Doc: bson.M{
		"_id": id, "_last_updated": lastUpdated,
		"name": id + ".iso", "checksum": "c-" + id, "size": int64(4),
	}}
}

func erratumUnit(id string, lastUpdated int64) legacy.Unit {
	return legacy.Unit{Doc: bson.M{
		"_id": id, "_last_updated": lastUpdated, "errata_id": "RHSA-" + id,
	}}
}

func newReporter(t *testing.T, db *database.DB) (*progress.Reporter, *database.MigrationTaskStore, *database.MigrationTask) {
	t.Helper()
	taskStore := database.NewMigrationTaskStoreWithDB(db)
	task, err := taskStore.Create(context.TODO(), &database.MigrationTask{
		TaskID:          uuid.New().String(),
		MigrationPlanID: 1,
		Kind:            "migrate",
		Status:          types.MigrationTaskRunning,
		StartedAt:       time.Now(),
	})
	require.NoError(t, err)
	return progress.NewReporter(taskStore, task), taskStore, task
}

// Rerunning with one unit sharing the high-water-mark second must not
// re-premigrate it, while a genuinely new unit at that second is picked
// up.
func TestContentPremigratorSameSecondTieBreak(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()

	stub := &stubLegacy{units: map[string][]legacy.Unit{
		"units_iso": {isoUnit("a", 100), isoUnit("b", 250)},
	}}
	deps := plugins.NewDeps(&config.Config{}, stub, db)
	repos := database.NewPulp2RepositoryStoreWithDB(db)
	plugin, err := plugins.New("iso", deps)
	require.NoError(t, err)

	reporter, _, _ := newReporter(t, db)
	pre := premigrate.NewContentPremigrator(deps, repos, reporter, 100)
	require.NoError(t, pre.Run(ctx, plugin))

	count, err := deps.P2Contents.CountByType(ctx, "iso")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// second run: "c" appears at the exact mark second of "b"
	stub.units["units_iso"] = append(stub.units["units_iso"], isoUnit("c", 250))

	reporter, taskStore, task := newReporter(t, db)
	pre = premigrate.NewContentPremigrator(deps, repos, reporter, 100)
	require.NoError(t, pre.Run(ctx, plugin))

	count, err = deps.P2Contents.CountByType(ctx, "iso")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	exists, err := deps.P2Contents.ExistsAt(ctx, "iso", "c", 250)
	require.NoError(t, err)
	require.True(t, exists)

	// only "c" was a candidate; "b" sits at the mark and stayed skipped
	reports, err := taskStore.ListReports(ctx, task.ID)
	require.NoError(t, err)
	var found bool
	for _, report := range reports {
		if report.Code == "premigrate.iso" {
			found = true
			require.Equal(t, int64(1), report.Total)
			require.Equal(t, int64(1), report.Done)
		}
	}
	require.True(t, found)
}

// A changed mutable unit is rebuilt from scratch: the stale rows go
// away and every repository owning it loses its migrated state.
func TestContentPremigratorMutableInvalidation(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()

	stub := &stubLegacy{units: map[string][]legacy.Unit{
		"units_erratum": {erratumUnit("e1", 100)},
	}}
	deps := plugins.NewDeps(&config.Config{}, stub, db)
	repos := database.NewPulp2RepositoryStoreWithDB(db)
	plugin, err := plugins.New("rpm", deps)
	require.NoError(t, err)

	owner, _, err := repos.Upsert(ctx, &database.Pulp2Repository{
		Pulp2ObjectID: "oid-r1", Pulp2RepoID: "r1", Pulp2RepoType: "rpm-repo",
	})
	require.NoError(t, err)
	require.NoError(t, deps.P2RepoContent.ReplaceForRepo(ctx, owner.ID, []database.Pulp2RepoContent{
		{Pulp2RepositoryID: owner.ID, Pulp2UnitID: "e1", Pulp2ContentTypeID: "erratum"},
	}))

	reporter, _, _ := newReporter(t, db)
	pre := premigrate.NewContentPremigrator(deps, repos, reporter, 100)
	require.NoError(t, pre.Run(ctx, plugin))

	exists, err := deps.P2Contents.ExistsAt(ctx, "erratum", "e1", 100)
	require.NoError(t, err)
	require.True(t, exists)

	// the erratum changes upstream after the repo was fully migrated
	owner.IsMigrated = true
	require.NoError(t, repos.Update(ctx, owner))
	stub.units["units_erratum"] = []legacy.Unit{erratumUnit("e1", 200)}

	reporter, _, _ = newReporter(t, db)
	pre = premigrate.NewContentPremigrator(deps, repos, reporter, 100)
	require.NoError(t, pre.Run(ctx, plugin))

	row, err := repos.FindByPulp2RepoID(ctx, "r1")
	require.NoError(t, err)
	require.False(t, row.IsMigrated)

	exists, err = deps.P2Contents.ExistsAt(ctx, "erratum", "e1", 100)
	require.NoError(t, err)
	require.False(t, exists)
	exists, err = deps.P2Contents.ExistsAt(ctx, "erratum", "e1", 200)
	require.NoError(t, err)
	require.True(t, exists)
	count, err := deps.P2Contents.CountByType(ctx, "erratum")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

// An unchanged per-repo unit joining another repository gets a side
// row for the new owner without disturbing the old one.
func TestContentPremigratorFansOutNewOwner(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()

	stub := &stubLegacy{units: map[string][]legacy.Unit{
		"units_erratum": {erratumUnit("e1", 100)},
	}}
	deps := plugins.NewDeps(&config.Config{}, stub, db)
	repos := database.NewPulp2RepositoryStoreWithDB(db)
	plugin, err := plugins.New("rpm", deps)
	require.NoError(t, err)

	first, _, err := repos.Upsert(ctx, &database.Pulp2Repository{
		Pulp2ObjectID: "oid-r1", Pulp2RepoID: "r1", Pulp2RepoType: "rpm-repo",
	})
	require.NoError(t, err)
	require.NoError(t, deps.P2RepoContent.ReplaceForRepo(ctx, first.ID, []database.Pulp2RepoContent{
		{Pulp2RepositoryID: first.ID, Pulp2UnitID: "e1", Pulp2ContentTypeID: "erratum"},
	}))

	reporter, _, _ := newReporter(t, db)
	pre := premigrate.NewContentPremigrator(deps, repos, reporter, 100)
	require.NoError(t, pre.Run(ctx, plugin))

	count, err := deps.P2Contents.CountByType(ctx, "erratum")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// e1 joins a second repository without changing itself
	second, _, err := repos.Upsert(ctx, &database.Pulp2Repository{
		Pulp2ObjectID: "oid-r2", Pulp2RepoID: "r2", Pulp2RepoType: "rpm-repo",
	})
	require.NoError(t, err)
	require.NoError(t, deps.P2RepoContent.ReplaceForRepo(ctx, second.ID, []database.Pulp2RepoContent{
		{Pulp2RepositoryID: second.ID, Pulp2UnitID: "e1", Pulp2ContentTypeID: "erratum"},
	}))
	first.IsMigrated = true
	require.NoError(t, repos.Update(ctx, first))

	reporter, _, _ = newReporter(t, db)
	pre = premigrate.NewContentPremigrator(deps, repos, reporter, 100)
	require.NoError(t, pre.Run(ctx, plugin))

	count, err = deps.P2Contents.CountByType(ctx, "erratum")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// the unchanged unit was no candidate, so the first owner's
	// migrated state survives
	row, err := repos.FindByPulp2RepoID(ctx, "r1")
	require.NoError(t, err)
	require.True(t, row.IsMigrated)
}