package plan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/common/types"
	"opencsg.com/pulp-migrator/migrator/plan"
)

// fakeLegacy serves Validate from fixed repo and importer sets.
type fakeLegacy struct {
	repos     map[string]bool
	importers map[string]bool
}

func (f *fakeLegacy) FindRepository(ctx context.Context, repoID string) (*legacy.Repository, error) {
	if f.repos[repoID] {
		return &legacy.Repository{RepoID: repoID}, nil
	}
	return nil, legacy.ErrNoDocuments
}

func (f *fakeLegacy) ImporterForRepo(ctx context.Context, repoID string, typeIDs []string) (*legacy.Importer, error) {
	if f.importers[repoID] {
		return &legacy.Importer{RepoID: repoID}, nil
	}
	return nil, legacy.ErrNoDocuments
}

func (f *fakeLegacy) ListUnitIDs(ctx context.Context, collection string) ([]string, error) {
	return nil, nil
}

func (f *fakeLegacy) ListUnitsSince(ctx context.Context, collection string, since int64) ([]legacy.Unit, error) {
	return nil, nil
}

func (f *fakeLegacy) FindUnits(ctx context.Context, collection string, ids []string) ([]legacy.Unit, error) {
	return nil, nil
}

func (f *fakeLegacy) ListRepositories(ctx context.Context, repoType string) ([]legacy.Repository, error) {
	return nil, nil
}

func (f *fakeLegacy) DistributorsForRepo(ctx context.Context, repoID string, typeIDs []string) ([]legacy.Distributor, error) {
	return nil, nil
}

func (f *fakeLegacy) ListRepoContentUnits(ctx context.Context, repoID string, unitTypeIDs []string) ([]legacy.RepoContentUnit, error) {
	return nil, nil
}

func (f *fakeLegacy) ListLazyCatalogEntries(ctx context.Context, unitTypeIDs []string) ([]legacy.LazyCatalogEntry, error) {
	return nil, nil
}

func TestPluginInPlanRepoIDs(t *testing.T) {
	ep := plan.Plugin{
		Repositories: []plan.Repository{
			{
				Name:           "zoo",
				ImporterRepoID: "zoo",
				Versions: []types.RepositoryVersionSpec{
					{Pulp2RepositoryID: "zoo", Pulp2DistributorRepositoryIDs: []string{"zoo-cdn", "zoo"}},
					{Pulp2RepositoryID: "zoo-v2"},
				},
			},
			{
				Name:     "aux",
				Versions: []types.RepositoryVersionSpec{{Pulp2RepositoryID: "aux"}},
			},
		},
	}

	require.Equal(t, []string{"zoo", "zoo-cdn", "zoo-v2", "aux"}, ep.InPlanRepoIDs())
}

func TestPluginInPlanRepoIDsEmpty(t *testing.T) {
	ep := plan.Plugin{}
	require.Empty(t, ep.InPlanRepoIDs())
}

// Validate reports every gap instead of erroring out, so a normal run
// can prune and continue while a validation run surfaces the report.
func TestValidateReportsMissingWithoutFailing(t *testing.T) {
	client := &fakeLegacy{
		repos:     map[string]bool{"zoo": true},
		importers: map[string]bool{},
	}
	expanded := []plan.Plugin{{
		Repositories: []plan.Repository{{
			Name: "zoo",
			Versions: []types.RepositoryVersionSpec{
				{Pulp2RepositoryID: "zoo", Pulp2DistributorRepositoryIDs: []string{"zoo", "vanished"}},
				{Pulp2RepositoryID: "vanished"},
			},
		}},
	}}

	missing, err := plan.Validate(context.TODO(), client, expanded)
	require.NoError(t, err)
	require.NotNil(t, missing)
	require.Contains(t, missing.Repositories, "vanished")
	require.Contains(t, missing.Distributors, "vanished")

	clean := []plan.Plugin{{
		Repositories: []plan.Repository{{
			Name:     "zoo",
			Versions: []types.RepositoryVersionSpec{{Pulp2RepositoryID: "zoo"}},
		}},
	}}
	missing, err = plan.Validate(context.TODO(), client, clean)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestPruneDropsMissingResources(t *testing.T) {
	expanded := []plan.Plugin{{
		Repositories: []plan.Repository{
			{
				Name:           "zoo",
				ImporterRepoID: "zoo-source",
				Versions: []types.RepositoryVersionSpec{
					{Pulp2RepositoryID: "zoo", Pulp2DistributorRepositoryIDs: []string{"zoo", "zoo-cdn"}},
					{Pulp2RepositoryID: "zoo-old"},
				},
			},
			{
				Name:           "gone",
				ImporterRepoID: "gone",
				Versions:       []types.RepositoryVersionSpec{{Pulp2RepositoryID: "gone"}},
			},
		},
	}}
	missing := &types.MissingResources{
		Repositories: []string{"gone", "zoo-old"},
		Importers:    []string{"zoo-source"},
		Distributors: []string{"zoo-cdn"},
	}

	pruned := plan.Prune(expanded, missing)
	require.Len(t, pruned, 1)
	require.Len(t, pruned[0].Repositories, 1)

	repo := pruned[0].Repositories[0]
	require.Equal(t, "zoo", repo.Name)
	// the importer is gone, the repository still migrates without a
	// remote binding
	require.Empty(t, repo.ImporterRepoID)
	require.Len(t, repo.Versions, 1)
	require.Equal(t, "zoo", repo.Versions[0].Pulp2RepositoryID)
	require.Equal(t, []string{"zoo"}, repo.Versions[0].Pulp2DistributorRepositoryIDs)
}

func TestPruneNothingMissing(t *testing.T) {
	expanded := []plan.Plugin{{
		Repositories: []plan.Repository{{
			Name:     "zoo",
			Versions: []types.RepositoryVersionSpec{{Pulp2RepositoryID: "zoo"}},
		}},
	}}

	pruned := plan.Prune(expanded, nil)
	require.Equal(t, expanded, pruned)

	pruned = plan.Prune(expanded, &types.MissingResources{})
	require.Equal(t, expanded, pruned)
}
