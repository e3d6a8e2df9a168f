package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMigrationPlan(t *testing.T) {
	doc := []byte(`{
		"plugins": [
			{"type": "iso"},
			{
				"type": "rpm",
				"repositories": [
					{
						"name": "zoo",
						"pulp2_importer_repository_id": "zoo-src",
						"repository_versions": [
							{
								"pulp2_repository_id": "zoo-v1",
								"pulp2_distributor_repository_ids": ["zoo-v1", "zoo-cdn"]
							},
							{"pulp2_repository_id": "zoo-v2"}
						]
					}
				]
			}
		]
	}`)

	spec, err := ParseMigrationPlan(doc)
	require.NoError(t, err)
	require.Len(t, spec.Plugins, 2)

	require.True(t, spec.Plugins[0].IsSimple())
	require.False(t, spec.Plugins[1].IsSimple())

	repo := spec.Plugins[1].Repositories[0]
	require.Equal(t, "zoo", repo.Name)
	require.Equal(t, "zoo-src", repo.Pulp2ImporterRepositoryID)
	require.Len(t, repo.RepositoryVersions, 2)
	require.Equal(t, []string{"zoo-v1", "zoo-cdn"}, repo.RepositoryVersions[0].Pulp2DistributorRepositoryIDs)
	require.Empty(t, repo.RepositoryVersions[1].Pulp2DistributorRepositoryIDs)
}

func TestParseMigrationPlanRejectsUnknownKeys(t *testing.T) {
	_, err := ParseMigrationPlan([]byte(`{"plugins": [{"type": "iso", "options": {}}]}`))
	require.Error(t, err)

	_, err = ParseMigrationPlan([]byte(`{"plugin": []}`))
	require.Error(t, err)
}

func TestParseMigrationPlanRejectsEmpty(t *testing.T) {
	_, err := ParseMigrationPlan([]byte(`{"plugins": []}`))
	require.Error(t, err)

	_, err = ParseMigrationPlan([]byte(`{"plugins": [{"repositories": []}]}`))
	require.Error(t, err)
}
