package plan

import (
	"context"
	"database/sql"
	"errors"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/types"
	"opencsg.com/pulp-migrator/migrator/plugins"
)

// Repository is one target repository of the expanded plan with the
// ordered legacy repositories its versions come from.
type Repository struct {
	Name           string
	ImporterRepoID string
	Versions       []types.RepositoryVersionSpec
}

// Plugin is one family of the expanded plan.
type Plugin struct {
	Plugin       plugins.Plugin
	Spec         types.PluginSpec
	Repositories []Repository
}

// InPlanRepoIDs lists every legacy repository the family's plan entry
// touches, importer sources included.
func (p *Plugin) InPlanRepoIDs() []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, repo := range p.Repositories {
		add(repo.ImporterRepoID)
		for _, version := range repo.Versions {
			add(version.Pulp2RepositoryID)
			for _, dist := range version.Pulp2DistributorRepositoryIDs {
				add(dist)
			}
		}
	}
	return ids
}

// Expand turns the submitted plan into per-family recipes. A simple
// entry fabricates one target repository per legacy repository of the
// family, with the legacy repo as its own importer and distributor
// source.
func Expand(ctx context.Context, spec *types.MigrationPlanSpec, deps plugins.Deps) ([]Plugin, error) {
	expanded := make([]Plugin, 0, len(spec.Plugins))
	for _, pluginSpec := range spec.Plugins {
		plugin, err := plugins.New(pluginSpec.Type, deps)
		if err != nil {
			return nil, err
		}
		ep := Plugin{Plugin: plugin, Spec: pluginSpec}
		if pluginSpec.IsSimple() {
			repos, err := deps.Legacy.ListRepositories(ctx, plugin.RepoType())
			if err != nil {
				return nil, err
			}
			for _, repo := range repos {
				ep.Repositories = append(ep.Repositories, Repository{
					Name:           repo.RepoID,
					ImporterRepoID: repo.RepoID,
					Versions: []types.RepositoryVersionSpec{
						{Pulp2RepositoryID: repo.RepoID},
					},
				})
			}
		} else {
			for _, repoSpec := range pluginSpec.Repositories {
				importerRepoID := repoSpec.Pulp2ImporterRepositoryID
				ep.Repositories = append(ep.Repositories, Repository{
					Name:           repoSpec.Name,
					ImporterRepoID: importerRepoID,
					Versions:       repoSpec.RepositoryVersions,
				})
			}
		}
		expanded = append(expanded, ep)
	}
	return expanded, nil
}

// Validate checks every legacy resource the expanded plan references
// still exists. The full missing report comes back rather than the
// first gap; nil means the plan is clean. The caller decides whether
// missing resources abort the run or only prune the plan.
func Validate(ctx context.Context, client legacy.Reader, expanded []Plugin) (*types.MissingResources, error) {
	var missing types.MissingResources
	seenRepo := map[string]bool{}

	checkRepo := func(repoID string) (bool, error) {
		if exists, ok := seenRepo[repoID]; ok {
			return exists, nil
		}
		_, err := client.FindRepository(ctx, repoID)
		if err != nil && !isNotFound(err) {
			return false, err
		}
		exists := err == nil
		seenRepo[repoID] = exists
		return exists, nil
	}

	for _, ep := range expanded {
		for _, repo := range ep.Repositories {
			if repo.ImporterRepoID != "" {
				exists, err := checkRepo(repo.ImporterRepoID)
				if err != nil {
					return nil, err
				}
				if !exists {
					missing.Repositories = append(missing.Repositories, repo.ImporterRepoID)
				} else {
					_, err := client.ImporterForRepo(ctx, repo.ImporterRepoID, ep.Plugin.ImporterTypes())
					if isNotFound(err) {
						missing.Importers = append(missing.Importers, repo.ImporterRepoID)
					} else if err != nil {
						return nil, err
					}
				}
			}
			for _, version := range repo.Versions {
				exists, err := checkRepo(version.Pulp2RepositoryID)
				if err != nil {
					return nil, err
				}
				if !exists {
					missing.Repositories = append(missing.Repositories, version.Pulp2RepositoryID)
				}
				for _, distRepoID := range version.Pulp2DistributorRepositoryIDs {
					exists, err := checkRepo(distRepoID)
					if err != nil {
						return nil, err
					}
					if !exists {
						missing.Distributors = append(missing.Distributors, distRepoID)
					}
				}
			}
		}
	}

	if !missing.Empty() {
		return &missing, nil
	}
	return nil, nil
}

// Prune drops the plan entries that reference missing legacy
// resources: gone importer sources lose their remote binding, gone
// version repos and distributor sources disappear, and a repository
// with no surviving version disappears entirely. The rest of the plan
// migrates as submitted.
func Prune(expanded []Plugin, missing *types.MissingResources) []Plugin {
	if missing == nil || missing.Empty() {
		return expanded
	}
	asSet := func(ids []string) map[string]bool {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		return set
	}
	repoGone := asSet(missing.Repositories)
	importerGone := asSet(missing.Importers)
	distributorGone := asSet(missing.Distributors)

	pruned := make([]Plugin, 0, len(expanded))
	for _, ep := range expanded {
		kept := make([]Repository, 0, len(ep.Repositories))
		for _, repo := range ep.Repositories {
			if repoGone[repo.ImporterRepoID] || importerGone[repo.ImporterRepoID] {
				repo.ImporterRepoID = ""
			}
			versions := make([]types.RepositoryVersionSpec, 0, len(repo.Versions))
			for _, version := range repo.Versions {
				if repoGone[version.Pulp2RepositoryID] {
					continue
				}
				distributors := make([]string, 0, len(version.Pulp2DistributorRepositoryIDs))
				for _, distRepoID := range version.Pulp2DistributorRepositoryIDs {
					if repoGone[distRepoID] || distributorGone[distRepoID] {
						continue
					}
					distributors = append(distributors, distRepoID)
				}
				version.Pulp2DistributorRepositoryIDs = distributors
				versions = append(versions, version)
			}
			if len(versions) == 0 {
				continue
			}
			repo.Versions = versions
			kept = append(kept, repo)
		}
		ep.Repositories = kept
		pruned = append(pruned, ep)
	}
	return pruned
}

// ApplyRepoSetups records the plan's repo relations against the
// previous run's, then finalizes the status machine: relations the
// current plan repeats end up "up_to_date", fresh ones "new", and ones
// the plan dropped are removed. Returns the pulp2 repo ids whose
// relations changed since the previous run; those repositories must be
// re-materialised even when already migrated.
func ApplyRepoSetups(ctx context.Context, setups *database.RepoSetupStore, expanded []Plugin) ([]string, error) {
	pluginTypes := make([]string, 0, len(expanded))
	for _, ep := range expanded {
		pluginTypes = append(pluginTypes, ep.Plugin.Name())
		for _, repo := range ep.Repositories {
			for _, version := range repo.Versions {
				if repo.ImporterRepoID != "" {
					err := setups.SetImporter(ctx, version.Pulp2RepositoryID, ep.Plugin.Name(), repo.ImporterRepoID)
					if err != nil {
						return nil, err
					}
				}
				distributors := version.Pulp2DistributorRepositoryIDs
				if len(distributors) == 0 {
					// simple plans serve each repo from its own distributors
					distributors = []string{version.Pulp2RepositoryID}
				}
				if err := setups.SetDistributors(ctx, version.Pulp2RepositoryID, ep.Plugin.Name(), distributors); err != nil {
					return nil, err
				}
			}
		}
	}
	changed, err := setups.ListNotUpToDateRepoIDs(ctx, pluginTypes)
	if err != nil {
		return nil, err
	}
	if err := setups.Finalize(ctx, pluginTypes); err != nil {
		return nil, err
	}
	return changed, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, legacy.ErrNoDocuments)
}
