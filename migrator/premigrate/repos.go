package premigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/plan"
	"opencsg.com/pulp-migrator/migrator/plugins"
	"opencsg.com/pulp-migrator/migrator/progress"
)

// RepoPremigrator copies legacy repositories, importers and
// distributors of one family into the side tables and keeps the
// in-plan flags current.
type RepoPremigrator struct {
	deps         plugins.Deps
	repos        *database.Pulp2RepositoryStore
	distributors *database.Pulp2DistributorStore
	reporter     *progress.Reporter
}

func NewRepoPremigrator(deps plugins.Deps, repos *database.Pulp2RepositoryStore, distributors *database.Pulp2DistributorStore, reporter *progress.Reporter) *RepoPremigrator {
	return &RepoPremigrator{deps: deps, repos: repos, distributors: distributors, reporter: reporter}
}

func (m *RepoPremigrator) Run(ctx context.Context, ep plan.Plugin) error {
	plugin := ep.Plugin
	code := "premigrate.repos." + plugin.Name()
	if err := m.reporter.Start(ctx, code, "Pre-migrating "+plugin.Name()+" repositories", 0); err != nil {
		return err
	}

	legacyRepos, err := m.deps.Legacy.ListRepositories(ctx, plugin.RepoType())
	if err != nil {
		return err
	}
	if err := m.reporter.SetTotal(ctx, code, int64(len(legacyRepos))); err != nil {
		return err
	}

	for _, legacyRepo := range legacyRepos {
		if err := m.premigrateRepo(ctx, plugin, legacyRepo); err != nil {
			return fmt.Errorf("pre-migrating repository %s: %w", legacyRepo.RepoID, err)
		}
		if err := m.reporter.Increment(ctx, code, 1, 0); err != nil {
			return err
		}
	}

	if err := m.markNotInPlan(ctx, ep); err != nil {
		return err
	}
	return m.reporter.Finish(ctx, code)
}

func (m *RepoPremigrator) premigrateRepo(ctx context.Context, plugin plugins.Plugin, legacyRepo legacy.Repository) error {
	existing, err := m.repos.FindByPulp2RepoID(ctx, legacyRepo.RepoID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	changed := existing == nil ||
		!timeEqual(existing.Pulp2LastUnitAdded, legacyRepo.LastUnitAdded) ||
		!timeEqual(existing.Pulp2LastUnitRemoved, legacyRepo.LastUnitRemoved)

	row, _, err := m.repos.Upsert(ctx, &database.Pulp2Repository{
		Pulp2ObjectID:        legacyRepo.ObjectID,
		Pulp2RepoID:          legacyRepo.RepoID,
		Pulp2RepoType:        legacyRepo.RepoType(),
		Pulp2LastUnitAdded:   legacyRepo.LastUnitAdded,
		Pulp2LastUnitRemoved: legacyRepo.LastUnitRemoved,
	})
	if err != nil {
		return err
	}

	if changed {
		if err := m.refreshMembership(ctx, plugin, row); err != nil {
			return err
		}
		row.IsMigrated = false
		if err := m.repos.Update(ctx, row); err != nil {
			return err
		}
	}

	if err := m.premigrateImporter(ctx, plugin, row); err != nil {
		return err
	}
	return m.premigrateDistributors(ctx, plugin, row)
}

// refreshMembership replaces the repo's membership snapshot with the
// current legacy one.
func (m *RepoPremigrator) refreshMembership(ctx context.Context, plugin plugins.Plugin, row *database.Pulp2Repository) error {
	typeIDs := make([]string, 0, len(plugin.ContentTypes()))
	for _, ct := range plugin.ContentTypes() {
		typeIDs = append(typeIDs, ct.ID)
	}
	units, err := m.deps.Legacy.ListRepoContentUnits(ctx, row.Pulp2RepoID, typeIDs)
	if err != nil {
		return err
	}
	rows := make([]database.Pulp2RepoContent, 0, len(units))
	for _, unit := range units {
		rows = append(rows, database.Pulp2RepoContent{
			Pulp2RepositoryID:  row.ID,
			Pulp2UnitID:        unit.UnitID,
			Pulp2ContentTypeID: unit.UnitTypeID,
		})
	}
	return m.deps.P2RepoContent.ReplaceForRepo(ctx, row.ID, rows)
}

func (m *RepoPremigrator) premigrateImporter(ctx context.Context, plugin plugins.Plugin, row *database.Pulp2Repository) error {
	legacyImporter, err := m.deps.Legacy.ImporterForRepo(ctx, row.Pulp2RepoID, plugin.ImporterTypes())
	if errors.Is(err, legacy.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return err
	}

	existing, err := m.deps.Importers.FindByObjectID(ctx, legacyImporter.ObjectID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	changed := existing == nil || existing.Pulp2LastUpdated != legacyImporter.LastUpdated

	// a feed change invalidates the remote derived from the old feed
	if existing != nil && existing.Pulp3RemoteID != nil {
		oldFeed, _ := existing.Pulp2Config["feed"].(string)
		if oldFeed != legacyImporter.FeedURL() {
			slog.Info("importer feed changed, dropping derived remote",
				slog.String("repo", row.Pulp2RepoID))
			if err := m.deps.Remotes.Delete(ctx, *existing.Pulp3RemoteID); err != nil {
				return err
			}
			if err := m.deps.Importers.ClearRemote(ctx, existing.ID); err != nil {
				return err
			}
		}
	}

	importer, _, err := m.deps.Importers.Upsert(ctx, &database.Pulp2Importer{
		Pulp2ObjectID:     legacyImporter.ObjectID,
		Pulp2TypeID:       legacyImporter.ImporterTypeID,
		Pulp2Config:       legacyImporter.Config,
		Pulp2LastUpdated:  legacyImporter.LastUpdated,
		Pulp2RepositoryID: row.ID,
	})
	if err != nil {
		return err
	}
	if changed && importer.IsMigrated {
		importer.IsMigrated = false
		if err := m.deps.Importers.Update(ctx, importer); err != nil {
			return err
		}
	}
	return nil
}

func (m *RepoPremigrator) premigrateDistributors(ctx context.Context, plugin plugins.Plugin, row *database.Pulp2Repository) error {
	legacyDistributors, err := m.deps.Legacy.DistributorsForRepo(ctx, row.Pulp2RepoID, plugin.DistributorTypes())
	if err != nil {
		return err
	}
	for _, legacyDistributor := range legacyDistributors {
		existing, err := m.distributors.FindByObjectID(ctx, legacyDistributor.ObjectID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		changed := existing == nil || existing.Pulp2LastUpdated != legacyDistributor.LastUpdated

		distributor, _, err := m.distributors.Upsert(ctx, &database.Pulp2Distributor{
			Pulp2ObjectID:    legacyDistributor.ObjectID,
			Pulp2ID:          legacyDistributor.ID,
			Pulp2TypeID:      legacyDistributor.DistributorTypeID,
			Pulp2Config:      legacyDistributor.Config,
			Pulp2LastUpdated: legacyDistributor.LastUpdated,
			Pulp2AutoPublish: legacyDistributor.AutoPublish,
		}, []int64{row.ID})
		if err != nil {
			return err
		}
		if changed && distributor.IsMigrated {
			distributor.IsMigrated = false
			if err := m.distributors.Update(ctx, distributor); err != nil {
				return err
			}
		}
	}
	return nil
}

// markNotInPlan flags every side-table resource of the family that the
// current plan does not cover.
func (m *RepoPremigrator) markNotInPlan(ctx context.Context, ep plan.Plugin) error {
	plugin := ep.Plugin
	inPlan := ep.InPlanRepoIDs()
	if err := m.repos.MarkNotInPlan(ctx, plugin.RepoType(), inPlan); err != nil {
		return err
	}

	importerRepoIDs, distributorRepoIDs, err := m.planResourceRepoIDs(ctx, ep)
	if err != nil {
		return err
	}
	if err := m.deps.Importers.MarkNotInPlan(ctx, plugin.ImporterTypes(), importerRepoIDs); err != nil {
		return err
	}
	return m.distributors.MarkNotInPlan(ctx, plugin.DistributorTypes(), distributorRepoIDs)
}

// planResourceRepoIDs resolves the plan's importer and distributor
// source repos to side-table ids.
func (m *RepoPremigrator) planResourceRepoIDs(ctx context.Context, ep plan.Plugin) (importers, distributors []int64, err error) {
	importerSeen := map[string]bool{}
	distributorSeen := map[string]bool{}
	for _, repo := range ep.Repositories {
		if repo.ImporterRepoID != "" {
			importerSeen[repo.ImporterRepoID] = true
		}
		for _, version := range repo.Versions {
			sources := version.Pulp2DistributorRepositoryIDs
			if len(sources) == 0 {
				sources = []string{version.Pulp2RepositoryID}
			}
			for _, source := range sources {
				distributorSeen[source] = true
			}
		}
	}
	resolve := func(repoIDs map[string]bool) ([]int64, error) {
		var ids []int64
		for repoID := range repoIDs {
			row, err := m.repos.FindByPulp2RepoID(ctx, repoID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, err
			}
			ids = append(ids, row.ID)
		}
		return ids, nil
	}
	if importers, err = resolve(importerSeen); err != nil {
		return nil, nil, err
	}
	if distributors, err = resolve(distributorSeen); err != nil {
		return nil, nil, err
	}
	return importers, distributors, nil
}

// InvalidateOutdated removes the target serving objects of
// distributors that fell out of the plan or whose repo must be
// rebuilt. Deleting a publication takes the sibling distributions
// serving it down as well; each group is torn down in one transaction.
func (m *RepoPremigrator) InvalidateOutdated(ctx context.Context, plugin plugins.Plugin) error {
	outdated, err := m.distributors.ListOutdated(ctx, plugin.DistributorTypes())
	if err != nil {
		return err
	}
	for _, distributor := range outdated {
		affected := []database.Pulp2Distributor{distributor}
		if distributor.Pulp3PublicationID != nil {
			siblings, err := m.distributors.ListByPublicationID(ctx, *distributor.Pulp3PublicationID)
			if err != nil {
				return err
			}
			affected = siblings
		}
		distributorIDs := make([]int64, 0, len(affected))
		var distributionIDs []int64
		for _, d := range affected {
			distributorIDs = append(distributorIDs, d.ID)
			if d.Pulp3DistributionID != nil {
				distributionIDs = append(distributionIDs, *d.Pulp3DistributionID)
			}
		}
		err := m.distributors.TearDownServing(ctx, distributor.Pulp3PublicationID, distributionIDs, distributorIDs)
		if err != nil {
			return err
		}
	}
	return nil
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
