package premigrate

import (
	"context"
	"fmt"
	"log/slog"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/plugins"
	"opencsg.com/pulp-migrator/migrator/progress"
)

// ContentPremigrator copies legacy content metadata of one family into
// the side tables. It is incremental: only units newer than the
// high-water mark of the previous run are considered, with an
// exact-timestamp lookup breaking same-second ties.
type ContentPremigrator struct {
	deps      plugins.Deps
	repos     *database.Pulp2RepositoryStore
	reporter  *progress.Reporter
	batchSize int
}

func NewContentPremigrator(deps plugins.Deps, repos *database.Pulp2RepositoryStore, reporter *progress.Reporter, batchSize int) *ContentPremigrator {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &ContentPremigrator{deps: deps, repos: repos, reporter: reporter, batchSize: batchSize}
}

func (m *ContentPremigrator) Run(ctx context.Context, plugin plugins.Plugin) error {
	for _, ct := range plugin.ContentTypes() {
		if err := m.premigrateType(ctx, plugin, ct); err != nil {
			return fmt.Errorf("pre-migrating %s: %w", ct.ID, err)
		}
	}
	return nil
}

func (m *ContentPremigrator) premigrateType(ctx context.Context, plugin plugins.Plugin, ct plugins.ContentType) error {
	code := "premigrate." + ct.ID
	if err := m.reporter.Start(ctx, code, "Pre-migrating "+ct.ID+" content", 0); err != nil {
		return err
	}

	presentIDs, err := m.deps.Legacy.ListUnitIDs(ctx, ct.Collection)
	if err != nil {
		return err
	}
	pruned, err := m.deps.P2Contents.PruneMissing(ctx, ct.ID, presentIDs)
	if err != nil {
		return err
	}
	if pruned > 0 {
		slog.Info("pruned side-table rows for deleted units",
			slog.String("type", ct.ID), slog.Int64("count", pruned))
	}

	hwm, err := m.deps.P2Contents.MaxLastUpdated(ctx, ct.ID)
	if err != nil {
		return err
	}
	units, err := m.deps.Legacy.ListUnitsSince(ctx, ct.Collection, hwm)
	if err != nil {
		return err
	}

	// same-second tie break: a unit sharing the mark second is new only
	// if the previous run did not already store it at that timestamp
	candidates := units[:0]
	for _, unit := range units {
		if unit.LastUpdated() == hwm {
			exists, err := m.deps.P2Contents.ExistsAt(ctx, ct.ID, unit.ID(), hwm)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
		}
		candidates = append(candidates, unit)
	}

	if err := m.reporter.SetTotal(ctx, code, int64(len(candidates))); err != nil {
		return err
	}

	if ct.Mutable && len(candidates) > 0 {
		if err := m.invalidateMutable(ctx, ct, candidates); err != nil {
			return err
		}
	}

	for start := 0; start < len(candidates); start += m.batchSize {
		end := start + m.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if err := m.premigrateBatch(ctx, plugin, ct, candidates[start:end]); err != nil {
			return err
		}
		if err := m.reporter.Increment(ctx, code, int64(end-start), 0); err != nil {
			return err
		}
	}

	if ct.PerRepo {
		if err := m.fanOutNewOwners(ctx, plugin, ct, code, int64(len(candidates))); err != nil {
			return err
		}
	}

	if ct.Lazy {
		if err := m.refreshLazyCatalog(ctx, ct); err != nil {
			return err
		}
	}

	return m.reporter.Finish(ctx, code)
}

// fanOutNewOwners re-premigrates unchanged per-repo units that joined
// a repository since their rows were written. The unit's timestamp did
// not move, so the incremental selection misses it; the membership
// snapshot is what knows about the new owner. Insert-ignore keeps the
// rows of the existing owners untouched.
func (m *ContentPremigrator) fanOutNewOwners(ctx context.Context, plugin plugins.Plugin, ct plugins.ContentType, code string, done int64) error {
	unitIDs, err := m.deps.P2RepoContent.UnitsMissingPerRepoRows(ctx, ct.ID)
	if err != nil {
		return err
	}
	if len(unitIDs) == 0 {
		return nil
	}
	slog.Info("fanning out units with new owning repositories",
		slog.String("type", ct.ID), slog.Int("count", len(unitIDs)))
	units, err := m.deps.Legacy.FindUnits(ctx, ct.Collection, unitIDs)
	if err != nil {
		return err
	}
	if err := m.reporter.SetTotal(ctx, code, done+int64(len(units))); err != nil {
		return err
	}
	for start := 0; start < len(units); start += m.batchSize {
		end := start + m.batchSize
		if end > len(units) {
			end = len(units)
		}
		if err := m.premigrateBatch(ctx, plugin, ct, units[start:end]); err != nil {
			return err
		}
		if err := m.reporter.Increment(ctx, code, int64(end-start), 0); err != nil {
			return err
		}
	}
	return nil
}

// invalidateMutable drops the stale side-table rows of changed mutable
// units and flags their owning repositories for a rebuild.
func (m *ContentPremigrator) invalidateMutable(ctx context.Context, ct plugins.ContentType, changed []legacy.Unit) error {
	ids := make([]string, 0, len(changed))
	for _, unit := range changed {
		ids = append(ids, unit.ID())
	}
	owners, err := m.deps.P2RepoContent.ReposOwningUnits(ctx, ids)
	if err != nil {
		return err
	}
	var ownerIDs []int64
	seen := map[int64]bool{}
	for _, repoIDs := range owners {
		for _, repoID := range repoIDs {
			if !seen[repoID] {
				seen[repoID] = true
				ownerIDs = append(ownerIDs, repoID)
			}
		}
	}
	if err := m.repos.MarkUnmigratedByIDs(ctx, ownerIDs); err != nil {
		return err
	}
	return m.deps.P2Contents.DeleteByPulp2IDs(ctx, ct.ID, ids)
}

func (m *ContentPremigrator) premigrateBatch(ctx context.Context, plugin plugins.Plugin, ct plugins.ContentType, units []legacy.Unit) error {
	byID := make(map[string]legacy.Unit, len(units))
	unitIDs := make([]string, 0, len(units))
	for _, unit := range units {
		byID[unit.ID()] = unit
		unitIDs = append(unitIDs, unit.ID())
	}

	var owners map[string][]int64
	if ct.PerRepo {
		var err error
		owners, err = m.deps.P2RepoContent.ReposOwningUnits(ctx, unitIDs)
		if err != nil {
			return err
		}
	}

	var rows []database.Pulp2Content
	for _, unit := range units {
		fanned, err := plugin.PreMigrateUnit(ctx, ct.ID, unit, owners[unit.ID()])
		if err != nil {
			return err
		}
		rows = append(rows, fanned...)
	}

	if err := m.deps.P2Contents.BulkInsertIgnore(ctx, rows); err != nil {
		return err
	}
	stored, err := m.deps.P2Contents.ResolveIDs(ctx, rows)
	if err != nil {
		return err
	}
	for _, row := range stored {
		unit, ok := byID[row.Pulp2ID]
		if !ok {
			continue
		}
		if err := plugin.SaveDetail(ctx, row, unit); err != nil {
			return err
		}
	}
	return nil
}

// refreshLazyCatalog re-imports the catalog of one lazy type. The
// catalog has no change detection upstream, so every run re-inserts
// with conflicts ignored.
func (m *ContentPremigrator) refreshLazyCatalog(ctx context.Context, ct plugins.ContentType) error {
	entries, err := m.deps.Legacy.ListLazyCatalogEntries(ctx, []string{ct.ID})
	if err != nil {
		return err
	}
	rows := make([]database.Pulp2LazyCatalog, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, database.Pulp2LazyCatalog{
			Pulp2ImporterID:  entry.ImporterID,
			Pulp2UnitID:      entry.UnitID,
			Pulp2ContentType: entry.UnitTypeID,
			Pulp2StoragePath: entry.StoragePath,
			Pulp2URL:         entry.URL,
			Pulp2Revision:    entry.Revision,
		})
	}
	for start := 0; start < len(rows); start += m.batchSize {
		end := start + m.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if err := m.deps.LazyCatalogs.BulkInsertIgnore(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
