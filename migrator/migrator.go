package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/storage"
	"opencsg.com/pulp-migrator/builder/store/cache"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/common/errorx"
	"opencsg.com/pulp-migrator/common/types"
	"opencsg.com/pulp-migrator/migrator/pipeline"
	"opencsg.com/pulp-migrator/migrator/plan"
	"opencsg.com/pulp-migrator/migrator/plugins"
	"opencsg.com/pulp-migrator/migrator/premigrate"
	"opencsg.com/pulp-migrator/migrator/progress"
)

// reservationResource guards the whole engine. Only one migrate or
// reset run may touch the target tables at a time.
const reservationResource = "migration-engine"

// reservationTTL is the lock expiration. The lock is extended in the
// background while the run is alive, so this only bounds how long a
// crashed run keeps others out.
const reservationTTL = 5 * time.Minute

// RunOptions tune a single migrate run.
type RunOptions struct {
	// ValidateOnly stops after plan validation, touching nothing.
	ValidateOnly bool
	// DryRun runs pre-migration and stops before any target entity is
	// created.
	DryRun bool
}

// Migrator drives a full migration run: plan expansion, pre-migration
// into the side tables, then migration into target entities.
type Migrator struct {
	cfg     *config.Config
	deps    plugins.Deps
	storage storage.ArtifactStorage
	locker  cache.RedisClient

	repos        *database.Pulp2RepositoryStore
	distributors *database.Pulp2DistributorStore
	setups       *database.RepoSetupStore
	plans        *database.MigrationPlanStore
	tasks        *database.MigrationTaskStore
}

func NewMigrator(ctx context.Context, cfg *config.Config) (*Migrator, error) {
	db := database.GetDB()

	legacyClient, err := legacy.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect legacy database: %w", err)
	}

	artifactStorage, err := storage.NewArtifactStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("init artifact storage: %w", err)
	}

	locker, err := cache.NewCache(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Endpoint,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	return &Migrator{
		cfg:          cfg,
		deps:         plugins.NewDeps(cfg, legacyClient, db),
		storage:      artifactStorage,
		locker:       locker,
		repos:        database.NewPulp2RepositoryStoreWithDB(db),
		distributors: database.NewPulp2DistributorStoreWithDB(db),
		setups:       database.NewRepoSetupStoreWithDB(db),
		plans:        database.NewMigrationPlanStoreWithDB(db),
		tasks:        database.NewMigrationTaskStoreWithDB(db),
	}, nil
}

// Migrate validates the plan document and, unless opts say otherwise,
// runs the migration under the engine reservation. Rerunning with the
// same plan only processes what changed since the previous run.
func (m *Migrator) Migrate(ctx context.Context, planDoc []byte, opts RunOptions) error {
	spec, err := types.ParseMigrationPlan(planDoc)
	if err != nil {
		return err
	}
	expanded, err := plan.Expand(ctx, spec, m.deps)
	if err != nil {
		return err
	}
	missing, err := plan.Validate(ctx, m.deps.Legacy, expanded)
	if err != nil {
		return err
	}
	if opts.ValidateOnly {
		if missing != nil {
			return &errorx.PlanValidationError{Missing: *missing}
		}
		slog.Info("plan validated", slog.Int("plugins", len(expanded)))
		return nil
	}
	if missing != nil {
		slog.Warn("plan references missing pulp2 resources, pruning them",
			slog.Any("repositories", missing.Repositories),
			slog.Any("importers", missing.Importers),
			slog.Any("distributors", missing.Distributors))
		expanded = plan.Prune(expanded, missing)
	}

	return m.locker.RunWhileLocked(ctx, reservationResource, reservationTTL, func(ctx context.Context) error {
		return m.run(ctx, spec, expanded, opts)
	})
}

func (m *Migrator) run(ctx context.Context, spec *types.MigrationPlanSpec, expanded []plan.Plugin, opts RunOptions) error {
	stored, err := m.plans.Create(ctx, &database.MigrationPlan{Plan: *spec})
	if err != nil {
		return err
	}
	task, err := m.tasks.Create(ctx, &database.MigrationTask{
		TaskID:          uuid.New().String(),
		MigrationPlanID: stored.ID,
		Kind:            "migrate",
		Status:          types.MigrationTaskRunning,
		StartedAt:       time.Now(),
	})
	if err != nil {
		return err
	}
	slog.Info("migration started", slog.String("task_id", task.TaskID), slog.Bool("dry_run", opts.DryRun))

	reporter := progress.NewReporter(m.tasks, task)
	runErr := m.runPhases(ctx, expanded, reporter, opts)

	task.FinishedAt = time.Now()
	if runErr != nil {
		task.Status = types.MigrationTaskFailed
		task.LastMessage = runErr.Error()
	} else {
		task.Status = types.MigrationTaskFinished
	}
	if err := m.tasks.Update(ctx, task); err != nil {
		slog.Error("update migration task", slog.String("task_id", task.TaskID), slog.Any("error", err))
	}
	return runErr
}

// runPhases executes the global phase order. Every phase finishes for
// all families before the next one starts, so cross-family references
// always find their targets pre-migrated.
func (m *Migrator) runPhases(ctx context.Context, expanded []plan.Plugin, reporter *progress.Reporter, opts RunOptions) error {
	changedSetups, err := plan.ApplyRepoSetups(ctx, m.setups, expanded)
	if err != nil {
		return fmt.Errorf("apply repo setups: %w", err)
	}
	if err := m.repos.MarkChangedRelations(ctx, changedSetups); err != nil {
		return err
	}

	repoPre := premigrate.NewRepoPremigrator(m.deps, m.repos, m.distributors, reporter)
	for _, ep := range expanded {
		if err := repoPre.Run(ctx, ep); err != nil {
			return fmt.Errorf("premigrate repositories %s: %w", ep.Plugin.Name(), err)
		}
	}

	contentPre := premigrate.NewContentPremigrator(m.deps, m.repos, reporter, m.cfg.Migration.ContentBatchSize)
	for _, ep := range expanded {
		if err := contentPre.Run(ctx, ep.Plugin); err != nil {
			return fmt.Errorf("premigrate content %s: %w", ep.Plugin.Name(), err)
		}
	}

	if opts.DryRun {
		slog.Info("dry run, stopping before migration")
		return nil
	}

	for _, ep := range expanded {
		if err := m.migrateImporters(ctx, ep.Plugin, reporter); err != nil {
			return fmt.Errorf("migrate importers %s: %w", ep.Plugin.Name(), err)
		}
	}

	for _, ep := range expanded {
		if err := repoPre.InvalidateOutdated(ctx, ep.Plugin); err != nil {
			return fmt.Errorf("invalidate distributors %s: %w", ep.Plugin.Name(), err)
		}
	}

	for _, ep := range expanded {
		if err := m.migrateContent(ctx, ep.Plugin, reporter); err != nil {
			return fmt.Errorf("migrate content %s: %w", ep.Plugin.Name(), err)
		}
	}

	for _, ep := range expanded {
		if err := m.migrateRepositories(ctx, ep, reporter); err != nil {
			return fmt.Errorf("migrate repositories %s: %w", ep.Plugin.Name(), err)
		}
	}
	return nil
}

// migrateImporters turns every unmigrated in-plan importer into a
// remote. Feedless importers stay unmigrated-with-no-remote, which is
// their terminal state.
func (m *Migrator) migrateImporters(ctx context.Context, plugin plugins.Plugin, reporter *progress.Reporter) error {
	code := "migrate.importers." + plugin.Name()
	importers, err := m.deps.Importers.ListToMigrate(ctx, plugin.ImporterTypes())
	if err != nil {
		return err
	}
	if err := reporter.Start(ctx, code, "Creating remotes", int64(len(importers))); err != nil {
		return err
	}
	for i := range importers {
		importer := importers[i]
		remote, err := plugin.MigrateImporter(ctx, &importer)
		if err != nil {
			_ = reporter.Fail(ctx, code)
			return fmt.Errorf("importer %s: %w", importer.Pulp2ObjectID, err)
		}
		if remote != nil {
			importer.Pulp3RemoteID = &remote.ID
		}
		importer.IsMigrated = true
		if err := m.deps.Importers.Update(ctx, &importer); err != nil {
			_ = reporter.Fail(ctx, code)
			return err
		}
		if err := reporter.Increment(ctx, code, 1, 0); err != nil {
			return err
		}
	}
	return reporter.Finish(ctx, code)
}

// migrateContent runs the pipeline once per content type of the family,
// in the family's declared order.
func (m *Migrator) migrateContent(ctx context.Context, plugin plugins.Plugin, reporter *progress.Reporter) error {
	for _, ct := range plugin.ContentTypes() {
		code := "migrate.content." + ct.ID
		rows, err := m.deps.P2Contents.ListUnmigrated(ctx, ct.ID)
		if err != nil {
			return err
		}
		if err := reporter.Start(ctx, code, "Migrating "+ct.ID+" content", int64(len(rows))); err != nil {
			return err
		}
		if len(rows) == 0 {
			if err := reporter.Finish(ctx, code); err != nil {
				return err
			}
			continue
		}

		stages := []pipeline.Stage{
			pipeline.NewArtifactStage(m.storage, m.cfg.Migration.SkipCorrupted, reporter, code),
			pipeline.NewSaveStage(m.deps.Contents, m.deps.Artifacts),
		}
		stages = append(stages, plugin.ExtraStages()...)
		stages = append(stages, pipeline.NewRelateStage(m.deps.P2Contents, reporter, code))

		runner := pipeline.NewRunner(plugin.Resolve, m.cfg.Migration.ContentSlices, stages...)
		if err := runner.Run(ctx, rows); err != nil {
			_ = reporter.Fail(ctx, code)
			return fmt.Errorf("content type %s: %w", ct.ID, err)
		}
		if skipped := runner.Dropped(); skipped > 0 {
			if err := reporter.Increment(ctx, code, 0, skipped); err != nil {
				return err
			}
		}
		if err := reporter.Finish(ctx, code); err != nil {
			return err
		}
	}
	return nil
}

// migrateRepositories materialises the plan's target repositories:
// versions in plan order, then the serving side of each version's
// distributors. Repositories are independent of each other and rebuilt
// concurrently.
func (m *Migrator) migrateRepositories(ctx context.Context, ep plan.Plugin, reporter *progress.Reporter) error {
	code := "migrate.repositories." + ep.Plugin.Name()
	if err := reporter.Start(ctx, code, "Creating repositories and versions", int64(len(ep.Repositories))); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Migration.RepoWorkers)
	for _, planRepo := range ep.Repositories {
		planRepo := planRepo
		g.Go(func() error {
			if err := m.migrateRepository(gctx, ep.Plugin, planRepo); err != nil {
				return fmt.Errorf("repository %s: %w", planRepo.Name, err)
			}
			return reporter.Increment(gctx, code, 1, 0)
		})
	}
	if err := g.Wait(); err != nil {
		_ = reporter.Fail(ctx, code)
		return err
	}
	return reporter.Finish(ctx, code)
}

func (m *Migrator) migrateRepository(ctx context.Context, plugin plugins.Plugin, planRepo plan.Repository) error {
	repo, created, err := m.deps.Repositories.GetOrCreate(ctx, planRepo.Name, plugin.FamilyType())
	if err != nil {
		return err
	}
	if created {
		slog.Info("repository created", slog.String("name", repo.Name), slog.String("pulp_type", repo.PulpType))
	}
	if err := m.bindRemote(ctx, repo, planRepo.ImporterRepoID); err != nil {
		return err
	}

	for _, versionSpec := range planRepo.Versions {
		version, err := m.migrateVersion(ctx, repo, versionSpec.Pulp2RepositoryID)
		if err != nil {
			return err
		}
		if err := m.migrateDistributors(ctx, plugin, repo, version, versionSpec); err != nil {
			return err
		}
	}
	return nil
}

// bindRemote points the repository at the remote created from its
// importer source repo, when that importer produced one.
func (m *Migrator) bindRemote(ctx context.Context, repo *database.Repository, importerRepoID string) error {
	if importerRepoID == "" {
		return nil
	}
	p2repo, err := m.repos.FindByPulp2RepoID(ctx, importerRepoID)
	if err != nil {
		return err
	}
	importer, err := m.deps.Importers.FindByRepoID(ctx, p2repo.ID)
	if err != nil {
		return err
	}
	if importer.Pulp3RemoteID == nil {
		return nil
	}
	if repo.RemoteID != nil && *repo.RemoteID == *importer.Pulp3RemoteID {
		return nil
	}
	repo.RemoteID = importer.Pulp3RemoteID
	return m.deps.Repositories.Update(ctx, repo)
}

// migrateVersion creates the next repository version from the legacy
// repo's membership and binds the legacy repo to it. An already
// migrated, still bound legacy repo is a no-op returning its version.
func (m *Migrator) migrateVersion(ctx context.Context, repo *database.Repository, pulp2RepoID string) (*database.RepositoryVersion, error) {
	p2repo, err := m.repos.FindByPulp2RepoID(ctx, pulp2RepoID)
	if err != nil {
		return nil, err
	}
	if p2repo.IsMigrated && p2repo.Pulp3RepositoryVersionID != nil {
		return m.deps.Repositories.FindVersionByID(ctx, *p2repo.Pulp3RepositoryVersionID)
	}

	members, err := m.deps.P2Contents.FindByRepoMembership(ctx, p2repo)
	if err != nil {
		return nil, err
	}
	contentIDs := make([]int64, 0, len(members))
	for _, member := range members {
		// skipped-corrupted units never resolved to content
		if member.Pulp3ContentID != nil {
			contentIDs = append(contentIDs, *member.Pulp3ContentID)
		}
	}

	version, err := m.deps.Repositories.NewVersion(ctx, repo.ID, contentIDs)
	if err != nil {
		return nil, err
	}
	if version == nil {
		version, err = m.deps.Repositories.LatestVersion(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
	} else {
		slog.Info("repository version created",
			slog.String("repository", repo.Name),
			slog.Int64("number", version.Number),
			slog.Int("content", len(contentIDs)))
	}

	p2repo.Pulp3RepositoryID = &repo.ID
	p2repo.Pulp3RepositoryVersionID = &version.ID
	p2repo.IsMigrated = true
	if err := m.repos.Update(ctx, p2repo); err != nil {
		return nil, err
	}
	return version, nil
}

// migrateDistributors migrates every unmigrated distributor of the
// version's distributor source repos against the given version. An
// empty source list means the version's own legacy repo.
func (m *Migrator) migrateDistributors(ctx context.Context, plugin plugins.Plugin, repo *database.Repository, version *database.RepositoryVersion, spec types.RepositoryVersionSpec) error {
	sourceRepoIDs := spec.Pulp2DistributorRepositoryIDs
	if len(sourceRepoIDs) == 0 {
		sourceRepoIDs = []string{spec.Pulp2RepositoryID}
	}
	for _, sourceRepoID := range sourceRepoIDs {
		p2repo, err := m.repos.FindByPulp2RepoID(ctx, sourceRepoID)
		if err != nil {
			return err
		}
		distributors, err := m.distributors.ListByRepoID(ctx, p2repo.ID)
		if err != nil {
			return err
		}
		for i := range distributors {
			distributor := distributors[i]
			if distributor.IsMigrated {
				continue
			}
			publication, distribution, err := plugin.MigrateDistributor(ctx, &distributor, repo, version)
			if err != nil {
				return fmt.Errorf("distributor %s: %w", distributor.Pulp2ObjectID, err)
			}
			if publication != nil {
				distributor.Pulp3PublicationID = &publication.ID
			}
			if distribution != nil {
				distributor.Pulp3DistributionID = &distribution.ID
			}
			distributor.IsMigrated = true
			if err := m.distributors.Update(ctx, &distributor); err != nil {
				return err
			}
		}
	}
	return nil
}
