package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/types"
	"opencsg.com/pulp-migrator/migrator/plan"
	"opencsg.com/pulp-migrator/migrator/plugins"
)

// Reset tears down everything previous runs created for the plan's
// families, side tables and target entities both, so the next migrate
// run starts from scratch. The legacy database is never touched.
func (m *Migrator) Reset(ctx context.Context, planDoc []byte) error {
	spec, err := types.ParseMigrationPlan(planDoc)
	if err != nil {
		return err
	}
	expanded, err := plan.Expand(ctx, spec, m.deps)
	if err != nil {
		return err
	}

	return m.locker.RunWhileLocked(ctx, reservationResource, reservationTTL, func(ctx context.Context) error {
		return m.runReset(ctx, spec, expanded)
	})
}

func (m *Migrator) runReset(ctx context.Context, spec *types.MigrationPlanSpec, expanded []plan.Plugin) error {
	stored, err := m.plans.Create(ctx, &database.MigrationPlan{Plan: *spec})
	if err != nil {
		return err
	}
	task, err := m.tasks.Create(ctx, &database.MigrationTask{
		TaskID:          uuid.New().String(),
		MigrationPlanID: stored.ID,
		Kind:            "reset",
		Status:          types.MigrationTaskRunning,
		StartedAt:       time.Now(),
	})
	if err != nil {
		return err
	}
	slog.Info("reset started", slog.String("task_id", task.TaskID))

	runErr := func() error {
		for _, ep := range expanded {
			if err := m.resetFamily(ctx, ep.Plugin); err != nil {
				return fmt.Errorf("reset %s: %w", ep.Plugin.Name(), err)
			}
		}
		return m.removeOrphanArtifacts(ctx)
	}()

	task.FinishedAt = time.Now()
	if runErr != nil {
		task.Status = types.MigrationTaskFailed
		task.LastMessage = runErr.Error()
	} else {
		task.Status = types.MigrationTaskFinished
	}
	if err := m.tasks.Update(ctx, task); err != nil {
		slog.Error("update reset task", slog.String("task_id", task.TaskID), slog.Any("error", err))
	}
	return runErr
}

// resetFamily drops one family in dependency order: detail rows and
// side tables first, then the target entities they pointed at.
func (m *Migrator) resetFamily(ctx context.Context, plugin plugins.Plugin) error {
	typeIDs := make([]string, 0, len(plugin.ContentTypes()))
	for _, ct := range plugin.ContentTypes() {
		typeIDs = append(typeIDs, ct.ID)
	}

	p2repos, err := m.repos.ListByType(ctx, plugin.RepoType())
	if err != nil {
		return err
	}
	repoIDs := make([]int64, 0, len(p2repos))
	for _, repo := range p2repos {
		repoIDs = append(repoIDs, repo.ID)
	}

	if err := m.deps.P2RepoContent.DeleteByRepoIDs(ctx, repoIDs); err != nil {
		return err
	}
	if err := m.distributors.DeleteByTypes(ctx, plugin.DistributorTypes()); err != nil {
		return err
	}
	if err := m.deps.Importers.DeleteByTypes(ctx, plugin.ImporterTypes()); err != nil {
		return err
	}
	if err := plugin.PurgeDetails(ctx); err != nil {
		return err
	}
	if err := m.deps.LazyCatalogs.DeleteByContentTypes(ctx, typeIDs); err != nil {
		return err
	}
	if err := m.deps.P2Contents.DeleteByTypes(ctx, typeIDs); err != nil {
		return err
	}
	if err := m.repos.DeleteByType(ctx, plugin.RepoType()); err != nil {
		return err
	}
	if err := m.setups.DeleteByPluginTypes(ctx, []string{plugin.Name()}); err != nil {
		return err
	}

	if err := m.deps.Distributions.DeleteByTypes(ctx, []string{plugin.FamilyType()}); err != nil {
		return err
	}
	if err := m.deps.Publications.DeleteByTypes(ctx, []string{plugin.FamilyType()}); err != nil {
		return err
	}
	repositories, err := m.deps.Repositories.ListByType(ctx, plugin.FamilyType())
	if err != nil {
		return err
	}
	for _, repo := range repositories {
		if err := m.deps.Repositories.Delete(ctx, repo.ID); err != nil {
			return err
		}
	}
	if err := m.deps.Remotes.DeleteByTypes(ctx, []string{plugin.FamilyType()}); err != nil {
		return err
	}
	if err := m.deps.Contents.DeleteByTypes(ctx, plugin.PulpTypes()); err != nil {
		return err
	}
	slog.Info("family reset", slog.String("plugin", plugin.Name()))
	return nil
}

// removeOrphanArtifacts drops artifact rows no surviving content
// references and unlinks their bytes. A failed unlink is logged, not
// fatal; the row is already gone and the bytes are unreachable garbage.
func (m *Migrator) removeOrphanArtifacts(ctx context.Context) error {
	paths, err := m.deps.Artifacts.DeleteOrphans(ctx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := m.storage.Remove(ctx, path); err != nil {
			slog.Warn("remove orphan artifact", slog.String("path", path), slog.Any("error", err))
		}
	}
	if len(paths) > 0 {
		slog.Info("orphan artifacts removed", slog.Int("count", len(paths)))
	}
	return nil
}
