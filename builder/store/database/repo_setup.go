package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"opencsg.com/pulp-migrator/common/types"
)

type RepoSetupStore struct {
	db *DB
}

func NewRepoSetupStore() *RepoSetupStore {
	return &RepoSetupStore{
		db: defaultDB,
	}
}

func NewRepoSetupStoreWithDB(db *DB) *RepoSetupStore {
	return &RepoSetupStore{
		db: db,
	}
}

// RepoSetup records one (repo, importer|distributor-source) relation of
// the current plan against the previous one. The status machine is the
// hinge of the incremental rerun: rows left "old" after plan parsing
// were dropped from the plan, and any non-"up_to_date" relation forces
// its repo to be re-materialised.
type RepoSetup struct {
	ID                 int64                       `bun:",pk,autoincrement" json:"id"`
	Pulp2RepoID        string                      `bun:",notnull" json:"pulp2_repo_id"`
	Pulp2ResourceRepo  string                      `bun:",notnull" json:"pulp2_resource_repo"`
	PluginType         string                      `bun:",notnull" json:"plugin_type"`
	ResourceType       types.RepoSetupResourceType `bun:",notnull" json:"resource_type"`
	Status             types.RepoSetupStatus       `bun:",notnull" json:"status"`

	times
}

// SetImporter upserts the importer relation of a target repo. An
// existing "old" row flips to "up_to_date"; a fresh row is "new".
func (s *RepoSetupStore) SetImporter(ctx context.Context, repoID, pluginType, importerRepoID string) error {
	return s.setRelation(ctx, repoID, pluginType, types.ResourceImporter, importerRepoID)
}

// SetDistributors applies the same status logic to the set of
// distributor-source repos serving a target repo.
func (s *RepoSetupStore) SetDistributors(ctx context.Context, repoID, pluginType string, distributorRepoIDs []string) error {
	for _, distributorRepoID := range distributorRepoIDs {
		if err := s.setRelation(ctx, repoID, pluginType, types.ResourceDistributor, distributorRepoID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RepoSetupStore) setRelation(ctx context.Context, repoID, pluginType string, resourceType types.RepoSetupResourceType, resourceRepoID string) error {
	var row RepoSetup
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_repo_id = ?", repoID).
		Where("pulp2_resource_repo = ?", resourceRepoID).
		Where("resource_type = ?", resourceType).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Operator.Core.NewInsert().
			Model(&RepoSetup{
				Pulp2RepoID:       repoID,
				Pulp2ResourceRepo: resourceRepoID,
				PluginType:        pluginType,
				ResourceType:      resourceType,
				Status:            types.RepoSetupNew,
			}).
			Exec(ctx)
		return err
	}
	if err != nil {
		return err
	}
	if row.Status == types.RepoSetupOld {
		row.Status = types.RepoSetupUpToDate
		return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
			Model(&row).
			WherePK().
			Exec(ctx))
	}
	return nil
}

// Finalize drops relations removed from this plan (still "old") and
// resets the rest to "old" so the next run starts fresh.
func (s *RepoSetupStore) Finalize(ctx context.Context, pluginTypes []string) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*RepoSetup)(nil)).
			Where("plugin_type IN (?)", bun.In(pluginTypes)).
			Where("status = ?", types.RepoSetupOld).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*RepoSetup)(nil)).
			Set("status = ?", types.RepoSetupOld).
			Where("plugin_type IN (?)", bun.In(pluginTypes)).
			Exec(ctx)
		return err
	})
}

// ListNotUpToDateRepoIDs returns pulp2 repo ids with at least one
// relation whose status is not "up_to_date".
func (s *RepoSetupStore) ListNotUpToDateRepoIDs(ctx context.Context, pluginTypes []string) ([]string, error) {
	var repoIDs []string
	err := s.db.Operator.Core.NewSelect().
		Model((*RepoSetup)(nil)).
		ColumnExpr("DISTINCT pulp2_repo_id").
		Where("plugin_type IN (?)", bun.In(pluginTypes)).
		Where("status != ?", types.RepoSetupUpToDate).
		Scan(ctx, &repoIDs)
	if err != nil {
		return nil, err
	}
	return repoIDs, nil
}

func (s *RepoSetupStore) ListByRepoID(ctx context.Context, repoID string) ([]RepoSetup, error) {
	var rows []RepoSetup
	err := s.db.Operator.Core.NewSelect().
		Model(&rows).
		Where("pulp2_repo_id = ?", repoID).
		Order("resource_type", "pulp2_resource_repo").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *RepoSetupStore) DeleteByPluginTypes(ctx context.Context, pluginTypes []string) error {
	if len(pluginTypes) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*RepoSetup)(nil)).
		Where("plugin_type IN (?)", bun.In(pluginTypes)).
		Exec(ctx)
	return err
}
