package database

import (
	"context"

	"github.com/uptrace/bun"
)

type Pulp2RepoContentStore struct {
	db *DB
}

func NewPulp2RepoContentStore() *Pulp2RepoContentStore {
	return &Pulp2RepoContentStore{
		db: defaultDB,
	}
}

func NewPulp2RepoContentStoreWithDB(db *DB) *Pulp2RepoContentStore {
	return &Pulp2RepoContentStore{
		db: db,
	}
}

// Pulp2RepoContent records legacy repo membership. Membership is a
// snapshot: pre-migration deletes a repo's rows before refilling them.
type Pulp2RepoContent struct {
	ID                 int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2RepositoryID  int64  `bun:",notnull" json:"pulp2_repository_id"`
	Pulp2UnitID        string `bun:",notnull" json:"pulp2_unit_id"`
	Pulp2ContentTypeID string `bun:",notnull" json:"pulp2_content_type_id"`

	Pulp2Repository *Pulp2Repository `bun:"rel:belongs-to,join:pulp2_repository_id=id" json:"pulp2_repository,omitempty"`

	times
}

// ReplaceForRepo swaps the repo's membership snapshot in one
// transaction.
func (s *Pulp2RepoContentStore) ReplaceForRepo(ctx context.Context, repoID int64, rows []Pulp2RepoContent) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*Pulp2RepoContent)(nil)).
			Where("pulp2_repository_id = ?", repoID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.NewInsert().
			Model(&rows).
			Ignore().
			Exec(ctx)
		return err
	})
}

func (s *Pulp2RepoContentStore) ListByRepo(ctx context.Context, repoID int64) ([]Pulp2RepoContent, error) {
	var rows []Pulp2RepoContent
	err := s.db.Operator.Core.NewSelect().
		Model(&rows).
		Where("pulp2_repository_id = ?", repoID).
		Order("pulp2_unit_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReposOwningUnits maps each given unit id to the repositories that
// contain it, used for the per-repo fan-out of errata and for flagging
// owners of changed mutable content.
func (s *Pulp2RepoContentStore) ReposOwningUnits(ctx context.Context, unitIDs []string) (map[string][]int64, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	var rows []Pulp2RepoContent
	err := s.db.Operator.Core.NewSelect().
		Model(&rows).
		Where("pulp2_unit_id IN (?)", bun.In(unitIDs)).
		Order("pulp2_repository_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	owners := make(map[string][]int64, len(unitIDs))
	for _, row := range rows {
		owners[row.Pulp2UnitID] = append(owners[row.Pulp2UnitID], row.Pulp2RepositoryID)
	}
	return owners, nil
}

// UnitsMissingPerRepoRows returns units of the type that appear in a
// repository's membership without a matching per-repo side-table row.
// The unit itself did not change, so the incremental selection never
// sees it; joining a new repository is what makes it new again.
func (s *Pulp2RepoContentStore) UnitsMissingPerRepoRows(ctx context.Context, typeID string) ([]string, error) {
	var ids []string
	err := s.db.Operator.Core.NewSelect().
		ColumnExpr("DISTINCT rc.pulp2_unit_id").
		TableExpr("pulp2_repo_contents AS rc").
		Where("rc.pulp2_content_type_id = ?", typeID).
		Where("NOT EXISTS (SELECT 1 FROM pulp2_contents pc"+
			" WHERE pc.pulp2_id = rc.pulp2_unit_id"+
			" AND pc.pulp2_content_type_id = rc.pulp2_content_type_id"+
			" AND pc.pulp2_repo_id = rc.pulp2_repository_id)").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Pulp2RepoContentStore) DeleteByRepoIDs(ctx context.Context, repoIDs []int64) error {
	if len(repoIDs) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2RepoContent)(nil)).
		Where("pulp2_repository_id IN (?)", bun.In(repoIDs)).
		Exec(ctx)
	return err
}
