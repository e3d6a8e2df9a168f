package database

import (
	"context"

	"github.com/uptrace/bun"
)

type DistributionStore struct {
	db *DB
}

func NewDistributionStore() *DistributionStore {
	return &DistributionStore{
		db: defaultDB,
	}
}

func NewDistributionStoreWithDB(db *DB) *DistributionStore {
	return &DistributionStore{
		db: db,
	}
}

// Distribution is a serving endpoint at a URL base path, bound to a
// publication or, for families without publications, directly to a
// repository.
type Distribution struct {
	ID       int64  `bun:",pk,autoincrement" json:"id"`
	Name     string `bun:",notnull,unique" json:"name"`
	PulpType string `bun:",notnull" json:"pulp_type"`
	BasePath string `bun:",notnull,unique" json:"base_path"`

	PublicationID       *int64       `bun:",nullzero" json:"publication_id"`
	Publication         *Publication `bun:"rel:belongs-to,join:publication_id=id" json:"publication,omitempty"`
	RepositoryID        *int64       `bun:",nullzero" json:"repository_id"`
	Repository          *Repository  `bun:"rel:belongs-to,join:repository_id=id" json:"repository,omitempty"`
	RepositoryVersionID *int64       `bun:",nullzero" json:"repository_version_id"`

	times
}

// Upsert keys on (name, base_path); an existing distribution is
// re-pointed at the new publication/repository bindings.
func (s *DistributionStore) Upsert(ctx context.Context, distribution *Distribution) (*Distribution, error) {
	existing, err := s.FindByName(ctx, distribution.Name)
	if err == nil {
		distribution.ID = existing.ID
		err = assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
			Model(distribution).
			WherePK().
			Exec(ctx))
		if err != nil {
			return nil, err
		}
		return distribution, nil
	}
	err = s.db.Operator.Core.NewInsert().
		Model(distribution).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return distribution, nil
}

func (s *DistributionStore) FindByName(ctx context.Context, name string) (*Distribution, error) {
	var distribution Distribution
	err := s.db.Operator.Core.NewSelect().
		Model(&distribution).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &distribution, nil
}

func (s *DistributionStore) FindByBasePath(ctx context.Context, basePath string) (*Distribution, error) {
	var distribution Distribution
	err := s.db.Operator.Core.NewSelect().
		Model(&distribution).
		Where("base_path = ?", basePath).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &distribution, nil
}

func (s *DistributionStore) Count(ctx context.Context, pulpType string) (int, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Distribution)(nil)).
		Where("pulp_type = ?", pulpType).
		Count(ctx)
}

func (s *DistributionStore) DeleteByTypes(ctx context.Context, pulpTypes []string) error {
	if len(pulpTypes) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Distribution)(nil)).
		Where("pulp_type IN (?)", bun.In(pulpTypes)).
		Exec(ctx)
	return err
}
