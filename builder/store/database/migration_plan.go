package database

import (
	"context"

	"opencsg.com/pulp-migrator/common/types"
)

type MigrationPlanStore struct {
	db *DB
}

func NewMigrationPlanStore() *MigrationPlanStore {
	return &MigrationPlanStore{
		db: defaultDB,
	}
}

func NewMigrationPlanStoreWithDB(db *DB) *MigrationPlanStore {
	return &MigrationPlanStore{
		db: db,
	}
}

// MigrationPlan is the submitted plan document. Immutable once stored;
// every run reads it, nothing mutates it.
type MigrationPlan struct {
	ID   int64                   `bun:",pk,autoincrement" json:"id"`
	Plan types.MigrationPlanSpec `bun:"type:jsonb,notnull" json:"plan"`
	times
}

func (s *MigrationPlanStore) Create(ctx context.Context, plan *MigrationPlan) (*MigrationPlan, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(plan).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *MigrationPlanStore) FindByID(ctx context.Context, id int64) (*MigrationPlan, error) {
	var plan MigrationPlan
	err := s.db.Operator.Core.NewSelect().
		Model(&plan).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
