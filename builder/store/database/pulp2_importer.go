package database

import (
	"context"

	"github.com/uptrace/bun"
)

type Pulp2ImporterStore struct {
	db *DB
}

func NewPulp2ImporterStore() *Pulp2ImporterStore {
	return &Pulp2ImporterStore{
		db: defaultDB,
	}
}

func NewPulp2ImporterStoreWithDB(db *DB) *Pulp2ImporterStore {
	return &Pulp2ImporterStore{
		db: db,
	}
}

// Pulp2Importer is one legacy fetch configuration. The raw config dict
// is kept opaque; unknown keys are data, not schema violations.
type Pulp2Importer struct {
	ID               int64                  `bun:",pk,autoincrement" json:"id"`
	Pulp2ObjectID    string                 `bun:",notnull,unique" json:"pulp2_object_id"`
	Pulp2TypeID      string                 `bun:",notnull" json:"pulp2_type_id"`
	Pulp2Config      map[string]interface{} `bun:"type:jsonb" json:"pulp2_config"`
	Pulp2LastUpdated int64                  `bun:",notnull" json:"pulp2_last_updated"`
	IsMigrated       bool                   `bun:",notnull,default:false" json:"is_migrated"`
	NotInPlan        bool                   `bun:",notnull,default:false" json:"not_in_plan"`

	Pulp2RepositoryID int64            `bun:",notnull" json:"pulp2_repository_id"`
	Pulp2Repository   *Pulp2Repository `bun:"rel:belongs-to,join:pulp2_repository_id=id" json:"pulp2_repository,omitempty"`

	Pulp3RemoteID *int64  `bun:",nullzero" json:"pulp3_remote_id"`
	Pulp3Remote   *Remote `bun:"rel:belongs-to,join:pulp3_remote_id=id" json:"pulp3_remote,omitempty"`

	times
}

func (s *Pulp2ImporterStore) Upsert(ctx context.Context, importer *Pulp2Importer) (*Pulp2Importer, bool, error) {
	existing, err := s.FindByObjectID(ctx, importer.Pulp2ObjectID)
	if err == nil {
		importer.ID = existing.ID
		importer.Pulp3RemoteID = existing.Pulp3RemoteID
		importer.IsMigrated = existing.IsMigrated
		err = assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
			Model(importer).
			WherePK().
			Exec(ctx))
		if err != nil {
			return nil, false, err
		}
		return importer, true, nil
	}
	err = s.db.Operator.Core.NewInsert().
		Model(importer).
		Scan(ctx)
	if err != nil {
		return nil, false, err
	}
	return importer, false, nil
}

func (s *Pulp2ImporterStore) FindByObjectID(ctx context.Context, objectID string) (*Pulp2Importer, error) {
	var importer Pulp2Importer
	err := s.db.Operator.Core.NewSelect().
		Model(&importer).
		Where("pulp2_object_id = ?", objectID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &importer, nil
}

func (s *Pulp2ImporterStore) FindByRepoID(ctx context.Context, repoID int64) (*Pulp2Importer, error) {
	var importer Pulp2Importer
	err := s.db.Operator.Core.NewSelect().
		Model(&importer).
		Relation("Pulp3Remote").
		Where("pulp2_repository_id = ?", repoID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &importer, nil
}

func (s *Pulp2ImporterStore) Update(ctx context.Context, importer *Pulp2Importer) error {
	return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
		Model(importer).
		WherePK().
		Exec(ctx))
}

// ClearRemote nulls the weak back-reference after the bound remote was
// deleted because the feed changed.
func (s *Pulp2ImporterStore) ClearRemote(ctx context.Context, importerID int64) error {
	_, err := s.db.Operator.Core.NewUpdate().
		Model((*Pulp2Importer)(nil)).
		Set("pulp3_remote_id = NULL").
		Set("is_migrated = false").
		Where("id = ?", importerID).
		Exec(ctx)
	return err
}

// ListToMigrate returns importers of the given type ids that are in
// plan and not yet migrated.
func (s *Pulp2ImporterStore) ListToMigrate(ctx context.Context, typeIDs []string) ([]Pulp2Importer, error) {
	var importers []Pulp2Importer
	err := s.db.Operator.Core.NewSelect().
		Model(&importers).
		Relation("Pulp2Repository").
		Where("pulp2_importer.not_in_plan = false").
		Where("pulp2_importer.is_migrated = false").
		Where("pulp2_importer.pulp2_type_id IN (?)", bun.In(typeIDs)).
		Order("pulp2_importer.pulp2_object_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return importers, nil
}

// MarkNotInPlan flags importers of the given types whose repository is
// not selected for importer migration by the current plan.
func (s *Pulp2ImporterStore) MarkNotInPlan(ctx context.Context, typeIDs []string, inPlanRepoIDs []int64) error {
	q := s.db.Operator.Core.NewUpdate().
		Model((*Pulp2Importer)(nil)).
		Where("pulp2_type_id IN (?)", bun.In(typeIDs))
	if len(inPlanRepoIDs) > 0 {
		q = q.Set("not_in_plan = pulp2_repository_id NOT IN (?)", bun.In(inPlanRepoIDs))
	} else {
		q = q.Set("not_in_plan = true")
	}
	_, err := q.Exec(ctx)
	return err
}

func (s *Pulp2ImporterStore) DeleteByTypes(ctx context.Context, typeIDs []string) error {
	if len(typeIDs) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2Importer)(nil)).
		Where("pulp2_type_id IN (?)", bun.In(typeIDs)).
		Exec(ctx)
	return err
}
