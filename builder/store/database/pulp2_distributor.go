package database

import (
	"context"

	"github.com/uptrace/bun"
)

type Pulp2DistributorStore struct {
	db *DB
}

func NewPulp2DistributorStore() *Pulp2DistributorStore {
	return &Pulp2DistributorStore{
		db: defaultDB,
	}
}

func NewPulp2DistributorStoreWithDB(db *DB) *Pulp2DistributorStore {
	return &Pulp2DistributorStore{
		db: db,
	}
}

// Pulp2Distributor is one legacy publish configuration. A distributor
// may serve content from several repositories, hence the m2m.
type Pulp2Distributor struct {
	ID               int64                  `bun:",pk,autoincrement" json:"id"`
	Pulp2ObjectID    string                 `bun:",notnull,unique" json:"pulp2_object_id"`
	Pulp2ID          string                 `bun:",notnull" json:"pulp2_id"`
	Pulp2TypeID      string                 `bun:",notnull" json:"pulp2_type_id"`
	Pulp2Config      map[string]interface{} `bun:"type:jsonb" json:"pulp2_config"`
	Pulp2LastUpdated int64                  `bun:",notnull" json:"pulp2_last_updated"`
	Pulp2AutoPublish bool                   `bun:",notnull,default:true" json:"pulp2_auto_publish"`
	IsMigrated       bool                   `bun:",notnull,default:false" json:"is_migrated"`
	NotInPlan        bool                   `bun:",notnull,default:false" json:"not_in_plan"`

	Pulp2Repositories []*Pulp2Repository `bun:"m2m:pulp2_distributor_repositories,join:Pulp2Distributor=Pulp2Repository" json:"pulp2_repositories,omitempty"`

	Pulp3PublicationID  *int64        `bun:",nullzero" json:"pulp3_publication_id"`
	Pulp3Publication    *Publication  `bun:"rel:belongs-to,join:pulp3_publication_id=id" json:"pulp3_publication,omitempty"`
	Pulp3DistributionID *int64        `bun:",nullzero" json:"pulp3_distribution_id"`
	Pulp3Distribution   *Distribution `bun:"rel:belongs-to,join:pulp3_distribution_id=id" json:"pulp3_distribution,omitempty"`

	times
}

type Pulp2DistributorRepository struct {
	ID                 int64             `bun:",pk,autoincrement" json:"id"`
	Pulp2DistributorID int64             `bun:",notnull" json:"pulp2_distributor_id"`
	Pulp2Distributor   *Pulp2Distributor `bun:"rel:belongs-to,join:pulp2_distributor_id=id" json:"pulp2_distributor,omitempty"`
	Pulp2RepositoryID  int64             `bun:",notnull" json:"pulp2_repository_id"`
	Pulp2Repository    *Pulp2Repository  `bun:"rel:belongs-to,join:pulp2_repository_id=id" json:"pulp2_repository,omitempty"`
}

func (s *Pulp2DistributorStore) Upsert(ctx context.Context, distributor *Pulp2Distributor, repoIDs []int64) (*Pulp2Distributor, bool, error) {
	existing, err := s.FindByObjectID(ctx, distributor.Pulp2ObjectID)
	existed := err == nil
	if existed {
		distributor.ID = existing.ID
		distributor.Pulp3PublicationID = existing.Pulp3PublicationID
		distributor.Pulp3DistributionID = existing.Pulp3DistributionID
		distributor.IsMigrated = existing.IsMigrated
		err = assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
			Model(distributor).
			WherePK().
			Exec(ctx))
		if err != nil {
			return nil, false, err
		}
	} else {
		err = s.db.Operator.Core.NewInsert().
			Model(distributor).
			Scan(ctx)
		if err != nil {
			return nil, false, err
		}
	}

	err = s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*Pulp2DistributorRepository)(nil)).
			Where("pulp2_distributor_id = ?", distributor.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		for _, repoID := range repoIDs {
			_, err = tx.NewInsert().
				Model(&Pulp2DistributorRepository{
					Pulp2DistributorID: distributor.ID,
					Pulp2RepositoryID:  repoID,
				}).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return distributor, existed, nil
}

func (s *Pulp2DistributorStore) FindByObjectID(ctx context.Context, objectID string) (*Pulp2Distributor, error) {
	var distributor Pulp2Distributor
	err := s.db.Operator.Core.NewSelect().
		Model(&distributor).
		Where("pulp2_object_id = ?", objectID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &distributor, nil
}

// ListByRepoID returns distributors serving the given pre-migrated
// repository.
func (s *Pulp2DistributorStore) ListByRepoID(ctx context.Context, repoID int64) ([]Pulp2Distributor, error) {
	var distributors []Pulp2Distributor
	err := s.db.Operator.Core.NewSelect().
		Model(&distributors).
		Join("JOIN pulp2_distributor_repositories AS dr ON dr.pulp2_distributor_id = pulp2_distributor.id").
		Where("dr.pulp2_repository_id = ?", repoID).
		Order("pulp2_distributor.pulp2_object_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return distributors, nil
}

func (s *Pulp2DistributorStore) Update(ctx context.Context, distributor *Pulp2Distributor) error {
	return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
		Model(distributor).
		WherePK().
		Exec(ctx))
}

func (s *Pulp2DistributorStore) MarkNotInPlan(ctx context.Context, typeIDs []string, inPlanRepoIDs []int64) error {
	q := s.db.Operator.Core.NewUpdate().
		Model((*Pulp2Distributor)(nil)).
		Where("pulp2_type_id IN (?)", bun.In(typeIDs))
	if len(inPlanRepoIDs) > 0 {
		q = q.Set("not_in_plan = id NOT IN (SELECT pulp2_distributor_id FROM pulp2_distributor_repositories WHERE pulp2_repository_id IN (?))", bun.In(inPlanRepoIDs))
	} else {
		q = q.Set("not_in_plan = true")
	}
	_, err := q.Exec(ctx)
	return err
}

// ListOutdated returns distributors of the given types that are out of
// plan or whose repository must be re-materialised. Their bound
// publication and distribution are about to be thrown away.
func (s *Pulp2DistributorStore) ListOutdated(ctx context.Context, typeIDs []string) ([]Pulp2Distributor, error) {
	var distributors []Pulp2Distributor
	err := s.db.Operator.Core.NewSelect().
		Model(&distributors).
		Where("pulp2_distributor.pulp2_type_id IN (?)", bun.In(typeIDs)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("pulp2_distributor.not_in_plan = true").
				WhereOr("pulp2_distributor.id IN (SELECT dr.pulp2_distributor_id FROM pulp2_distributor_repositories dr JOIN pulp2_repositories r ON r.id = dr.pulp2_repository_id WHERE r.is_migrated = false)")
		}).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return distributors, nil
}

// ListByPublicationID returns all distributors sharing one publication,
// used to cascade-invalidate siblings when the publication is deleted.
func (s *Pulp2DistributorStore) ListByPublicationID(ctx context.Context, publicationID int64) ([]Pulp2Distributor, error) {
	var distributors []Pulp2Distributor
	err := s.db.Operator.Core.NewSelect().
		Model(&distributors).
		Where("pulp3_publication_id = ?", publicationID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return distributors, nil
}

// TearDownServing dismantles one serving group in a single
// transaction: the shared publication, the distributions of the
// affected distributors, and their pulp3 bindings. A failure midway
// rolls everything back, leaving no half-dismantled serving state.
func (s *Pulp2DistributorStore) TearDownServing(ctx context.Context, publicationID *int64, distributionIDs, distributorIDs []int64) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if publicationID != nil {
			_, err := tx.NewDelete().
				Model((*Publication)(nil)).
				Where("id = ?", *publicationID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		if len(distributionIDs) > 0 {
			_, err := tx.NewDelete().
				Model((*Distribution)(nil)).
				Where("id IN (?)", bun.In(distributionIDs)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		if len(distributorIDs) == 0 {
			return nil
		}
		_, err := tx.NewUpdate().
			Model((*Pulp2Distributor)(nil)).
			Set("pulp3_publication_id = NULL").
			Set("pulp3_distribution_id = NULL").
			Set("is_migrated = false").
			Where("id IN (?)", bun.In(distributorIDs)).
			Exec(ctx)
		return err
	})
}

func (s *Pulp2DistributorStore) DeleteByTypes(ctx context.Context, typeIDs []string) error {
	if len(typeIDs) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2Distributor)(nil)).
		Where("pulp2_type_id IN (?)", bun.In(typeIDs)).
		Exec(ctx)
	return err
}
