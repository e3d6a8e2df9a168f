package database

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Pulp2RepositoryStore struct {
	db *DB
}

func NewPulp2RepositoryStore() *Pulp2RepositoryStore {
	return &Pulp2RepositoryStore{
		db: defaultDB,
	}
}

func NewPulp2RepositoryStoreWithDB(db *DB) *Pulp2RepositoryStore {
	return &Pulp2RepositoryStore{
		db: db,
	}
}

// Pulp2Repository is the side-table row for one legacy repository. The
// pulp3 columns are weak back-references filled during migration and
// nulled when the target object disappears.
type Pulp2Repository struct {
	ID                   int64      `bun:",pk,autoincrement" json:"id"`
	Pulp2ObjectID        string     `bun:",notnull" json:"pulp2_object_id"`
	Pulp2RepoID          string     `bun:",notnull,unique" json:"pulp2_repo_id"`
	Pulp2RepoType        string     `bun:",notnull" json:"pulp2_repo_type"`
	Pulp2LastUnitAdded   *time.Time `bun:",nullzero" json:"pulp2_last_unit_added"`
	Pulp2LastUnitRemoved *time.Time `bun:",nullzero" json:"pulp2_last_unit_removed"`
	IsMigrated           bool       `bun:",notnull,default:false" json:"is_migrated"`
	NotInPlan            bool       `bun:",notnull,default:false" json:"not_in_plan"`

	Pulp3RepositoryID        *int64             `bun:",nullzero" json:"pulp3_repository_id"`
	Pulp3Repository          *Repository        `bun:"rel:belongs-to,join:pulp3_repository_id=id" json:"pulp3_repository,omitempty"`
	Pulp3RepositoryVersionID *int64             `bun:",nullzero" json:"pulp3_repository_version_id"`
	Pulp3RepositoryVersion   *RepositoryVersion `bun:"rel:belongs-to,join:pulp3_repository_version_id=id" json:"pulp3_repository_version,omitempty"`
	Pulp3RemoteID            *int64             `bun:",nullzero" json:"pulp3_remote_id"`
	Pulp3Remote              *Remote            `bun:"rel:belongs-to,join:pulp3_remote_id=id" json:"pulp3_remote,omitempty"`

	times
}

// Upsert keeps the row for a pulp2 repo id current. Returns the stored
// row and whether it existed before this call.
func (s *Pulp2RepositoryStore) Upsert(ctx context.Context, repo *Pulp2Repository) (*Pulp2Repository, bool, error) {
	existing, err := s.FindByPulp2RepoID(ctx, repo.Pulp2RepoID)
	if err == nil {
		repo.ID = existing.ID
		repo.Pulp3RepositoryID = existing.Pulp3RepositoryID
		repo.Pulp3RepositoryVersionID = existing.Pulp3RepositoryVersionID
		repo.Pulp3RemoteID = existing.Pulp3RemoteID
		repo.IsMigrated = existing.IsMigrated
		err = assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
			Model(repo).
			WherePK().
			Exec(ctx))
		if err != nil {
			return nil, false, err
		}
		return repo, true, nil
	}
	err = s.db.Operator.Core.NewInsert().
		Model(repo).
		Scan(ctx)
	if err != nil {
		return nil, false, err
	}
	return repo, false, nil
}

func (s *Pulp2RepositoryStore) FindByPulp2RepoID(ctx context.Context, pulp2RepoID string) (*Pulp2Repository, error) {
	var repo Pulp2Repository
	err := s.db.Operator.Core.NewSelect().
		Model(&repo).
		Where("pulp2_repo_id = ?", pulp2RepoID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *Pulp2RepositoryStore) ListByType(ctx context.Context, repoType string) ([]Pulp2Repository, error) {
	var repos []Pulp2Repository
	err := s.db.Operator.Core.NewSelect().
		Model(&repos).
		Where("pulp2_repo_type = ?", repoType).
		Order("pulp2_repo_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return repos, nil
}

func (s *Pulp2RepositoryStore) Update(ctx context.Context, repo *Pulp2Repository) error {
	return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
		Model(repo).
		WherePK().
		Exec(ctx))
}

// MarkNotInPlan flags rows of the family whose pulp2 repo id is absent
// from the current plan, and clears the flag on the rest. A plan
// matching no repository of the family puts every row out of plan.
func (s *Pulp2RepositoryStore) MarkNotInPlan(ctx context.Context, repoType string, inPlan []string) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*Pulp2Repository)(nil)).
			Where("pulp2_repo_type = ?", repoType)
		if len(inPlan) > 0 {
			q = q.Set("not_in_plan = pulp2_repo_id NOT IN (?)", bun.In(inPlan))
		} else {
			q = q.Set("not_in_plan = true")
		}
		_, err := q.Exec(ctx)
		return err
	})
}

// MarkUnmigratedByIDs clears is_migrated for the given repos, forcing
// their target side to be rebuilt. Used when mutable content owned by
// a repo changed underneath it.
func (s *Pulp2RepositoryStore) MarkUnmigratedByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewUpdate().
		Model((*Pulp2Repository)(nil)).
		Set("is_migrated = false").
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

// MarkChangedRelations clears is_migrated for the repos whose plan
// relations changed since the previous run, so a new version is built
// for them even though their content did not move. Repos not yet in
// the side tables are first-run entries and need no clearing.
func (s *Pulp2RepositoryStore) MarkChangedRelations(ctx context.Context, pulp2RepoIDs []string) error {
	if len(pulp2RepoIDs) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewUpdate().
		Model((*Pulp2Repository)(nil)).
		Set("is_migrated = false").
		Where("pulp2_repo_id IN (?)", bun.In(pulp2RepoIDs)).
		Where("is_migrated = true").
		Exec(ctx)
	return err
}

func (s *Pulp2RepositoryStore) DeleteByType(ctx context.Context, repoType string) error {
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2Repository)(nil)).
		Where("pulp2_repo_type = ?", repoType).
		Exec(ctx)
	return err
}
