package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

type RepositoryStore struct {
	db *DB
}

func NewRepositoryStore() *RepositoryStore {
	return &RepositoryStore{
		db: defaultDB,
	}
}

func NewRepositoryStoreWithDB(db *DB) *RepositoryStore {
	return &RepositoryStore{
		db: db,
	}
}

// Repository is a target repository. Content membership lives in
// immutable numbered versions.
type Repository struct {
	ID       int64  `bun:",pk,autoincrement" json:"id"`
	Name     string `bun:",notnull,unique" json:"name"`
	PulpType string `bun:",notnull" json:"pulp_type"`

	RemoteID *int64  `bun:",nullzero" json:"remote_id"`
	Remote   *Remote `bun:"rel:belongs-to,join:remote_id=id" json:"remote,omitempty"`

	times
}

// RepositoryVersion is an immutable content snapshot. Version 0 is the
// empty initial version created with the repository.
type RepositoryVersion struct {
	ID           int64 `bun:",pk,autoincrement" json:"id"`
	RepositoryID int64 `bun:",notnull" json:"repository_id"`
	Number       int64 `bun:",notnull" json:"number"`
	Complete     bool  `bun:",notnull,default:false" json:"complete"`

	Repository *Repository `bun:"rel:belongs-to,join:repository_id=id" json:"repository,omitempty"`

	times
}

// RepositoryContent is version-ranged membership: a content unit is in
// version N iff version_added <= N and (version_removed is null or
// version_removed > N).
type RepositoryContent struct {
	ID             int64  `bun:",pk,autoincrement" json:"id"`
	RepositoryID   int64  `bun:",notnull" json:"repository_id"`
	ContentID      int64  `bun:",notnull" json:"content_id"`
	VersionAdded   int64  `bun:",notnull" json:"version_added"`
	VersionRemoved *int64 `bun:",nullzero" json:"version_removed"`
}

// GetOrCreate returns the repository with the given name, creating it
// together with its empty initial version when missing. Reports whether
// the repository was created by this call.
func (s *RepositoryStore) GetOrCreate(ctx context.Context, name, pulpType string) (*Repository, bool, error) {
	var repo Repository
	err := s.db.Operator.Core.NewSelect().
		Model(&repo).
		Where("name = ?", name).
		Scan(ctx)
	if err == nil {
		return &repo, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	repo = Repository{Name: name, PulpType: pulpType}
	err = s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewInsert().Model(&repo).Scan(ctx)
		if err != nil {
			return err
		}
		return tx.NewInsert().Model(&RepositoryVersion{
			RepositoryID: repo.ID,
			Number:       0,
			Complete:     true,
		}).Scan(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	return &repo, true, nil
}

func (s *RepositoryStore) FindByName(ctx context.Context, name string) (*Repository, error) {
	var repo Repository
	err := s.db.Operator.Core.NewSelect().
		Model(&repo).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *RepositoryStore) FindByID(ctx context.Context, id int64) (*Repository, error) {
	var repo Repository
	err := s.db.Operator.Core.NewSelect().
		Model(&repo).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (s *RepositoryStore) Update(ctx context.Context, repo *Repository) error {
	return assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
		Model(repo).
		WherePK().
		Exec(ctx))
}

func (s *RepositoryStore) LatestVersion(ctx context.Context, repoID int64) (*RepositoryVersion, error) {
	var version RepositoryVersion
	err := s.db.Operator.Core.NewSelect().
		Model(&version).
		Where("repository_id = ?", repoID).
		Where("complete = true").
		Order("number DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (s *RepositoryStore) FindVersionByID(ctx context.Context, versionID int64) (*RepositoryVersion, error) {
	var version RepositoryVersion
	err := s.db.Operator.Core.NewSelect().
		Model(&version).
		Where("id = ?", versionID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (s *RepositoryStore) ListVersions(ctx context.Context, repoID int64) ([]RepositoryVersion, error) {
	var versions []RepositoryVersion
	err := s.db.Operator.Core.NewSelect().
		Model(&versions).
		Where("repository_id = ?", repoID).
		Order("number").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// VersionContentIDs returns the content membership of one version.
func (s *RepositoryStore) VersionContentIDs(ctx context.Context, version *RepositoryVersion) ([]int64, error) {
	var contentIDs []int64
	err := s.db.Operator.Core.NewSelect().
		Model((*RepositoryContent)(nil)).
		Column("content_id").
		Where("repository_id = ?", version.RepositoryID).
		Where("version_added <= ?", version.Number).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("version_removed IS NULL").
				WhereOr("version_removed > ?", version.Number)
		}).
		Order("content_id").
		Scan(ctx, &contentIDs)
	if err != nil {
		return nil, err
	}
	return contentIDs, nil
}

// NewVersion opens the next version, applies to_add then to_delete
// against the previous membership and marks the version complete, all
// in one transaction. Each version mirrors its incoming set rather than
// accumulating. When nothing would change, no version is created and
// (nil, nil) is returned.
func (s *RepositoryStore) NewVersion(ctx context.Context, repoID int64, incoming []int64) (*RepositoryVersion, error) {
	latest, err := s.LatestVersion(ctx, repoID)
	if err != nil {
		return nil, err
	}
	current, err := s.VersionContentIDs(ctx, latest)
	if err != nil {
		return nil, err
	}

	currentSet := make(map[int64]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	incomingSet := make(map[int64]struct{}, len(incoming))
	for _, id := range incoming {
		incomingSet[id] = struct{}{}
	}
	var toAdd, toDelete []int64
	for _, id := range incoming {
		if _, ok := currentSet[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if _, ok := incomingSet[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	if len(toAdd) == 0 && len(toDelete) == 0 {
		return nil, nil
	}

	version := &RepositoryVersion{
		RepositoryID: repoID,
		Number:       latest.Number + 1,
	}
	err = s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewInsert().Model(version).Scan(ctx)
		if err != nil {
			return err
		}
		if len(toAdd) > 0 {
			rows := make([]RepositoryContent, 0, len(toAdd))
			for _, contentID := range toAdd {
				rows = append(rows, RepositoryContent{
					RepositoryID: repoID,
					ContentID:    contentID,
					VersionAdded: version.Number,
				})
			}
			_, err = tx.NewInsert().Model(&rows).Exec(ctx)
			if err != nil {
				return err
			}
		}
		if len(toDelete) > 0 {
			_, err = tx.NewUpdate().
				Model((*RepositoryContent)(nil)).
				Set("version_removed = ?", version.Number).
				Where("repository_id = ?", repoID).
				Where("content_id IN (?)", bun.In(toDelete)).
				Where("version_removed IS NULL").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		version.Complete = true
		_, err = tx.NewUpdate().
			Model(version).
			Column("complete").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (s *RepositoryStore) Delete(ctx context.Context, repoID int64) error {
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*RepositoryContent)(nil)).
			Where("repository_id = ?", repoID).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*RepositoryVersion)(nil)).
			Where("repository_id = ?", repoID).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*Repository)(nil)).
			Where("id = ?", repoID).
			Exec(ctx)
		return err
	})
}

func (s *RepositoryStore) ListByType(ctx context.Context, pulpType string) ([]Repository, error) {
	var repos []Repository
	err := s.db.Operator.Core.NewSelect().
		Model(&repos).
		Where("pulp_type = ?", pulpType).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return repos, nil
}
