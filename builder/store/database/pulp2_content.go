package database

import (
	"context"

	"github.com/uptrace/bun"
)

type Pulp2ContentStore struct {
	db *DB
}

func NewPulp2ContentStore() *Pulp2ContentStore {
	return &Pulp2ContentStore{
		db: defaultDB,
	}
}

func NewPulp2ContentStoreWithDB(db *DB) *Pulp2ContentStore {
	return &Pulp2ContentStore{
		db: db,
	}
}

// Pulp2Content is one pre-migrated legacy content unit. A unit that
// fans out into several target units gets one row per pulp2_subid, and
// per-repo content (errata) gets one row per owning repository.
type Pulp2Content struct {
	ID                 int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ID            string `bun:",notnull" json:"pulp2_id"`
	Pulp2ContentTypeID string `bun:",notnull" json:"pulp2_content_type_id"`
	Pulp2LastUpdated   int64  `bun:",notnull" json:"pulp2_last_updated"`
	Pulp2StoragePath   string `bun:",nullzero" json:"pulp2_storage_path"`
	Pulp2Subid         string `bun:",nullzero,default:''" json:"pulp2_subid"`
	Downloaded         bool   `bun:",notnull,default:false" json:"downloaded"`

	Pulp2RepoID *int64           `bun:",nullzero" json:"pulp2_repo_id"`
	Pulp2Repo   *Pulp2Repository `bun:"rel:belongs-to,join:pulp2_repo_id=id" json:"pulp2_repo,omitempty"`

	Pulp3ContentID *int64   `bun:",nullzero" json:"pulp3_content_id"`
	Pulp3Content   *Content `bun:"rel:belongs-to,join:pulp3_content_id=id" json:"pulp3_content,omitempty"`

	times
}

// BulkInsertIgnore inserts the batch tolerating uniqueness conflicts.
// Primary keys of rows that hit an existing row are not reliable
// afterwards; use ResolveIDs to recover them.
func (s *Pulp2ContentStore) BulkInsertIgnore(ctx context.Context, contents []Pulp2Content) error {
	if len(contents) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&contents).
		Ignore().
		Exec(ctx)
	return err
}

// ResolveIDs re-selects the batch by its uniqueness tuple and returns
// the stored rows with their real primary keys.
func (s *Pulp2ContentStore) ResolveIDs(ctx context.Context, contents []Pulp2Content) ([]Pulp2Content, error) {
	if len(contents) == 0 {
		return nil, nil
	}
	q := s.db.Operator.Core.NewSelect().Model((*Pulp2Content)(nil))
	q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, c := range contents {
			c := c
			q = q.WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
				q = q.Where("pulp2_id = ?", c.Pulp2ID).
					Where("pulp2_content_type_id = ?", c.Pulp2ContentTypeID).
					Where("coalesce(pulp2_subid, '') = ?", c.Pulp2Subid)
				if c.Pulp2RepoID != nil {
					q = q.Where("pulp2_repo_id = ?", *c.Pulp2RepoID)
				} else {
					q = q.Where("pulp2_repo_id IS NULL")
				}
				return q
			})
		}
		return q
	})
	var stored []Pulp2Content
	err := q.Scan(ctx, &stored)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// MaxLastUpdated is the high-water mark for incremental selection of
// legacy units of one content type.
func (s *Pulp2ContentStore) MaxLastUpdated(ctx context.Context, contentType string) (int64, error) {
	var max *int64
	err := s.db.Operator.Core.NewSelect().
		Model((*Pulp2Content)(nil)).
		ColumnExpr("max(pulp2_last_updated)").
		Where("pulp2_content_type_id = ?", contentType).
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ExistsAt reports whether a unit was already pre-migrated with exactly
// the given timestamp. It is the tie-break guard for candidates sharing
// the high-water second with the previous run.
func (s *Pulp2ContentStore) ExistsAt(ctx context.Context, contentType, pulp2ID string, lastUpdated int64) (bool, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Pulp2Content)(nil)).
		Where("pulp2_content_type_id = ?", contentType).
		Where("pulp2_id = ?", pulp2ID).
		Where("pulp2_last_updated = ?", lastUpdated).
		Exists(ctx)
}

// PruneMissing deletes rows of the type whose legacy id no longer
// exists in pulp2, returning how many were removed.
func (s *Pulp2ContentStore) PruneMissing(ctx context.Context, contentType string, presentIDs []string) (int64, error) {
	q := s.db.Operator.Core.NewDelete().
		Model((*Pulp2Content)(nil)).
		Where("pulp2_content_type_id = ?", contentType)
	if len(presentIDs) > 0 {
		q = q.Where("pulp2_id NOT IN (?)", bun.In(presentIDs))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByPulp2IDs removes pre-migrated rows for mutable units that
// changed in pulp2 and must be re-premigrated from scratch.
func (s *Pulp2ContentStore) DeleteByPulp2IDs(ctx context.Context, contentType string, pulp2IDs []string) error {
	if len(pulp2IDs) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2Content)(nil)).
		Where("pulp2_content_type_id = ?", contentType).
		Where("pulp2_id IN (?)", bun.In(pulp2IDs)).
		Exec(ctx)
	return err
}

// ListUnmigrated returns rows of the type that have no target content
// yet, in stable order for resumable processing.
func (s *Pulp2ContentStore) ListUnmigrated(ctx context.Context, contentType string) ([]Pulp2Content, error) {
	var contents []Pulp2Content
	err := s.db.Operator.Core.NewSelect().
		Model(&contents).
		Relation("Pulp2Repo").
		Where("pulp2_content.pulp2_content_type_id = ?", contentType).
		Where("pulp2_content.pulp3_content_id IS NULL").
		Order("pulp2_content.pulp2_last_updated", "pulp2_content.pulp2_id", "pulp2_content.pulp2_subid").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return contents, nil
}

func (s *Pulp2ContentStore) CountByType(ctx context.Context, contentType string) (int, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Pulp2Content)(nil)).
		Where("pulp2_content_type_id = ?", contentType).
		Count(ctx)
}

// RelatePulp3 stamps the pulp2 → pulp3 back-references for one batch
// inside a transaction. Rows already related are left untouched.
func (s *Pulp2ContentStore) RelatePulp3(ctx context.Context, pairs map[int64]int64) error {
	if len(pairs) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		for pulp2ContentID, pulp3ContentID := range pairs {
			_, err := tx.NewUpdate().
				Model((*Pulp2Content)(nil)).
				Set("pulp3_content_id = ?", pulp3ContentID).
				Where("id = ?", pulp2ContentID).
				Where("pulp3_content_id IS NULL").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByRepoMembership returns pre-migrated content belonging to the
// repo, honouring the per-repo fan-out rule: a row either has no owning
// repo or is owned by exactly this repo.
func (s *Pulp2ContentStore) FindByRepoMembership(ctx context.Context, repo *Pulp2Repository) ([]Pulp2Content, error) {
	var contents []Pulp2Content
	err := s.db.Operator.Core.NewSelect().
		Model(&contents).
		Where("pulp2_content.pulp2_id IN (SELECT pulp2_unit_id FROM pulp2_repo_contents WHERE pulp2_repository_id = ?)", repo.ID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("pulp2_content.pulp2_repo_id IS NULL").
				WhereOr("pulp2_content.pulp2_repo_id = ?", repo.ID)
		}).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return contents, nil
}

func (s *Pulp2ContentStore) DeleteByTypes(ctx context.Context, contentTypes []string) error {
	if len(contentTypes) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2Content)(nil)).
		Where("pulp2_content_type_id IN (?)", bun.In(contentTypes)).
		Exec(ctx)
	return err
}
