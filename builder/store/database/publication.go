package database

import (
	"context"

	"github.com/uptrace/bun"
)

type PublicationStore struct {
	db *DB
}

func NewPublicationStore() *PublicationStore {
	return &PublicationStore{
		db: defaultDB,
	}
}

func NewPublicationStoreWithDB(db *DB) *PublicationStore {
	return &PublicationStore{
		db: db,
	}
}

// Publication is immutable rendered metadata for one repository
// version.
type Publication struct {
	ID                  int64  `bun:",pk,autoincrement" json:"id"`
	PulpType            string `bun:",notnull" json:"pulp_type"`
	RepositoryVersionID int64  `bun:",notnull" json:"repository_version_id"`
	ChecksumType        string `bun:",nullzero" json:"checksum_type"`
	Complete            bool   `bun:",notnull,default:false" json:"complete"`

	RepositoryVersion *RepositoryVersion `bun:"rel:belongs-to,join:repository_version_id=id" json:"repository_version,omitempty"`

	times
}

func (s *PublicationStore) Create(ctx context.Context, publication *Publication) (*Publication, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(publication).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return publication, nil
}

// FindForVersion returns the complete publication of a repository
// version with the wanted checksum type, if one exists.
func (s *PublicationStore) FindForVersion(ctx context.Context, versionID int64, checksumType string) (*Publication, error) {
	var publication Publication
	q := s.db.Operator.Core.NewSelect().
		Model(&publication).
		Where("repository_version_id = ?", versionID).
		Where("complete = true")
	if checksumType != "" {
		q = q.Where("checksum_type = ?", checksumType)
	}
	err := q.Order("id DESC").Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &publication, nil
}

func (s *PublicationStore) FindByID(ctx context.Context, id int64) (*Publication, error) {
	var publication Publication
	err := s.db.Operator.Core.NewSelect().
		Model(&publication).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &publication, nil
}

func (s *PublicationStore) Count(ctx context.Context, pulpType string) (int, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Publication)(nil)).
		Where("pulp_type = ?", pulpType).
		Count(ctx)
}

func (s *PublicationStore) DeleteByTypes(ctx context.Context, pulpTypes []string) error {
	if len(pulpTypes) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Publication)(nil)).
		Where("pulp_type IN (?)", bun.In(pulpTypes)).
		Exec(ctx)
	return err
}
