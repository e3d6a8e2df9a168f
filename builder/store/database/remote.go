package database

import (
	"context"

	"github.com/uptrace/bun"
)

type RemoteStore struct {
	db *DB
}

func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		db: defaultDB,
	}
}

func NewRemoteStoreWithDB(db *DB) *RemoteStore {
	return &RemoteStore{
		db: db,
	}
}

// Remote is a target fetch configuration derived from one legacy
// importer.
type Remote struct {
	ID            int64  `bun:",pk,autoincrement" json:"id"`
	Name          string `bun:",notnull,unique" json:"name"`
	PulpType      string `bun:",notnull" json:"pulp_type"`
	URL           string `bun:",notnull" json:"url"`
	Policy        string `bun:",notnull,default:'immediate'" json:"policy"`
	TLSValidation bool   `bun:",notnull,default:true" json:"tls_validation"`
	ProxyURL      string `bun:",nullzero" json:"proxy_url"`
	Username      string `bun:",nullzero" json:"-"`
	Password      string `bun:",nullzero" json:"-"`

	times
}

func (s *RemoteStore) Create(ctx context.Context, remote *Remote) (*Remote, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(remote).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// Upsert keys on the unique name and refreshes the fetch settings.
func (s *RemoteStore) Upsert(ctx context.Context, remote *Remote) (*Remote, error) {
	existing, err := s.FindByName(ctx, remote.Name)
	if err == nil {
		remote.ID = existing.ID
		err = assertAffectedOneRow(s.db.Operator.Core.NewUpdate().
			Model(remote).
			WherePK().
			Exec(ctx))
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
	return s.Create(ctx, remote)
}

func (s *RemoteStore) FindByName(ctx context.Context, name string) (*Remote, error) {
	var remote Remote
	err := s.db.Operator.Core.NewSelect().
		Model(&remote).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &remote, nil
}

func (s *RemoteStore) FindByID(ctx context.Context, id int64) (*Remote, error) {
	var remote Remote
	err := s.db.Operator.Core.NewSelect().
		Model(&remote).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &remote, nil
}

func (s *RemoteStore) Count(ctx context.Context, pulpType string) (int, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Remote)(nil)).
		Where("pulp_type = ?", pulpType).
		Count(ctx)
}

func (s *RemoteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Remote)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *RemoteStore) DeleteByTypes(ctx context.Context, pulpTypes []string) error {
	if len(pulpTypes) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Remote)(nil)).
		Where("pulp_type IN (?)", bun.In(pulpTypes)).
		Exec(ctx)
	return err
}
