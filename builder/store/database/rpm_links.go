package database

import (
	"context"
)

type RpmLinkStore struct {
	db *DB
}

func NewRpmLinkStore() *RpmLinkStore {
	return &RpmLinkStore{
		db: defaultDB,
	}
}

func NewRpmLinkStoreWithDB(db *DB) *RpmLinkStore {
	return &RpmLinkStore{
		db: db,
	}
}

// ModulemdPackage joins a module to one of its modular packages, one
// row per distinct nevra.
type ModulemdPackage struct {
	ID                int64 `bun:",pk,autoincrement" json:"id"`
	ModulemdContentID int64 `bun:",notnull" json:"modulemd_content_id"`
	PackageContentID  int64 `bun:",notnull" json:"package_content_id"`
}

func (s *RpmLinkStore) LinkPackage(ctx context.Context, modulemdContentID, packageContentID int64) error {
	_, err := s.db.Operator.Core.NewInsert().
		Model(&ModulemdPackage{
			ModulemdContentID: modulemdContentID,
			PackageContentID:  packageContentID,
		}).
		Ignore().
		Exec(ctx)
	return err
}

func (s *RpmLinkStore) ListPackageLinks(ctx context.Context, modulemdContentID int64) ([]ModulemdPackage, error) {
	var links []ModulemdPackage
	err := s.db.Operator.Core.NewSelect().
		Model(&links).
		Where("modulemd_content_id = ?", modulemdContentID).
		Order("package_content_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *RpmLinkStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.Operator.Core.NewDelete().
		Model((*ModulemdPackage)(nil)).
		Where("1=1").
		Exec(ctx)
	return err
}
