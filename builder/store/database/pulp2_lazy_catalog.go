package database

import (
	"context"

	"github.com/uptrace/bun"
)

type Pulp2LazyCatalogStore struct {
	db *DB
}

func NewPulp2LazyCatalogStore() *Pulp2LazyCatalogStore {
	return &Pulp2LazyCatalogStore{
		db: defaultDB,
	}
}

func NewPulp2LazyCatalogStoreWithDB(db *DB) *Pulp2LazyCatalogStore {
	return &Pulp2LazyCatalogStore{
		db: db,
	}
}

// Pulp2LazyCatalog tells the target how to fetch on-demand bytes later.
// No change detection: every run re-inserts with ignore-on-conflict.
type Pulp2LazyCatalog struct {
	ID               int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ImporterID  string `bun:",notnull" json:"pulp2_importer_id"`
	Pulp2UnitID      string `bun:",notnull" json:"pulp2_unit_id"`
	Pulp2ContentType string `bun:",notnull" json:"pulp2_content_type"`
	Pulp2StoragePath string `bun:",notnull" json:"pulp2_storage_path"`
	Pulp2URL         string `bun:",notnull" json:"pulp2_url"`
	Pulp2Revision    int    `bun:",notnull,default:1" json:"pulp2_revision"`
	IsMigrated       bool   `bun:",notnull,default:false" json:"is_migrated"`

	times
}

func (s *Pulp2LazyCatalogStore) BulkInsertIgnore(ctx context.Context, entries []Pulp2LazyCatalog) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&entries).
		Ignore().
		Exec(ctx)
	return err
}

// ListByUnitID returns every catalog entry for one legacy unit; one
// logical content can be fetched from multiple upstream mirrors.
func (s *Pulp2LazyCatalogStore) ListByUnitID(ctx context.Context, unitID string) ([]Pulp2LazyCatalog, error) {
	var entries []Pulp2LazyCatalog
	err := s.db.Operator.Core.NewSelect().
		Model(&entries).
		Where("pulp2_unit_id = ?", unitID).
		Order("pulp2_importer_id", "pulp2_revision").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Pulp2LazyCatalogStore) DeleteByContentTypes(ctx context.Context, contentTypes []string) error {
	if len(contentTypes) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewDelete().
		Model((*Pulp2LazyCatalog)(nil)).
		Where("pulp2_content_type IN (?)", bun.In(contentTypes)).
		Exec(ctx)
	return err
}
