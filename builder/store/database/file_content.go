package database

import (
	"context"
)

type FileContentStore struct {
	db *DB
}

func NewFileContentStore() *FileContentStore {
	return &FileContentStore{
		db: defaultDB,
	}
}

func NewFileContentStoreWithDB(db *DB) *FileContentStore {
	return &FileContentStore{
		db: db,
	}
}

// FileContent is the iso-family detail row.
type FileContent struct {
	ID             int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64  `bun:",notnull,unique" json:"pulp2_content_id"`
	Digest         string `bun:",notnull" json:"digest"`
	Size           int64  `bun:",notnull" json:"size"`
	RelativePath   string `bun:",notnull" json:"relative_path"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

func (s *FileContentStore) BulkInsertIgnore(ctx context.Context, rows []FileContent) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *FileContentStore) FindByPulp2ContentID(ctx context.Context, pulp2ContentID int64) (*FileContent, error) {
	var row FileContent
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *FileContentStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.Operator.Core.NewDelete().
		Model((*FileContent)(nil)).
		Where("1=1").
		Exec(ctx)
	return err
}

func (s *FileContentStore) DeleteOrphans(ctx context.Context) error {
	_, err := s.db.Operator.Core.NewDelete().
		Model((*FileContent)(nil)).
		Where("pulp2_content_id NOT IN (?)", s.db.Operator.Core.NewSelect().
			Model((*Pulp2Content)(nil)).
			Column("id")).
		Exec(ctx)
	return err
}
