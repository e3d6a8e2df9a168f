package database

import (
	"context"
)

type DebContentStore struct {
	db *DB
}

func NewDebContentStore() *DebContentStore {
	return &DebContentStore{
		db: defaultDB,
	}
}

func NewDebContentStoreWithDB(db *DB) *DebContentStore {
	return &DebContentStore{
		db: db,
	}
}

// DebPackage is the detail row for one .deb binary package.
type DebPackage struct {
	ID             int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64  `bun:",notnull,unique" json:"pulp2_content_id"`
	Package        string `bun:",notnull" json:"package"`
	Version        string `bun:",notnull" json:"version"`
	Architecture   string `bun:",notnull" json:"architecture"`
	RelativePath   string `bun:",notnull" json:"relative_path"`
	Sha256         string `bun:",notnull" json:"sha256"`
	Size           int64  `bun:",notnull" json:"size"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

// DebComponentKind discriminates the structure units of the apt
// family: a release, the component itself, one link per package, and
// one release-architecture per listed arch. Each fanned-out
// Pulp2Content row (distinguished by pulp2_subid) owns one detail row.
type DebComponentKind string

const (
	DebKindRelease             DebComponentKind = "release"
	DebKindComponent           DebComponentKind = "component"
	DebKindPackageLink         DebComponentKind = "package_link"
	DebKindReleaseArchitecture DebComponentKind = "release_architecture"
)

type DebComponent struct {
	ID             int64            `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64            `bun:",notnull,unique" json:"pulp2_content_id"`
	Kind           DebComponentKind `bun:",notnull" json:"kind"`
	Distribution   string           `bun:",notnull" json:"distribution"`
	Codename       string           `bun:",nullzero" json:"codename"`
	Suite          string           `bun:",nullzero" json:"suite"`
	Component      string           `bun:",nullzero" json:"component"`
	Architecture   string           `bun:",nullzero" json:"architecture"`
	// sha256 of the linked package for package_link rows
	PackageSha256 string `bun:",nullzero" json:"package_sha256"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

func (s *DebContentStore) BulkInsertPackagesIgnore(ctx context.Context, rows []DebPackage) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DebContentStore) BulkInsertComponentsIgnore(ctx context.Context, rows []DebComponent) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DebContentStore) FindPackage(ctx context.Context, pulp2ContentID int64) (*DebPackage, error) {
	var row DebPackage
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *DebContentStore) FindComponent(ctx context.Context, pulp2ContentID int64) (*DebComponent, error) {
	var row DebComponent
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *DebContentStore) DeleteAll(ctx context.Context) error {
	for _, model := range []interface{}{
		(*DebPackage)(nil),
		(*DebComponent)(nil),
	} {
		_, err := s.db.Operator.Core.NewDelete().
			Model(model).
			Where("1=1").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}
