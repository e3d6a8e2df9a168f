package database

import (
	"context"
)

type RpmContentStore struct {
	db *DB
}

func NewRpmContentStore() *RpmContentStore {
	return &RpmContentStore{
		db: defaultDB,
	}
}

func NewRpmContentStoreWithDB(db *DB) *RpmContentStore {
	return &RpmContentStore{
		db: db,
	}
}

// RpmPackage is the detail row for one rpm/srpm.
type RpmPackage struct {
	ID             int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64  `bun:",notnull,unique" json:"pulp2_content_id"`
	Name           string `bun:",notnull" json:"name"`
	Epoch          string `bun:",notnull,default:'0'" json:"epoch"`
	Version        string `bun:",notnull" json:"version"`
	Release        string `bun:",notnull" json:"release"`
	Arch           string `bun:",notnull" json:"arch"`
	Checksum       string `bun:",notnull" json:"checksum"`
	ChecksumType   string `bun:",notnull" json:"checksum_type"`
	Size           int64  `bun:",notnull" json:"size"`
	Location       string `bun:",notnull" json:"location"`
	IsModular      bool   `bun:",notnull,default:false" json:"is_modular"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

// RpmErratum is the detail row for one advisory. Errata are mutable in
// pulp2 and distinct per owning repository, so the owning Pulp2Content
// row always has pulp2_repo_id set and the pkglist is filtered to the
// nevras present in that repository during migration.
type RpmErratum struct {
	ID             int64                    `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64                    `bun:",notnull,unique" json:"pulp2_content_id"`
	ErrataID       string                   `bun:",notnull" json:"errata_id"`
	UpdatedDate    string                   `bun:",nullzero" json:"updated_date"`
	Severity       string                   `bun:",nullzero" json:"severity"`
	Pkglist        []map[string]interface{} `bun:"type:jsonb,nullzero" json:"pkglist"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

// RpmModulemd is the detail row for one module stream. Artifacts holds
// the module's nevra strings used for modulemd↔package linking.
type RpmModulemd struct {
	ID             int64    `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64    `bun:",notnull,unique" json:"pulp2_content_id"`
	Name           string   `bun:",notnull" json:"name"`
	Stream         string   `bun:",notnull" json:"stream"`
	Version        int64    `bun:",notnull" json:"version"`
	Context        string   `bun:",notnull" json:"context"`
	Arch           string   `bun:",notnull" json:"arch"`
	Artifacts      []string `bun:"type:jsonb,nullzero" json:"artifacts"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

func (s *RpmContentStore) BulkInsertPackagesIgnore(ctx context.Context, rows []RpmPackage) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *RpmContentStore) BulkInsertErrataIgnore(ctx context.Context, rows []RpmErratum) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *RpmContentStore) BulkInsertModulemdsIgnore(ctx context.Context, rows []RpmModulemd) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *RpmContentStore) FindPackage(ctx context.Context, pulp2ContentID int64) (*RpmPackage, error) {
	var row RpmPackage
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *RpmContentStore) FindErratum(ctx context.Context, pulp2ContentID int64) (*RpmErratum, error) {
	var row RpmErratum
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *RpmContentStore) FindModulemd(ctx context.Context, pulp2ContentID int64) (*RpmModulemd, error) {
	var row RpmModulemd
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PackageNevrasInRepo returns the nevra tuples of all rpm packages that
// belong to the given pre-migrated repository, used to filter errata
// pkglists to repo membership.
func (s *RpmContentStore) PackageNevrasInRepo(ctx context.Context, repoID int64) ([]RpmPackage, error) {
	var rows []RpmPackage
	err := s.db.Operator.Core.NewSelect().
		Model(&rows).
		Join("JOIN pulp2_contents AS pc ON pc.id = rpm_package.pulp2_content_id").
		Join("JOIN pulp2_repo_contents AS rc ON rc.pulp2_unit_id = pc.pulp2_id").
		Where("rc.pulp2_repository_id = ?", repoID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *RpmContentStore) DeleteAll(ctx context.Context) error {
	for _, model := range []interface{}{
		(*RpmPackage)(nil),
		(*RpmErratum)(nil),
		(*RpmModulemd)(nil),
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
