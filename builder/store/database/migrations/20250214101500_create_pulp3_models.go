package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

type Repository struct {
	ID       int64  `bun:",pk,autoincrement"`
	Name     string `bun:",notnull,unique"`
	PulpType string `bun:",notnull"`
	RemoteID *int64 `bun:",nullzero"`
	times
}

type RepositoryVersion struct {
	ID           int64 `bun:",pk,autoincrement"`
	RepositoryID int64 `bun:",notnull"`
	Number       int64 `bun:",notnull"`
	Complete     bool  `bun:",notnull,default:false"`
	times
}

type RepositoryContent struct {
	ID             int64  `bun:",pk,autoincrement"`
	RepositoryID   int64  `bun:",notnull"`
	ContentID      int64  `bun:",notnull"`
	VersionAdded   int64  `bun:",notnull"`
	VersionRemoved *int64 `bun:",nullzero"`
}

type Content struct {
	ID           int64                  `bun:",pk,autoincrement"`
	PulpType     string                 `bun:",notnull"`
	Name         string                 `bun:",nullzero"`
	Epoch        string                 `bun:",nullzero"`
	Version      string                 `bun:",nullzero"`
	Release      string                 `bun:",nullzero"`
	Arch         string                 `bun:",nullzero"`
	Digest       string                 `bun:",nullzero"`
	RelativePath string                 `bun:",nullzero"`
	IsModular    bool                   `bun:",notnull,default:false"`
	Data         map[string]interface{} `bun:"type:jsonb"`
	times
}

type Artifact struct {
	ID     int64  `bun:",pk,autoincrement"`
	File   string `bun:",nullzero"`
	Size   int64  `bun:",notnull"`
	Md5    string `bun:",nullzero"`
	Sha1   string `bun:",nullzero"`
	Sha256 string `bun:",notnull,unique"`
	Sha512 string `bun:",nullzero"`
	times
}

type ContentArtifact struct {
	ID           int64  `bun:",pk,autoincrement"`
	ContentID    int64  `bun:",notnull"`
	ArtifactID   *int64 `bun:",nullzero"`
	RelativePath string `bun:",nullzero"`
}

type RemoteArtifact struct {
	ID                int64  `bun:",pk,autoincrement"`
	ContentArtifactID int64  `bun:",notnull"`
	RemoteID          int64  `bun:",notnull"`
	URL               string `bun:",notnull"`
	Size              int64  `bun:",nullzero"`
	Sha256            string `bun:",nullzero"`
}

type Remote struct {
	ID            int64  `bun:",pk,autoincrement"`
	Name          string `bun:",notnull,unique"`
	PulpType      string `bun:",notnull"`
	URL           string `bun:",notnull"`
	Policy        string `bun:",notnull,default:'immediate'"`
	TLSValidation bool   `bun:",notnull,default:true"`
	ProxyURL      string `bun:",nullzero"`
	Username      string `bun:",nullzero"`
	Password      string `bun:",nullzero"`
	times
}

type Publication struct {
	ID                  int64  `bun:",pk,autoincrement"`
	PulpType            string `bun:",notnull"`
	RepositoryVersionID int64  `bun:",notnull"`
	ChecksumType        string `bun:",nullzero"`
	Complete            bool   `bun:",notnull,default:false"`
	times
}

type Distribution struct {
	ID                  int64  `bun:",pk,autoincrement"`
	Name                string `bun:",notnull,unique"`
	PulpType            string `bun:",notnull"`
	BasePath            string `bun:",notnull,unique"`
	PublicationID       *int64 `bun:",nullzero"`
	RepositoryID        *int64 `bun:",nullzero"`
	RepositoryVersionID *int64 `bun:",nullzero"`
	times
}

type BlobManifest struct {
	ID                int64 `bun:",pk,autoincrement"`
	ManifestContentID int64 `bun:",notnull"`
	BlobContentID     int64 `bun:",notnull"`
}

type ManifestListedManifest struct {
	ID                int64    `bun:",pk,autoincrement"`
	ListContentID     int64    `bun:",notnull"`
	ManifestContentID int64    `bun:",notnull"`
	Architecture      string   `bun:",nullzero"`
	OS                string   `bun:",nullzero"`
	OSVersion         string   `bun:",nullzero"`
	OSFeatures        []string `bun:"type:jsonb,nullzero"`
	Features          []string `bun:"type:jsonb,nullzero"`
	Variant           string   `bun:",nullzero"`
}

type ModulemdPackage struct {
	ID                int64 `bun:",pk,autoincrement"`
	ModulemdContentID int64 `bun:",notnull"`
	PackageContentID  int64 `bun:",notnull"`
}

var pulp3Tables = []any{
	Remote{},
	Repository{},
	RepositoryVersion{},
	Content{},
	RepositoryContent{},
	Artifact{},
	ContentArtifact{},
	RemoteArtifact{},
	Publication{},
	Distribution{},
	BlobManifest{},
	ManifestListedManifest{},
	ModulemdPackage{},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		err := createTables(ctx, db, pulp3Tables...)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*RepositoryVersion)(nil)).
			Index("idx_repository_versions_number").
			Unique().
			Column("repository_id", "number").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*BlobManifest)(nil)).
			Index("idx_blob_manifests_pair").
			Unique().
			Column("manifest_content_id", "blob_content_id").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*ManifestListedManifest)(nil)).
			Index("idx_manifest_listed_manifests_pair").
			Unique().
			Column("list_content_id", "manifest_content_id").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*ModulemdPackage)(nil)).
			Index("idx_modulemd_packages_pair").
			Unique().
			Column("modulemd_content_id", "package_content_id").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, pulp3Tables...)
	})
}
