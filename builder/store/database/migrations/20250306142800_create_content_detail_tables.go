package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

type FileContent struct {
	ID             int64  `bun:",pk,autoincrement"`
	Pulp2ContentID int64  `bun:",notnull,unique"`
	Digest         string `bun:",notnull"`
	Size           int64  `bun:",notnull"`
	RelativePath   string `bun:",notnull"`
}

type DockerBlob struct {
	ID             int64  `bun:",pk,autoincrement"`
	Pulp2ContentID int64  `bun:",notnull,unique"`
	Digest         string `bun:",notnull"`
}

type DockerManifest struct {
	ID               int64                    `bun:",pk,autoincrement"`
	Pulp2ContentID   int64                    `bun:",notnull,unique"`
	Digest           string                   `bun:",notnull"`
	SchemaVersion    int                      `bun:",notnull"`
	MediaType        string                   `bun:",notnull"`
	ConfigBlobDigest string                   `bun:",nullzero"`
	BlobDigests      []string                 `bun:"type:jsonb,nullzero"`
	ListedManifests  []map[string]interface{} `bun:"type:jsonb,nullzero"`
}

type DockerTag struct {
	ID             int64  `bun:",pk,autoincrement"`
	Pulp2ContentID int64  `bun:",notnull,unique"`
	Name           string `bun:",notnull"`
	ManifestDigest string `bun:",notnull"`
}

type DebPackage struct {
	ID             int64  `bun:",pk,autoincrement"`
	Pulp2ContentID int64  `bun:",notnull,unique"`
	Package        string `bun:",notnull"`
	Version        string `bun:",notnull"`
	Architecture   string `bun:",notnull"`
	RelativePath   string `bun:",notnull"`
	Sha256         string `bun:",notnull"`
	Size           int64  `bun:",notnull"`
}

type DebComponent struct {
	ID             int64  `bun:",pk,autoincrement"`
	Pulp2ContentID int64  `bun:",notnull,unique"`
	Kind           string `bun:",notnull"`
	Distribution   string `bun:",notnull"`
	Codename       string `bun:",nullzero"`
	Suite          string `bun:",nullzero"`
	Component      string `bun:",nullzero"`
	Architecture   string `bun:",nullzero"`
	PackageSha256  string `bun:",nullzero"`
}

type RpmPackage struct {
	ID             int64  `bun:",pk,autoincrement"`
	Pulp2ContentID int64  `bun:",notnull,unique"`
	Name           string `bun:",notnull"`
	Epoch          string `bun:",notnull,default:'0'"`
	Version        string `bun:",notnull"`
	Release        string `bun:",notnull"`
	Arch           string `bun:",notnull"`
	Checksum       string `bun:",notnull"`
	ChecksumType   string `bun:",notnull"`
	Size           int64  `bun:",notnull"`
	Location       string `bun:",notnull"`
	IsModular      bool   `bun:",notnull,default:false"`
}

type RpmErratum struct {
	ID             int64                    `bun:",pk,autoincrement"`
	Pulp2ContentID int64                    `bun:",notnull,unique"`
	ErrataID       string                   `bun:",notnull"`
	UpdatedDate    string                   `bun:",nullzero"`
	Severity       string                   `bun:",nullzero"`
	Pkglist        []map[string]interface{} `bun:"type:jsonb,nullzero"`
}

type RpmModulemd struct {
	ID             int64    `bun:",pk,autoincrement"`
	Pulp2ContentID int64    `bun:",notnull,unique"`
	Name           string   `bun:",notnull"`
	Stream         string   `bun:",notnull"`
	Version        int64    `bun:",notnull"`
	Context        string   `bun:",notnull"`
	Arch           string   `bun:",notnull"`
	Artifacts      []string `bun:"type:jsonb,nullzero"`
}

var contentDetailTables = []any{
	FileContent{},
	DockerBlob{},
	DockerManifest{},
	DockerTag{},
	DebPackage{},
	DebComponent{},
	RpmPackage{},
	RpmErratum{},
	RpmModulemd{},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return createTables(ctx, db, contentDetailTables...)
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, contentDetailTables...)
	})
}
