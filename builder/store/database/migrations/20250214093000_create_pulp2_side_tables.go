package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type times struct {
	CreatedAt time.Time `bun:",nullzero,notnull,skipupdate,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

type MigrationPlan struct {
	ID   int64                  `bun:",pk,autoincrement"`
	Plan map[string]interface{} `bun:"type:jsonb,notnull"`
	times
}

type Pulp2Repository struct {
	ID                       int64      `bun:",pk,autoincrement"`
	Pulp2ObjectID            string     `bun:",notnull"`
	Pulp2RepoID              string     `bun:",notnull,unique"`
	Pulp2RepoType            string     `bun:",notnull"`
	Pulp2LastUnitAdded       *time.Time `bun:",nullzero"`
	Pulp2LastUnitRemoved     *time.Time `bun:",nullzero"`
	IsMigrated               bool       `bun:",notnull,default:false"`
	NotInPlan                bool       `bun:",notnull,default:false"`
	Pulp3RepositoryID        *int64     `bun:",nullzero"`
	Pulp3RepositoryVersionID *int64     `bun:",nullzero"`
	Pulp3RemoteID            *int64     `bun:",nullzero"`
	times
}

type Pulp2Content struct {
	ID                 int64  `bun:",pk,autoincrement"`
	Pulp2ID            string `bun:",notnull"`
	Pulp2ContentTypeID string `bun:",notnull"`
	Pulp2LastUpdated   int64  `bun:",notnull"`
	Pulp2StoragePath   string `bun:",nullzero"`
	Pulp2Subid         string `bun:",nullzero,default:''"`
	Downloaded         bool   `bun:",notnull,default:false"`
	Pulp2RepoID        *int64 `bun:",nullzero"`
	Pulp3ContentID     *int64 `bun:",nullzero"`
	times
}

type Pulp2RepoContent struct {
	ID                 int64  `bun:",pk,autoincrement"`
	Pulp2RepositoryID  int64  `bun:",notnull"`
	Pulp2UnitID        string `bun:",notnull"`
	Pulp2ContentTypeID string `bun:",notnull"`
	times
}

type Pulp2Importer struct {
	ID                int64                  `bun:",pk,autoincrement"`
	Pulp2ObjectID     string                 `bun:",notnull,unique"`
	Pulp2TypeID       string                 `bun:",notnull"`
	Pulp2Config       map[string]interface{} `bun:"type:jsonb"`
	Pulp2LastUpdated  int64                  `bun:",notnull"`
	IsMigrated        bool                   `bun:",notnull,default:false"`
	NotInPlan         bool                   `bun:",notnull,default:false"`
	Pulp2RepositoryID int64                  `bun:",notnull"`
	Pulp3RemoteID     *int64                 `bun:",nullzero"`
	times
}

type Pulp2Distributor struct {
	ID                  int64                  `bun:",pk,autoincrement"`
	Pulp2ObjectID       string                 `bun:",notnull,unique"`
	Pulp2ID             string                 `bun:",notnull"`
	Pulp2TypeID         string                 `bun:",notnull"`
	Pulp2Config         map[string]interface{} `bun:"type:jsonb"`
	Pulp2LastUpdated    int64                  `bun:",notnull"`
	Pulp2AutoPublish    bool                   `bun:",notnull,default:true"`
	IsMigrated          bool                   `bun:",notnull,default:false"`
	NotInPlan           bool                   `bun:",notnull,default:false"`
	Pulp3PublicationID  *int64                 `bun:",nullzero"`
	Pulp3DistributionID *int64                 `bun:",nullzero"`
	times
}

type Pulp2DistributorRepository struct {
	ID                 int64 `bun:",pk,autoincrement"`
	Pulp2DistributorID int64 `bun:",notnull"`
	Pulp2RepositoryID  int64 `bun:",notnull"`
}

type Pulp2LazyCatalog struct {
	ID               int64  `bun:",pk,autoincrement"`
	Pulp2ImporterID  string `bun:",notnull"`
	Pulp2UnitID      string `bun:",notnull"`
	Pulp2ContentType string `bun:",notnull"`
	Pulp2StoragePath string `bun:",notnull"`
	Pulp2URL         string `bun:",notnull"`
	Pulp2Revision    int    `bun:",notnull,default:1"`
	IsMigrated       bool   `bun:",notnull,default:false"`
	times
}

type RepoSetup struct {
	ID                int64  `bun:",pk,autoincrement"`
	Pulp2RepoID       string `bun:",notnull"`
	Pulp2ResourceRepo string `bun:",notnull"`
	PluginType        string `bun:",notnull"`
	ResourceType      string `bun:",notnull"`
	Status            string `bun:",notnull"`
	times
}

var pulp2SideTables = []any{
	MigrationPlan{},
	Pulp2Repository{},
	Pulp2Content{},
	Pulp2RepoContent{},
	Pulp2Importer{},
	Pulp2Distributor{},
	Pulp2DistributorRepository{},
	Pulp2LazyCatalog{},
	RepoSetup{},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		err := createTables(ctx, db, pulp2SideTables...)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*Pulp2Content)(nil)).
			Index("idx_pulp2_contents_identity").
			Unique().
			Column("pulp2_id", "pulp2_content_type_id").
			ColumnExpr("coalesce(pulp2_repo_id, 0)").
			ColumnExpr("coalesce(pulp2_subid, '')").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*Pulp2RepoContent)(nil)).
			Index("idx_pulp2_repo_contents_membership").
			Unique().
			Column("pulp2_repository_id", "pulp2_unit_id").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*Pulp2LazyCatalog)(nil)).
			Index("idx_pulp2_lazy_catalogs_identity").
			Unique().
			Column("pulp2_storage_path", "pulp2_importer_id", "pulp2_revision").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*RepoSetup)(nil)).
			Index("idx_repo_setups_relation").
			Unique().
			Column("pulp2_repo_id", "pulp2_resource_repo", "resource_type").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*Pulp2DistributorRepository)(nil)).
			Index("idx_pulp2_distributor_repositories_pair").
			Unique().
			Column("pulp2_distributor_id", "pulp2_repository_id").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, pulp2SideTables...)
	})
}
