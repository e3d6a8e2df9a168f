package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

type TagManifest struct {
	ID                int64 `bun:",pk,autoincrement"`
	TagContentID      int64 `bun:",notnull"`
	ManifestContentID int64 `bun:",notnull"`
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		err := createTables(ctx, db, TagManifest{})
		if err != nil {
			return err
		}
		_, err = db.NewCreateIndex().
			Model((*TagManifest)(nil)).
			Index("idx_tag_manifests_pair").
			Unique().
			Column("tag_content_id", "manifest_content_id").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		return dropTables(ctx, db, TagManifest{})
	})
}
