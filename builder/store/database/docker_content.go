package database

import (
	"context"
)

type DockerContentStore struct {
	db *DB
}

func NewDockerContentStore() *DockerContentStore {
	return &DockerContentStore{
		db: defaultDB,
	}
}

func NewDockerContentStoreWithDB(db *DB) *DockerContentStore {
	return &DockerContentStore{
		db: db,
	}
}

// DockerBlob is the detail row for one container layer or config blob.
type DockerBlob struct {
	ID             int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64  `bun:",notnull,unique" json:"pulp2_content_id"`
	Digest         string `bun:",notnull" json:"digest"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

// DockerManifest is the detail row for a manifest or a manifest list.
// For lists, ListedManifests carries the platform entries of the list
// JSON; for ordinary manifests BlobDigests lists the referenced layers.
type DockerManifest struct {
	ID               int64                    `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID   int64                    `bun:",notnull,unique" json:"pulp2_content_id"`
	Digest           string                   `bun:",notnull" json:"digest"`
	SchemaVersion    int                      `bun:",notnull" json:"schema_version"`
	MediaType        string                   `bun:",notnull" json:"media_type"`
	ConfigBlobDigest string                   `bun:",nullzero" json:"config_blob_digest"`
	BlobDigests      []string                 `bun:"type:jsonb,nullzero" json:"blob_digests"`
	ListedManifests  []map[string]interface{} `bun:"type:jsonb,nullzero" json:"listed_manifests"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

// DockerTag is the detail row for a tag pointing at a manifest digest.
type DockerTag struct {
	ID             int64  `bun:",pk,autoincrement" json:"id"`
	Pulp2ContentID int64  `bun:",notnull,unique" json:"pulp2_content_id"`
	Name           string `bun:",notnull" json:"name"`
	ManifestDigest string `bun:",notnull" json:"manifest_digest"`

	Pulp2Content *Pulp2Content `bun:"rel:belongs-to,join:pulp2_content_id=id" json:"pulp2_content,omitempty"`
}

func (s *DockerContentStore) BulkInsertBlobsIgnore(ctx context.Context, rows []DockerBlob) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DockerContentStore) BulkInsertManifestsIgnore(ctx context.Context, rows []DockerManifest) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DockerContentStore) BulkInsertTagsIgnore(ctx context.Context, rows []DockerTag) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&rows).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DockerContentStore) FindBlob(ctx context.Context, pulp2ContentID int64) (*DockerBlob, error) {
	var row DockerBlob
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *DockerContentStore) FindManifest(ctx context.Context, pulp2ContentID int64) (*DockerManifest, error) {
	var row DockerManifest
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *DockerContentStore) FindTag(ctx context.Context, pulp2ContentID int64) (*DockerTag, error) {
	var row DockerTag
	err := s.db.Operator.Core.NewSelect().
		Model(&row).
		Where("pulp2_content_id = ?", pulp2ContentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *DockerContentStore) DeleteAll(ctx context.Context) error {
	for _, model := range []interface{}{
		(*DockerBlob)(nil),
		(*DockerManifest)(nil),
		(*DockerTag)(nil),
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
