package database

import (
	"context"
)

type DockerLinkStore struct {
	db *DB
}

func NewDockerLinkStore() *DockerLinkStore {
	return &DockerLinkStore{
		db: defaultDB,
	}
}

func NewDockerLinkStoreWithDB(db *DB) *DockerLinkStore {
	return &DockerLinkStore{
		db: db,
	}
}

// BlobManifest joins a manifest to one of the blobs it references.
type BlobManifest struct {
	ID                int64 `bun:",pk,autoincrement" json:"id"`
	ManifestContentID int64 `bun:",notnull" json:"manifest_content_id"`
	BlobContentID     int64 `bun:",notnull" json:"blob_content_id"`
}

// ManifestListedManifest joins a manifest list to one listed manifest
// with the platform fields of the list entry.
type ManifestListedManifest struct {
	ID                int64    `bun:",pk,autoincrement" json:"id"`
	ListContentID     int64    `bun:",notnull" json:"list_content_id"`
	ManifestContentID int64    `bun:",notnull" json:"manifest_content_id"`
	Architecture      string   `bun:",nullzero" json:"architecture"`
	OS                string   `bun:",nullzero" json:"os"`
	OSVersion         string   `bun:",nullzero" json:"os_version"`
	OSFeatures        []string `bun:"type:jsonb,nullzero" json:"os_features"`
	Features          []string `bun:"type:jsonb,nullzero" json:"features"`
	Variant           string   `bun:",nullzero" json:"variant"`
}

// TagManifest binds a tag to the manifest its digest names, so the tag
// follows the manifest rather than carrying the digest as loose data.
type TagManifest struct {
	ID                int64 `bun:",pk,autoincrement" json:"id"`
	TagContentID      int64 `bun:",notnull" json:"tag_content_id"`
	ManifestContentID int64 `bun:",notnull" json:"manifest_content_id"`
}

// LinkBlob inserts a blob↔manifest row tolerating the uniqueness
// conflict of a previous run.
func (s *DockerLinkStore) LinkBlob(ctx context.Context, manifestContentID, blobContentID int64) error {
	_, err := s.db.Operator.Core.NewInsert().
		Model(&BlobManifest{
			ManifestContentID: manifestContentID,
			BlobContentID:     blobContentID,
		}).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DockerLinkStore) LinkListedManifest(ctx context.Context, link *ManifestListedManifest) error {
	_, err := s.db.Operator.Core.NewInsert().
		Model(link).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DockerLinkStore) LinkTag(ctx context.Context, tagContentID, manifestContentID int64) error {
	_, err := s.db.Operator.Core.NewInsert().
		Model(&TagManifest{
			TagContentID:      tagContentID,
			ManifestContentID: manifestContentID,
		}).
		Ignore().
		Exec(ctx)
	return err
}

func (s *DockerLinkStore) ListBlobLinks(ctx context.Context, manifestContentID int64) ([]BlobManifest, error) {
	var links []BlobManifest
	err := s.db.Operator.Core.NewSelect().
		Model(&links).
		Where("manifest_content_id = ?", manifestContentID).
		Order("blob_content_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *DockerLinkStore) ListListedManifests(ctx context.Context, listContentID int64) ([]ManifestListedManifest, error) {
	var links []ManifestListedManifest
	err := s.db.Operator.Core.NewSelect().
		Model(&links).
		Where("list_content_id = ?", listContentID).
		Order("manifest_content_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *DockerLinkStore) ListTagLinks(ctx context.Context, tagContentID int64) ([]TagManifest, error) {
	var links []TagManifest
	err := s.db.Operator.Core.NewSelect().
		Model(&links).
		Where("tag_content_id = ?", tagContentID).
		Order("manifest_content_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *DockerLinkStore) DeleteAll(ctx context.Context) error {
	for _, model := range []any{
		(*BlobManifest)(nil),
		(*ManifestListedManifest)(nil),
		(*TagManifest)(nil),
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
