package database

import (
	"context"

	"github.com/uptrace/bun"
)

type ArtifactStore struct {
	db *DB
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		db: defaultDB,
	}
}

func NewArtifactStoreWithDB(db *DB) *ArtifactStore {
	return &ArtifactStore{
		db: db,
	}
}

// GetOrCreate inserts the artifact tolerating the sha256 uniqueness
// conflict, then re-selects by digest so callers always get the real
// primary key.
func (s *ArtifactStore) GetOrCreate(ctx context.Context, artifact *Artifact) (*Artifact, error) {
	_, err := s.db.Operator.Core.NewInsert().
		Model(artifact).
		Ignore().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindBySha256(ctx, artifact.Sha256)
}

func (s *ArtifactStore) FindBySha256(ctx context.Context, sha256 string) (*Artifact, error) {
	var artifact Artifact
	err := s.db.Operator.Core.NewSelect().
		Model(&artifact).
		Where("sha256 = ?", sha256).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (s *ArtifactStore) Count(ctx context.Context) (int, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Artifact)(nil)).
		Count(ctx)
}

func (s *ArtifactStore) CreateContentArtifact(ctx context.Context, ca *ContentArtifact) (*ContentArtifact, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(ca).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ca, nil
}

func (s *ArtifactStore) ListContentArtifacts(ctx context.Context, contentID int64) ([]ContentArtifact, error) {
	var cas []ContentArtifact
	err := s.db.Operator.Core.NewSelect().
		Model(&cas).
		Relation("Artifact").
		Where("content_artifact.content_id = ?", contentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return cas, nil
}

// SaveRemoteArtifacts bulk-inserts fetch locations, ignoring rows that
// already exist from a previous run.
func (s *ArtifactStore) SaveRemoteArtifacts(ctx context.Context, ras []RemoteArtifact) error {
	if len(ras) == 0 {
		return nil
	}
	_, err := s.db.Operator.Core.NewInsert().
		Model(&ras).
		Ignore().
		Exec(ctx)
	return err
}

// DeleteOrphans removes artifacts no content artifact references any
// more, returning their storage paths so the caller can unlink files.
func (s *ArtifactStore) DeleteOrphans(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model((*Artifact)(nil)).
			Column("file").
			Where("id NOT IN (SELECT artifact_id FROM content_artifacts WHERE artifact_id IS NOT NULL)").
			Scan(ctx, &paths)
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*Artifact)(nil)).
			Where("id NOT IN (SELECT artifact_id FROM content_artifacts WHERE artifact_id IS NOT NULL)").
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
