package database

import (
	"context"

	"github.com/uptrace/bun"
)

type ContentStore struct {
	db *DB
}

func NewContentStore() *ContentStore {
	return &ContentStore{
		db: defaultDB,
	}
}

func NewContentStoreWithDB(db *DB) *ContentStore {
	return &ContentStore{
		db: db,
	}
}

// Content is a target content unit. The queryable columns cover what
// inter-content linking needs (nevra lookups, digest matching); the
// rest of the unit's metadata is kept opaque in Data.
type Content struct {
	ID           int64  `bun:",pk,autoincrement" json:"id"`
	PulpType     string `bun:",notnull" json:"pulp_type"`
	Name         string `bun:",nullzero" json:"name"`
	Epoch        string `bun:",nullzero" json:"epoch"`
	Version      string `bun:",nullzero" json:"version"`
	Release      string `bun:",nullzero" json:"release"`
	Arch         string `bun:",nullzero" json:"arch"`
	Digest       string `bun:",nullzero" json:"digest"`
	RelativePath string `bun:",nullzero" json:"relative_path"`
	IsModular    bool   `bun:",notnull,default:false" json:"is_modular"`

	Data map[string]interface{} `bun:"type:jsonb" json:"data"`

	times
}

// Artifact is one content-addressed file. sha256 is the identity; two
// legacy units with the same bytes share one row.
type Artifact struct {
	ID     int64  `bun:",pk,autoincrement" json:"id"`
	File   string `bun:",nullzero" json:"file"`
	Size   int64  `bun:",notnull" json:"size"`
	Md5    string `bun:",nullzero" json:"md5"`
	Sha1   string `bun:",nullzero" json:"sha1"`
	Sha256 string `bun:",notnull,unique" json:"sha256"`
	Sha512 string `bun:",nullzero" json:"sha512"`

	times
}

// ContentArtifact binds a content unit to one of its artifacts. The
// artifact reference stays null for on-demand content until the bytes
// arrive.
type ContentArtifact struct {
	ID           int64  `bun:",pk,autoincrement" json:"id"`
	ContentID    int64  `bun:",notnull" json:"content_id"`
	ArtifactID   *int64 `bun:",nullzero" json:"artifact_id"`
	RelativePath string `bun:",nullzero" json:"relative_path"`

	Content  *Content  `bun:"rel:belongs-to,join:content_id=id" json:"content,omitempty"`
	Artifact *Artifact `bun:"rel:belongs-to,join:artifact_id=id" json:"artifact,omitempty"`
}

// RemoteArtifact records where on-demand bytes can be fetched from. One
// content artifact may have several, one per upstream mirror.
type RemoteArtifact struct {
	ID                int64  `bun:",pk,autoincrement" json:"id"`
	ContentArtifactID int64  `bun:",notnull" json:"content_artifact_id"`
	RemoteID          int64  `bun:",notnull" json:"remote_id"`
	URL               string `bun:",notnull" json:"url"`
	Size              int64  `bun:",nullzero" json:"size"`
	Sha256            string `bun:",nullzero" json:"sha256"`

	ContentArtifact *ContentArtifact `bun:"rel:belongs-to,join:content_artifact_id=id" json:"content_artifact,omitempty"`
	Remote          *Remote          `bun:"rel:belongs-to,join:remote_id=id" json:"remote,omitempty"`
}

func (s *ContentStore) Create(ctx context.Context, content *Content) (*Content, error) {
	err := s.db.Operator.Core.NewInsert().
		Model(content).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *ContentStore) FindByID(ctx context.Context, id int64) (*Content, error) {
	var content Content
	err := s.db.Operator.Core.NewSelect().
		Model(&content).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// FindExisting matches in-flight content against persisted rows by
// (pulp_type, digest, relative_path, name) so re-runs deduplicate
// instead of re-inserting.
func (s *ContentStore) FindExisting(ctx context.Context, candidate *Content) (*Content, error) {
	var content Content
	q := s.db.Operator.Core.NewSelect().
		Model(&content).
		Where("pulp_type = ?", candidate.PulpType)
	if candidate.Digest != "" {
		q = q.Where("digest = ?", candidate.Digest)
	}
	if candidate.RelativePath != "" {
		q = q.Where("relative_path = ?", candidate.RelativePath)
	}
	if candidate.Name != "" {
		q = q.Where("name = ?", candidate.Name)
	}
	if candidate.Version != "" {
		q = q.Where("version = ?", candidate.Version)
	}
	if candidate.Release != "" {
		q = q.Where("release = ?", candidate.Release)
	}
	if candidate.Arch != "" {
		q = q.Where("arch = ?", candidate.Arch)
	}
	err := q.Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// FindModularPackage resolves one modulemd artifact nevra to a modular
// package. Duplicate nevra with different checksums tie-break on the
// lowest id, i.e. first seen.
func (s *ContentStore) FindModularPackage(ctx context.Context, name, epoch, version, release, arch string) (*Content, error) {
	var content Content
	err := s.db.Operator.Core.NewSelect().
		Model(&content).
		Where("pulp_type = ?", "rpm.package").
		Where("name = ?", name).
		Where("epoch = ?", epoch).
		Where("version = ?", version).
		Where("release = ?", release).
		Where("arch = ?", arch).
		Where("is_modular = true").
		Order("id").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

func (s *ContentStore) CountByType(ctx context.Context, pulpType string) (int, error) {
	return s.db.Operator.Core.NewSelect().
		Model((*Content)(nil)).
		Where("pulp_type = ?", pulpType).
		Count(ctx)
}

func (s *ContentStore) DeleteByTypes(ctx context.Context, pulpTypes []string) error {
	if len(pulpTypes) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var contentIDs []int64
		err := tx.NewSelect().
			Model((*Content)(nil)).
			Column("id").
			Where("pulp_type IN (?)", bun.In(pulpTypes)).
			Scan(ctx, &contentIDs)
		if err != nil {
			return err
		}
		if len(contentIDs) == 0 {
			return nil
		}
		var caIDs []int64
		err = tx.NewSelect().
			Model((*ContentArtifact)(nil)).
			Column("id").
			Where("content_id IN (?)", bun.In(contentIDs)).
			Scan(ctx, &caIDs)
		if err != nil {
			return err
		}
		if len(caIDs) > 0 {
			_, err = tx.NewDelete().
				Model((*RemoteArtifact)(nil)).
				Where("content_artifact_id IN (?)", bun.In(caIDs)).
				Exec(ctx)
			if err != nil {
				return err
			}
			_, err = tx.NewDelete().
				Model((*ContentArtifact)(nil)).
				Where("id IN (?)", bun.In(caIDs)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		_, err = tx.NewDelete().
			Model((*Content)(nil)).
			Where("id IN (?)", bun.In(contentIDs)).
			Exec(ctx)
		return err
	})
}
