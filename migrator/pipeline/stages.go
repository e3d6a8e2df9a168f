package pipeline

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/minio/sha256-simd"

	"opencsg.com/pulp-migrator/builder/storage"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/errorx"
	"opencsg.com/pulp-migrator/migrator/progress"
)

const relateBatchSize = 1000

// ArtifactStage materialises downloaded artifacts into the target
// store. Corrupted files either fail the run or, with skipCorrupted,
// drop the item and count it as skipped.
type ArtifactStage struct {
	storage       storage.ArtifactStorage
	skipCorrupted bool
	reporter      *progress.Reporter
	code          string
}

func NewArtifactStage(store storage.ArtifactStorage, skipCorrupted bool, reporter *progress.Reporter, code string) *ArtifactStage {
	return &ArtifactStage{storage: store, skipCorrupted: skipCorrupted, reporter: reporter, code: code}
}

func (s *ArtifactStage) Name() string { return "artifact" }

func (s *ArtifactStage) Run(ctx context.Context, in <-chan *DeclarativeContent, out chan<- *DeclarativeContent) error {
items:
	for dc := range in {
		for i := range dc.Artifacts {
			da := &dc.Artifacts[i]
			if !da.Downloaded || da.SourcePath == "" {
				continue
			}
			if da.Sha256 == "" {
				sum, err := hashFile(da.SourcePath)
				if err != nil {
					return err
				}
				da.Sha256 = sum
			}
			stored, err := s.storage.Store(ctx, da.SourcePath, da.Sha256, da.Size)
			if err != nil {
				if errors.Is(err, errorx.ErrArtifactValidation) || errors.Is(err, os.ErrNotExist) {
					if !s.skipCorrupted {
						return err
					}
					slog.Warn("skipping corrupted content",
						slog.String("pulp2_id", dc.Pulp2Content.Pulp2ID),
						slog.Any("error", err))
					if s.reporter != nil {
						_ = s.reporter.Increment(ctx, s.code, 0, 1)
					}
					continue items
				}
				return err
			}
			da.StoredPath = stored
		}
		select {
		case out <- dc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SaveStage persists content rows with their artifacts. Units matching
// an already persisted row are deduplicated onto it.
type SaveStage struct {
	contents  *database.ContentStore
	artifacts *database.ArtifactStore
}

func NewSaveStage(contents *database.ContentStore, artifacts *database.ArtifactStore) *SaveStage {
	return &SaveStage{contents: contents, artifacts: artifacts}
}

func (s *SaveStage) Name() string { return "save" }

func (s *SaveStage) Run(ctx context.Context, in <-chan *DeclarativeContent, out chan<- *DeclarativeContent) error {
	for dc := range in {
		existing, err := s.contents.FindExisting(ctx, dc.Content)
		if err == nil {
			dc.Content = existing
		} else if errors.Is(err, sql.ErrNoRows) {
			if err := s.saveNew(ctx, dc); err != nil {
				return err
			}
		} else {
			return err
		}
		select {
		case out <- dc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *SaveStage) saveNew(ctx context.Context, dc *DeclarativeContent) error {
	content, err := s.contents.Create(ctx, dc.Content)
	if err != nil {
		return err
	}
	dc.Content = content

	for i := range dc.Artifacts {
		da := &dc.Artifacts[i]
		ca := &database.ContentArtifact{
			ContentID:    content.ID,
			RelativePath: da.RelativePath,
		}
		if da.StoredPath != "" {
			artifact, err := s.artifacts.GetOrCreate(ctx, &database.Artifact{
				File:   da.StoredPath,
				Size:   da.Size,
				Sha256: da.Sha256,
			})
			if err != nil {
				return err
			}
			ca.ArtifactID = &artifact.ID
			da.ArtifactID = &artifact.ID
		}
		ca, err := s.artifacts.CreateContentArtifact(ctx, ca)
		if err != nil {
			return err
		}
		if len(da.RemoteSources) > 0 {
			ras := make([]database.RemoteArtifact, 0, len(da.RemoteSources))
			for _, rs := range da.RemoteSources {
				ras = append(ras, database.RemoteArtifact{
					ContentArtifactID: ca.ID,
					RemoteID:          rs.RemoteID,
					URL:               rs.URL,
					Size:              rs.Size,
					Sha256:            rs.Sha256,
				})
			}
			if err := s.artifacts.SaveRemoteArtifacts(ctx, ras); err != nil {
				return err
			}
		}
	}
	return nil
}

// RelateStage stamps pulp2 → pulp3 back-references in batches. The
// stamp is the pipeline's commit point: a row without it is redone on
// the next run.
type RelateStage struct {
	p2contents *database.Pulp2ContentStore
	reporter   *progress.Reporter
	code       string
}

func NewRelateStage(p2contents *database.Pulp2ContentStore, reporter *progress.Reporter, code string) *RelateStage {
	return &RelateStage{p2contents: p2contents, reporter: reporter, code: code}
}

func (s *RelateStage) Name() string { return "relate" }

func (s *RelateStage) Run(ctx context.Context, in <-chan *DeclarativeContent, out chan<- *DeclarativeContent) error {
	pairs := make(map[int64]int64, relateBatchSize)
	flush := func() error {
		if len(pairs) == 0 {
			return nil
		}
		if err := s.p2contents.RelatePulp3(ctx, pairs); err != nil {
			return err
		}
		if s.reporter != nil {
			if err := s.reporter.Increment(ctx, s.code, int64(len(pairs)), 0); err != nil {
				return err
			}
		}
		pairs = make(map[int64]int64, relateBatchSize)
		return nil
	}

	for dc := range in {
		pairs[dc.Pulp2Content.ID] = dc.Content.ID
		if len(pairs) >= relateBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		select {
		case out <- dc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return flush()
}
