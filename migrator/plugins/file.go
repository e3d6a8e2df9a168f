package plugins

import (
	"context"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

func init() {
	register("iso", func(deps Deps) Plugin {
		return &filePlugin{base{deps}}
	})
}

// filePlugin migrates the iso family: flat files identified by name,
// checksum and size.
type filePlugin struct {
	base
}

func (p *filePlugin) Name() string               { return "iso" }
func (p *filePlugin) RepoType() string           { return "iso-repo" }
func (p *filePlugin) ImporterTypes() []string    { return []string{"iso_importer"} }
func (p *filePlugin) DistributorTypes() []string { return []string{"iso_distributor"} }
func (p *filePlugin) PulpTypes() []string        { return []string{"file.file"} }
func (p *filePlugin) FamilyType() string          { return "file.file" }

func (p *filePlugin) ContentTypes() []ContentType {
	return []ContentType{
		{ID: "iso", Collection: "units_iso", PulpType: "file.file", Lazy: true},
	}
}

func (p *filePlugin) PreMigrateUnit(ctx context.Context, typeID string, unit legacy.Unit, owners []int64) ([]database.Pulp2Content, error) {
	return []database.Pulp2Content{contentRow(typeID, unit)}, nil
}

func (p *filePlugin) SaveDetail(ctx context.Context, row database.Pulp2Content, unit legacy.Unit) error {
	return p.FileContents.BulkInsertIgnore(ctx, []database.FileContent{{
		Pulp2ContentID: row.ID,
		Digest:         unit.Str("checksum"),
		Size:           unit.Int64("size"),
		RelativePath:   unit.Str("name"),
	}})
}

func (p *filePlugin) Resolve(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.FileContents.FindByPulp2ContentID(ctx, pc.ID)
	if err != nil {
		return nil, err
	}
	sources, ok, err := p.remoteSources(ctx, pc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &pipeline.DeclarativeContent{
		Pulp2Content: &pc,
		Content: &database.Content{
			PulpType:     "file.file",
			Digest:       detail.Digest,
			RelativePath: detail.RelativePath,
			Data: map[string]interface{}{
				"digest":        detail.Digest,
				"size":          detail.Size,
				"relative_path": detail.RelativePath,
			},
		},
		Artifacts: []pipeline.DeclarativeArtifact{{
			SourcePath:    pc.Pulp2StoragePath,
			Sha256:        detail.Digest,
			Size:          detail.Size,
			RelativePath:  detail.RelativePath,
			Downloaded:    pc.Downloaded,
			RemoteSources: sources,
		}},
	}, nil
}

func (p *filePlugin) MigrateImporter(ctx context.Context, importer *database.Pulp2Importer) (*database.Remote, error) {
	return p.migrateImporter(ctx, importer, "file.file")
}

func (p *filePlugin) MigrateDistributor(ctx context.Context, distributor *database.Pulp2Distributor, repo *database.Repository, version *database.RepositoryVersion) (*database.Publication, *database.Distribution, error) {
	return p.migrateDistributor(ctx, distributor, repo, version, "file.file", "")
}

func (p *filePlugin) ExtraStages() []pipeline.Stage { return nil }

func (p *filePlugin) PurgeDetails(ctx context.Context) error {
	return p.FileContents.DeleteAll(ctx)
}
