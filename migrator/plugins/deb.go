package plugins

import (
	"context"
	"fmt"
	"strings"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

func init() {
	register("deb", func(deps Deps) Plugin {
		return &debPlugin{base{deps}}
	})
}

// debPlugin migrates the apt family. A legacy component unit fans out
// into the component itself, one package link per listed package and
// one release-architecture per listed arch; the fan-out is encoded in
// pulp2_subid.
type debPlugin struct {
	base
}

const (
	debSubidPackage = "pkg:"
	debSubidArch    = "arch:"
)

func (p *debPlugin) Name() string               { return "deb" }
func (p *debPlugin) RepoType() string           { return "deb-repo" }
func (p *debPlugin) ImporterTypes() []string    { return []string{"deb_importer"} }
func (p *debPlugin) DistributorTypes() []string { return []string{"deb_distributor"} }
func (p *debPlugin) FamilyType() string { return "deb.apt" }
func (p *debPlugin) PulpTypes() []string {
	return []string{
		"deb.package", "deb.release", "deb.release_component",
		"deb.package_release_component", "deb.release_architecture", "deb.apt",
	}
}

func (p *debPlugin) ContentTypes() []ContentType {
	return []ContentType{
		{ID: "deb", Collection: "units_deb", PulpType: "deb.package", Lazy: true},
		{ID: "deb_release", Collection: "units_deb_release", PulpType: "deb.release"},
		{ID: "deb_component", Collection: "units_deb_component", PulpType: "deb.release_component"},
	}
}

func (p *debPlugin) PreMigrateUnit(ctx context.Context, typeID string, unit legacy.Unit, owners []int64) ([]database.Pulp2Content, error) {
	if typeID != "deb_component" {
		return []database.Pulp2Content{contentRow(typeID, unit)}, nil
	}
	rows := []database.Pulp2Content{contentRow(typeID, unit)}
	for _, sha := range unit.StrList("packages") {
		row := contentRow(typeID, unit)
		row.Pulp2Subid = debSubidPackage + sha
		rows = append(rows, row)
	}
	for _, arch := range unit.StrList("architectures") {
		row := contentRow(typeID, unit)
		row.Pulp2Subid = debSubidArch + arch
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *debPlugin) SaveDetail(ctx context.Context, row database.Pulp2Content, unit legacy.Unit) error {
	switch row.Pulp2ContentTypeID {
	case "deb":
		return p.DebContents.BulkInsertPackagesIgnore(ctx, []database.DebPackage{{
			Pulp2ContentID: row.ID,
			Package:        unit.Str("name"),
			Version:        unit.Str("version"),
			Architecture:   unit.Str("architecture"),
			RelativePath:   unit.Str("filename"),
			Sha256:         unit.Str("checksum"),
			Size:           unit.Int64("size"),
		}})
	case "deb_release":
		return p.DebContents.BulkInsertComponentsIgnore(ctx, []database.DebComponent{{
			Pulp2ContentID: row.ID,
			Kind:           database.DebKindRelease,
			Distribution:   unit.Str("distribution"),
			Codename:       unit.Str("codename"),
			Suite:          unit.Str("suite"),
		}})
	case "deb_component":
		detail := database.DebComponent{
			Pulp2ContentID: row.ID,
			Distribution:   unit.Str("distribution"),
			Codename:       unit.Str("codename"),
			Component:      unit.Str("name"),
		}
		switch {
		case strings.HasPrefix(row.Pulp2Subid, debSubidPackage):
			detail.Kind = database.DebKindPackageLink
			detail.PackageSha256 = strings.TrimPrefix(row.Pulp2Subid, debSubidPackage)
		case strings.HasPrefix(row.Pulp2Subid, debSubidArch):
			detail.Kind = database.DebKindReleaseArchitecture
			detail.Architecture = strings.TrimPrefix(row.Pulp2Subid, debSubidArch)
		default:
			detail.Kind = database.DebKindComponent
		}
		return p.DebContents.BulkInsertComponentsIgnore(ctx, []database.DebComponent{detail})
	}
	return nil
}

func (p *debPlugin) Resolve(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	if pc.Pulp2ContentTypeID == "deb" {
		return p.resolvePackage(ctx, pc)
	}
	return p.resolveStructure(ctx, pc)
}

func (p *debPlugin) resolvePackage(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.DebContents.FindPackage(ctx, pc.ID)
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
			PulpType:     "deb.package",
			Name:         detail.Package,
			Version:      detail.Version,
			Arch:         detail.Architecture,
			Digest:       detail.Sha256,
			RelativePath: detail.RelativePath,
			Data: map[string]interface{}{
				"package":       detail.Package,
				"version":       detail.Version,
				"architecture":  detail.Architecture,
				"relative_path": detail.RelativePath,
				"sha256":        detail.Sha256,
			},
		},
		Artifacts: []pipeline.DeclarativeArtifact{{
			SourcePath:    pc.Pulp2StoragePath,
			Sha256:        detail.Sha256,
			Size:          detail.Size,
			RelativePath:  detail.RelativePath,
			Downloaded:    pc.Downloaded,
			RemoteSources: sources,
		}},
	}, nil
}

func (p *debPlugin) resolveStructure(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.DebContents.FindComponent(ctx, pc.ID)
	if err != nil {
		return nil, err
	}
	content := &database.Content{
		Name: detail.Distribution,
		Data: map[string]interface{}{
			"distribution": detail.Distribution,
			"codename":     detail.Codename,
		},
	}
	switch detail.Kind {
	case database.DebKindRelease:
		content.PulpType = "deb.release"
		content.Data["suite"] = detail.Suite
	case database.DebKindComponent:
		content.PulpType = "deb.release_component"
		content.Version = detail.Component
		content.Data["component"] = detail.Component
	case database.DebKindPackageLink:
		content.PulpType = "deb.package_release_component"
		content.Version = detail.Component
		content.Digest = detail.PackageSha256
		content.Data["component"] = detail.Component
		content.Data["package_sha256"] = detail.PackageSha256
	case database.DebKindReleaseArchitecture:
		content.PulpType = "deb.release_architecture"
		content.Arch = detail.Architecture
		content.Data["architecture"] = detail.Architecture
	default:
		return nil, fmt.Errorf("unknown deb structure kind %q", detail.Kind)
	}
	return &pipeline.DeclarativeContent{
		Pulp2Content: &pc,
		Content:      content,
	}, nil
}

func (p *debPlugin) MigrateImporter(ctx context.Context, importer *database.Pulp2Importer) (*database.Remote, error) {
	return p.migrateImporter(ctx, importer, "deb.apt")
}

func (p *debPlugin) MigrateDistributor(ctx context.Context, distributor *database.Pulp2Distributor, repo *database.Repository, version *database.RepositoryVersion) (*database.Publication, *database.Distribution, error) {
	return p.migrateDistributor(ctx, distributor, repo, version, "deb.apt", "")
}

func (p *debPlugin) ExtraStages() []pipeline.Stage { return nil }

func (p *debPlugin) PurgeDetails(ctx context.Context) error {
	return p.DebContents.DeleteAll(ctx)
}
