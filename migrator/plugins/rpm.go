package plugins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

func init() {
	register("rpm", func(deps Deps) Plugin {
		return &rpmPlugin{base{deps}}
	})
}

// rpmPlugin migrates the rpm family. Packages and srpms are immutable;
// errata and modulemds are mutable. Errata are repo-scoped: each owning
// repository gets its own advisory with the pkglist filtered down to
// the packages actually present there.
type rpmPlugin struct {
	base
}

func (p *rpmPlugin) Name() string               { return "rpm" }
func (p *rpmPlugin) RepoType() string           { return "rpm-repo" }
func (p *rpmPlugin) ImporterTypes() []string    { return []string{"yum_importer"} }
func (p *rpmPlugin) DistributorTypes() []string { return []string{"yum_distributor"} }
func (p *rpmPlugin) FamilyType() string { return "rpm.rpm" }
func (p *rpmPlugin) PulpTypes() []string {
	return []string{"rpm.package", "rpm.advisory", "rpm.modulemd", "rpm.rpm"}
}

func (p *rpmPlugin) ContentTypes() []ContentType {
	return []ContentType{
		{ID: "rpm", Collection: "units_rpm", PulpType: "rpm.package", Lazy: true},
		{ID: "srpm", Collection: "units_srpm", PulpType: "rpm.package", Lazy: true},
		{ID: "modulemd", Collection: "units_modulemd", PulpType: "rpm.modulemd", Mutable: true},
		{ID: "erratum", Collection: "units_erratum", PulpType: "rpm.advisory", Mutable: true, PerRepo: true},
	}
}

func (p *rpmPlugin) PreMigrateUnit(ctx context.Context, typeID string, unit legacy.Unit, owners []int64) ([]database.Pulp2Content, error) {
	if typeID != "erratum" {
		return []database.Pulp2Content{contentRow(typeID, unit)}, nil
	}
	rows := make([]database.Pulp2Content, 0, len(owners))
	for _, owner := range owners {
		owner := owner
		row := contentRow(typeID, unit)
		row.Pulp2RepoID = &owner
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *rpmPlugin) SaveDetail(ctx context.Context, row database.Pulp2Content, unit legacy.Unit) error {
	switch row.Pulp2ContentTypeID {
	case "rpm", "srpm":
		epoch := unit.Str("epoch")
		if epoch == "" {
			epoch = "0"
		}
		return p.RpmContents.BulkInsertPackagesIgnore(ctx, []database.RpmPackage{{
			Pulp2ContentID: row.ID,
			Name:           unit.Str("name"),
			Epoch:          epoch,
			Version:        unit.Str("version"),
			Release:        unit.Str("release"),
			Arch:           unit.Str("arch"),
			Checksum:       unit.Str("checksum"),
			ChecksumType:   unit.Str("checksumtype"),
			Size:           unit.Int64("size"),
			Location:       unit.Str("relativepath"),
			IsModular:      unit.Bool("is_modular"),
		}})
	case "modulemd":
		return p.RpmContents.BulkInsertModulemdsIgnore(ctx, []database.RpmModulemd{{
			Pulp2ContentID: row.ID,
			Name:           unit.Str("name"),
			Stream:         unit.Str("stream"),
			Version:        unit.Int64("version"),
			Context:        unit.Str("context"),
			Arch:           unit.Str("arch"),
			Artifacts:      unit.StrList("artifacts"),
		}})
	case "erratum":
		errataID := unit.Str("errata_id")
		if errataID == "" {
			errataID = unit.Str("id")
		}
		return p.RpmContents.BulkInsertErrataIgnore(ctx, []database.RpmErratum{{
			Pulp2ContentID: row.ID,
			ErrataID:       errataID,
			UpdatedDate:    unit.Str("updated"),
			Severity:       unit.Str("severity"),
			Pkglist:        unit.MapList("pkglist"),
		}})
	}
	return nil
}

func (p *rpmPlugin) Resolve(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	switch pc.Pulp2ContentTypeID {
	case "rpm", "srpm":
		return p.resolvePackage(ctx, pc)
	case "modulemd":
		return p.resolveModulemd(ctx, pc)
	case "erratum":
		return p.resolveErratum(ctx, pc)
	}
	return nil, nil
}

func (p *rpmPlugin) resolvePackage(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.RpmContents.FindPackage(ctx, pc.ID)
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
	sha256 := ""
	if detail.ChecksumType == "sha256" {
		sha256 = detail.Checksum
	}
	return &pipeline.DeclarativeContent{
		Pulp2Content: &pc,
		Content: &database.Content{
			PulpType:     "rpm.package",
			Name:         detail.Name,
			Epoch:        detail.Epoch,
			Version:      detail.Version,
			Release:      detail.Release,
			Arch:         detail.Arch,
			Digest:       detail.Checksum,
			RelativePath: detail.Location,
			IsModular:    detail.IsModular,
			Data: map[string]interface{}{
				"checksum":      detail.Checksum,
				"checksum_type": detail.ChecksumType,
				"location":      detail.Location,
			},
		},
		Artifacts: []pipeline.DeclarativeArtifact{{
			SourcePath:    pc.Pulp2StoragePath,
			Sha256:        sha256,
			Size:          detail.Size,
			RelativePath:  detail.Location,
			Downloaded:    pc.Downloaded,
			RemoteSources: sources,
		}},
	}, nil
}

func (p *rpmPlugin) resolveModulemd(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.RpmContents.FindModulemd(ctx, pc.ID)
	if err != nil {
		return nil, err
	}
	dc := &pipeline.DeclarativeContent{
		Pulp2Content: &pc,
		Content: &database.Content{
			PulpType: "rpm.modulemd",
			Name:     detail.Name,
			Version:  strconv.FormatInt(detail.Version, 10),
			Release:  detail.Context,
			Arch:     detail.Arch,
			Data: map[string]interface{}{
				"name":      detail.Name,
				"stream":    detail.Stream,
				"version":   detail.Version,
				"context":   detail.Context,
				"arch":      detail.Arch,
				"artifacts": detail.Artifacts,
			},
		},
	}
	// the module snippet file is the unit's artifact
	if pc.Pulp2StoragePath != "" {
		dc.Artifacts = []pipeline.DeclarativeArtifact{{
			SourcePath:   pc.Pulp2StoragePath,
			Size:         -1,
			RelativePath: fmt.Sprintf("%s-%s-%d.yaml", detail.Name, detail.Stream, detail.Version),
			Downloaded:   pc.Downloaded,
		}}
	}
	return dc, nil
}

// resolveErratum builds one per-repo advisory. The pkglist is filtered
// to nevras present in the owning repository; packages the repo never
// held are not advertised by its advisory.
func (p *rpmPlugin) resolveErratum(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	if pc.Pulp2RepoID == nil {
		return nil, nil
	}
	detail, err := p.RpmContents.FindErratum(ctx, pc.ID)
	if err != nil {
		return nil, err
	}
	inRepo, err := p.RpmContents.PackageNevrasInRepo(ctx, *pc.Pulp2RepoID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(inRepo))
	for _, pkg := range inRepo {
		present[nevraKey(pkg.Name, pkg.Epoch, pkg.Version, pkg.Release, pkg.Arch)] = true
	}

	var repoTag string
	if pc.Pulp2Repo != nil {
		repoTag = pc.Pulp2Repo.Pulp2RepoID
	} else {
		repoTag = strconv.FormatInt(*pc.Pulp2RepoID, 10)
	}

	return &pipeline.DeclarativeContent{
		Pulp2Content: &pc,
		Content: &database.Content{
			PulpType: "rpm.advisory",
			Name:     detail.ErrataID,
			// advisories are per-repo copies; the version column keeps
			// copies from deduplicating onto each other
			Version: repoTag,
			Data: map[string]interface{}{
				"errata_id": detail.ErrataID,
				"updated":   detail.UpdatedDate,
				"severity":  detail.Severity,
				"pkglist":   filterPkglist(detail.Pkglist, present),
			},
		},
	}, nil
}

func filterPkglist(pkglist []map[string]interface{}, present map[string]bool) []map[string]interface{} {
	filtered := make([]map[string]interface{}, 0, len(pkglist))
	for _, collection := range pkglist {
		packages, _ := collection["packages"].([]interface{})
		kept := make([]interface{}, 0, len(packages))
		for _, raw := range packages {
			pkg, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := pkg["name"].(string)
			epoch, _ := pkg["epoch"].(string)
			if epoch == "" {
				epoch = "0"
			}
			version, _ := pkg["version"].(string)
			release, _ := pkg["release"].(string)
			arch, _ := pkg["arch"].(string)
			if present[nevraKey(name, epoch, version, release, arch)] {
				kept = append(kept, pkg)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out := make(map[string]interface{}, len(collection))
		for k, v := range collection {
			out[k] = v
		}
		out["packages"] = kept
		filtered = append(filtered, out)
	}
	return filtered
}

func nevraKey(name, epoch, version, release, arch string) string {
	return strings.Join([]string{name, epoch, version, release, arch}, "|")
}

func (p *rpmPlugin) MigrateImporter(ctx context.Context, importer *database.Pulp2Importer) (*database.Remote, error) {
	return p.migrateImporter(ctx, importer, "rpm.rpm")
}

func (p *rpmPlugin) MigrateDistributor(ctx context.Context, distributor *database.Pulp2Distributor, repo *database.Repository, version *database.RepositoryVersion) (*database.Publication, *database.Distribution, error) {
	checksumType := configStr(distributor.Pulp2Config, "checksum_type")
	return p.migrateDistributor(ctx, distributor, repo, version, "rpm.rpm", checksumType)
}

func (p *rpmPlugin) ExtraStages() []pipeline.Stage {
	return []pipeline.Stage{&rpmModulemdLinkStage{p}}
}

func (p *rpmPlugin) PurgeDetails(ctx context.Context) error {
	if err := p.RpmLinks.DeleteAll(ctx); err != nil {
		return err
	}
	return p.RpmContents.DeleteAll(ctx)
}

// rpmModulemdLinkStage links saved modulemds to the modular packages
// named by their artifact nevras. Artifacts whose package was never
// migrated only get a log line; module metadata routinely names more
// builds than a repo carries.
type rpmModulemdLinkStage struct {
	p *rpmPlugin
}

func (s *rpmModulemdLinkStage) Name() string { return "modulemd-link" }

func (s *rpmModulemdLinkStage) Run(ctx context.Context, in <-chan *pipeline.DeclarativeContent, out chan<- *pipeline.DeclarativeContent) error {
	for dc := range in {
		if dc.Pulp2Content.Pulp2ContentTypeID == "modulemd" {
			if err := s.link(ctx, dc); err != nil {
				return err
			}
		}
		select {
		case out <- dc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *rpmModulemdLinkStage) link(ctx context.Context, dc *pipeline.DeclarativeContent) error {
	detail, err := s.p.RpmContents.FindModulemd(ctx, dc.Pulp2Content.ID)
	if err != nil {
		return err
	}
	for _, artifact := range detail.Artifacts {
		nevra, ok := parseNevra(artifact)
		if !ok {
			slog.Warn("unparseable modulemd artifact", slog.String("artifact", artifact))
			continue
		}
		pkg, err := s.p.Contents.FindModularPackage(ctx, nevra.name, nevra.epoch, nevra.version, nevra.release, nevra.arch)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.p.RpmLinks.LinkPackage(ctx, dc.Content.ID, pkg.ID); err != nil {
			return err
		}
	}
	return nil
}

type nevra struct {
	name, epoch, version, release, arch string
}

// parseNevra splits name-epoch:version-release.arch, the format module
// metadata lists artifacts in.
func parseNevra(s string) (nevra, bool) {
	s = strings.TrimSuffix(s, ".rpm")
	lastDot := strings.LastIndex(s, ".")
	if lastDot < 0 {
		return nevra{}, false
	}
	arch := s[lastDot+1:]
	rest := s[:lastDot]

	lastDash := strings.LastIndex(rest, "-")
	if lastDash < 0 {
		return nevra{}, false
	}
	release := rest[lastDash+1:]
	rest = rest[:lastDash]

	lastDash = strings.LastIndex(rest, "-")
	if lastDash < 0 {
		return nevra{}, false
	}
	ev := rest[lastDash+1:]
	name := rest[:lastDash]

	epoch := "0"
	version := ev
	if colon := strings.Index(ev, ":"); colon >= 0 {
		epoch = ev[:colon]
		version = ev[colon+1:]
	}
	if name == "" || version == "" || release == "" || arch == "" {
		return nevra{}, false
	}
	return nevra{name: name, epoch: epoch, version: version, release: release, arch: arch}, true
}
