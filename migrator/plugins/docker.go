package plugins

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

func init() {
	register("docker", func(deps Deps) Plugin {
		return &dockerPlugin{base{deps}}
	})
}

// dockerPlugin migrates the container family. Tags are repo-scoped and
// mutable; manifests and blobs are immutable and shared. The family has
// no publications: distributions bind the repository directly.
type dockerPlugin struct {
	base
}

const manifestListMediaType = "application/vnd.docker.distribution.manifest.list.v2+json"

func (p *dockerPlugin) Name() string            { return "docker" }
func (p *dockerPlugin) RepoType() string        { return "docker-repo" }
func (p *dockerPlugin) ImporterTypes() []string { return []string{"docker_importer"} }
func (p *dockerPlugin) DistributorTypes() []string {
	return []string{"docker_distributor_web", "docker_distributor_export"}
}
func (p *dockerPlugin) FamilyType() string { return "container.container" }
func (p *dockerPlugin) PulpTypes() []string {
	return []string{"container.blob", "container.manifest", "container.tag"}
}

func (p *dockerPlugin) ContentTypes() []ContentType {
	return []ContentType{
		{ID: "docker_blob", Collection: "units_docker_blob", PulpType: "container.blob", Lazy: true},
		{ID: "docker_manifest", Collection: "units_docker_manifest", PulpType: "container.manifest", Lazy: true},
		{ID: "docker_manifest_list", Collection: "units_docker_manifest_list", PulpType: "container.manifest"},
		{ID: "docker_tag", Collection: "units_docker_tag", PulpType: "container.tag", Mutable: true, PerRepo: true},
	}
}

func (p *dockerPlugin) PreMigrateUnit(ctx context.Context, typeID string, unit legacy.Unit, owners []int64) ([]database.Pulp2Content, error) {
	if typeID != "docker_tag" {
		return []database.Pulp2Content{contentRow(typeID, unit)}, nil
	}
	// a tag means nothing outside a repository
	rows := make([]database.Pulp2Content, 0, len(owners))
	for _, owner := range owners {
		owner := owner
		row := contentRow(typeID, unit)
		row.Pulp2RepoID = &owner
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *dockerPlugin) SaveDetail(ctx context.Context, row database.Pulp2Content, unit legacy.Unit) error {
	switch row.Pulp2ContentTypeID {
	case "docker_blob":
		return p.DockerContents.BulkInsertBlobsIgnore(ctx, []database.DockerBlob{{
			Pulp2ContentID: row.ID,
			Digest:         unit.Str("digest"),
		}})
	case "docker_manifest":
		var blobDigests []string
		for _, layer := range unit.MapList("fs_layers") {
			if sum, ok := layer["blob_sum"].(string); ok {
				blobDigests = append(blobDigests, sum)
			}
		}
		return p.DockerContents.BulkInsertManifestsIgnore(ctx, []database.DockerManifest{{
			Pulp2ContentID:   row.ID,
			Digest:           unit.Str("digest"),
			SchemaVersion:    int(unit.Int64("schema_version")),
			MediaType:        unit.Str("media_type"),
			ConfigBlobDigest: unit.Str("config_layer"),
			BlobDigests:      blobDigests,
		}})
	case "docker_manifest_list":
		return p.DockerContents.BulkInsertManifestsIgnore(ctx, []database.DockerManifest{{
			Pulp2ContentID:  row.ID,
			Digest:          unit.Str("digest"),
			SchemaVersion:   int(unit.Int64("schema_version")),
			MediaType:       manifestListMediaType,
			ListedManifests: unit.MapList("manifests"),
		}})
	case "docker_tag":
		return p.DockerContents.BulkInsertTagsIgnore(ctx, []database.DockerTag{{
			Pulp2ContentID: row.ID,
			Name:           unit.Str("name"),
			ManifestDigest: unit.Str("manifest_digest"),
		}})
	}
	return nil
}

func (p *dockerPlugin) Resolve(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	switch pc.Pulp2ContentTypeID {
	case "docker_blob":
		return p.resolveBlob(ctx, pc)
	case "docker_manifest", "docker_manifest_list":
		return p.resolveManifest(ctx, pc)
	case "docker_tag":
		return p.resolveTag(ctx, pc)
	}
	return nil, nil
}

func (p *dockerPlugin) resolveBlob(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.DockerContents.FindBlob(ctx, pc.ID)
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
			PulpType: "container.blob",
			Digest:   detail.Digest,
			Data:     map[string]interface{}{"digest": detail.Digest},
		},
		Artifacts: []pipeline.DeclarativeArtifact{{
			SourcePath:    pc.Pulp2StoragePath,
			Sha256:        digestHex(detail.Digest),
			Size:          -1,
			RelativePath:  detail.Digest,
			Downloaded:    pc.Downloaded,
			RemoteSources: sources,
		}},
	}, nil
}

func (p *dockerPlugin) resolveManifest(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.DockerContents.FindManifest(ctx, pc.ID)
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
			PulpType: "container.manifest",
			Digest:   detail.Digest,
			Data: map[string]interface{}{
				"digest":         detail.Digest,
				"schema_version": detail.SchemaVersion,
				"media_type":     detail.MediaType,
			},
		},
		Artifacts: []pipeline.DeclarativeArtifact{{
			SourcePath:    pc.Pulp2StoragePath,
			Sha256:        digestHex(detail.Digest),
			Size:          -1,
			RelativePath:  detail.Digest,
			Downloaded:    pc.Downloaded,
			RemoteSources: sources,
		}},
	}, nil
}

func (p *dockerPlugin) resolveTag(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error) {
	detail, err := p.DockerContents.FindTag(ctx, pc.ID)
	if err != nil {
		return nil, err
	}
	if pc.Pulp2RepoID == nil {
		return nil, nil
	}
	return &pipeline.DeclarativeContent{
		Pulp2Content: &pc,
		Content: &database.Content{
			PulpType: "container.tag",
			Name:     detail.Name,
			Digest:   detail.ManifestDigest,
			Data: map[string]interface{}{
				"name":            detail.Name,
				"manifest_digest": detail.ManifestDigest,
			},
		},
	}, nil
}

func (p *dockerPlugin) MigrateImporter(ctx context.Context, importer *database.Pulp2Importer) (*database.Remote, error) {
	remote, err := p.migrateImporter(ctx, importer, "container.container")
	if remote != nil {
		// container remotes track one upstream name
		if upstream := configStr(importer.Pulp2Config, "upstream_name"); upstream != "" {
			remote.Name = remote.Name + "-" + upstream
			remote, err = p.Remotes.Upsert(ctx, remote)
		}
	}
	return remote, err
}

func (p *dockerPlugin) MigrateDistributor(ctx context.Context, distributor *database.Pulp2Distributor, repo *database.Repository, version *database.RepositoryVersion) (*database.Publication, *database.Distribution, error) {
	path := configStr(distributor.Pulp2Config, "repo-registry-id")
	if path == "" {
		path = repo.Name
	}
	distribution, err := p.Distributions.Upsert(ctx, &database.Distribution{
		Name:         distributionName(distributor, repo.Name),
		PulpType:     "container.container",
		BasePath:     strings.Trim(path, "/"),
		RepositoryID: &repo.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, distribution, nil
}

func (p *dockerPlugin) ExtraStages() []pipeline.Stage {
	return []pipeline.Stage{&dockerInterrelateStage{p}}
}

func (p *dockerPlugin) PurgeDetails(ctx context.Context) error {
	if err := p.DockerLinks.DeleteAll(ctx); err != nil {
		return err
	}
	return p.DockerContents.DeleteAll(ctx)
}

// dockerInterrelateStage wires saved manifests to the blobs and listed
// manifests they reference. Links to content not yet migrated are left
// for the pass that migrates the missing side; blob and manifest types
// run before lists, so within one run order is already right.
type dockerInterrelateStage struct {
	p *dockerPlugin
}

func (s *dockerInterrelateStage) Name() string { return "docker-interrelate" }

func (s *dockerInterrelateStage) Run(ctx context.Context, in <-chan *pipeline.DeclarativeContent, out chan<- *pipeline.DeclarativeContent) error {
	for dc := range in {
		var err error
		switch dc.Pulp2Content.Pulp2ContentTypeID {
		case "docker_manifest":
			err = s.linkManifest(ctx, dc)
		case "docker_manifest_list":
			err = s.linkManifestList(ctx, dc)
		case "docker_tag":
			err = s.linkTag(ctx, dc)
		}
		if err != nil {
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

func (s *dockerInterrelateStage) linkManifest(ctx context.Context, dc *pipeline.DeclarativeContent) error {
	detail, err := s.p.DockerContents.FindManifest(ctx, dc.Pulp2Content.ID)
	if err != nil {
		return err
	}
	digests := detail.BlobDigests
	if detail.ConfigBlobDigest != "" {
		digests = append(digests, detail.ConfigBlobDigest)
	}
	for _, digest := range digests {
		blob, err := s.p.Contents.FindExisting(ctx, &database.Content{
			PulpType: "container.blob",
			Digest:   digest,
		})
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("manifest references unmigrated blob",
				slog.String("manifest", detail.Digest), slog.String("blob", digest))
			continue
		}
		if err != nil {
			return err
		}
		if err := s.p.DockerLinks.LinkBlob(ctx, dc.Content.ID, blob.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *dockerInterrelateStage) linkManifestList(ctx context.Context, dc *pipeline.DeclarativeContent) error {
	detail, err := s.p.DockerContents.FindManifest(ctx, dc.Pulp2Content.ID)
	if err != nil {
		return err
	}
	for _, entry := range detail.ListedManifests {
		digest, _ := entry["digest"].(string)
		if digest == "" {
			continue
		}
		manifest, err := s.p.Contents.FindExisting(ctx, &database.Content{
			PulpType: "container.manifest",
			Digest:   digest,
		})
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("manifest list references unmigrated manifest",
				slog.String("list", detail.Digest), slog.String("manifest", digest))
			continue
		}
		if err != nil {
			return err
		}
		link := &database.ManifestListedManifest{
			ListContentID:     dc.Content.ID,
			ManifestContentID: manifest.ID,
		}
		link.Architecture, _ = entry["architecture"].(string)
		link.OS, _ = entry["os"].(string)
		link.OSVersion, _ = entry["os_version"].(string)
		link.Variant, _ = entry["variant"].(string)
		if err := s.p.DockerLinks.LinkListedManifest(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

// linkTag binds a saved tag to the manifest its digest names and hands
// the manifest's artifact to the tag, so serving the tag serves the
// manifest bytes.
func (s *dockerInterrelateStage) linkTag(ctx context.Context, dc *pipeline.DeclarativeContent) error {
	manifest, err := s.p.Contents.FindExisting(ctx, &database.Content{
		PulpType: "container.manifest",
		Digest:   dc.Content.Digest,
	})
	if errors.Is(err, sql.ErrNoRows) {
		slog.Warn("tag references unmigrated manifest",
			slog.String("tag", dc.Content.Name), slog.String("manifest", dc.Content.Digest))
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.p.DockerLinks.LinkTag(ctx, dc.Content.ID, manifest.ID); err != nil {
		return err
	}

	existing, err := s.p.Artifacts.ListContentArtifacts(ctx, dc.Content.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	manifestArtifacts, err := s.p.Artifacts.ListContentArtifacts(ctx, manifest.ID)
	if err != nil {
		return err
	}
	for _, ca := range manifestArtifacts {
		_, err := s.p.Artifacts.CreateContentArtifact(ctx, &database.ContentArtifact{
			ContentID:    dc.Content.ID,
			ArtifactID:   ca.ArtifactID,
			RelativePath: ca.RelativePath,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func digestHex(digest string) string {
	return strings.TrimPrefix(digest, "sha256:")
}
