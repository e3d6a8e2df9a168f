package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/common/tests"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

func TestDockerPreMigrateUnitTagsPerRepo(t *testing.T) {
	plugin := &dockerPlugin{}
	unit := legacy.Unit{Doc: bson.M{"_id": "tag-1", "name": "latest"}}

	rows, err := plugin.PreMigrateUnit(context.TODO(), "docker_tag", unit, []int64{3, 5})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(3), *rows[0].Pulp2RepoID)
	require.Equal(t, int64(5), *rows[1].Pulp2RepoID)

	// an unreferenced tag premigrates to nothing
	rows, err = plugin.PreMigrateUnit(context.TODO(), "docker_tag", unit, nil)
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = plugin.PreMigrateUnit(context.TODO(), "docker_blob", unit, []int64{3})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].Pulp2RepoID)
}

func TestPluginRegistry(t *testing.T) {
	require.ElementsMatch(t, []string{"iso", "docker", "deb", "rpm"}, Names())
}

// A migrated tag must end up bound to the manifest its digest names and
// serve the manifest's bytes through a shared artifact, not carry the
// digest as loose data only.
func TestDockerTagLinksManifestAndSharesArtifact(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	deps := NewDeps(&config.Config{}, nil, db)
	plugin := &dockerPlugin{base{deps}}

	manifest, err := deps.Contents.Create(ctx, &database.Content{
		PulpType: "container.manifest",
		Digest:   "sha256:aaa111",
		Data:     map[string]interface{}{"digest": "sha256:aaa111"},
	})
	require.NoError(t, err)
	artifact, err := deps.Artifacts.GetOrCreate(ctx, &database.Artifact{
		File: "artifact/aa/a111", Size: 4, Sha256: "aaa111",
	})
	require.NoError(t, err)
	_, err = deps.Artifacts.CreateContentArtifact(ctx, &database.ContentArtifact{
		ContentID: manifest.ID, ArtifactID: &artifact.ID, RelativePath: "sha256:aaa111",
	})
	require.NoError(t, err)

	tag, err := deps.Contents.Create(ctx, &database.Content{
		PulpType: "container.tag",
		Name:     "latest",
		Digest:   "sha256:aaa111",
		Data:     map[string]interface{}{"name": "latest", "manifest_digest": "sha256:aaa111"},
	})
	require.NoError(t, err)

	stage := &dockerInterrelateStage{plugin}
	dc := &pipeline.DeclarativeContent{
		Pulp2Content: &database.Pulp2Content{Pulp2ID: "tag-1", Pulp2ContentTypeID: "docker_tag"},
		Content:      tag,
	}
	require.NoError(t, stage.linkTag(ctx, dc))
	// rerun neither duplicates the link nor the shared artifact
	require.NoError(t, stage.linkTag(ctx, dc))

	links, err := deps.DockerLinks.ListTagLinks(ctx, tag.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, manifest.ID, links[0].ManifestContentID)

	cas, err := deps.Artifacts.ListContentArtifacts(ctx, tag.ID)
	require.NoError(t, err)
	require.Len(t, cas, 1)
	require.Equal(t, artifact.ID, *cas[0].ArtifactID)
	require.Equal(t, "sha256:aaa111", cas[0].RelativePath)
}

// A tag whose manifest is not migrated yet stays unlinked instead of
// failing the stage; the pass migrating the manifest closes the gap.
func TestDockerTagUnmigratedManifestIsTolerated(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	deps := NewDeps(&config.Config{}, nil, db)
	plugin := &dockerPlugin{base{deps}}

	tag, err := deps.Contents.Create(ctx, &database.Content{
		PulpType: "container.tag",
		Name:     "orphan",
		Digest:   "sha256:bbb222",
	})
	require.NoError(t, err)

	stage := &dockerInterrelateStage{plugin}
	dc := &pipeline.DeclarativeContent{
		Pulp2Content: &database.Pulp2Content{Pulp2ID: "tag-2", Pulp2ContentTypeID: "docker_tag"},
		Content:      tag,
	}
	require.NoError(t, stage.linkTag(ctx, dc))

	links, err := deps.DockerLinks.ListTagLinks(ctx, tag.ID)
	require.NoError(t, err)
	require.Empty(t, links)
}
