package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/common/tests"
)

func premigratedFileUnit(t *testing.T, deps Deps, pulp2ID string, downloaded bool) database.Pulp2Content {
	t.Helper()
	ctx := context.TODO()
	rows := []database.Pulp2Content{{
		Pulp2ID:            pulp2ID,
		Pulp2ContentTypeID: "iso",
		Pulp2LastUpdated:   100,
		Pulp2StoragePath:   "/var/lib/pulp/" + pulp2ID,
		Downloaded:         downloaded,
	}}
	require.NoError(t, deps.P2Contents.BulkInsertIgnore(ctx, rows))
	stored, err := deps.P2Contents.ResolveIDs(ctx, rows)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NoError(t, deps.FileContents.BulkInsertIgnore(ctx, []database.FileContent{{
		Pulp2ContentID: stored[0].ID,
		Digest:         "d-" + pulp2ID,
		Size:           4,
		RelativePath:   pulp2ID + ".iso",
	}}))
	return stored[0]
}

// An on-demand unit whose lazy catalog yields no migrated remote cannot
// be fetched ever again. Resolving it drops the unit instead of failing
// the whole run.
func TestFileResolveSkipsOnDemandWithoutImporter(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	deps := NewDeps(&config.Config{}, nil, db)
	plugin := &filePlugin{base{deps}}

	pc := premigratedFileUnit(t, deps, "ghost", false)

	dc, err := plugin.Resolve(ctx, pc)
	require.NoError(t, err)
	require.Nil(t, dc)
}

func TestFileResolveDownloadedWithoutSources(t *testing.T) {
	db := tests.InitTestDB()
	defer db.Close()
	ctx := context.TODO()
	deps := NewDeps(&config.Config{}, nil, db)
	plugin := &filePlugin{base{deps}}

	pc := premigratedFileUnit(t, deps, "present", true)

	dc, err := plugin.Resolve(ctx, pc)
	require.NoError(t, err)
	require.NotNil(t, dc)
	require.Equal(t, "file.file", dc.Content.PulpType)
	require.Equal(t, "present.iso", dc.Content.RelativePath)
	require.Len(t, dc.Artifacts, 1)
	require.Empty(t, dc.Artifacts[0].RemoteSources)
}