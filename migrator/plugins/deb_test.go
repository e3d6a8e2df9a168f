package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"opencsg.com/pulp-migrator/builder/legacy"
)

func TestDebPreMigrateUnitComponentFanOut(t *testing.T) {
	plugin := &debPlugin{}
	unit := legacy.Unit{Doc: bson.M{
		"_id":           "comp-1",
		"_last_updated": int64(42),
		"name":          "main",
		"distribution":  "stable",
		"packages":      bson.A{"aaa111", "bbb222"},
		"architectures": bson.A{"amd64"},
	}}

	rows, err := plugin.PreMigrateUnit(context.TODO(), "deb_component", unit, nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	subids := make([]string, 0, len(rows))
	for _, row := range rows {
		require.Equal(t, "comp-1", row.Pulp2ID)
		require.Equal(t, "deb_component", row.Pulp2ContentTypeID)
		require.Equal(t, int64(42), row.Pulp2LastUpdated)
		subids = append(subids, row.Pulp2Subid)
	}
	require.ElementsMatch(t, []string{"", "pkg:aaa111", "pkg:bbb222", "arch:amd64"}, subids)
}

func TestDebPreMigrateUnitPlainTypes(t *testing.T) {
	plugin := &debPlugin{}
	unit := legacy.Unit{Doc: bson.M{"_id": "pkg-1", "downloaded": false}}

	rows, err := plugin.PreMigrateUnit(context.TODO(), "deb", unit, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].Pulp2Subid)
	require.False(t, rows[0].Downloaded)
}
