package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"opencsg.com/pulp-migrator/builder/legacy"
)

func TestParseNevra(t *testing.T) {
	cases := []struct {
		in   string
		want nevra
		ok   bool
	}{
		{
			in:   "perl-DBI-0:1.627-4.module+el8+2539+ed709318.x86_64",
			want: nevra{name: "perl-DBI", epoch: "0", version: "1.627", release: "4.module+el8+2539+ed709318", arch: "x86_64"},
			ok:   true,
		},
		{
			// epochless artifact defaults to epoch 0
			in:   "bash-5.1.8-1.el9.aarch64",
			want: nevra{name: "bash", epoch: "0", version: "5.1.8", release: "1.el9", arch: "aarch64"},
			ok:   true,
		},
		{
			// trailing .rpm is tolerated
			in:   "tree-1.8.0-10.fc34.src.rpm",
			want: nevra{name: "tree", epoch: "0", version: "1.8.0", release: "10.fc34", arch: "src"},
			ok:   true,
		},
		{in: "not-a-nevra", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseNevra(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			require.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestFilterPkglist(t *testing.T) {
	pkglist := []map[string]interface{}{
		{
			"name": "collection-0",
			"packages": []interface{}{
				map[string]interface{}{"name": "bash", "epoch": "0", "version": "5.1.8", "release": "1.el9", "arch": "x86_64"},
				map[string]interface{}{"name": "gone", "epoch": "0", "version": "1.0", "release": "1", "arch": "noarch"},
			},
		},
		{
			"name": "collection-1",
			"packages": []interface{}{
				map[string]interface{}{"name": "gone", "epoch": "0", "version": "2.0", "release": "1", "arch": "noarch"},
			},
		},
	}
	present := map[string]bool{
		nevraKey("bash", "0", "5.1.8", "1.el9", "x86_64"): true,
	}

	filtered := filterPkglist(pkglist, present)
	// the fully absent collection is dropped entirely
	require.Len(t, filtered, 1)
	packages, _ := filtered[0]["packages"].([]interface{})
	require.Len(t, packages, 1)
	pkg := packages[0].(map[string]interface{})
	require.Equal(t, "bash", pkg["name"])
}

func TestRpmPreMigrateUnitFansErrataPerRepo(t *testing.T) {
	plugin := &rpmPlugin{}
	unit := legacy.Unit{Doc: bson.M{
		"_id": "err-1", "_last_updated": int64(100), "errata_id": "RHSA-2024:0001",
	}}

	rows, err := plugin.PreMigrateUnit(context.TODO(), "erratum", unit, []int64{7, 9})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(7), *rows[0].Pulp2RepoID)
	require.Equal(t, int64(9), *rows[1].Pulp2RepoID)
	for _, row := range rows {
		require.Equal(t, "err-1", row.Pulp2ID)
		require.Equal(t, "erratum", row.Pulp2ContentTypeID)
	}

	// packages are not fanned out
	rows, err = plugin.PreMigrateUnit(context.TODO(), "rpm", unit, []int64{7, 9})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].Pulp2RepoID)
}
