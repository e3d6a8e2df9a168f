package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_LoadConfig(t *testing.T) {
	t.Run("config env", func(t *testing.T) {
		t.Setenv("PULP_MIGRATOR_INSTANCE_ID", "foo")
		t.Setenv("PULP_MIGRATOR_CONTENT_SLICES", "9")
		cfg, err := LoadConfig()
		require.Nil(t, err)

		require.Equal(t, "foo", cfg.InstanceID)
		require.Equal(t, 9, cfg.Migration.ContentSlices)
		require.Equal(t, "mongodb://localhost:27017", cfg.Pulp2.MongoURI)
	})

	t.Run("config file", func(t *testing.T) {
		SetConfigFile("test.toml")
		defer SetConfigFile("")
		cfg, err := LoadConfig()
		require.Nil(t, err)

		require.Equal(t, "bar", cfg.InstanceID)
		require.Equal(t, "mongodb://legacy:27017", cfg.Pulp2.MongoURI)
		require.Equal(t, 12, cfg.Migration.ContentSlices)
		// untouched fields keep their defaults
		require.Equal(t, 1000, cfg.Migration.ContentBatchSize)
	})

	t.Run("file and env", func(t *testing.T) {
		SetConfigFile("test.toml")
		defer SetConfigFile("")
		t.Setenv("PULP_MIGRATOR_INSTANCE_ID", "foobar")
		cfg, err := LoadConfig()
		require.Nil(t, err)

		require.Equal(t, "foobar", cfg.InstanceID)
		require.Equal(t, 12, cfg.Migration.ContentSlices)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.Nil(t, err)

		require.Equal(t, "pg", cfg.Database.Driver)
		require.Equal(t, "fs", cfg.Storage.Backend)
		require.Equal(t, 4, cfg.Migration.RepoWorkers)
		require.False(t, cfg.Migration.SkipCorrupted)
	})
}
