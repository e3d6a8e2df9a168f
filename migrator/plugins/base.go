package plugins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

// base carries the helpers every family implementation shares.
type base struct {
	Deps
}

// contentRow builds the side-table skeleton for one legacy unit.
func contentRow(typeID string, unit legacy.Unit) database.Pulp2Content {
	return database.Pulp2Content{
		Pulp2ID:            unit.ID(),
		Pulp2ContentTypeID: typeID,
		Pulp2LastUpdated:   unit.LastUpdated(),
		Pulp2StoragePath:   unit.StoragePath(),
		Downloaded:         unit.Downloaded(),
	}
}

// remoteSources resolves the lazy catalog entries of one unit to the
// remotes derived from their importers. On-demand content whose
// importer has no migrated remote cannot be represented; such units are
// reported not ok so the caller skips them without failing the run.
func (b *base) remoteSources(ctx context.Context, pc database.Pulp2Content) ([]pipeline.RemoteSource, bool, error) {
	entries, err := b.LazyCatalogs.ListByUnitID(ctx, pc.Pulp2ID)
	if err != nil {
		return nil, false, err
	}
	var sources []pipeline.RemoteSource
	for _, entry := range entries {
		importer, err := b.Importers.FindByObjectID(ctx, entry.Pulp2ImporterID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if importer.Pulp3RemoteID == nil {
			continue
		}
		sources = append(sources, pipeline.RemoteSource{
			RemoteID: *importer.Pulp3RemoteID,
			URL:      entry.Pulp2URL,
		})
	}
	if !pc.Downloaded && len(sources) == 0 {
		slog.Warn("skipping on-demand unit with no migrated importer",
			slog.String("type", pc.Pulp2ContentTypeID), slog.String("pulp2_id", pc.Pulp2ID))
		return nil, false, nil
	}
	return sources, true, nil
}

// migrateImporter is the common remote derivation: feed, ssl knobs and
// proxy come straight out of the legacy config. Importers without a
// feed (upload-only repos) produce no remote.
func (b *base) migrateImporter(ctx context.Context, importer *database.Pulp2Importer, pulpType string) (*database.Remote, error) {
	feed, _ := importer.Pulp2Config["feed"].(string)
	if feed == "" {
		return nil, nil
	}
	if importer.Pulp2Repository == nil {
		return nil, fmt.Errorf("importer %s has no repository loaded", importer.Pulp2ObjectID)
	}

	remote := &database.Remote{
		Name:          importer.Pulp2Repository.Pulp2RepoID,
		PulpType:      pulpType,
		URL:           feed,
		Policy:        downloadPolicy(importer.Pulp2Config),
		TLSValidation: configBool(importer.Pulp2Config, "ssl_validation", true),
	}
	if proxyHost, _ := importer.Pulp2Config["proxy_host"].(string); proxyHost != "" {
		remote.ProxyURL = proxyHost
		if port, ok := importer.Pulp2Config["proxy_port"]; ok {
			remote.ProxyURL = fmt.Sprintf("%s:%v", proxyHost, port)
		}
	}
	remote.Username, _ = importer.Pulp2Config["basic_auth_username"].(string)
	remote.Password, _ = importer.Pulp2Config["basic_auth_password"].(string)

	return b.Remotes.Upsert(ctx, remote)
}

// downloadPolicy maps the legacy policy names onto the target ones.
// background has no target equivalent and becomes on_demand.
func downloadPolicy(cfg map[string]interface{}) string {
	policy, _ := cfg["download_policy"].(string)
	switch policy {
	case "on_demand", "background":
		return "on_demand"
	default:
		return "immediate"
	}
}

func configBool(cfg map[string]interface{}, key string, fallback bool) bool {
	v, ok := cfg[key].(bool)
	if !ok {
		return fallback
	}
	return v
}

func configStr(cfg map[string]interface{}, key string) string {
	s, _ := cfg[key].(string)
	return s
}

// basePath derives the serving path of a distributor, preferring the
// explicit relative_url and falling back to the repo name.
func basePath(distributor *database.Pulp2Distributor, repoName string) string {
	if rel := configStr(distributor.Pulp2Config, "relative_url"); rel != "" {
		return strings.Trim(rel, "/")
	}
	return repoName
}

// distributionName keeps distribution names unique per legacy
// distributor even when several serve one repo.
func distributionName(distributor *database.Pulp2Distributor, repoName string) string {
	if distributor.Pulp2ID != "" && distributor.Pulp2ID != repoName {
		return fmt.Sprintf("%s-%s", repoName, distributor.Pulp2ID)
	}
	return repoName
}

// migrateDistributor is the common publish-side materialisation for
// families with publications: an incomplete publication for the version
// is completed or created, and the distribution re-pointed at it.
func (b *base) migrateDistributor(ctx context.Context, distributor *database.Pulp2Distributor, repo *database.Repository, version *database.RepositoryVersion, pulpType, checksumType string) (*database.Publication, *database.Distribution, error) {
	publication, err := b.Publications.FindForVersion(ctx, version.ID, checksumType)
	if errors.Is(err, sql.ErrNoRows) {
		publication, err = b.Publications.Create(ctx, &database.Publication{
			PulpType:            pulpType,
			RepositoryVersionID: version.ID,
			ChecksumType:        checksumType,
			Complete:            true,
		})
	}
	if err != nil {
		return nil, nil, err
	}

	distribution, err := b.Distributions.Upsert(ctx, &database.Distribution{
		Name:          distributionName(distributor, repo.Name),
		PulpType:      pulpType,
		BasePath:      basePath(distributor, repo.Name),
		PublicationID: &publication.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	return publication, distribution, nil
}
