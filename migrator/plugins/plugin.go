package plugins

import (
	"context"
	"fmt"
	"sort"

	"opencsg.com/pulp-migrator/builder/legacy"
	"opencsg.com/pulp-migrator/builder/store/database"
	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/migrator/pipeline"
)

// ContentType describes one legacy unit type a family migrates.
type ContentType struct {
	// legacy unit_type_id and the mongo collection holding the units
	ID         string
	Collection string
	// target pulp_type the units become
	PulpType string
	// mutable units are re-premigrated from scratch when they change
	Mutable bool
	// lazy units may exist without downloaded bytes
	Lazy bool
	// per-repo units get one side-table row per owning repository
	PerRepo bool
}

// Plugin is the family contract: everything the engine needs to know
// about one content family lives behind this interface, the engine
// itself is family-agnostic.
type Plugin interface {
	Name() string
	// RepoType is the value of the _repo-type note identifying the
	// family's legacy repositories.
	RepoType() string
	ImporterTypes() []string
	DistributorTypes() []string
	// ContentTypes in pre-migration order: referenced types before
	// referencing ones.
	ContentTypes() []ContentType
	// PulpTypes lists every target pulp_type the family creates, used
	// by teardown.
	PulpTypes() []string
	// FamilyType is the pulp_type target repositories, remotes and
	// distributions of the family carry.
	FamilyType() string

	// PreMigrateUnit fans one legacy unit out into side-table rows.
	// owners lists side-table repository ids holding the unit; only
	// per-repo types use it.
	PreMigrateUnit(ctx context.Context, typeID string, unit legacy.Unit, owners []int64) ([]database.Pulp2Content, error)
	// SaveDetail persists the family detail row for one resolved
	// side-table row.
	SaveDetail(ctx context.Context, row database.Pulp2Content, unit legacy.Unit) error

	// Resolve turns one side-table row into pipeline input.
	Resolve(ctx context.Context, pc database.Pulp2Content) (*pipeline.DeclarativeContent, error)

	MigrateImporter(ctx context.Context, importer *database.Pulp2Importer) (*database.Remote, error)
	// MigrateDistributor materialises the serving side of one
	// repo/distributor pair against the given repository version.
	MigrateDistributor(ctx context.Context, distributor *database.Pulp2Distributor, repo *database.Repository, version *database.RepositoryVersion) (*database.Publication, *database.Distribution, error)

	// ExtraStages returns family stages appended after the save stage,
	// e.g. inter-content linking.
	ExtraStages() []pipeline.Stage

	// PurgeDetails drops the family's detail rows during a reset.
	PurgeDetails(ctx context.Context) error
}

// Deps bundles what family implementations work with.
type Deps struct {
	Config *config.Config
	Legacy legacy.Reader

	P2Contents    *database.Pulp2ContentStore
	P2RepoContent *database.Pulp2RepoContentStore
	LazyCatalogs  *database.Pulp2LazyCatalogStore
	Importers     *database.Pulp2ImporterStore

	Contents       *database.ContentStore
	Artifacts      *database.ArtifactStore
	Remotes        *database.RemoteStore
	Publications   *database.PublicationStore
	Distributions  *database.DistributionStore
	Repositories   *database.RepositoryStore
	FileContents   *database.FileContentStore
	DockerContents *database.DockerContentStore
	DockerLinks    *database.DockerLinkStore
	DebContents    *database.DebContentStore
	RpmContents    *database.RpmContentStore
	RpmLinks       *database.RpmLinkStore
}

func NewDeps(cfg *config.Config, legacyClient legacy.Reader, db *database.DB) Deps {
	return Deps{
		Config:         cfg,
		Legacy:         legacyClient,
		P2Contents:     database.NewPulp2ContentStoreWithDB(db),
		P2RepoContent:  database.NewPulp2RepoContentStoreWithDB(db),
		LazyCatalogs:   database.NewPulp2LazyCatalogStoreWithDB(db),
		Importers:      database.NewPulp2ImporterStoreWithDB(db),
		Contents:       database.NewContentStoreWithDB(db),
		Artifacts:      database.NewArtifactStoreWithDB(db),
		Remotes:        database.NewRemoteStoreWithDB(db),
		Publications:   database.NewPublicationStoreWithDB(db),
		Distributions:  database.NewDistributionStoreWithDB(db),
		Repositories:   database.NewRepositoryStoreWithDB(db),
		FileContents:   database.NewFileContentStoreWithDB(db),
		DockerContents: database.NewDockerContentStoreWithDB(db),
		DockerLinks:    database.NewDockerLinkStoreWithDB(db),
		DebContents:    database.NewDebContentStoreWithDB(db),
		RpmContents:    database.NewRpmContentStoreWithDB(db),
		RpmLinks:       database.NewRpmLinkStoreWithDB(db),
	}
}

var registry = map[string]func(Deps) Plugin{}

func register(name string, build func(Deps) Plugin) {
	registry[name] = build
}

// New builds the plugin for one family name from the plan.
func New(name string, deps Deps) (Plugin, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown plugin type: %s", name)
	}
	return build(deps), nil
}

// Names lists registered families in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
