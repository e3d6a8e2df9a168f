package pipeline

import (
	"context"

	"opencsg.com/pulp-migrator/builder/store/database"
)

// RemoteSource is one upstream location on-demand bytes can be fetched
// from later.
type RemoteSource struct {
	RemoteID int64
	URL      string
	Size     int64
	Sha256   string
}

// DeclarativeArtifact describes one file of an in-flight content unit.
// Downloaded artifacts carry a source path on the legacy filesystem;
// on-demand ones carry remote sources instead.
type DeclarativeArtifact struct {
	SourcePath   string
	Sha256       string
	Size         int64
	RelativePath string
	Downloaded   bool

	RemoteSources []RemoteSource

	// filled by the artifact stage
	StoredPath string
	ArtifactID *int64
}

// DeclarativeContent is one content unit moving through the pipeline,
// carrying its side-table origin, the target row to persist and the
// artifacts it owns.
type DeclarativeContent struct {
	Pulp2Content *database.Pulp2Content
	Content      *database.Content
	Artifacts    []DeclarativeArtifact
}

// Stage is one step of the content pipeline. A stage consumes items
// from in, does its work and forwards them on out. Stages must forward
// every item they do not drop, and must not close out; the runner does.
type Stage interface {
	Name() string
	Run(ctx context.Context, in <-chan *DeclarativeContent, out chan<- *DeclarativeContent) error
}
