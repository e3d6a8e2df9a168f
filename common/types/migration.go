package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MigrationTaskStatus tracks the lifecycle of one migrate/reset run.
type MigrationTaskStatus string

const (
	MigrationTaskQueued   MigrationTaskStatus = "queued"
	MigrationTaskRunning  MigrationTaskStatus = "running"
	MigrationTaskFinished MigrationTaskStatus = "finished"
	MigrationTaskFailed   MigrationTaskStatus = "failed"
	MigrationTaskCanceled MigrationTaskStatus = "canceled"
)

// RepoSetupStatus is the per-relation status machine that drives
// incremental reruns. A relation seen in the previous plan starts a run
// as "old"; if the current plan declares it again it flips to
// "up_to_date", and relations first seen in the current plan are "new".
type RepoSetupStatus string

const (
	RepoSetupOld      RepoSetupStatus = "old"
	RepoSetupUpToDate RepoSetupStatus = "up_to_date"
	RepoSetupNew      RepoSetupStatus = "new"
)

// RepoSetupResourceType discriminates what kind of pulp2 resource a
// repo_setups row records.
type RepoSetupResourceType string

const (
	ResourceImporter    RepoSetupResourceType = "importer"
	ResourceDistributor RepoSetupResourceType = "distributor"
)

// MigrationPlanSpec is the user submitted migration plan document.
type MigrationPlanSpec struct {
	Plugins []PluginSpec `json:"plugins"`
}

type PluginSpec struct {
	Type         string           `json:"type"`
	Repositories []RepositorySpec `json:"repositories,omitempty"`
}

type RepositorySpec struct {
	Name                      string                  `json:"name"`
	Pulp2ImporterRepositoryID string                  `json:"pulp2_importer_repository_id,omitempty"`
	RepositoryVersions        []RepositoryVersionSpec `json:"repository_versions"`
}

type RepositoryVersionSpec struct {
	Pulp2RepositoryID             string   `json:"pulp2_repository_id"`
	Pulp2DistributorRepositoryIDs []string `json:"pulp2_distributor_repository_ids,omitempty"`
}

// ParseMigrationPlan decodes a plan document, rejecting unknown keys at
// any level. Schema validation beyond key strictness is the submitter's
// responsibility.
func ParseMigrationPlan(data []byte) (*MigrationPlanSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var spec MigrationPlanSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing migration plan: %w", err)
	}
	if len(spec.Plugins) == 0 {
		return nil, fmt.Errorf("migration plan lists no plugins")
	}
	for _, p := range spec.Plugins {
		if p.Type == "" {
			return nil, fmt.Errorf("migration plan contains a plugin without a type")
		}
	}
	return &spec, nil
}

// IsSimple reports whether the plugin entry fabricates one target
// repository per pulp2 repository instead of declaring them explicitly.
func (p PluginSpec) IsSimple() bool {
	return len(p.Repositories) == 0
}

// MissingResources reports plan entries that no longer exist in pulp2.
type MissingResources struct {
	Repositories []string `json:"repositories,omitempty"`
	Importers    []string `json:"importers,omitempty"`
	Distributors []string `json:"distributors,omitempty"`
}

func (m MissingResources) Empty() bool {
	return len(m.Repositories) == 0 && len(m.Importers) == 0 && len(m.Distributors) == 0
}
