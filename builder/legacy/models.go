package legacy

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Unit is one legacy content document. Outside the handful of fields
// every unit carries, the document is kept opaque: unknown keys are
// data, not schema violations.
type Unit struct {
	Doc bson.M
}

func (u Unit) ID() string {
	return u.Str("_id")
}

func (u Unit) LastUpdated() int64 {
	return u.Int64("_last_updated")
}

func (u Unit) StoragePath() string {
	return u.Str("_storage_path")
}

// Downloaded defaults to true: legacy units predating the on-demand
// feature have no downloaded field at all.
func (u Unit) Downloaded() bool {
	v, ok := u.Doc["downloaded"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

func (u Unit) Str(key string) string {
	s, _ := u.Doc[key].(string)
	return s
}

func (u Unit) Int64(key string) int64 {
	switch v := u.Doc[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (u Unit) Bool(key string) bool {
	b, _ := u.Doc[key].(bool)
	return b
}

func (u Unit) StrList(key string) []string {
	raw, ok := u.Doc[key].(bson.A)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (u Unit) MapList(key string) []map[string]interface{} {
	raw, ok := u.Doc[key].(bson.A)
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(bson.M); ok {
			out = append(out, map[string]interface{}(m))
		}
	}
	return out
}

// Repository is one legacy repository document.
type Repository struct {
	ObjectID        string     `bson:"_id"`
	RepoID          string     `bson:"repo_id"`
	DisplayName     string     `bson:"display_name"`
	Notes           bson.M     `bson:"notes"`
	LastUnitAdded   *time.Time `bson:"last_unit_added"`
	LastUnitRemoved *time.Time `bson:"last_unit_removed"`
}

// RepoType reads the repo family out of the notes blob.
func (r Repository) RepoType() string {
	t, _ := r.Notes["_repo-type"].(string)
	return t
}

// Importer is one legacy fetch configuration document.
type Importer struct {
	ObjectID       string `bson:"_id"`
	RepoID         string `bson:"repo_id"`
	ImporterTypeID string `bson:"importer_type_id"`
	Config         bson.M `bson:"config"`
	LastUpdated    int64  `bson:"last_updated"`
}

// FeedURL returns the importer feed, empty when the importer has none
// (uploads-only repos).
func (i Importer) FeedURL() string {
	feed, _ := i.Config["feed"].(string)
	return feed
}

// Distributor is one legacy publish configuration document.
type Distributor struct {
	ObjectID          string `bson:"_id"`
	ID                string `bson:"id"`
	RepoID            string `bson:"repo_id"`
	DistributorTypeID string `bson:"distributor_type_id"`
	Config            bson.M `bson:"config"`
	AutoPublish       bool   `bson:"auto_publish"`
	LastUpdated       int64  `bson:"last_updated"`
}

// RepoContentUnit is one membership row of a legacy repository.
type RepoContentUnit struct {
	RepoID     string `bson:"repo_id"`
	UnitID     string `bson:"unit_id"`
	UnitTypeID string `bson:"unit_type_id"`
}

// LazyCatalogEntry tells where on-demand bytes can be fetched from.
type LazyCatalogEntry struct {
	ImporterID  string `bson:"importer_id"`
	UnitID      string `bson:"unit_id"`
	UnitTypeID  string `bson:"unit_type_id"`
	StoragePath string `bson:"path"`
	URL         string `bson:"url"`
	Revision    int    `bson:"revision"`
}
