package legacy

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoDocuments re-exports the driver sentinel so callers match
// missing documents without importing the driver.
var ErrNoDocuments = mongo.ErrNoDocuments

// Reader is the read surface of the pulp2 document database the engine
// works against. Client implements it against mongo; tests substitute
// in-memory fixtures.
type Reader interface {
	ListUnitIDs(ctx context.Context, collection string) ([]string, error)
	ListUnitsSince(ctx context.Context, collection string, since int64) ([]Unit, error)
	FindUnits(ctx context.Context, collection string, ids []string) ([]Unit, error)
	ListRepositories(ctx context.Context, repoType string) ([]Repository, error)
	FindRepository(ctx context.Context, repoID string) (*Repository, error)
	ImporterForRepo(ctx context.Context, repoID string, typeIDs []string) (*Importer, error)
	DistributorsForRepo(ctx context.Context, repoID string, typeIDs []string) ([]Distributor, error)
	ListRepoContentUnits(ctx context.Context, repoID string, unitTypeIDs []string) ([]RepoContentUnit, error)
	ListLazyCatalogEntries(ctx context.Context, unitTypeIDs []string) ([]LazyCatalogEntry, error)
}

var _ Reader = (*Client)(nil)

const (
	collRepos            = "repos"
	collImporters        = "repo_importers"
	collDistributors     = "repo_distributors"
	collRepoContentUnits = "repo_content_units"
	collLazyCatalog      = "lazy_content_catalog"
)

// ListUnitIDs returns every unit id present in the collection, used to
// prune side-table rows for units deleted from pulp2 between runs.
func (c *Client) ListUnitIDs(ctx context.Context, collection string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collection).Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("listing %s ids: %w", collection, err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// ListUnitsSince returns units with _last_updated >= since in ascending
// _last_updated order, so a crashed run resumes cleanly from a single
// high-water mark.
func (c *Client) ListUnitsSince(ctx context.Context, collection string, since int64) ([]Unit, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collection).Find(ctx,
		bson.M{"_last_updated": bson.M{"$gte": since}},
		options.Find().SetSort(bson.D{{Key: "_last_updated", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing %s since %d: %w", collection, since, err)
	}
	defer cur.Close(ctx)

	var units []Unit
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		units = append(units, Unit{Doc: doc})
	}
	return units, cur.Err()
}

// FindUnits returns the units with the given ids.
func (c *Client) FindUnits(ctx context.Context, collection string, ids []string) ([]Unit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("finding %s units: %w", collection, err)
	}
	defer cur.Close(ctx)

	var units []Unit
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		units = append(units, Unit{Doc: doc})
	}
	return units, cur.Err()
}

// ListRepositories returns repositories of one family, identified by
// the _repo-type note.
func (c *Client) ListRepositories(ctx context.Context, repoType string) ([]Repository, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collRepos).Find(ctx,
		bson.M{"notes._repo-type": repoType},
		options.Find().SetSort(bson.D{{Key: "repo_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing repositories of type %s: %w", repoType, err)
	}
	defer cur.Close(ctx)

	var repos []Repository
	if err := cur.All(ctx, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Client) FindRepository(ctx context.Context, repoID string) (*Repository, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var repo Repository
	err := c.db.Collection(collRepos).FindOne(ctx, bson.M{"repo_id": repoID}).Decode(&repo)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// ImporterForRepo returns the repo's importer of one of the given
// types, or nil when the repo has none.
func (c *Client) ImporterForRepo(ctx context.Context, repoID string, typeIDs []string) (*Importer, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var importer Importer
	err := c.db.Collection(collImporters).FindOne(ctx, bson.M{
		"repo_id":          repoID,
		"importer_type_id": bson.M{"$in": typeIDs},
	}).Decode(&importer)
	if err != nil {
		return nil, err
	}
	return &importer, nil
}

func (c *Client) DistributorsForRepo(ctx context.Context, repoID string, typeIDs []string) ([]Distributor, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collDistributors).Find(ctx, bson.M{
		"repo_id":             repoID,
		"distributor_type_id": bson.M{"$in": typeIDs},
	}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing distributors of repo %s: %w", repoID, err)
	}
	defer cur.Close(ctx)

	var distributors []Distributor
	if err := cur.All(ctx, &distributors); err != nil {
		return nil, err
	}
	return distributors, nil
}

// ListRepoContentUnits returns the membership rows of one repository
// restricted to the given unit types.
func (c *Client) ListRepoContentUnits(ctx context.Context, repoID string, unitTypeIDs []string) ([]RepoContentUnit, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collRepoContentUnits).Find(ctx, bson.M{
		"repo_id":      repoID,
		"unit_type_id": bson.M{"$in": unitTypeIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("listing content units of repo %s: %w", repoID, err)
	}
	defer cur.Close(ctx)

	var units []RepoContentUnit
	if err := cur.All(ctx, &units); err != nil {
		return nil, err
	}
	return units, nil
}

// ListLazyCatalogEntries returns every catalog entry for the given
// unit types. There is no change detection on the catalog; callers
// re-insert with ignore-on-conflict each run.
func (c *Client) ListLazyCatalogEntries(ctx context.Context, unitTypeIDs []string) ([]LazyCatalogEntry, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	cur, err := c.db.Collection(collLazyCatalog).Find(ctx, bson.M{
		"unit_type_id": bson.M{"$in": unitTypeIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("listing lazy catalog entries: %w", err)
	}
	defer cur.Close(ctx)

	var entries []LazyCatalogEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
