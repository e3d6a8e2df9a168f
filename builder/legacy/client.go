package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/time/rate"

	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/common/errorx"
)

// Client reads the pulp2 document database. All access is read-only;
// the connect path retries with exponential backoff, data reads do not
// retry and surface the raw failure to the caller.
type Client struct {
	db      *mongo.Database
	limiter *rate.Limiter
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.Pulp2.MongoURI == "" || cfg.Pulp2.MongoDatabase == "" {
		return nil, errorx.Configuration(
			fmt.Errorf("pulp2 mongo uri and database are both required"),
			errorx.Ctx().Set("uri", cfg.Pulp2.MongoURI).Set("database", cfg.Pulp2.MongoDatabase),
		)
	}

	var client *mongo.Client
	err := retry.Do(
		func() error {
			var err error
			client, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.Pulp2.MongoURI))
			if err != nil {
				return err
			}
			return client.Ping(ctx, readpref.Primary())
		},
		retry.Context(ctx),
		retry.Delay(time.Second),
		retry.MaxDelay(32*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Attempts(10),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("pulp2 database not reachable, retrying",
				slog.Any("attempt", n), slog.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to pulp2 database: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.Pulp2.ReadRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Pulp2.ReadRateLimit), cfg.Pulp2.ReadRateLimit)
	}
	return &Client{
		db:      client.Database(cfg.Pulp2.MongoDatabase),
		limiter: limiter,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Client().Disconnect(ctx)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
