package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"opencsg.com/pulp-migrator/common/errorx"
)

type RedisClient interface {
	Set(ctx context.Context, key string, value string) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	// RunWhileLocked runs fn while holding a distributed lock on the
	// resource, failing immediately when the lock is taken.
	RunWhileLocked(ctx context.Context, resourceName string, expiration time.Duration, fn func(ctx context.Context) error) error
	// WaitLockToRun blocks until the lock can be acquired, then runs fn.
	WaitLockToRun(ctx context.Context, resourceName string, expiration time.Duration, fn func(ctx context.Context) error) error
}

type RedisConfig struct {
	Addr     string `comment:"Redis address, e.g. localhost:6379"`
	Username string `comment:"optional, Redis username"`
	Password string `comment:"optional, Redis password"`
	DB       int    `comment:"optional, Redis DB"`
}

type Cache struct {
	core *redis.Client
	sync *redsync.Redsync
}

func NewCache(ctx context.Context, cfg RedisConfig) (cache RedisClient, err error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	err = client.Ping(ctx).Err()
	if err != nil {
		err = fmt.Errorf("pinging Redis: %w", err)
		return
	}
	cache = &Cache{
		core: client,
		sync: redsync.New(goredis.NewPool(client)),
	}
	return
}

func (c *Cache) Set(ctx context.Context, key string, value string) error {
	return c.core.Set(ctx, key, value, 0).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.core.Get(ctx, key).Result()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	return c.core.Del(ctx, keys...).Err()
}

func (c *Cache) RunWhileLocked(ctx context.Context, resourceName string, expiration time.Duration, fn func(ctx context.Context) error) error {
	mutex := c.sync.NewMutex(resourceName,
		redsync.WithExpiry(expiration),
		redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return errorx.ReservationBusy(resourceName)
		}
		return fmt.Errorf("acquiring lock %s: %w", resourceName, err)
	}
	return c.runLocked(ctx, mutex, expiration, fn)
}

func (c *Cache) WaitLockToRun(ctx context.Context, resourceName string, expiration time.Duration, fn func(ctx context.Context) error) error {
	mutex := c.sync.NewMutex(resourceName,
		redsync.WithExpiry(expiration),
		redsync.WithTries(64),
		redsync.WithRetryDelay(time.Second))
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquiring lock %s: %w", resourceName, err)
	}
	return c.runLocked(ctx, mutex, expiration, fn)
}

func (c *Cache) runLocked(ctx context.Context, mutex *redsync.Mutex, expiration time.Duration, fn func(ctx context.Context) error) error {
	done := make(chan struct{})
	defer close(done)
	// keep the lock alive for long runs
	go func() {
		ticker := time.NewTicker(expiration / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, _ = mutex.ExtendContext(ctx)
			}
		}
	}()

	err := fn(ctx)
	if _, unlockErr := mutex.UnlockContext(context.WithoutCancel(ctx)); unlockErr != nil && err == nil {
		err = fmt.Errorf("releasing lock: %w", unlockErr)
	}
	return err
}
