package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dshills/conductor/internal/config"
	"github.com/dshills/conductor/internal/event"
	"github.com/dshills/conductor/internal/event/store/mongostore"
	"github.com/dshills/conductor/internal/event/store/redisstore"
	"github.com/dshills/conductor/internal/event/store/sqlitestore"
)

const (
	connectTimeout         = 5 * time.Second
	defaultCleanupInterval = time.Minute
)

// openStore connects the configured persistence backend. It returns nil
// for the "none" backend.
func openStore(ctx context.Context, p config.PersistenceConfig) (event.Store, error) {
	switch p.Backend {
	case config.BackendNone, "":
		return nil, nil

	case config.BackendMemory:
		return event.NewMemoryStore(p.MemoryLimit), nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     p.Redis.Addr,
			Password: p.Redis.Password,
			DB:       p.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return redisstore.New(redisstore.Options{
			Redis:     rdb,
			Prefix:    p.Redis.Prefix,
			Retention: p.Retention.Std(),
		})

	case config.BackendSQLite:
		s, err := sqlitestore.New(p.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, nil

	case config.BackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(p.Mongo.URI).SetTimeout(p.Mongo.Timeout.Std()))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		s, err := mongostore.New(mongostore.Options{
			Client:     client,
			Database:   p.Mongo.Database,
			Collection: p.Mongo.Collection,
			Timeout:    p.Mongo.Timeout.Std(),
		})
		if err != nil {
			dctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			_ = client.Disconnect(dctx)
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, p.Backend)
}

// cleanupLoop deletes history older than retention every interval until
// ctx is done.
func (app *Application) cleanupLoop(ctx context.Context, retention, interval time.Duration) {
	defer app.wg.Done()
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.cleanup(ctx, retention)
		}
	}
}

func (app *Application) cleanup(ctx context.Context, retention time.Duration) {
	n, err := app.store.Cleanup(ctx, app.now().Add(-retention))
	if err != nil {
		app.logger.Warn(ctx, "event history cleanup failed", "err", err)
		return
	}
	if n > 0 {
		app.logger.Debug(ctx, "event history cleaned", "removed", n)
	}
}
