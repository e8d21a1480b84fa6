package mgo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/threadswap/chat-service/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MaxRetry    int
}

// Manager holds the process-wide mongo connection. Connect retries with
// exponential backoff and jitter and returns only once a ping has
// succeeded; GetDB panics before that so a mis-ordered bootstrap fails
// loudly instead of racing.
type Manager struct {
	mu     sync.RWMutex
	db     *mongo.Database
	client *mongo.Client
}

var globalMgr Manager

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// Connect dials mongo, retrying up to cfg.MaxRetry times before giving up.
func Connect(ctx context.Context, cfg Config) error {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 5
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetry; attempt++ {
		cli, err := mongo.Connect(ctx, opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err = cli.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				globalMgr.mu.Lock()
				globalMgr.client = cli
				globalMgr.db = cli.Database(cfg.Database)
				globalMgr.mu.Unlock()
				logger.Info("mongo connected", zap.String("database", cfg.Database))
				return nil
			}
			_ = cli.Disconnect(context.Background())
		}
		lastErr = err

		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 5)))
		sleep := backoff - jitter/2

		logger.Warn("mongo connect failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", sleep),
			zap.Error(err))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.db == nil {
		panic("mongo not ready: call Connect first")
	}
	return globalMgr.db
}

func Disconnect(ctx context.Context) error {
	globalMgr.mu.Lock()
	defer globalMgr.mu.Unlock()
	if globalMgr.client == nil {
		return nil
	}
	err := globalMgr.client.Disconnect(ctx)
	globalMgr.client = nil
	globalMgr.db = nil
	return err
}
