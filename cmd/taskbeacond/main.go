package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/taskbeacon/taskbeacon/pkg/config"
	"github.com/taskbeacon/taskbeacon/pkg/eventbus"
	"github.com/taskbeacon/taskbeacon/pkg/httpserver"
	"github.com/taskbeacon/taskbeacon/pkg/logger"
	"github.com/taskbeacon/taskbeacon/pkg/notify"
	"github.com/taskbeacon/taskbeacon/pkg/stream"
)

type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`
}

type storeConfig struct {
	TTL             time.Duration `env:"NOTIFY_TTL" envDefault:"24h"`
	MaxCount        int           `env:"NOTIFY_MAX_COUNT" envDefault:"100"`
	SaveDebounce    time.Duration `env:"NOTIFY_SAVE_DEBOUNCE" envDefault:"50ms"`
	SnapshotPath    string        `env:"NOTIFY_SNAPSHOT_PATH" envDefault:"data/notifications.json"`
	RedisURL        string        `env:"NOTIFY_REDIS_URL"` // when set, snapshots go to Redis instead of disk
	CleanupSchedule string        `env:"NOTIFY_CLEANUP_SCHEDULE" envDefault:"@every 10m"`
}

type streamConfig struct {
	GlobalLimit       int           `env:"STREAM_GLOBAL_LIMIT" envDefault:"100"`
	PerSourceLimit    int           `env:"STREAM_PER_SOURCE_LIMIT" envDefault:"5"`
	KeepaliveInterval time.Duration `env:"STREAM_KEEPALIVE_INTERVAL" envDefault:"30s"`
}

func main() {
	var (
		appCfg    appConfig
		storeCfg  storeConfig
		streamCfg streamConfig
		httpCfg   httpserver.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&storeCfg)
	config.MustLoad(&streamCfg)
	config.MustLoad(&httpCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, "taskbeacond"))
	logger.SetAsDefault(log)

	ctx := context.Background()

	storage, closeStorage, err := newStorage(ctx, storeCfg)
	if err != nil {
		log.Error("failed to initialize storage", logger.Error(err))
		os.Exit(1)
	}
	defer closeStorage()

	bus := eventbus.New(eventbus.WithLogger(log))

	store := notify.New(storage,
		notify.WithTTL(storeCfg.TTL),
		notify.WithMaxCount(storeCfg.MaxCount),
		notify.WithDebounce(storeCfg.SaveDebounce),
		notify.WithPublisher(bus),
		notify.WithLogger(log),
	)
	if err := store.Load(ctx); err != nil {
		log.Error("failed to load notification snapshot", logger.Error(err))
		os.Exit(1)
	}

	manager := stream.NewManager(bus, store,
		stream.WithGlobalLimit(streamCfg.GlobalLimit),
		stream.WithPerSourceLimit(streamCfg.PerSourceLimit),
		stream.WithKeepaliveInterval(streamCfg.KeepaliveInterval),
		stream.WithManagerLogger(log),
	)

	sched := cron.New()
	if _, err := sched.AddFunc(storeCfg.CleanupSchedule, func() {
		removed, err := store.Cleanup(context.Background())
		if err != nil {
			log.Error("cleanup failed",
				logger.Component("notify.store"),
				logger.Error(err),
			)
			return
		}
		if removed > 0 {
			log.Info("cleanup removed stale notifications",
				logger.Component("notify.store"),
				logger.Count(removed),
			)
		}
	}); err != nil {
		log.Error("invalid cleanup schedule",
			logger.Error(err),
		)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	runErr := srv.Run(ctx, newRouter(store, manager, bus, log))

	// Unblock streaming handlers, then flush dirty state to disk.
	manager.Close()
	if err := store.Close(context.Background()); err != nil {
		log.Error("final snapshot save failed", logger.Error(err))
	}

	if runErr != nil {
		log.Error("http server failed", logger.Error(runErr))
		os.Exit(1)
	}
}

// newStorage picks the snapshot backend: Redis when a URL is configured,
// local disk otherwise.
func newStorage(ctx context.Context, cfg storeConfig) (notify.Storage, func(), error) {
	if cfg.RedisURL == "" {
		return notify.NewFileStorage(cfg.SnapshotPath), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return notify.NewRedisStorage(client), func() { _ = client.Close() }, nil
}
