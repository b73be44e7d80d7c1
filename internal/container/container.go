package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"catalog/repricer/internal/api"
	"catalog/repricer/internal/config"
	"catalog/repricer/internal/queue"
	"catalog/repricer/internal/repository"
	"catalog/repricer/internal/service"
	"catalog/repricer/internal/source"
	"catalog/repricer/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Settings     *config.Settings
	Repository   repository.ResultRepository
	Queue        queue.Queue
	StateManager state.StateManager
	Fetcher      source.Fetcher

	Service  *service.Service
	Exporter *service.Exporter
	Server   *http.Server

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	container.Settings = settings
	log.Infof("⚙️ Pricing settings loaded from %s", cfg.SettingsFile)

	// Initialize repository
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	container.db = db

	resultRepo := repository.NewResultRepository(db)
	if err := resultRepo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	container.Repository = resultRepo

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	container.redis = rdb

	// Test connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Redis)
	if err != nil {
		container.Close()
		return nil, err
	}
	container.Queue = redisQueue

	stateManager := state.NewRedisStateManager(rdb)
	container.StateManager = stateManager

	container.Fetcher = source.NewFetcher(cfg.Source)

	container.Service = service.NewService(
		resultRepo,
		redisQueue,
		stateManager,
		settings.PricingConfig(),
		cfg.Worker.ChunkSize,
		cfg.Redis.ConsumerGroup,
		cfg.Redis.MinIdleTime,
	)
	if err := container.Service.SeedSelection(ctx, settings.SelectedCategories); err != nil {
		container.Close()
		return nil, err
	}
	container.Exporter = service.NewExporter(settings, &service.QueueSink{Queue: redisQueue}, cfg.Log.ExportDir)

	handler := api.NewHandler(container.Service, container.Exporter, container.Fetcher)
	container.Server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return container, nil
}

// Run serves the HTTP API and runs the chunk workers until ctx is done
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("🌐 HTTP server listening on %s", c.Server.Addr)
		if err := c.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.Server.Shutdown(shutdownCtx)
	})

	// Run workers to process tasks
	g.Go(func() error {
		return c.Service.RunWorkers(ctx, c.Config.Worker.MaxWorkers)
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return err
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
