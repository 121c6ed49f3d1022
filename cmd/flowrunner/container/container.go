package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/flowrunner/cmd/flowrunner/repository"
	"github.com/lyzr/flowrunner/common/cache"
	"github.com/lyzr/flowrunner/common/config"
	"github.com/lyzr/flowrunner/common/db"
	"github.com/lyzr/flowrunner/common/logger"
	"github.com/lyzr/flowrunner/common/ratelimit"
	rediscommon "github.com/lyzr/flowrunner/common/redis"
	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/nodes"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.DB
	Redis   *rediscommon.Client
	Events  *rediscommon.EventPublisher
	Limiter *ratelimit.Limiter
	Cache   cache.Cache

	Engine *engine.Engine

	WorkflowRepo *repository.WorkflowRepository
	RunRepo      *repository.RunRepository
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	database, err := db.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisRaw := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisClient := rediscommon.NewClient(redisRaw, log)
	if err := redisClient.Health(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	events := rediscommon.NewEventPublisher(redisClient, log, cfg.Redis.ReportTTL)

	eng := engine.New(&engine.Options{
		Logger:             log,
		MaxInFlight:        cfg.Engine.MaxInFlight,
		IntegrationTimeout: cfg.Engine.IntegrationTimeout,
		AITimeout:          cfg.Engine.AITimeout,
		// The observer runs on the coordinator goroutine; publishing is
		// pushed off it so a slow Redis never stalls scheduling.
		NodeObserver: func(runID, nodeID string, result engine.NodeResult) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				switch result.Status {
				case engine.StatusCompleted:
					events.PublishNodeCompleted(ctx, runID, nodeID, result.ExecutionTime)
				case engine.StatusFailed:
					msg := ""
					if result.Error != nil {
						msg = result.Error.Message
					}
					events.PublishNodeFailed(ctx, runID, nodeID, msg)
				}
			}()
		},
	})

	registerOpts := &nodes.RegisterOpts{
		HTTPClient: &http.Client{},
	}
	if cfg.OpenAI.APIKey != "" {
		registerOpts.OpenAI = nodes.NewOpenAIClient(cfg.OpenAI.APIKey)
	} else {
		log.Warn("OPENAI_API_KEY not set, openai nodes disabled")
	}
	nodes.Register(eng, registerOpts)

	return &Container{
		Config:       cfg,
		Logger:       log,
		DB:           database,
		Redis:        redisClient,
		Events:       events,
		Limiter:      ratelimit.NewLimiter(redisRaw, log),
		Cache:        cache.NewMemoryCache(),
		Engine:       eng,
		WorkflowRepo: repository.NewWorkflowRepository(database),
		RunRepo:      repository.NewRunRepository(database),
	}, nil
}

// Shutdown releases held connections
func (c *Container) Shutdown(ctx context.Context) {
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.GetUnderlying().Close(); err != nil {
			c.Logger.Warn("redis close failed", "error", err)
		}
	}
}
