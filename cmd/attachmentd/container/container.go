package container

import (
	"fmt"

	"github.com/quillwiki/attachd/cmd/attachmentd/handlers"
	"github.com/quillwiki/attachd/cmd/attachmentd/repository"
	"github.com/quillwiki/attachd/cmd/attachmentd/service"
	"github.com/quillwiki/attachd/common/bootstrap"
	"github.com/quillwiki/attachd/common/cache"
	"github.com/quillwiki/attachd/common/ratelimit"
	rediscommon "github.com/quillwiki/attachd/common/redis"
	"github.com/redis/go-redis/v9"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client

	// Repositories
	AttachmentRepo *repository.AttachmentRepository

	// Services
	Sniffer   *service.Sniffer
	Store     *service.Store
	Deriver   *service.Deriver
	Prewarmer *service.Prewarmer
	Ingestor  *service.Ingestor

	// Rate limiting (nil when disabled)
	RateLimiter *ratelimit.RateLimiter

	// Handlers
	UploadHandler     *handlers.UploadHandler
	AttachmentHandler *handlers.AttachmentHandler
	DerivedHandler    *handlers.DerivedHandler
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	c := &Container{
		Components: components,
	}

	// Redis is only needed for the redis cache backend and rate limiting
	if cfg.Cache.Backend == "redis" || cfg.RateLimit.Enabled {
		raw := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       0,
		})

		c.Redis = rediscommon.NewClient(raw, components.Logger)
		components.AddCleanup(c.Redis.Close)

		if cfg.RateLimit.Enabled {
			c.RateLimiter = ratelimit.NewRateLimiter(raw, components.Logger)
		}
	}

	// Metadata cache: bootstrap wires the memory backend; the redis
	// backend needs the shared client created above
	metaCache := components.Cache
	if cfg.Cache.Enabled && cfg.Cache.Backend == "redis" {
		metaCache = cache.NewRedisCache(c.Redis, "attachd:")
		components.Cache = metaCache
	}

	// Repositories
	c.AttachmentRepo = repository.NewAttachmentRepository(components.DB)

	// Services (bottom-up: dependencies first)
	c.Sniffer = service.NewSniffer()

	store, err := service.NewStore(
		c.AttachmentRepo,
		metaCache,
		cfg.Storage.Root,
		cfg.Cache.DefaultTTL,
		components.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment store: %w", err)
	}
	c.Store = store

	c.Deriver = service.NewDeriver(
		c.Store,
		cfg.Derive.ThumbnailSize,
		cfg.Derive.InlineMaxW,
		cfg.Derive.InlineMaxH,
		components.Logger,
	)

	if cfg.Derive.PrewarmWorkers > 0 {
		c.Prewarmer = service.NewPrewarmer(
			c.Deriver,
			cfg.Derive.PrewarmWorkers,
			cfg.Derive.PrewarmQueueSize,
			components.Logger,
		)
		components.AddCleanup(func() error {
			c.Prewarmer.Shutdown()
			return nil
		})
	}

	c.Ingestor = service.NewIngestor(c.Sniffer, c.Store, c.Prewarmer, components.Logger)

	// Handlers
	c.UploadHandler = handlers.NewUploadHandler(components, c.Ingestor)
	c.AttachmentHandler = handlers.NewAttachmentHandler(components, c.Store)
	c.DerivedHandler = handlers.NewDerivedHandler(components, c.Deriver)

	return c, nil
}
