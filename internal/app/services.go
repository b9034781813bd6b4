package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/manufacturing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

// Repositories bundles one repository per module over the same store.
type Repositories struct {
	Accounting    accounting.RepositoryPort
	Reports       reports.RepositoryPort
	Inventory     inventory.RepositoryPort
	Sales         sales.RepositoryPort
	Procurement   procurement.RepositoryPort
	Manufacturing manufacturing.RepositoryPort
	Audit         shared.AuditPort
}

// PostgresRepositories builds repositories over a pgx pool.
func PostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Accounting:    accounting.NewRepository(pool),
		Reports:       reports.NewRepository(pool),
		Inventory:     inventory.NewRepository(pool),
		Sales:         sales.NewRepository(pool),
		Procurement:   procurement.NewRepository(pool),
		Manufacturing: manufacturing.NewRepository(pool),
		Audit:         shared.NewAuditLogger(pool),
	}
}

// MemoryRepositories builds repositories over an in-process store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Accounting:    store.Accounting(),
		Reports:       store.Reports(),
		Inventory:     store.Inventory(),
		Sales:         store.Sales(),
		Procurement:   store.Procurement(),
		Manufacturing: store.Manufacturing(),
		Audit:         store,
	}
}

// Services holds the constructed domain services.
type Services struct {
	Accounting    *accounting.Service
	Reports       *reports.Service
	Inventory     *inventory.Service
	Sales         *sales.Service
	Procurement   *procurement.Service
	Manufacturing *manufacturing.Service
}

// ServiceDeps carries optional infrastructure. A nil Redis client disables
// the report cache and cross-process document locks.
type ServiceDeps struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Redis   *redis.Client
}

// NewServices wires every domain service over repos.
func NewServices(repos Repositories, deps ServiceDeps) *Services {
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}
	var (
		reportCache *reports.Cache
		locker      *shared.DocumentLocker
	)
	if deps.Redis != nil {
		reportCache = reports.NewCache(deps.Redis, cfg.ReportCacheTTL)
		locker = shared.NewDocumentLocker(deps.Redis, cfg.DocumentLockTTL)
	}
	audit := repos.Audit
	if deps.Metrics != nil {
		audit = deps.Metrics.Audit(audit)
	}
	hooks := integration.NewHooks(integration.Config{PostAdjustments: cfg.PostAdjustmentJournals})

	return &Services{
		Accounting: accounting.NewService(repos.Accounting, audit, locker),
		Reports:    reports.NewService(repos.Reports, reportCache, deps.Logger),
		Inventory: inventory.NewService(repos.Inventory, inventory.ServiceConfig{
			AllowNegativeStock: cfg.AllowNegativeStock,
		}, hooks, audit, locker),
		Sales: sales.NewService(repos.Sales, sales.ServiceConfig{
			AllowNegativeStock: cfg.AllowNegativeStock,
		}, hooks, audit, locker),
		Procurement:   procurement.NewService(repos.Procurement, hooks, audit, locker),
		Manufacturing: manufacturing.NewService(repos.Manufacturing, audit, locker),
	}
}

// Runtime is the assembled store plus infrastructure handles to release on
// shutdown.
type Runtime struct {
	Repos Repositories
	Redis *redis.Client
	pool  *pgxpool.Pool
}

// OpenRuntime connects the configured store driver and, when reachable,
// Redis. Redis is optional; the service keeps running without it.
func OpenRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		rt.Repos = MemoryRepositories(memory.New())
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		rt.pool = pool
		rt.Repos = PostgresRepositories(pool)
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, report cache and document locks disabled", slog.Any("error", err))
		} else {
			rt.Redis = client
		}
	}
	return rt, nil
}

// Close releases the pool and Redis client.
func (rt *Runtime) Close(logger *slog.Logger) {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}
