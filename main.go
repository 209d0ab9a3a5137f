// Package main provides the entry point for the outreach API and campaign worker
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/orochi-outreach/app/handlers"
	"github.com/amirphl/orochi-outreach/app/middleware"
	"github.com/amirphl/orochi-outreach/app/router"
	"github.com/amirphl/orochi-outreach/app/scheduler"
	"github.com/amirphl/orochi-outreach/app/services"
	businessflow "github.com/amirphl/orochi-outreach/business_flow"
	"github.com/amirphl/orochi-outreach/config"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
	closers   []io.Closer
}

func main() {
	var issueTokenFor uint
	flag.UintVar(&issueTokenFor, "issue-token", 0, "print an access token for the given tenant id and exit")
	flag.Parse()

	log.Println("Starting outreach application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if issueTokenFor != 0 {
		if err := printTenantToken(cfg, issueTokenFor); err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		return
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		var err error
		if cfg.Security.TLSEnabled {
			err = app.server.Listen(address, fiber.ListenConfig{
				CertFile:    cfg.Security.TLSCertFile,
				CertKeyFile: cfg.Security.TLSKeyFile,
			})
		} else {
			err = app.server.Listen(address)
		}
		if err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			log.Printf("Error closing resource: %v", err)
		}
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.New(os.Stdout, "gorm ", log.LstdFlags), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeProvider picks the outbound messaging provider
func initializeProvider(cfg config.ProviderConfig, logger *log.Logger) services.MessagingProvider {
	switch cfg.Kind {
	case "http":
		return services.NewHTTPMessagingProvider(&cfg)
	default:
		log.Println("Using mock messaging provider")
		return services.NewMockMessagingProvider().WithLogger(logger)
	}
}

func initializeTokenService(cfg config.JWTConfig) (services.TokenService, error) {
	return services.NewTokenService(
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		cfg.Issuer,
		cfg.Audience,
		cfg.UseRSAKeys,
		cfg.PrivateKey,
		cfg.PublicKey,
		cfg.SecretKey,
	)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var (
		stopFuncs []func()
		closers   []io.Closer
	)

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// keep the interface nil when redis is off
	var cache redis.UniversalClient
	if rc != nil {
		cache = rc
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval))
		closers = append(closers, rc)
	}

	schedLogger, logCloser, err := scheduler.NewSchedulerLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to open scheduler log: %w", err)
	}
	closers = append(closers, logCloser)

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(db)
	runRepo := repository.NewCampaignRunRepository(db)
	recipientRepo := repository.NewCampaignRecipientRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Initialize services
	tokenService, err := initializeTokenService(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	var quotaCounter services.QuotaCounter
	if cfg.Quota.Counter == "redis" && cache != nil {
		quotaCounter = services.NewRedisQuotaCounter(cache, cfg.Quota.RedisPrefix)
		log.Println("Using redis quota counter")
	}

	// Initialize business flows
	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		runRepo,
		recipientRepo,
		connectionRepo,
		tenantRepo,
		auditRepo,
		db,
	)

	// Initialize handlers
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	appRouter := router.NewFiberRouter(cfg, campaignHandler, authMiddleware, db, cache)

	engine := scheduler.NewEngine(scheduler.EngineDeps{
		DB:           db,
		Provider:     initializeProvider(cfg.Provider, schedLogger),
		Config:       cfg.Scheduler,
		Logger:       schedLogger,
		QuotaCounter: quotaCounter,
	})
	stopFuncs = append(stopFuncs, engine.Scheduler.Start(context.Background()))

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
		closers:   closers,
	}, nil
}

// printTenantToken issues an access and refresh token pair for an existing tenant
func printTenantToken(cfg *config.ProductionConfig, tenantID uint) error {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return err
	}

	tenant, err := repository.NewTenantRepository(db).ByID(context.Background(), tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return fmt.Errorf("tenant %d not found", tenantID)
	}

	tokenService, err := initializeTokenService(cfg.JWT)
	if err != nil {
		return err
	}

	access, refresh, err := tokenService.GenerateTokens(tenant.ID)
	if err != nil {
		return err
	}
	fmt.Printf("access_token=%s\nrefresh_token=%s\n", access, refresh)
	return nil
}
