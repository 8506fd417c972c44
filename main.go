// Package main provides the main entry point for the commission engine
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/commission-engine/app/handlers"
	"github.com/amirphl/commission-engine/app/middleware"
	"github.com/amirphl/commission-engine/app/router"
	"github.com/amirphl/commission-engine/app/scheduler"
	"github.com/amirphl/commission-engine/app/services"
	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/amirphl/commission-engine/config"
	"github.com/amirphl/commission-engine/models"
	"github.com/amirphl/commission-engine/repository"
	"github.com/amirphl/commission-engine/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	issueAdminToken := flag.Bool("issue-admin-token", false, "print an access/refresh token pair for the root admin and exit")
	flag.Parse()

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog := initializeLogging(cfg.Logging)
	defer closeLog()

	log.Printf("Starting commission engine %s (%s)...", cfg.Deployment.Version, cfg.Deployment.Environment)

	if *issueAdminToken {
		if err := printRootAdminToken(cfg); err != nil {
			log.Fatalf("Failed to issue admin token: %v", err)
		}
		return
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := cfg.Server.Address()
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop accepting requests before tearing down what handlers depend on
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Stop background workers and close clients in reverse start order
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	log.Println("Server stopped")
}

// initializeLogging routes the standard logger to stdout and, when configured, a rotating file
func initializeLogging(cfg config.LoggingConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	if cfg.Output != "file" {
		return func() {}
	}

	sink := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, sink))
	return func() {
		log.SetOutput(os.Stdout)
		_ = sink.Close()
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormLogger := logger.Discard
	if cfg.SlowQueryLog {
		gormLogger = logger.New(log.Default(), logger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
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

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB and password if provided in config
	opt.DB = cfg.RedisDB
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
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
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()

	return cancel
}

// initializeEventPublisher returns a Kafka publisher when enabled and a logging no-op otherwise
func initializeEventPublisher(cfg config.KafkaConfig, verbose bool) (services.EventPublisher, error) {
	if !cfg.Enabled {
		log.Println("Kafka disabled, commission events are dropped")
		return services.NewNoopEventPublisher(verbose), nil
	}
	publisher, err := services.NewKafkaEventPublisher(cfg.Brokers, cfg.Topics, cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kafka publisher: %w", err)
	}
	log.Printf("Kafka publisher initialized with %d brokers", len(cfg.Brokers))
	return publisher, nil
}

func initializeTokenService(cfg config.JWTConfig) (services.TokenService, error) {
	tokenService, err := services.NewTokenService(
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		cfg.Issuer,
		cfg.Audience,
		cfg.UseRSAKeys,
		cfg.PrivateKey,
		cfg.PublicKey,
		cfg.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	return tokenService, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthInterval))
	}

	publisher, err := initializeEventPublisher(cfg.Kafka, !cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Error closing event publisher: %v", err)
		}
	})

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	configRepo := repository.NewCommissionConfigRepository(db)
	commissionRepo := repository.NewCommissionTransactionRepository(db)
	walletRepo := repository.NewWalletLedgerRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	incidentRepo := repository.NewDistributionIncidentRepository(db)

	if err := ensureRootAdmin(userRepo, cfg.Commission); err != nil {
		return nil, err
	}

	tokenService, err := initializeTokenService(cfg.JWT)
	if err != nil {
		return nil, err
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	configResolver := businessflow.NewConfigResolver(configRepo, rc, &cfg.Cache)
	hierarchyResolver := businessflow.NewGeographicHierarchyResolver(userRepo)
	calculator := businessflow.NewCommissionCalculator()
	ledger := businessflow.NewLedger(commissionRepo, userRepo, walletRepo, db, cfg.Commission.ImmediateCredit)

	distributionFlow := businessflow.NewDistributionFlow(
		configResolver,
		hierarchyResolver,
		calculator,
		ledger,
		incidentRepo,
		auditRepo,
		publisher,
	)
	settlementFlow := businessflow.NewSettlementFlow(commissionRepo, userRepo, walletRepo, auditRepo)
	configFlow := businessflow.NewCommissionConfigFlow(configRepo, auditRepo, configResolver)
	incidentFlow := businessflow.NewIncidentFlow(incidentRepo, auditRepo, distributionFlow, cfg.Scheduler.BackfillMaxAttempts)

	if err := seedCommissionConfigs(configFlow, cfg.Commission.SeedFile); err != nil {
		return nil, err
	}

	// Initialize handlers
	distributionHandler := handlers.NewDistributionHandler(distributionFlow)
	settlementHandler := handlers.NewSettlementHandler(settlementFlow)
	configHandler := handlers.NewCommissionConfigHandler(configFlow)
	incidentHandler := handlers.NewIncidentHandler(incidentFlow)

	authMiddleware := middleware.NewAuthMiddleware(
		tokenService,
		cfg.Security.RequireAPIKey,
		cfg.Security.APIKeyHeader,
		cfg.Security.AllowedAPIKeys,
	)

	appRouter := router.NewFiberRouter(
		cfg,
		distributionHandler,
		settlementHandler,
		configHandler,
		incidentHandler,
		authMiddleware,
	)

	if cfg.Scheduler.BackfillEnabled {
		sched := scheduler.NewBackfillScheduler(
			incidentFlow,
			cfg.Scheduler.BackfillInterval,
			cfg.Scheduler.BackfillBatchSize,
			cfg.Logging.SchedulerLogPath,
		)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
	}

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}

// ensureRootAdmin makes sure the configured root admin exists and is an active admin
func ensureRootAdmin(userRepo repository.UserRepository, cfg config.CommissionConfig) error {
	if cfg.RootAdminMobile == "" {
		log.Println("COMMISSION_ROOT_ADMIN_MOBILE not set, skipping root admin bootstrap")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := userRepo.ByMobile(ctx, cfg.RootAdminMobile)
	if err != nil {
		return fmt.Errorf("failed to look up root admin: %w", err)
	}
	if existing != nil {
		if existing.Role != models.UserRoleAdmin {
			return fmt.Errorf("root admin mobile %s belongs to a %s", cfg.RootAdminMobile, existing.Role)
		}
		if !existing.Active() {
			return fmt.Errorf("root admin %d is inactive", existing.ID)
		}
		return nil
	}

	admin := &models.User{
		Name:     cfg.RootAdminName,
		Mobile:   cfg.RootAdminMobile,
		Role:     models.UserRoleAdmin,
		IsActive: utils.ToPtr(true),
	}
	if err := userRepo.Save(ctx, admin); err != nil {
		return fmt.Errorf("failed to create root admin: %w", err)
	}
	log.Printf("Root admin created with id %d", admin.ID)
	return nil
}

// seedCommissionConfigs loads the YAML seed into an empty commission_configs table
func seedCommissionConfigs(flow businessflow.CommissionConfigFlow, path string) error {
	configs, err := config.LoadCommissionSeed(path)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := flow.SeedConfigs(ctx, configs)
	if err != nil {
		return fmt.Errorf("failed to seed commission configs: %w", err)
	}
	if n > 0 {
		log.Printf("Seeded %d commission configs from %s", n, path)
	}
	return nil
}

// printRootAdminToken prints a token pair for the root admin; used to bootstrap admin access
func printRootAdminToken(cfg *config.ProductionConfig) error {
	if cfg.Commission.RootAdminMobile == "" {
		return errors.New("COMMISSION_ROOT_ADMIN_MOBILE is not set")
	}

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	if err := ensureRootAdmin(userRepo, cfg.Commission); err != nil {
		return err
	}
	admin, err := userRepo.ByMobile(context.Background(), cfg.Commission.RootAdminMobile)
	if err != nil {
		return err
	}
	if admin == nil {
		return errors.New("root admin not found")
	}

	tokenService, err := initializeTokenService(cfg.JWT)
	if err != nil {
		return err
	}
	access, refresh, err := tokenService.GenerateAdminTokens(admin.ID)
	if err != nil {
		return err
	}

	fmt.Printf("access_token=%s\nrefresh_token=%s\n", access, refresh)
	return nil
}
