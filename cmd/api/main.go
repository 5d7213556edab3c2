package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/afya-transport/internal/api/handlers"
	"github.com/gocomet/afya-transport/internal/api/routes"
	"github.com/gocomet/afya-transport/internal/config"
	"github.com/gocomet/afya-transport/internal/domain/transport"
	"github.com/gocomet/afya-transport/internal/domain/wallet"
	"github.com/gocomet/afya-transport/internal/events"
	"github.com/gocomet/afya-transport/internal/repository/memory"
	"github.com/gocomet/afya-transport/internal/repository/postgres"
	"github.com/gocomet/afya-transport/internal/repository/rediscache"
	creditsvc "github.com/gocomet/afya-transport/internal/service/credit"
	"github.com/gocomet/afya-transport/internal/service/dispatch"
	"github.com/gocomet/afya-transport/internal/service/matching"
	"github.com/gocomet/afya-transport/internal/service/payment"
	"github.com/gocomet/afya-transport/internal/service/pricing"
	walletsvc "github.com/gocomet/afya-transport/internal/service/wallet"
	"github.com/gocomet/afya-transport/pkg/cache"
	"github.com/gocomet/afya-transport/pkg/database"
	"github.com/gocomet/afya-transport/pkg/logger"
	"github.com/gocomet/afya-transport/pkg/monitoring"
	"github.com/gocomet/afya-transport/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Afya Transport",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
		LogLevel:   cfg.NewRelic.LogLevel,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp = monitoring.Disabled()
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized successfully",
			logger.String("app_name", cfg.NewRelic.AppName),
			logger.Bool("enabled", true))
	} else {
		appLogger.Info("New Relic APM disabled")
	}
	defer nrApp.Shutdown(10 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run()

	var (
		sinks      events.Fanout
		riderIdx   dispatch.LocationIndex
		profiles   creditsvc.ProfileStore
		postgresDB *sql.DB
		stats      = map[string]func() map[string]interface{}{}
	)

	// Event streaming
	if cfg.Kafka.Enabled {
		kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		defer kafka.Close()
		sinks = append(sinks, kafka)
		appLogger.Info("Kafka publisher enabled",
			logger.String("topic", cfg.Kafka.Topic),
			logger.Int("brokers", len(cfg.Kafka.Brokers)))
	}

	// Audit trail in PostgreSQL
	if cfg.Database.Enabled {
		postgresDB, err = database.NewPostgresDB(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.Name,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConnections,
			MaxIdle:     cfg.Database.MaxIdleConns,
			MaxLifetime: cfg.Database.MaxLifetime,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
		}
		defer postgresDB.Close()

		audit := postgres.NewAuditStore(postgresDB)
		if err := audit.EnsureSchema(ctx); err != nil {
			appLogger.Fatal("Failed to prepare audit schema", logger.Err(err))
		}
		sinks = append(sinks, audit)
		stats["database"] = func() map[string]interface{} { return database.PoolStats(postgresDB) }

		appLogger.Info("Connected to PostgreSQL successfully")
	}

	// Rider locations and credit profiles in Redis
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			PoolSize:    cfg.Redis.PoolSize,
			MinIdleConn: cfg.Redis.MinIdleConn,
			DialTimeout: cfg.Redis.DialTimeout,
			ReadTimeout: cfg.Redis.ReadTimeout,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
		}
		defer cache.Close(redisClient)

		riderIdx = rediscache.NewRiderLocations(redisClient)
		profiles = rediscache.NewProfileCache(redisClient, cfg.Redis.ProfileTTL)
		stats["redis"] = func() map[string]interface{} { return cache.GetClientStats(redisClient) }

		appLogger.Info("Connected to Redis successfully")
	}

	var publisher events.Publisher = events.Nop{}
	if len(sinks) > 0 {
		publisher = sinks
	}

	// Payment providers: mobile money simulator for everything, Stripe for cards
	simulator := payment.NewMobileMoneySimulator(appLogger, payment.SimulatorConfig{
		Delay:       cfg.Payment.SimulatorDelay,
		SuccessRate: cfg.Payment.SimulatorSuccessRate,
		Seed:        time.Now().UnixNano(),
	})
	providers := payment.NewRouter(simulator)
	if cfg.Stripe.APIKey != "" {
		providers.Handle(payment.NewStripeProvider(cfg.Stripe.APIKey, cfg.Stripe.Currency), wallet.MethodCard)
		appLogger.Info("Stripe card payments enabled")
	}

	// Wallet and credit scoring. The wallet tells the engine when a history
	// changes so cached profiles are dropped.
	var scores *creditsvc.Engine
	wallets := walletsvc.NewService(memory.NewLedger(), providers, appLogger,
		walletsvc.WithHistoryListener(walletsvc.HistoryListenerFunc(func(ctx context.Context, userID string) {
			scores.InvalidateProfile(ctx, userID)
		})),
		walletsvc.WithEventPublisher(publisher),
		walletsvc.WithMonitoring(nrApp),
		walletsvc.WithChargeTimeout(cfg.Payment.ChargeTimeout),
		walletsvc.WithLoanConfig(walletsvc.LoanConfig{
			PaymentInterval: cfg.Loan.PaymentInterval,
			DefaultLoanType: cfg.Loan.DefaultLoanType,
		}),
	)

	scoring := creditsvc.DefaultConfig()
	scoring.RecentWindow = cfg.Credit.RecentWindow
	scoring.CommunityPoints = cfg.Credit.CommunityPoints
	scoring.CommunityCap = cfg.Credit.CommunityCap
	creditOpts := []creditsvc.Option{
		creditsvc.WithConfig(scoring),
		creditsvc.WithMonitoring(nrApp),
	}
	if profiles != nil {
		creditOpts = append(creditOpts, creditsvc.WithProfileStore(profiles))
	}
	scores = creditsvc.NewEngine(wallets, appLogger, creditOpts...)

	// Dispatch
	prices := pricing.NewService(pricing.Config{
		BaseCost:  cfg.Pricing.BaseCost,
		PerKMRate: cfg.Pricing.PerKMRate,
		Urgency: map[transport.Urgency]pricing.Multiplier{
			transport.UrgencyNormal:     {Base: 1.0, PerKM: 1.0},
			transport.UrgencySemiUrgent: {Base: cfg.Pricing.SemiUrgentBase, PerKM: cfg.Pricing.SemiUrgentPerKM},
			transport.UrgencyEmergency:  {Base: cfg.Pricing.EmergencyBase, PerKM: cfg.Pricing.EmergencyPerKM},
		},
		MaternalDiscount: cfg.Pricing.MaternalDiscount,
		AverageSpeedKMH:  cfg.Pricing.AverageSpeedKMH,
	})
	matcher := matching.NewService(appLogger, matching.Config{
		EmergencyRadiusKM: cfg.Dispatch.EmergencyRadiusKM,
		BrowseRadiusKM:    cfg.Dispatch.BrowseRadiusKM,
		MaxCandidates:     cfg.Dispatch.MaxCandidates,
	})

	dispatchOpts := []dispatch.Option{
		dispatch.WithSettler(wallets),
		dispatch.WithEventPublisher(publisher),
		dispatch.WithMonitoring(nrApp),
		dispatch.WithAutoAssign(cfg.Features.EnableEmergencyAutoAssign),
	}
	if cfg.Features.EnableRealTimeUpdates {
		dispatchOpts = append(dispatchOpts, dispatch.WithNotifier(wsHub))
	}
	if riderIdx != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithLocationIndex(riderIdx))
	}
	engine := dispatch.NewEngine(memory.NewDispatchStore(), matcher, prices, appLogger, dispatchOpts...)

	// Initialize handlers with dependencies
	h := handlers.NewHandlers(engine, wallets, scores, wsHub, appLogger)
	h.Upgrader.ReadBufferSize = cfg.WebSocket.ReadBufferSize
	h.Upgrader.WriteBufferSize = cfg.WebSocket.WriteBufferSize
	if postgresDB != nil {
		h.Audit = postgres.NewAuditStore(postgresDB)
	}
	for name, fn := range stats {
		h.ReportStats(name, fn)
	}

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Setup all routes
	routes.SetupRoutes(router, h, nrApp.Application)

	appLogger.Info("Routes configured successfully")

	go runMaintenance(ctx, cfg.Loan.OverdueSweep, wallets, nrApp, postgresDB, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	stop()

	appLogger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	wsHub.Stop()
	engine.Wait()
	wallets.Wait()

	appLogger.Info("Server stopped gracefully")
}

// runMaintenance flags overdue loans and reports pool stats until ctx ends
func runMaintenance(ctx context.Context, every time.Duration, wallets *walletsvc.Service, nrApp *monitoring.NewRelicApp, db *sql.DB, log *logger.Logger) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			marked, err := wallets.MarkOverdueLoans(ctx)
			if err != nil {
				log.Error("Overdue sweep failed", logger.Err(err))
			} else if len(marked) > 0 {
				log.Info("Overdue sweep flagged loans", logger.Int("count", len(marked)))
			}
			if db != nil {
				nrApp.RecordDatabasePoolStats(database.PoolStats(db))
			}
		}
	}
}
