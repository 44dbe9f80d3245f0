package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	billingapp "github.com/labbill/backend/internal/application/billing"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/infrastructure/cache"
	"github.com/labbill/backend/internal/infrastructure/config"
	"github.com/labbill/backend/internal/infrastructure/logger"
	"github.com/labbill/backend/internal/infrastructure/persistence"
	"github.com/labbill/backend/internal/interfaces/http/handler"
	"github.com/labbill/backend/internal/interfaces/http/middleware"
	"github.com/labbill/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

//	@title			LabBill Backend API
//	@version		1.0
//	@description	Medical lab billing API: invoices, payments, credits and insurance coordination

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting LabBill Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	gormLogLevel := gormlogger.Silent
	if cfg.Log.Level == "debug" {
		gormLogLevel = gormlogger.Info
	}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// Idempotency fast path. Redis when reachable, in-memory otherwise;
	// the unique index on the idempotency key stays authoritative either way.
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	idempotencyStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	uow := persistence.NewGormUnitOfWork(db.DB)
	pricingResolver := persistence.NewGormPricingResolver(db.DB)
	allocationSvc := billing.NewAllocationService()

	invoiceService := billingapp.NewInvoiceService(uow, log,
		billingapp.WithInvoiceNumbering(cfg.Billing.InvoiceNumberPrefix, cfg.Billing.InvoiceNumberWidth),
		billingapp.WithDefaultDueDays(cfg.Billing.DefaultDueDays),
		billingapp.WithPricingResolver(pricingResolver),
	)
	paymentService := billingapp.NewPaymentService(uow, allocationSvc, log,
		billingapp.WithRetryConfig(billingapp.RetryConfig{
			MaxAttempts: cfg.Payment.RetryMaxAttempts,
			BaseDelay:   cfg.Payment.RetryBaseDelay,
			MaxDelay:    cfg.Payment.RetryMaxDelay,
		}),
		billingapp.WithIdempotencyStore(idempotencyStore, shared.IdempotencyConfig{
			TTL:     cfg.Payment.IdempotencyTTL,
			Enabled: true,
		}),
		billingapp.WithCreditTTL(cfg.Payment.CreditTTL),
	)
	creditService := billingapp.NewCreditService(uow, log)
	auditService := billingapp.NewAuditService(uow, log)

	// Background sweeps: overdue invoice flagging and credit expiry
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go runSweep(sweepCtx, cfg.Billing.OverdueSweepPeriod, log.Named("overdue_sweep"), func(ctx context.Context) (int, error) {
		return invoiceService.MarkOverdueInvoices(ctx, time.Now())
	})
	go runSweep(sweepCtx, cfg.Billing.ExpirySweepPeriod, log.Named("expiry_sweep"), func(ctx context.Context) (int, error) {
		return creditService.ExpireCredits(ctx, time.Now())
	})

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewInvoiceHandler(invoiceService)).
		Register(handler.NewPaymentHandler(paymentService)).
		Register(handler.NewCreditHandler(creditService)).
		Register(handler.NewAuditHandler(auditService)).
		Register(handler.NewSystemHandler())
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// runSweep runs fn on every tick until the context is cancelled
func runSweep(ctx context.Context, period time.Duration, log *zap.Logger, fn func(ctx context.Context) (int, error)) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := fn(ctx)
			if err != nil {
				log.Warn("Sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("Sweep completed", zap.Int("affected", n))
			}
		}
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		payload := gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		}
		if stats, err := db.Stats(); err == nil {
			payload["pool"] = stats
		}
		c.JSON(http.StatusOK, payload)
	}
}
