package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alephdeploy/control-plane/internal/api/handlers"
	"github.com/alephdeploy/control-plane/internal/api/router"
	"github.com/alephdeploy/control-plane/internal/auth"
	"github.com/alephdeploy/control-plane/internal/catalog"
	"github.com/alephdeploy/control-plane/internal/config"
	"github.com/alephdeploy/control-plane/internal/database"
	"github.com/alephdeploy/control-plane/internal/eventlog"
	"github.com/alephdeploy/control-plane/internal/jobs"
	"github.com/alephdeploy/control-plane/internal/network"
	"github.com/alephdeploy/control-plane/internal/orchestrator"
	"github.com/alephdeploy/control-plane/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting deploy control plane API server",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	appCatalog, err := catalog.Load("templates/apps.json")
	if err != nil {
		logger.Fatal("Failed to load app catalog", zap.Error(err))
	}

	deployStore, err := store.Open(cfg.Store.SnapshotPath)
	if err != nil {
		logger.Fatal("Failed to open deployment store", zap.Error(err))
	}

	authService := auth.NewService(cfg.Auth.NonceTTL, cfg.Auth.SessionTTL)
	nonceLimiter := auth.NewClientLimiter(cfg.Auth.NonceRateLimit)
	verifyLimiter := auth.NewClientLimiter(cfg.Auth.VerifyRateLimit)

	authSweeper, err := jobs.NewAuthSweeper(cfg, authService, logger)
	if err != nil {
		logger.Warn("Failed to initialize auth sweep scheduler; relying on opportunistic eviction only", zap.Error(err))
	} else {
		authSweeper.Start()
		defer authSweeper.Shutdown()
	}

	netAdapter := network.New(
		cfg.Network.SchedulerBaseURL,
		cfg.Network.CRNListURL,
		cfg.Network.GatewayBaseURL,
		cfg.Network.BalanceBaseURL,
		logger,
	)

	var db *gorm.DB
	var events *eventlog.Log
	if cfg.Database.EventLogEnabled {
		db, err = database.NewPostgresDB(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to event log database", zap.Error(err))
		}
		logger.Info("Event log database connection established")
	}
	events = eventlog.New(db, logger)

	deployPublicKey, err := readPublicKey(cfg.SSH.PublicKeyPath)
	if err != nil {
		logger.Warn("Could not read deploy public key; revoke will be skipped", zap.Error(err))
	}

	var revokeQueue orchestrator.RevokeEnqueuer
	jobClient, err := jobs.NewClient(cfg.GetRedisAddr(), cfg.Redis.Password)
	if err != nil {
		logger.Warn("Failed to initialize job client; revoke will run inline", zap.Error(err))
	} else {
		defer jobClient.Close()
		revokeQueue = jobClient
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:           deployStore,
		Catalog:         appCatalog,
		Adapter:         netAdapter,
		NewExecutor:     orchestrator.DefaultExecutorFactory(cfg.SSH.KeyPath),
		DeployPublicKey: deployPublicKey,
		CaddyBaseDomain: cfg.Network.CaddyBaseDomain,
		RevokeQueue:     revokeQueue,
		EventLog:        events,
		Logger:          logger,
	})

	routerDeps := &router.RouterDeps{
		CatalogHandler:    handlers.NewCatalogHandler(appCatalog),
		AuthHandler:       handlers.NewAuthHandler(authService),
		NetworkHandler:    handlers.NewNetworkHandler(netAdapter, orch, deployPublicKey),
		DeploymentHandler: handlers.NewDeploymentHandler(orch, events, cfg.SSH.AllowLoopbackHosts),
		AuthService:       authService,
		NonceLimiter:      nonceLimiter,
		VerifyLimiter:     verifyLimiter,
		Logger:            logger,
	}

	r := router.SetupRouter(routerDeps)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.App.Port),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func readPublicKey(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

