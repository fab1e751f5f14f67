package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/config"
	"github.com/alephdeploy/control-plane/internal/jobs"
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

	logger.Info("Starting deploy control plane worker",
		zap.String("env", cfg.App.Env),
	)

	deployPublicKey, err := readPublicKey(cfg.SSH.PublicKeyPath)
	if err != nil {
		logger.Warn("Could not read deploy public key; revoke tasks will fail until configured", zap.Error(err))
	}

	deployStore, err := store.Open(cfg.Store.SnapshotPath)
	if err != nil {
		logger.Fatal("Failed to open deployment store", zap.Error(err))
	}

	worker, err := jobs.NewWorker(cfg, deployStore, deployPublicKey, logger)
	if err != nil {
		logger.Fatal("Failed to initialize worker", zap.Error(err))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down worker...")
		worker.Shutdown()
	}()

	logger.Info("Worker started, processing jobs...")
	if err := worker.Start(); err != nil {
		logger.Fatal("Worker error", zap.Error(err))
	}

	logger.Info("Worker exited")
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
