package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/config"
	"github.com/alephdeploy/control-plane/internal/jobs/tasks"
	"github.com/alephdeploy/control-plane/internal/store"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(cfg *config.Config, deployStore *store.Store, deployPublicKey string, logger *zap.Logger) (*Worker, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Asynq.Concurrency,
			Queues:      cfg.Asynq.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	revokeHandler := tasks.NewRevokeHandler(deployStore, cfg.SSH.KeyPath, deployPublicKey, logger)
	mux.HandleFunc(TypeDeployRevoke, revokeHandler.HandleDeployRevoke)

	return &Worker{
		server: server,
		mux:    mux,
	}, nil
}

func (w *Worker) Start() error {
	fmt.Println("Starting background worker...")

	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("could not start worker: %w", err)
	}
	return nil
}

func (w *Worker) Shutdown() {
	fmt.Println("Shutting down background worker...")
	w.server.Shutdown()
	fmt.Println("Worker shut down")
}
