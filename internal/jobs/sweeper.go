package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/auth"
	"github.com/alephdeploy/control-plane/internal/config"
	"github.com/alephdeploy/control-plane/internal/jobs/tasks"
)

// AuthSweeper schedules and runs the hourly expired nonce/session sweep.
// The sweep has to run inside the same process as the auth.Service it
// sweeps, since the nonce/session maps are in-memory; the scheduler and
// its single-task consumer are colocated here rather than split across
// cmd/api and cmd/worker the way the revoke queue is.
type AuthSweeper struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
}

func NewAuthSweeper(cfg *config.Config, authSvc *auth.Service, logger *zap.Logger) (*AuthSweeper, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: logger.Sugar(),
	})

	if _, err := scheduler.Register("@hourly", asynq.NewTask(TypeAuthSweep, nil), asynq.Queue(QueueLow)); err != nil {
		return nil, fmt.Errorf("register auth sweep schedule: %w", err)
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueLow: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("Error processing task %s: %v", task.Type(), err)
		}),
	})

	mux := asynq.NewServeMux()
	sweepHandler := tasks.NewSweepHandler(authSvc, logger)
	mux.HandleFunc(TypeAuthSweep, sweepHandler.HandleAuthSweep)

	return &AuthSweeper{scheduler: scheduler, server: server, mux: mux}, nil
}

// Start runs the scheduler and its task consumer in background goroutines.
func (s *AuthSweeper) Start() {
	go func() {
		if err := s.scheduler.Run(); err != nil {
			log.Printf("auth sweep scheduler error: %v", err)
		}
	}()
	go func() {
		if err := s.server.Run(s.mux); err != nil {
			log.Printf("auth sweep consumer error: %v", err)
		}
	}()
}

func (s *AuthSweeper) Shutdown() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
}
