package tasks

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/auth"
)

// SweepHandler runs the periodic, non-authoritative eviction of expired
// nonces and sessions. The opportunistic eviction every auth.Service method
// already performs on access remains the correctness guarantee; this is a
// memory-bound nicety for addresses that issue a nonce and never come back.
type SweepHandler struct {
	auth   *auth.Service
	logger *zap.Logger
}

func NewSweepHandler(svc *auth.Service, logger *zap.Logger) *SweepHandler {
	return &SweepHandler{auth: svc, logger: logger}
}

func (h *SweepHandler) HandleAuthSweep(ctx context.Context, t *asynq.Task) error {
	h.auth.Sweep()
	h.logger.Info("swept expired nonces and sessions")
	return nil
}
