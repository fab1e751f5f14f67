// Package tasks holds asynq task handlers run by the background worker.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/alephdeploy/control-plane/internal/models"
	"github.com/alephdeploy/control-plane/internal/sshexec"
	"github.com/alephdeploy/control-plane/internal/store"
)

// revokeKeyPayload has the JSON shape of jobs.RevokeKeyPayload. It is
// declared here because package jobs imports this package.
type revokeKeyPayload struct {
	DeploymentID string `json:"deployment_id"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
}

// RevokeHandler performs the deploy-key revocation that the orchestrator's
// Phase 4 queued instead of running inline; asynq retries it on failure.
// The deploy key itself comes from the worker's own configuration, not the
// task payload, since it never changes per deployment.
type RevokeHandler struct {
	store           *store.Store
	deployKeyPath   string
	deployPublicKey string
	logger          *zap.Logger
}

func NewRevokeHandler(st *store.Store, deployKeyPath, deployPublicKey string, logger *zap.Logger) *RevokeHandler {
	return &RevokeHandler{store: st, deployKeyPath: deployKeyPath, deployPublicKey: deployPublicKey, logger: logger}
}

func (h *RevokeHandler) HandleDeployRevoke(ctx context.Context, t *asynq.Task) error {
	var payload revokeKeyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal revoke payload: %w", err)
	}

	user := payload.User
	if user == "" {
		user = "root"
	}

	exec := sshexec.New(payload.Host, payload.Port, user, h.deployKeyPath)
	defer exec.Close()

	if err := exec.RevokeDeployKey(ctx, h.deployPublicKey); err != nil {
		retried, maxRetry := asynq.GetRetryCount(ctx), asynq.GetMaxRetry(ctx)
		terminal := retried >= maxRetry

		h.logger.Warn("revoke retry failed",
			zap.String("deployment_id", payload.DeploymentID),
			zap.String("host", payload.Host),
			zap.Bool("terminal", terminal),
			zap.Error(err))

		if terminal {
			h.setWarning(payload.DeploymentID, fmt.Sprintf("deploy key revoke failed after retries: %v", err))
		}
		return err
	}

	h.setWarning(payload.DeploymentID, "")

	h.logger.Info("revoke retry succeeded",
		zap.String("deployment_id", payload.DeploymentID),
		zap.String("host", payload.Host))
	return nil
}

func (h *RevokeHandler) setWarning(deploymentID, warning string) {
	if h.store == nil {
		return
	}
	if _, err := h.store.Update(deploymentID, func(rec *models.Deployment) {
		rec.Warning = warning
	}); err != nil {
		h.logger.Warn("failed to update deployment warning", zap.String("deployment_id", deploymentID), zap.Error(err))
	}
}
