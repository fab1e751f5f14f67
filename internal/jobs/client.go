package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeDeployRevoke = "deploy:revoke-key"
	TypeAuthSweep    = "auth:sweep"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// RevokeKeyPayload is the asynq task payload for a deferred marketplace
// deploy-key revocation. The key itself isn't carried in the payload; the
// worker revokes whichever deploy key its own configuration names, the same
// one the orchestrator is configured with.
type RevokeKeyPayload struct {
	DeploymentID string `json:"deployment_id"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
}

type Client interface {
	EnqueueRevoke(deploymentID, host string, port int, user string) error
	Close() error
}

type client struct {
	asynqClient *asynq.Client
}

func NewClient(redisAddr string, redisPassword string) (Client, error) {
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
	})

	return &client{
		asynqClient: asynqClient,
	}, nil
}

// EnqueueRevoke queues the orchestrator's Phase 4 deploy-key revocation;
// when a queue is configured the orchestrator does not also attempt it
// inline. Failures here are not fatal to the deployment; the queue's
// retries exist so a transient SSH error doesn't leave a marketplace key
// provisioned on the target host forever.
func (c *client) EnqueueRevoke(deploymentID, host string, port int, user string) error {
	payload, err := json.Marshal(RevokeKeyPayload{
		DeploymentID: deploymentID,
		Host:         host,
		Port:         port,
		User:         user,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeDeployRevoke, payload)

	info, err := c.asynqClient.Enqueue(
		task,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	fmt.Printf("Enqueued deploy key revoke task: id=%s, queue=%s\n", info.ID, info.Queue)
	return nil
}

func (c *client) Close() error {
	return c.asynqClient.Close()
}
