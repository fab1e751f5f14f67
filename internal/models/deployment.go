package models

import "time"

// Deployment status values. A deployment in a terminal status never
// transitions to a non-terminal one except via an explicit new request.
const (
	StatusDeploying = "deploying"
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// ContainerSummary mirrors one line of `docker compose ps --format json`.
type ContainerSummary struct {
	Name    string `json:"name,omitempty"`
	Service string `json:"service,omitempty"`
	State   string `json:"state,omitempty"`
	Status  string `json:"status,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Deployment is the durable record the Store owns. Identifier, owner, and
// app identifier are immutable after creation.
type Deployment struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	AppID       string    `json:"app_id"`
	AppName     string    `json:"app_name"`
	SSHHost     string    `json:"ssh_host"`
	SSHPort     int       `json:"ssh_port"`
	InstanceID  string    `json:"instance_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	PublicURL   string    `json:"public_url,omitempty"`
	Containers  []ContainerSummary `json:"containers,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Warning     string    `json:"warning,omitempty"`

	// GeneratedPasswords is surfaced in exactly one successful status
	// response (the first poll after completion) and cleared thereafter.
	GeneratedPasswords map[string]string `json:"generated_passwords,omitempty"`
	passwordsDisclosed bool
}

// DisclosePasswords returns the generated passwords once, then clears them
// from future reads. A no-op if there are none or they were already shown.
func (d *Deployment) DisclosePasswords() map[string]string {
	if d.passwordsDisclosed || len(d.GeneratedPasswords) == 0 {
		return nil
	}
	d.passwordsDisclosed = true
	out := d.GeneratedPasswords
	d.GeneratedPasswords = nil
	return out
}

// Clone returns a deep-enough copy safe to hand to a caller without
// exposing the Store's internal map entry to mutation.
func (d *Deployment) Clone() *Deployment {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Containers != nil {
		clone.Containers = append([]ContainerSummary(nil), d.Containers...)
	}
	if d.GeneratedPasswords != nil {
		clone.GeneratedPasswords = make(map[string]string, len(d.GeneratedPasswords))
		for k, v := range d.GeneratedPasswords {
			clone.GeneratedPasswords[k] = v
		}
	}
	return &clone
}

// DeployRequest is the accept-request contract for POST /api/deploy/ssh.
type DeployRequest struct {
	AppID        string `json:"app_id" binding:"required"`
	SSHHost      string `json:"ssh_host" binding:"required"`
	SSHPort      int    `json:"ssh_port" binding:"required"`
	SSHUser      string `json:"ssh_user"`
	SetupTunnel  bool   `json:"setup_tunnel"`
	TunnelPort   int    `json:"tunnel_port"`
	InstanceHash string `json:"instance_hash"`
}

// Job is the in-memory, ephemeral mirror of a deployment in flight. The
// Deployment record in the Store is authoritative; a Job is lost on
// process restart.
type Job struct {
	DeploymentID string
	Step         string // queued | connecting | deploying | tunnel | done
	Output       string
}

// Job step labels.
const (
	StepQueued     = "queued"
	StepConnecting = "connecting"
	StepDeploying  = "deploying"
	StepTunnel     = "tunnel"
	StepDone       = "done"
)
