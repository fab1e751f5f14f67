package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/apierr"
	"github.com/alephdeploy/control-plane/internal/api/middleware"
	"github.com/alephdeploy/control-plane/internal/eventlog"
	"github.com/alephdeploy/control-plane/internal/models"
	"github.com/alephdeploy/control-plane/internal/orchestrator"
	"github.com/alephdeploy/control-plane/internal/pkg/response"
	"github.com/alephdeploy/control-plane/internal/sshexec"
)

func toContainerSummaries(in []sshexec.ContainerInfo) []models.ContainerSummary {
	out := make([]models.ContainerSummary, 0, len(in))
	for _, c := range in {
		out = append(out, models.ContainerSummary{
			Name: c.Name, Service: c.Service, State: c.State, Status: c.Status, Image: c.Image,
		})
	}
	return out
}

type DeploymentHandler struct {
	orchestrator *orchestrator.Orchestrator
	events       *eventlog.Log
	allowLoopback bool
}

func NewDeploymentHandler(o *orchestrator.Orchestrator, events *eventlog.Log, allowLoopback bool) *DeploymentHandler {
	return &DeploymentHandler{orchestrator: o, events: events, allowLoopback: allowLoopback}
}

func (h *DeploymentHandler) Create(c *gin.Context) {
	owner, err := middleware.WalletAddress(c)
	if err != nil {
		response.Unauthorized(c, "missing session")
		return
	}

	var req models.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	id, err := h.orchestrator.Accept(orchestrator.AcceptRequest{
		Owner:         owner,
		AppID:         req.AppID,
		SSHHost:       req.SSHHost,
		SSHPort:       req.SSHPort,
		SSHUser:       req.SSHUser,
		SetupTunnel:   req.SetupTunnel,
		TunnelPort:    req.TunnelPort,
		InstanceHash:  req.InstanceHash,
		AllowLoopback: h.allowLoopback,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}

	response.Created(c, "deployment started", gin.H{"deployment_id": id, "status": "started"})
}

func (h *DeploymentHandler) Progress(c *gin.Context) {
	id := c.Param("deployment_id")
	job, ok := h.orchestrator.Job(id)
	if !ok {
		response.NotFound(c, "unknown deployment")
		return
	}
	response.OK(c, job)
}

func (h *DeploymentHandler) MyDeployments(c *gin.Context) {
	owner, err := middleware.WalletAddress(c)
	if err != nil {
		response.Unauthorized(c, "missing session")
		return
	}
	response.OK(c, gin.H{"deployments": h.withDisclosedPasswords(h.orchestrator.Store().ListByOwner(owner))})
}

// withDisclosedPasswords runs DisclosePasswords through the store so the
// reveal-once invariant is honored even for the bulk listing endpoint.
func (h *DeploymentHandler) withDisclosedPasswords(ds []*models.Deployment) []*models.Deployment {
	for _, d := range ds {
		if len(d.GeneratedPasswords) == 0 {
			continue
		}
		var disclosed map[string]string
		_, err := h.orchestrator.Store().Update(d.ID, func(rec *models.Deployment) {
			disclosed = rec.DisclosePasswords()
		})
		if err == nil {
			d.GeneratedPasswords = disclosed
		}
	}
	return ds
}

func (h *DeploymentHandler) Status(c *gin.Context) {
	owner, err := middleware.WalletAddress(c)
	if err != nil {
		response.Unauthorized(c, "missing session")
		return
	}

	d := h.orchestrator.Store().Get(c.Param("id"))
	if d == nil {
		response.NotFound(c, "unknown deployment")
		return
	}
	if d.Owner != owner {
		response.Forbidden(c, apierr.ErrForbidden.Error())
		return
	}

	if d.Status == models.StatusComplete || d.Status == models.StatusRunning {
		exec := h.orchestrator.Executor(d)
		defer exec.Close()
		live := exec.GetAppStatus(c.Request.Context(), d.AppID)
		if live.Error == "" {
			d.Containers = toContainerSummaries(live.Containers)
		}
	}

	if len(d.GeneratedPasswords) > 0 {
		var disclosed map[string]string
		_, err := h.orchestrator.Store().Update(d.ID, func(rec *models.Deployment) {
			disclosed = rec.DisclosePasswords()
		})
		if err == nil {
			d.GeneratedPasswords = disclosed
		}
	}

	response.OK(c, d)
}

func (h *DeploymentHandler) Stop(c *gin.Context) {
	owner, err := middleware.WalletAddress(c)
	if err != nil {
		response.Unauthorized(c, "missing session")
		return
	}

	d := h.orchestrator.Store().Get(c.Param("id"))
	if d == nil {
		response.NotFound(c, "unknown deployment")
		return
	}
	if d.Owner != owner {
		response.Forbidden(c, apierr.ErrForbidden.Error())
		return
	}

	exec := h.orchestrator.Executor(d)
	defer exec.Close()
	if err := exec.StopApp(c.Request.Context(), d.AppID); err != nil {
		response.InternalServerError(c, err)
		return
	}

	updated, err := h.orchestrator.Store().Update(d.ID, func(rec *models.Deployment) {
		rec.Status = models.StatusStopped
	})
	if err != nil || updated == nil {
		response.NotFound(c, "unknown deployment")
		return
	}

	h.events.Record(d.ID, "stop", "ok", "")
	response.OK(c, updated)
}

func (h *DeploymentHandler) Remove(c *gin.Context) {
	owner, err := middleware.WalletAddress(c)
	if err != nil {
		response.Unauthorized(c, "missing session")
		return
	}

	d := h.orchestrator.Store().Get(c.Param("id"))
	if d == nil {
		response.NotFound(c, "unknown deployment")
		return
	}
	if d.Owner != owner {
		response.Forbidden(c, apierr.ErrForbidden.Error())
		return
	}

	exec := h.orchestrator.Executor(d)
	defer exec.Close()
	if err := exec.RemoveApp(c.Request.Context(), d.AppID); err != nil {
		response.InternalServerError(c, err)
		return
	}

	if err := h.orchestrator.Store().Remove(d.ID); err != nil {
		response.InternalServerError(c, err)
		return
	}

	h.events.Record(d.ID, "remove", "ok", "")
	response.NoContent(c)
}

func (h *DeploymentHandler) Events(c *gin.Context) {
	owner, err := middleware.WalletAddress(c)
	if err != nil {
		response.Unauthorized(c, "missing session")
		return
	}

	d := h.orchestrator.Store().Get(c.Param("id"))
	if d == nil {
		response.NotFound(c, "unknown deployment")
		return
	}
	if d.Owner != owner {
		response.Forbidden(c, apierr.ErrForbidden.Error())
		return
	}

	entries, err := h.events.ForDeployment(d.ID)
	if err != nil {
		response.InternalServerError(c, err)
		return
	}
	response.OK(c, gin.H{"events": entries})
}
