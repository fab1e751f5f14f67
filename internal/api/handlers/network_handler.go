package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/network"
	"github.com/alephdeploy/control-plane/internal/orchestrator"
	"github.com/alephdeploy/control-plane/internal/pkg/response"
)

type NetworkHandler struct {
	adapter      *network.Adapter
	orchestrator *orchestrator.Orchestrator
	marketplaceKey string
}

func NewNetworkHandler(adapter *network.Adapter, o *orchestrator.Orchestrator, marketplaceKey string) *NetworkHandler {
	return &NetworkHandler{adapter: adapter, orchestrator: o, marketplaceKey: marketplaceKey}
}

func (h *NetworkHandler) GetBalance(c *gin.Context) {
	response.OK(c, h.adapter.GetBalance(c.Request.Context(), c.Param("address")))
}

func (h *NetworkHandler) ListSSHKeys(c *gin.Context) {
	response.OK(c, gin.H{"keys": h.adapter.ListSSHKeys(c.Request.Context(), c.Param("address"))})
}

func (h *NetworkHandler) ListComputeNodes(c *gin.Context) {
	response.OK(c, gin.H{"nodes": h.adapter.ListComputeNodes(c.Request.Context())})
}

func (h *NetworkHandler) NotifyAllocation(c *gin.Context) {
	instanceHash := c.Query("instance_hash")
	crnURL := c.Query("crn_url")
	h.orchestrator.NotifyAllocationStart(c.Request.Context(), instanceHash, crnURL)
	response.OK(c, gin.H{"notified": true})
}

func (h *NetworkHandler) LookupAllocation(c *gin.Context) {
	instanceHash := c.Param("instance_hash")
	crnURL := c.Query("crn_url")
	response.OK(c, h.orchestrator.LookupAllocation(c.Request.Context(), instanceHash, crnURL))
}

func (h *NetworkHandler) MarketplaceKey(c *gin.Context) {
	response.OK(c, gin.H{"public_key": h.marketplaceKey})
}
