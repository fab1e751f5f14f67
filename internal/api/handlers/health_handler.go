package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/pkg/response"
)

func Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}
