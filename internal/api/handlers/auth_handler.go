package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/apierr"
	"github.com/alephdeploy/control-plane/internal/auth"
	"github.com/alephdeploy/control-plane/internal/pkg/response"
)

type AuthHandler struct {
	svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type nonceRequest struct {
	Address string `json:"address" binding:"required"`
}

func (h *AuthHandler) Nonce(c *gin.Context) {
	var req nonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	nonce, message, err := h.svc.Challenge(req.Address)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	response.OK(c, gin.H{"nonce": nonce, "message": message})
}

type verifyRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
}

func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	token, expiresAt, err := h.svc.Verify(req.Address, req.Nonce, req.Signature)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	response.OK(c, gin.H{
		"token":      token,
		"address":    req.Address,
		"expires_at": expiresAt,
	})
}

func (h *AuthHandler) Session(c *gin.Context) {
	token := extractBearer(c)
	sess, ok := h.svc.Session(token)
	if !ok {
		response.OK(c, gin.H{"authenticated": false})
		return
	}
	response.OK(c, gin.H{"authenticated": true, "address": sess.Address, "expires_at": sess.ExpiresAt})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	h.svc.Logout(extractBearer(c))
	response.OK(c, gin.H{"logged_out": true})
}

func extractBearer(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return c.Query("token")
}

// writeAPIError maps a sentinel apierr.Kind to its HTTP status; anything
// else is an internal error.
func writeAPIError(c *gin.Context, err error) {
	var kind *apierr.Kind
	if errors.As(err, &kind) {
		switch {
		case errors.Is(kind, apierr.ErrValidation):
			response.BadRequest(c, kind)
		case errors.Is(kind, apierr.ErrUnauthorized):
			response.Unauthorized(c, kind.Error())
		case errors.Is(kind, apierr.ErrForbidden):
			response.Forbidden(c, kind.Error())
		case errors.Is(kind, apierr.ErrNotFound):
			response.NotFound(c, kind.Error())
		case errors.Is(kind, apierr.ErrRateLimited):
			c.JSON(429, gin.H{"success": false, "error": kind.Error()})
		default:
			response.InternalServerError(c, kind)
		}
		return
	}
	response.InternalServerError(c, err)
}
