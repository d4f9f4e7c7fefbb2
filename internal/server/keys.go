package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type issueKeyRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type keyUsageRequest struct {
	Keys []string `json:"keys"`
}

// @Summary      Issue API Key
// @Description  Provision a metered end user and a fresh Pro key for the caller
// @Tags         keys
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body issueKeyRequest false "Key metadata"
// @Success      200  {object}  map[string]any
// @Router       /api/keys [post]
func (s *Server) IssueKey(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	info, err := s.keySvc.Issue(c.Request.Context(), principal.UserID, req.Metadata)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", info)
}

// @Summary      Key Usage
// @Description  Gateway usage for keys owned by the caller
// @Tags         keys
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body keyUsageRequest true "Keys"
// @Success      200  {object}  map[string]any
// @Router       /api/keys/usage [post]
func (s *Server) KeyUsage(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req keyUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Keys) == 0 {
		AbortWithError(c, newValidationError("keys", "keys_required", "keys is required"))
		return
	}

	usage, err := s.keySvc.Usage(c.Request.Context(), principal.UserID, req.Keys)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": usage})
}
