package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natidev-sh/natiweb/internal/credit"
	obsctx "github.com/natidev-sh/natiweb/internal/observability/context"
	"github.com/natidev-sh/natiweb/internal/observability/logger"
)

type desktopCreditsRequest struct {
	APIKey string `json:"apiKey"`
}

type desktopCreditsResponse struct {
	UsedCredits     int64      `json:"usedCredits"`
	TotalCredits    int64      `json:"totalCredits"`
	BudgetResetDate *time.Time `json:"budgetResetDate"`
}

// @Summary      Credit Status
// @Description  Credits of the caller's most recent key, or of an owned key passed as ?key=
// @Tags         credits
// @Produce      json
// @Security     BearerAuth
// @Param        key  query     string  false  "Owned API key"
// @Success      200  {object}  credit.Status
// @Failure      404  {object}  map[string]any
// @Router       /api/credits [get]
func (s *Server) GetCredits(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var (
		status *credit.Status
		err    error
	)
	if key := strings.TrimSpace(c.Query("key")); key != "" {
		status, err = s.creditSvc.ForOwnedKey(c.Request.Context(), principal.UserID, key)
	} else {
		status, err = s.creditSvc.ForUser(c.Request.Context(), principal.UserID)
	}
	if err != nil {
		if errors.Is(err, credit.ErrNoKey) {
			_, body := renderError(err)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"hasKey": false, "error": body})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// @Summary      Desktop Credit Status
// @Description  Credits for a key presented as its own credential
// @Tags         credits
// @Accept       json
// @Produce      json
// @Param        x-nati-api-key  header  string                 false  "API key"
// @Param        request         body    desktopCreditsRequest  false  "API key"
// @Success      200  {object}  desktopCreditsResponse
// @Router       /api/credits/desktop [post]
func (s *Server) DesktopCredits(c *gin.Context) {
	apiKey := strings.TrimSpace(c.GetHeader(headerDesktopAPIKey))
	if apiKey == "" {
		var req desktopCreditsRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			AbortWithError(c, invalidRequestError())
			return
		}
		apiKey = strings.TrimSpace(req.APIKey)
	}
	if apiKey == "" {
		AbortWithError(c, newValidationError("apiKey", "api_key_required", "apiKey is required"))
		return
	}

	ctx := obsctx.WithActor(c.Request.Context(), obsctx.ActorTypeAPIKey, logger.MaskAPIKey(apiKey))
	status, err := s.creditSvc.ForAPIKey(ctx, apiKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, desktopCreditsResponse{
		UsedCredits:     status.UsedCredits,
		TotalCredits:    status.TotalCredits,
		BudgetResetDate: status.BudgetResetDate,
	})
}
