package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
)

type cancelSubscriptionRequest struct {
	CustomerID string `json:"customer_id"`
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		Status   string `form:"status"`
		BeforeID string `form:"before_id"`
		Limit    int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	beforeID, err := parseOptionalSnowflakeID(query.BeforeID)
	if err != nil {
		AbortWithError(c, newValidationError("before_id", "invalid_before_id", "invalid before_id"))
		return
	}

	filter := subscriptiondomain.ListFilter{
		Status: strings.TrimSpace(query.Status),
		Limit:  normalizeLimit(query.Limit),
	}
	if beforeID != nil {
		filter.BeforeID = beforeID.Int64()
	}

	items, err := s.subscriptionSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "next_before_id": nextBeforeID(items, filter.Limit, func(sub *subscriptiondomain.Subscription) snowflake.ID { return sub.ID })})
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

// CancelSubscription asks the provider to stop a recurring donation. The
// local status follows once the provider reports the change.
func (s *Server) CancelSubscription(c *gin.Context) {
	var req cancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	id := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()
	canceled, err := s.subscriptionSvc.Cancel(ctx, id, strings.TrimSpace(req.CustomerID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && canceled {
		targetID := id
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionSubscriptionCanceled, "subscription", &targetID, map[string]any{
			"subscription_id": id,
		})
	}

	c.JSON(http.StatusOK, gin.H{"canceled": canceled})
}
