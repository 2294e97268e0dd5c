package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/kudos/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/kudos/internal/payment/domain"
	"go.uber.org/zap"
)

type paymentWebhookRequest struct {
	ID string `json:"id" form:"id"`
}

// HandlePaymentWebhook acknowledges every provider notification that names a
// payment. Reconciliation failures are logged and never surface as non-200
// responses, so the provider does not retry indefinitely.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	paymentID := webhookPaymentID(c)
	if paymentID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	result, err := s.paymentSvc.HandleWebhook(ctx, paymentID)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidRequest) {
			AbortWithError(c, invalidRequestError())
			return
		}
		obslogger.WithContext(ctx, s.log).Warn("payment webhook not reconciled",
			zap.String("payment_id", paymentID),
			zap.String("outcome", result.Outcome),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": paymentID})
}

func webhookPaymentID(c *gin.Context) string {
	var req paymentWebhookRequest
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return ""
		}
		return strings.TrimSpace(req.ID)
	}
	if id := strings.TrimSpace(c.PostForm("id")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("id"))
}
