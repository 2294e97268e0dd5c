package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/kudos/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/kudos/internal/payment/domain"
	"go.uber.org/zap"
)

const rateLimitReasonClientRate = "client-rate"

// CreatePayment starts a donation and returns the provider checkout URL.
func (s *Server) CreatePayment(c *gin.Context) {
	var req paymentdomain.CreatePaymentRequest
	if err := c.ShouldBind(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.CreatePayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DonationRateLimit throttles donation initiation per client IP.
func (s *Server) DonationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.donationLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		allowed, retryAfter := s.donationLimiter.Allow(ctx, c.ClientIP())
		if !allowed {
			obslogger.WithContext(ctx, s.log).Warn("donation rate limit exceeded",
				zap.String("reason", rateLimitReasonClientRate),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonClientRate)

			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonClientRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
