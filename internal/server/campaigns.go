package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
)

func (s *Server) ListCampaigns(c *gin.Context) {
	items, err := s.campaignSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateCampaign(c *gin.Context) {
	var req campaigndomain.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	campaign, err := s.campaignSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": campaign})
}

// GetCampaign returns the campaign with its current donation total. The id
// may be a snowflake id or a slug.
func (s *Server) GetCampaign(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := s.campaignSvc.Get(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	total, err := s.campaignSvc.Total(ctx, campaign.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": campaign, "total": total})
}
