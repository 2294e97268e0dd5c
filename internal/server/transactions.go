package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	"github.com/smallbiznis/kudos/internal/providers/pdf"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
)

const receiptDateLayout = "2 January 2006"

type listTransactionsQuery struct {
	CampaignID string `form:"campaign_id"`
	Status     string `form:"status"`
	BeforeID   string `form:"before_id"`
	Limit      int    `form:"limit"`
}

func (s *Server) ListTransactions(c *gin.Context) {
	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	campaignID, err := parseOptionalSnowflakeID(query.CampaignID)
	if err != nil {
		AbortWithError(c, newValidationError("campaign_id", "invalid_campaign_id", "invalid campaign_id"))
		return
	}
	beforeID, err := parseOptionalSnowflakeID(query.BeforeID)
	if err != nil {
		AbortWithError(c, newValidationError("before_id", "invalid_before_id", "invalid before_id"))
		return
	}

	filter := transactiondomain.ListFilter{
		CampaignID: campaignID,
		Status:     strings.TrimSpace(query.Status),
		Limit:      normalizeLimit(query.Limit),
	}
	if beforeID != nil {
		filter.BeforeID = beforeID.Int64()
	}

	items, err := s.transactions.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "next_before_id": nextBeforeID(items, filter.Limit, func(tx *transactiondomain.Transaction) snowflake.ID { return tx.ID })})
}

// DownloadReceipt renders a PDF receipt for a paid transaction.
func (s *Server) DownloadReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	tx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tx == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	if tx.Status != gatewaydomain.StatusPaid {
		AbortWithError(c, newValidationError("id", "transaction_not_paid", "receipts are only available for paid transactions"))
		return
	}

	data, err := s.receiptData(c, tx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt-`+tx.OrderID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) receiptData(c *gin.Context, tx *transactiondomain.Transaction) (pdf.ReceiptData, error) {
	ctx := c.Request.Context()
	data := pdf.ReceiptData{
		OrgName:   s.donation.Get().ReceiptSenderName,
		OrderID:   tx.OrderID,
		DatePaid:  tx.UpdatedAt.Format(receiptDateLayout),
		Amount:    tx.Value.StringFixed(2),
		Currency:  tx.Currency,
		Method:    tx.Method,
		Recurring: tx.SequenceType != gatewaydomain.SequenceOneOff,
	}

	refund, err := tx.Refund()
	if err != nil {
		return data, err
	}
	if refund != nil && refund.Refunded.IsPositive() {
		data.Refunded = refund.Refunded.StringFixed(2)
	}

	if tx.DonorID != nil {
		donor, err := s.donors.FindByID(ctx, *tx.DonorID)
		if err != nil {
			return data, err
		}
		if donor != nil {
			data.DonorName = donor.Name
			data.DonorEmail = donor.Email
			data.DonorAddress = strings.TrimSpace(strings.Join(nonEmpty(donor.Street, donor.Postcode+" "+donor.City, donor.Country), ", "))
		}
	}

	if tx.CampaignID != nil {
		campaign, err := s.campaignSvc.Get(ctx, tx.CampaignID.String())
		if err == nil {
			data.CampaignName = campaign.Name
		}
	}
	return data, nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
