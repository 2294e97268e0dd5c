package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	r, err := New().GenerateReceipt(context.Background(), ReceiptData{
		OrgName:      "Clean Water Foundation",
		DonorName:    "Ada",
		DonorEmail:   "ada@example.com",
		OrderID:      "kdo_1",
		DatePaid:     "10 March 2024",
		CampaignName: "Clean Water",
		Amount:       "25.00",
		Currency:     "EUR",
		Method:       "ideal",
		Refunded:     "5.00",
	})
	require.NoError(t, err)

	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, len(raw) > 4)
	assert.Equal(t, "%PDF", string(raw[:4]))
}

func TestGenerateReceiptRequiresOrderID(t *testing.T) {
	_, err := New().GenerateReceipt(context.Background(), ReceiptData{})
	assert.ErrorIs(t, err, ErrMissingOrderID)
}
