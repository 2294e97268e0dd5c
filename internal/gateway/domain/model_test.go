package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataAcceptsStringsAndNumbers(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"order_id":"kdo_abc","campaign_id":12,"years":2,"flag":true,"nested":{"x":1}}`), &m))

	assert.Equal(t, "kdo_abc", m.OrderID())
	assert.Equal(t, "12", m.CampaignID())
	assert.Equal(t, 2, m.Years())
	assert.Equal(t, "true", m.Get("flag"))
	assert.Empty(t, m.Get("nested"))
}

func TestMetadataAcceptsEncodedString(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`"{\"order_id\":\"kdo_x\"}"`), &m))
	assert.Equal(t, "kdo_x", m.OrderID())

	var empty Metadata
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.Empty(t, empty.OrderID())
	assert.Equal(t, 0, empty.Years())
}

func TestAmountWireFormat(t *testing.T) {
	raw, err := json.Marshal(Amount{Value: decimal.NewFromInt(10), Currency: "eur"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"10.00","currency":"EUR"}`, string(raw))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`{"value":"2.50","currency":"EUR"}`), &a))
	assert.True(t, a.Value.Equal(decimal.RequireFromString("2.5")))
}

func TestPaymentAccessors(t *testing.T) {
	refunded := Amount{Value: decimal.RequireFromString("5.00"), Currency: "EUR"}
	p := &Payment{Status: StatusPaid, SequenceType: SequenceFirst, Amount: Amount{Currency: "EUR"}, Refunded: &refunded}

	assert.True(t, p.IsPaid())
	assert.True(t, p.HasRefunds())
	assert.False(t, p.HasChargebacks())
	assert.True(t, p.HasSequenceTypeFirst())
	assert.False(t, p.HasSequenceTypeRecurring())
	assert.Equal(t, "5", p.AmountRefunded().Value.String())
	assert.True(t, p.AmountRemaining().Value.IsZero())
	assert.Equal(t, "EUR", p.AmountRemaining().Currency)

	var nilPayment *Payment
	assert.False(t, nilPayment.IsPaid())
	assert.False(t, nilPayment.HasRefunds())
}

func TestMandateIsUsable(t *testing.T) {
	assert.True(t, (&Mandate{Status: MandateValid}).IsUsable())
	assert.True(t, (&Mandate{Status: MandatePending}).IsUsable())
	assert.False(t, (&Mandate{Status: MandateInvalid}).IsUsable())
	assert.False(t, (*Mandate)(nil).IsUsable())
}
