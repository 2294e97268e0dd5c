package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kudos/internal/transaction/domain"
	"github.com/smallbiznis/kudos/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByOrderOrPaymentMatchesEitherKey(t *testing.T) {
	db := dbtest.Open(t, &domain.Transaction{})
	repo := Provide(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &domain.Transaction{
		ID:       1,
		OrderID:  "kdo_abc",
		Value:    decimal.NewFromInt(10),
		Currency: "EUR",
		Status:   "open",
	}))
	require.NoError(t, repo.Save(ctx, &domain.Transaction{
		ID:              2,
		OrderID:         "kdo_other",
		VendorPaymentID: "tr_other",
		Value:           decimal.NewFromInt(5),
		Currency:        "EUR",
		Status:          "paid",
	}))

	byOrder, err := repo.FindByOrderOrPayment(ctx, "kdo_abc", "tr_xyz")
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, "kdo_abc", byOrder.OrderID)

	byPayment, err := repo.FindByOrderOrPayment(ctx, "kdo_missing", "tr_other")
	require.NoError(t, err)
	require.NotNil(t, byPayment)
	assert.Equal(t, "kdo_other", byPayment.OrderID)

	none, err := repo.FindByOrderOrPayment(ctx, "kdo_missing", "tr_missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	empty, err := repo.FindByOrderOrPayment(ctx, "", "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRefundRoundTrip(t *testing.T) {
	db := dbtest.Open(t, &domain.Transaction{})
	repo := Provide(db)
	ctx := context.Background()

	tx := &domain.Transaction{ID: 3, OrderID: "kdo_r", Value: decimal.NewFromInt(20), Currency: "EUR", Status: "paid"}
	none, err := tx.Refund()
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, tx.SetRefund(domain.Refund{
		Refunded:  decimal.RequireFromString("5.00"),
		Remaining: decimal.RequireFromString("15.00"),
		Currency:  "EUR",
	}))
	require.NoError(t, repo.Save(ctx, tx))

	loaded, err := repo.FindByOrderID(ctx, "kdo_r")
	require.NoError(t, err)
	refund, err := loaded.Refund()
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.True(t, refund.Refunded.Equal(decimal.NewFromInt(5)))
	assert.True(t, refund.Remaining.Equal(decimal.NewFromInt(15)))
}

func TestListFiltersByStatus(t *testing.T) {
	db := dbtest.Open(t, &domain.Transaction{})
	repo := Provide(db)
	ctx := context.Background()

	for i, status := range []string{"paid", "open", "paid"} {
		require.NoError(t, repo.Save(ctx, &domain.Transaction{
			ID:       snowflake.ID(i + 10),
			OrderID:  "kdo_" + status + string(rune('a'+i)),
			Value:    decimal.NewFromInt(1),
			Currency: "EUR",
			Status:   status,
		}))
	}

	paid, err := repo.List(ctx, domain.ListFilter{Status: "paid", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, paid, 2)
	assert.True(t, paid[0].ID > paid[1].ID)
}
