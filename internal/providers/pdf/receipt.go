package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingOrderID = errors.New("receipt_missing_order_id")

// ReceiptData is the printable view of one donation.
type ReceiptData struct {
	OrgName      string
	DonorName    string
	DonorAddress string
	DonorEmail   string
	OrderID      string
	DatePaid     string
	CampaignName string
	Amount       string
	Currency     string
	Method       string
	Recurring    bool
	// Refunded is empty unless part of the donation was returned.
	Refunded string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if receipt.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(8, "Donation receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.OrgName, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Reference: "+receipt.OrderID, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 4}),
			text.New("Payment method: "+receipt.Method, props.Text{Top: 8}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Donor", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.DonorName, props.Text{Top: 5}),
			text.New(receipt.DonorAddress, props.Text{Top: 9}),
			text.New(receipt.DonorEmail, props.Text{Top: 18}),
		),
		col.New(6),
	)

	kind := "One-off donation"
	if receipt.Recurring {
		kind = "Recurring donation"
	}
	if receipt.CampaignName != "" {
		kind += " to " + receipt.CampaignName
	}

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, kind, props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount+" "+receipt.Currency, props.Text{Size: 9, Align: align.Right}),
	)
	if receipt.Refunded != "" {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, "Refunded", props.Text{Size: 9}),
			text.NewCol(2, receipt.Refunded+" "+receipt.Currency, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(15,
		text.NewCol(12, "Thank you for your support.", props.Text{
			Size:  11,
			Style: fontstyle.Italic,
			Top:   5,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
