package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

// CertificateDocument is the printable view of a payment certificate.
type CertificateDocument struct {
	Number       string
	Date         string
	Status       string
	BoqName      string
	CustomerName string
	Currency     string
	InvoiceRef   string

	Rows []CertificateRow

	AmountCompleted   float64
	AmountApproved    float64
	RetentionLabel    string
	AmountRetention   float64
	RecoveryOriginal  float64
	RecoveryVariation float64
	AmountInvoice     float64
}

type CertificateRow struct {
	Description       string
	CompletionPercent float64
	ApprovedPercent   float64
	QtyApproved       float64
	UnitPrice         float64
	AmountApproved    float64
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderCertificate(ctx context.Context, doc CertificateDocument) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Payment Certificate", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, doc.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Certificate number: "+doc.Number, props.Text{Top: 0}),
			text.New("Date: "+doc.Date, props.Text{Top: 5}),
			text.New("Invoice: "+doc.InvoiceRef, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("BOQ: "+doc.BoqName, props.Text{Top: 0, Align: align.Right}),
			text.New("Customer: "+doc.CustomerName, props.Text{Top: 5, Align: align.Right}),
			text.New("Currency: "+doc.Currency, props.Text{Top: 10, Align: align.Right}),
		),
	)

	header := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	m.AddRow(10,
		text.NewCol(4, "Sub-activity", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Completion", header),
		text.NewCol(2, "Approved", header),
		text.NewCol(1, "Qty", header),
		text.NewCol(1, "Unit price", header),
		text.NewCol(2, "Amount", header),
	)

	cell := props.Text{Size: 9, Align: align.Right}
	for _, row := range doc.Rows {
		m.AddRow(8,
			text.NewCol(4, row.Description, props.Text{Size: 9}),
			text.NewCol(2, percent(row.CompletionPercent), cell),
			text.NewCol(2, percent(row.ApprovedPercent), cell),
			text.NewCol(1, Amount(row.QtyApproved), cell),
			text.NewCol(1, Amount(row.UnitPrice), cell),
			text.NewCol(2, Amount(row.AmountApproved), cell),
		)
	}

	totals := []struct {
		label string
		value float64
		bold  bool
	}{
		{"Work completed", doc.AmountCompleted, false},
		{"Approved", doc.AmountApproved, false},
		{fmt.Sprintf("Retention (%s)", doc.RetentionLabel), -doc.AmountRetention, false},
		{"Advance recovery (original)", -doc.RecoveryOriginal, false},
		{"Advance recovery (variation)", -doc.RecoveryVariation, false},
		{"Net amount due", doc.AmountInvoice, true},
	}
	for _, total := range totals {
		style := props.Text{Size: 9}
		if total.bold {
			style.Style = fontstyle.Bold
		}
		valueStyle := style
		valueStyle.Align = align.Right
		m.AddRow(8,
			col.New(6),
			text.NewCol(4, total.label, style),
			text.NewCol(2, Amount(total.value), valueStyle),
		)
	}

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return generated.GetBytes(), nil
}

// Amount formats a money or quantity value with two fixed decimals.
func Amount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "%"
}
