// Package export renders BOQ ledgers as spreadsheet workbooks.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "BOQ"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var columns = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}

var headers = []string{
	"#", "Description", "Type", "Master Qty", "Previous Qty", "Current Qty",
	"Unit Price", "Total", "Billed %", "Onsite %",
}

// FileName returns a download name such as "boq-00001.xlsx".
func FileName(p *domain.Project) string {
	name := slug.Make(p.Name)
	if name == "" {
		name = "boq-" + p.ID.String()
	}
	return name + ".xlsx"
}

// Money rounds an amount to cents for display.
func Money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Workbook renders one row per sub-activity grouped under its activity,
// followed by totals, retention and outstanding advance balances.
func Workbook(p *domain.Project) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	lastCol := columns[len(columns)-1]

	widths := []float64{6, 48, 10, 12, 12, 12, 16, 18, 10, 10}
	for i, col := range columns {
		if err := f.SetColWidth(SheetName, col, col, widths[i]); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", col, err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := f.MergeCell(SheetName, "A1", lastCol+"1"); err != nil {
		return nil, fmt.Errorf("merge title: %w", err)
	}
	f.SetCellValue(SheetName, "A1", sanitizeCell(p.Name))
	f.SetCellStyle(SheetName, "A1", lastCol+"1", styles.title)
	f.SetCellValue(SheetName, "A2", fmt.Sprintf("Status: %s", p.Status))
	f.SetCellValue(SheetName, "A3", fmt.Sprintf("Currency: %s", p.Currency))

	for i, h := range headers {
		f.SetCellValue(SheetName, columns[i]+"5", h)
	}
	f.SetCellStyle(SheetName, "A5", lastCol+"5", styles.header)

	row := 6
	for ai, a := range p.Activities {
		r := strconv.Itoa(row)
		f.SetCellValue(SheetName, "A"+r, strconv.Itoa(ai+1))
		f.SetCellValue(SheetName, "B"+r, sanitizeCell(a.Name))
		f.SetCellValue(SheetName, "H"+r, Money(a.TotalCumulative))
		f.SetCellValue(SheetName, "I"+r, Money(a.BilledProgressPercent))
		f.SetCellValue(SheetName, "J"+r, Money(a.OnsiteProgressPercent))
		f.SetCellStyle(SheetName, "A"+r, lastCol+r, styles.activity)
		row++

		for si, sub := range a.SubActivities {
			r := strconv.Itoa(row)
			f.SetCellValue(SheetName, "A"+r, fmt.Sprintf("%d.%d", ai+1, si+1))
			f.SetCellValue(SheetName, "B"+r, "  "+sanitizeCell(sub.Name))
			f.SetCellValue(SheetName, "C"+r, string(sub.ActivityType))
			f.SetCellValue(SheetName, "D"+r, sub.MasterQty)
			f.SetCellValue(SheetName, "E"+r, sub.PreviousQty)
			f.SetCellValue(SheetName, "F"+r, sub.CurrentQty)
			f.SetCellValue(SheetName, "G"+r, Money(sub.UnitPrice))
			f.SetCellValue(SheetName, "H"+r, Money(sub.TotalCumulative))
			f.SetCellValue(SheetName, "I"+r, Money(sub.BilledProgressPercent))
			f.SetCellValue(SheetName, "J"+r, Money(sub.OnsiteProgressPercent))
			f.SetCellStyle(SheetName, "A"+r, lastCol+r, styles.line)
			row++
		}
	}

	row++
	summary := []struct {
		label string
		value float64
	}{
		{"Total", p.Total},
		{"Total Previous", p.TotalPrevious},
		{"Total Current", p.TotalCurrent},
		{fmt.Sprintf("Retention (%s)", p.RetentionRule), p.RetentionAmountTotal},
		{"Outstanding Advance (Original)", p.OutstandingAdvanceOriginal()},
		{"Outstanding Advance (Variation)", p.OutstandingAdvanceVariation()},
	}
	for _, item := range summary {
		r := strconv.Itoa(row)
		f.SetCellValue(SheetName, "G"+r, sanitizeCell(item.label))
		f.SetCellStyle(SheetName, "G"+r, "G"+r, styles.summaryLabel)
		f.SetCellValue(SheetName, "H"+r, Money(item.value))
		f.SetCellStyle(SheetName, "H"+r, "H"+r, styles.summaryValue)
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styleSet struct {
	title        int
	header       int
	activity     int
	line         int
	summaryLabel int
	summaryValue int
}

func newStyles(f *excelize.File) (styleSet, error) {
	var (
		s   styleSet
		err error
	)
	amount := "#,##0.00"

	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}}); err != nil {
		return s, fmt.Errorf("create title style: %w", err)
	}
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return s, fmt.Errorf("create header style: %w", err)
	}
	s.activity, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true, Size: 10},
		Border:       thinBorders(),
		CustomNumFmt: &amount,
	})
	if err != nil {
		return s, fmt.Errorf("create activity style: %w", err)
	}
	s.line, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Size: 10},
		Border:       thinBorders(),
		CustomNumFmt: &amount,
	})
	if err != nil {
		return s, fmt.Errorf("create line style: %w", err)
	}
	s.summaryLabel, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, fmt.Errorf("create summary label style: %w", err)
	}
	s.summaryValue, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true, Size: 11},
		CustomNumFmt: &amount,
	})
	if err != nil {
		return s, fmt.Errorf("create summary value style: %w", err)
	}
	return s, nil
}

// sanitizeCell keeps user text from being read as a formula.
func sanitizeCell(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{Type: side, Color: "#000000", Style: 1}
	}
	return borders
}
