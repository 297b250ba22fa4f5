package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LineType partitions sub-activities by their variation flag.
type LineType string

const (
	LineTypeOriginal  LineType = "original"
	LineTypeVariation LineType = "variation"
)

func (t LineType) Valid() bool {
	return t == LineTypeOriginal || t == LineTypeVariation
}

func (t LineType) Title() string {
	if t == LineTypeVariation {
		return "Variation"
	}
	return "Original"
}

type Method string

const (
	MethodPercentage Method = "percentage"
	MethodAmount     Method = "amount"
)

func (m Method) Valid() bool {
	return m == MethodPercentage || m == MethodAmount
}

// Line is one selectable sub-activity of the BOQ.
type Line struct {
	SubActivityID snowflake.ID `json:"subactivity_id"`
	ActivityName  string       `json:"activity_name"`
	Name          string       `json:"name"`
	Amount        float64      `json:"amount"`
	IsVariation   bool         `json:"is_variation"`
	Selected      bool         `json:"selected"`
}

// Wizard is an advance payment being prepared against one BOQ. Amount and
// Percentage derive from each other over LinesTotal.
type Wizard struct {
	BoqID       snowflake.ID `json:"boq_id"`
	BoqName     string       `json:"boq_name"`
	LineType    LineType     `json:"line_type"`
	Method      Method       `json:"payment_method"`
	PaymentDate time.Time    `json:"payment_date"`
	Percentage  float64      `json:"percentage"`
	Amount      float64      `json:"amount"`
	LinesTotal  float64      `json:"lines_total"`
	Lines       []Line       `json:"lines"`
}
