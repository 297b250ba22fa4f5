package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
)

// Request drives both preview and confirmation. A nil SubActivityIDs keeps
// the default selection of every line of LineType.
type Request struct {
	BoqID          snowflake.ID   `json:"boq_id"`
	LineType       LineType       `json:"line_type"`
	Method         Method         `json:"payment_method"`
	Percentage     float64        `json:"percentage"`
	Amount         float64        `json:"amount"`
	PaymentDate    *time.Time     `json:"payment_date"`
	SubActivityIDs []snowflake.ID `json:"subactivity_ids"`
}

type Result struct {
	Wizard  *Wizard                    `json:"wizard"`
	Invoice *integrationdomain.Invoice `json:"invoice"`
	Boq     *boqdomain.Project         `json:"boq"`
}

type Service interface {
	Preview(ctx context.Context, req Request) (*Wizard, error)
	Confirm(ctx context.Context, req Request) (*Result, error)
}
