package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusInvoiced  Status = "invoiced"
	StatusPaid      Status = "paid"
)

// Certificate is a progress billing snapshot against one BOQ. Amounts are
// derived from the lines and the BOQ while the certificate is a draft and
// frozen once it is submitted.
type Certificate struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID `gorm:"not null;index" json:"org_id"`
	BoqID           snowflake.ID `gorm:"not null;index" json:"boq_id"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	CertificateDate time.Time    `gorm:"not null" json:"certificate_date"`
	Status          Status       `gorm:"type:text;not null;index" json:"state"`

	AmountCompleted                float64 `gorm:"not null;default:0" json:"amount_completed"`
	AmountApproved                 float64 `gorm:"not null;default:0" json:"amount_approved"`
	AmountRetention                float64 `gorm:"not null;default:0" json:"amount_retention"`
	AmountAdvanceRecoveryOriginal  float64 `gorm:"not null;default:0" json:"amount_advance_recovery_orig"`
	AmountAdvanceRecoveryVariation float64 `gorm:"not null;default:0" json:"amount_advance_recovery_var"`
	AmountInvoice                  float64 `gorm:"not null;default:0" json:"amount_invoice"`

	InvoiceID *snowflake.ID `json:"invoice_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []*Line `gorm:"foreignKey:CertificateID" json:"lines,omitempty"`
}

func (Certificate) TableName() string { return "boq_payment_certificates" }

// Line claims and approves progress on one sub-activity.
type Line struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"not null;index" json:"org_id"`
	CertificateID     snowflake.ID `gorm:"not null;index" json:"certificate_id"`
	SubActivityID     snowflake.ID `gorm:"not null;index" json:"sub_activity_id"`
	CompletionPercent float64      `gorm:"not null;default:0" json:"completion_percent"`
	ApprovedPercent   float64      `gorm:"not null;default:0" json:"approved_percent"`

	MasterQty       float64 `gorm:"not null;default:0" json:"master_qty"`
	UnitPrice       float64 `gorm:"not null;default:0" json:"unit_price"`
	QtyCompleted    float64 `gorm:"not null;default:0" json:"qty_completed"`
	QtyApproved     float64 `gorm:"not null;default:0" json:"qty_approved"`
	AmountCompleted float64 `gorm:"not null;default:0" json:"amount_completed"`
	AmountApproved  float64 `gorm:"not null;default:0" json:"amount_approved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Line) TableName() string { return "boq_payment_certificate_lines" }
