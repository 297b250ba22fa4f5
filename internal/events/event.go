package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/boqledger/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicBoqApproved          = "boq.approved"
	TopicCertificateSubmitted = "certificate.submitted"
	TopicVariationApplied     = "variation.applied"
	TopicSubcontractCreated   = "subcontract.created"
	TopicAdvanceInvoiced      = "advance_payment.invoiced"
	TopicMarginApplied        = "margin.applied"
)

// Event is an outbox row. It is written in the same transaction as the
// change it describes and delivered by the Dispatcher afterwards.
// ClaimedUntil is the lease of the dispatcher delivering the row; the
// per-channel timestamps keep a retry from repeating a channel that already
// succeeded.
type Event struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID      `gorm:"not null;index" json:"org_id"`
	Topic        string            `gorm:"type:text;not null" json:"topic"`
	EventKey     string            `gorm:"type:text;not null;uniqueIndex" json:"event_key"`
	Payload      datatypes.JSONMap `json:"payload"`
	Attempts     int               `gorm:"not null;default:0" json:"attempts"`
	LastError    *string           `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedUntil *time.Time        `json:"claimed_until,omitempty"`
	SlackSentAt  *time.Time        `json:"slack_sent_at,omitempty"`
	EmailSentAt  *time.Time        `json:"email_sent_at,omitempty"`
	PublishedAt  *time.Time        `gorm:"index" json:"published_at,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "boq_events" }

type Publisher interface {
	Publish(ctx context.Context, db *gorm.DB, orgID snowflake.ID, topic string, payload map[string]any) error
}

type outboxPublisher struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxPublisher(genID *snowflake.Node, clk clock.Clock) Publisher {
	return &outboxPublisher{genID: genID, clock: clk}
}

func (p *outboxPublisher) Publish(ctx context.Context, db *gorm.DB, orgID snowflake.ID, topic string, payload map[string]any) error {
	return db.WithContext(ctx).Create(&Event{
		ID:        p.genID.Generate(),
		OrgID:     orgID,
		Topic:     topic,
		EventKey:  ulid.Make().String(),
		Payload:   datatypes.JSONMap(payload),
		CreatedAt: p.clock.Now(),
	}).Error
}
