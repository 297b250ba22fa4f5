package events

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/providers/email"
	"github.com/smallbiznis/boqledger/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dispatchBatchSize = 50
	maxAttempts       = 5
	claimLease        = 2 * time.Minute
)

type DispatcherParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Slack slack.Provider
	Email email.Provider
}

// Dispatcher delivers outbox events that carry a notification message to
// Slack and email.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	slack      slack.Provider
	email      email.Provider
	recipients []string
	interval   time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("events.dispatcher"),
		clock:      p.Clock,
		slack:      p.Slack,
		email:      p.Email,
		recipients: p.Cfg.SMTP.To,
		interval:   time.Duration(p.Cfg.OutboxPollSecond) * time.Second,
	}
}

// DispatchPending claims and delivers one batch and returns how many events
// were published. Each row is claimed with a conditional update before
// delivery, so concurrent dispatchers never deliver the same event. A claim
// left behind by a crashed dispatcher expires after claimLease.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	now := d.clock.Now()
	var pending []Event
	if err := d.db.WithContext(ctx).
		Where("published_at IS NULL AND attempts < ?", maxAttempts).
		Where("(claimed_until IS NULL OR claimed_until < ?)", now).
		Order("id ASC").
		Limit(dispatchBatchSize).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	published := 0
	for i := range pending {
		ev := &pending[i]
		claimed, err := d.claim(ctx, ev, now)
		if err != nil {
			return published, err
		}
		if !claimed {
			continue
		}

		if err := d.deliver(ctx, ev); err != nil {
			msg := err.Error()
			d.log.Warn("event delivery failed",
				zap.String("topic", ev.Topic),
				zap.String("event_key", ev.EventKey),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(err),
			)
			if err := d.db.WithContext(ctx).Model(&Event{}).
				Where("id = ?", ev.ID).
				Updates(map[string]any{"attempts": ev.Attempts + 1, "last_error": msg, "claimed_until": nil}).Error; err != nil {
				return published, err
			}
			continue
		}

		if err := d.db.WithContext(ctx).Model(&Event{}).
			Where("id = ?", ev.ID).
			Updates(map[string]any{
				"attempts":      ev.Attempts + 1,
				"published_at":  d.clock.Now(),
				"last_error":    nil,
				"claimed_until": nil,
			}).Error; err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// claim takes the delivery lease on ev. It reports false when another
// dispatcher holds a live claim or already published the row.
func (d *Dispatcher) claim(ctx context.Context, ev *Event, now time.Time) (bool, error) {
	until := now.Add(claimLease)
	res := d.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND published_at IS NULL", ev.ID).
		Where("(claimed_until IS NULL OR claimed_until < ?)", now).
		Update("claimed_until", until)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		d.log.Debug("event claimed by another dispatcher", zap.String("event_key", ev.EventKey))
		return false, nil
	}
	ev.ClaimedUntil = &until
	return true, nil
}

// deliver posts to every channel that has not received the event yet and
// stamps each channel as soon as it succeeds.
func (d *Dispatcher) deliver(ctx context.Context, ev *Event) error {
	message, _ := ev.Payload["message"].(string)
	if message == "" {
		return nil
	}

	if ev.SlackSentAt == nil {
		if err := d.slack.PostMessage(ctx, "", message); err != nil {
			return fmt.Errorf("slack: %w", err)
		}
		sent, err := d.markSent(ctx, ev, "slack_sent_at")
		if err != nil {
			return err
		}
		ev.SlackSentAt = sent
	}
	if len(d.recipients) > 0 && ev.EmailSentAt == nil {
		subject, _ := ev.Payload["subject"].(string)
		if subject == "" {
			subject = ev.Topic
		}
		body := "<p>" + html.EscapeString(message) + "</p>"
		if err := d.email.Send(ctx, d.recipients, subject, body); err != nil {
			return fmt.Errorf("email: %w", err)
		}
		sent, err := d.markSent(ctx, ev, "email_sent_at")
		if err != nil {
			return err
		}
		ev.EmailSentAt = sent
	}
	return nil
}

func (d *Dispatcher) markSent(ctx context.Context, ev *Event, column string) (*time.Time, error) {
	now := d.clock.Now()
	if err := d.db.WithContext(ctx).Model(&Event{}).
		Where("id = ?", ev.ID).
		Update(column, now).Error; err != nil {
		return nil, fmt.Errorf("mark %s: %w", column, err)
	}
	return &now, nil
}

func (d *Dispatcher) Start() {
	if d.interval <= 0 {
		return
	}
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				if _, err := d.DispatchPending(context.Background()); err != nil {
					d.log.Error("outbox dispatch failed", zap.Error(err))
				}
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
}
