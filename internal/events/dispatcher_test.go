package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockSlack struct {
	mock.Mock
}

func (m *mockSlack) PostMessage(ctx context.Context, channelID string, message string) error {
	args := m.Called(ctx, channelID, message)
	return args.Error(0)
}

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

func setupDispatcher(t *testing.T, slackProvider *mockSlack, emailProvider *mockEmail) (*Dispatcher, Publisher, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:events_dispatcher?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&Event{}))
	require.NoError(t, db.AutoMigrate(&Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC))

	cfg := config.Config{SMTP: config.SMTPConfig{To: []string{"pm@site.local"}}}
	d := NewDispatcher(DispatcherParams{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   cfg,
		Clock: clk,
		Slack: slackProvider,
		Email: emailProvider,
	})
	return d, NewOutboxPublisher(node, clk), db
}

func TestDispatchPendingDeliversNotification(t *testing.T) {
	slackProvider := &mockSlack{}
	emailProvider := &mockEmail{}
	d, pub, db := setupDispatcher(t, slackProvider, emailProvider)
	ctx := context.Background()

	msg := "Variation VO/00001 has been successfully applied to BOQ BOQ/00001."
	require.NoError(t, pub.Publish(ctx, db, 1, TopicVariationApplied, map[string]any{
		"message": msg,
		"subject": "Variation applied",
	}))
	require.NoError(t, pub.Publish(ctx, db, 1, TopicCertificateSubmitted, map[string]any{"certificate_id": "9"}))

	slackProvider.On("PostMessage", mock.Anything, "", msg).Return(nil).Once()
	emailProvider.On("Send", mock.Anything, []string{"pm@site.local"}, "Variation applied", "<p>"+msg+"</p>").Return(nil).Once()

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var remaining int64
	require.NoError(t, db.Model(&Event{}).Where("published_at IS NULL").Count(&remaining).Error)
	assert.Zero(t, remaining)

	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	slackProvider.AssertExpectations(t)
	emailProvider.AssertExpectations(t)
}

func TestDispatchPendingRecordsFailure(t *testing.T) {
	slackProvider := &mockSlack{}
	emailProvider := &mockEmail{}
	d, pub, db := setupDispatcher(t, slackProvider, emailProvider)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, db, 1, TopicVariationApplied, map[string]any{"message": "applied"}))
	slackProvider.On("PostMessage", mock.Anything, "", "applied").Return(errors.New("boom"))

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var ev Event
	require.NoError(t, db.First(&ev).Error)
	assert.Equal(t, 1, ev.Attempts)
	assert.Nil(t, ev.PublishedAt)
	require.NotNil(t, ev.LastError)
	assert.Contains(t, *ev.LastError, "boom")
	emailProvider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryDoesNotRepostDeliveredChannel(t *testing.T) {
	slackProvider := &mockSlack{}
	emailProvider := &mockEmail{}
	d, pub, db := setupDispatcher(t, slackProvider, emailProvider)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, db, 1, TopicBoqApproved, map[string]any{
		"message": "BOQ BOQ/00001 approved",
		"subject": "BOQ approved",
	}))

	slackProvider.On("PostMessage", mock.Anything, "", "BOQ BOQ/00001 approved").Return(nil).Once()
	emailProvider.On("Send", mock.Anything, mock.Anything, "BOQ approved", mock.Anything).Return(errors.New("smtp down")).Once()

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var ev Event
	require.NoError(t, db.First(&ev).Error)
	assert.NotNil(t, ev.SlackSentAt)
	assert.Nil(t, ev.EmailSentAt)
	assert.Nil(t, ev.ClaimedUntil)
	assert.Equal(t, 1, ev.Attempts)

	emailProvider.On("Send", mock.Anything, mock.Anything, "BOQ approved", mock.Anything).Return(nil).Once()

	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.First(&ev).Error)
	assert.NotNil(t, ev.PublishedAt)
	assert.NotNil(t, ev.EmailSentAt)
	slackProvider.AssertNumberOfCalls(t, "PostMessage", 1)
	emailProvider.AssertNumberOfCalls(t, "Send", 2)
}

func TestClaimedEventIsSkippedUntilLeaseExpires(t *testing.T) {
	slackProvider := &mockSlack{}
	emailProvider := &mockEmail{}
	d, pub, db := setupDispatcher(t, slackProvider, emailProvider)
	ctx := context.Background()
	clk := d.clock.(*clock.FakeClock)

	require.NoError(t, pub.Publish(ctx, db, 1, TopicMarginApplied, map[string]any{"message": "margin set"}))

	// another dispatcher holds the row
	held := clk.Now().Add(time.Minute)
	require.NoError(t, db.Model(&Event{}).Where("1 = 1").Update("claimed_until", held).Error)

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	slackProvider.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything)

	clk.Advance(2 * time.Minute)
	slackProvider.On("PostMessage", mock.Anything, "", "margin set").Return(nil).Once()
	emailProvider.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	slackProvider.AssertExpectations(t)
}
