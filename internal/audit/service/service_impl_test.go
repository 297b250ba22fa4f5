package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/audit/repository"
	"github.com/smallbiznis/boqledger/internal/auditcontext"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:audit_service?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&auditdomain.AuditLog{}))
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}), clk
}

func TestAuditLogResolvesContext(t *testing.T) {
	svc, _ := newTestService(t)
	orgID := snowflake.ID(42)

	ctx := orgcontext.WithOrgID(context.Background(), int64(orgID))
	ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeUser, "1001")
	ctx = auditcontext.WithRequestMeta(ctx, "req-1", "10.0.0.1", "curl/8")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     "certificate.submitted",
		TargetType: auditdomain.TargetCertificate,
		TargetID:   "7",
		Metadata:   map[string]any{"amount_invoice": 1500.0},
	}))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "1001", *entry.ActorID)
	require.NotNil(t, entry.OrgID)
	assert.Equal(t, orgID, *entry.OrgID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "7", *entry.TargetID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Record(context.Background(), auditdomain.Entry{Action: "  ", TargetType: auditdomain.TargetBoq})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	for _, action := range []string{"boq.submitted", "boq.approved", "boq.in_progress"} {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: action, TargetType: auditdomain.TargetBoq}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "boq.in_progress", first.AuditLogs[0].Action)
	assert.Equal(t, "boq.approved", first.AuditLogs[1].Action)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.Equal(t, "boq.submitted", second.AuditLogs[0].Action)
	assert.False(t, second.HasMore)
}

func TestRecordMasksPartnerContact(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     "partner.created",
		TargetType: auditdomain.TargetPartner,
		Metadata:   map[string]any{"name": "PT Beton", "email": "ops@beton.id"},
	}))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetPartner})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "o****@beton.id", resp.AuditLogs[0].Metadata["email"])
	assert.Equal(t, "system", resp.AuditLogs[0].ActorType)
}

func TestListRequiresOrganization(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}
