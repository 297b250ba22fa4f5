package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/integration/domain"
	sequenceservice "github.com/smallbiznis/boqledger/internal/sequence/service"
	"github.com/smallbiznis/boqledger/internal/testutil"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)),
		Sequence: sequenceservice.New(sequenceservice.Params{
			Log:      zap.NewNop(),
			GenID:    node,
			Settings: testutil.Settings(),
		}),
	})
}

func TestInvoiceLifecycle(t *testing.T) {
	svc := newLocal(t)
	ctx := context.Background()
	orgID := snowflake.ID(1)
	account := snowflake.ID(99)

	invoice, err := svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{
		OrgID:     orgID,
		PartnerID: 5,
		Ref:       "PC/00001",
		Lines: []domain.LineRequest{
			{Name: "Concrete - 40.0% Completed", Quantity: 40, UnitPrice: 110, AnalyticDistribution: domain.Distribution(&account)},
			{Name: "Retention (RET 5%)", Quantity: -1, UnitPrice: 220},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV/00001", invoice.Name)
	assert.Equal(t, domain.MoveTypeOutInvoice, invoice.MoveType)
	assert.Equal(t, domain.InvoiceStatusDraft, invoice.Status)
	assert.InDelta(t, 4180.0, invoice.AmountTotal, 1e-9)

	stored, err := svc.GetInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.EqualValues(t, 100, stored.Lines[0].AnalyticDistribution[account.String()])

	_, err = svc.MarkInvoicePaid(ctx, orgID, invoice.ID)
	assert.True(t, apperror.IsUser(err))

	posted, err := svc.PostInvoice(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.True(t, posted.Status.Posted())

	paid, err := svc.MarkInvoicePaid(ctx, orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)
	assert.True(t, paid.Status.Posted())

	_, err = svc.GetInvoice(ctx, snowflake.ID(2), invoice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderConfirmIsIdempotent(t *testing.T) {
	svc := newLocal(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		OrgID:     1,
		PartnerID: 5,
		Origin:    "BOQ/00001",
		Lines:     []domain.LineRequest{{Name: "Earthworks", Quantity: 1, UnitPrice: 1000}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SO/00001", order.Name)

	first, err := svc.ConfirmOrder(ctx, 1, order.ID)
	require.NoError(t, err)
	second, err := svc.ConfirmOrder(ctx, 1, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, first.Status)
	assert.Equal(t, domain.OrderStatusConfirmed, second.Status)
}

func TestCreateRequiresPartnerAndLines(t *testing.T) {
	svc := newLocal(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{OrgID: 1, Lines: []domain.LineRequest{{Name: "x"}}})
	assert.ErrorIs(t, err, domain.ErrPartnerRequired)

	_, err = svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OrgID: 1, PartnerID: 5})
	assert.ErrorIs(t, err, domain.ErrNoLines)

	_, err = svc.CreatePurchaseOrder(ctx, domain.CreatePurchaseOrderRequest{
		OrgID:    1,
		VendorID: 6,
		Lines:    []domain.LineRequest{{Name: " "}},
	})
	assert.ErrorIs(t, err, domain.ErrLineName)
}

func TestPurchaseOrderLinkSubcontract(t *testing.T) {
	svc := newLocal(t)
	ctx := context.Background()
	product := snowflake.ID(11)
	source := snowflake.ID(500)

	po, err := svc.CreatePurchaseOrder(ctx, domain.CreatePurchaseOrderRequest{
		OrgID:         1,
		VendorID:      6,
		Currency:      "IDR",
		FromBoq:       true,
		SourceBoqID:   &source,
		ActivityIDs:   []snowflake.ID{700, 701},
		RetentionRule: "RET 5% Purchase",
		Lines:         []domain.LineRequest{{ProductID: &product, Name: "Structure - Rebar", Quantity: 3, UnitPrice: 80}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PO/00001", po.Name)

	confirmed, err := svc.ConfirmPurchaseOrder(ctx, 1, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusConfirmed, confirmed.Status)

	require.NoError(t, svc.LinkSubcontractBoq(ctx, 1, po.ID, 900))
	stored, err := svc.GetPurchaseOrder(ctx, 1, po.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SubcontractBoqID)
	assert.Equal(t, snowflake.ID(900), *stored.SubcontractBoqID)
	assert.Equal(t, []snowflake.ID{700, 701}, []snowflake.ID(stored.ActivityIDs))
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, product, stored.Lines[0].ProductID)

	assert.ErrorIs(t, svc.LinkSubcontractBoq(ctx, 1, 12345, 900), domain.ErrNotFound)
}

func TestWritesJoinContextTransaction(t *testing.T) {
	svc := newLocal(t)
	orgID := snowflake.ID(1)

	var orderID snowflake.ID
	err := svc.db.Transaction(func(tx *gorm.DB) error {
		ctx := txcontext.WithTx(context.Background(), tx)
		order, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
			OrgID:     orgID,
			PartnerID: 5,
			Lines:     []domain.LineRequest{{Name: "Earthworks", Quantity: 1, UnitPrice: 500}},
		})
		if err != nil {
			return err
		}
		orderID = order.ID
		return errors.New("aggregate save failed")
	})
	require.EqualError(t, err, "aggregate save failed")

	_, err = svc.GetOrder(context.Background(), orgID, orderID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
