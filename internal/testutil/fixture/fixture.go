// Package fixture wires the real services on an in-memory database for
// cross-package service tests.
package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	advancedomain "github.com/smallbiznis/boqledger/internal/advancepayment/domain"
	advanceservice "github.com/smallbiznis/boqledger/internal/advancepayment/service"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	auditrepository "github.com/smallbiznis/boqledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/boqledger/internal/audit/service"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	boqrepository "github.com/smallbiznis/boqledger/internal/boq/repository"
	boqservice "github.com/smallbiznis/boqledger/internal/boq/service"
	certificatedomain "github.com/smallbiznis/boqledger/internal/certificate/domain"
	certificaterepository "github.com/smallbiznis/boqledger/internal/certificate/repository"
	certificateservice "github.com/smallbiznis/boqledger/internal/certificate/service"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationservice "github.com/smallbiznis/boqledger/internal/integration/service"
	"github.com/smallbiznis/boqledger/internal/lock"
	margindomain "github.com/smallbiznis/boqledger/internal/margin/domain"
	marginservice "github.com/smallbiznis/boqledger/internal/margin/service"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	partnerrepository "github.com/smallbiznis/boqledger/internal/partner/repository"
	partnerservice "github.com/smallbiznis/boqledger/internal/partner/service"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	productrepository "github.com/smallbiznis/boqledger/internal/product/repository"
	productservice "github.com/smallbiznis/boqledger/internal/product/service"
	"github.com/smallbiznis/boqledger/internal/providers/pdf"
	sequencedomain "github.com/smallbiznis/boqledger/internal/sequence/domain"
	sequenceservice "github.com/smallbiznis/boqledger/internal/sequence/service"
	subcontractdomain "github.com/smallbiznis/boqledger/internal/subcontract/domain"
	subcontractservice "github.com/smallbiznis/boqledger/internal/subcontract/service"
	"github.com/smallbiznis/boqledger/internal/testutil"
	variationdomain "github.com/smallbiznis/boqledger/internal/variation/domain"
	variationrepository "github.com/smallbiznis/boqledger/internal/variation/repository"
	variationservice "github.com/smallbiznis/boqledger/internal/variation/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrgID is the company every fixture context is bound to.
const OrgID = 1001

type Fixture struct {
	Ctx      context.Context
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    *clock.FakeClock
	Settings *config.SettingsHolder
	Locker   lock.Locker

	Partners        partnerdomain.Service
	Products        productdomain.Service
	Sequence        sequencedomain.Service
	Integration     *integrationservice.Local
	Audit           auditdomain.Service
	Publisher       events.Publisher
	BoqRepo         boqdomain.Repository
	BoqLoads        *LoadRecorder
	Boq             boqdomain.Service
	Certificates    certificatedomain.Service
	Variations      variationdomain.Service
	AdvancePayments advancedomain.Service
	Margins         margindomain.Service
	Subcontracts    subcontractdomain.Service
}

func New(t *testing.T) *Fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	settings := testutil.Settings()

	f := &Fixture{
		Ctx:      orgcontext.WithOrgID(context.Background(), OrgID),
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Settings: settings,
		Locker:   lock.NewLocalLocker(),
		BoqLoads: &LoadRecorder{Repository: boqrepository.Provide()},
	}
	f.BoqRepo = f.BoqLoads
	f.Audit = auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})
	f.Partners = partnerservice.New(partnerservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     partnerrepository.Provide(db),
		AuditSvc: f.Audit,
	})
	f.Products = productservice.New(productservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  productrepository.Provide(),
	})
	f.Sequence = sequenceservice.New(sequenceservice.Params{
		Log:      log,
		GenID:    node,
		Settings: settings,
	})
	f.Integration = integrationservice.New(integrationservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Sequence: f.Sequence,
	})
	f.Publisher = events.NewOutboxPublisher(node, clk)
	f.Boq = boqservice.New(boqservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      f.BoqRepo,
		Locker:    f.Locker,
		Settings:  settings,
		Sequence:  f.Sequence,
		Products:  f.Products,
		Partners:  f.Partners,
		Orders:    f.Integration,
		Projects:  f.Integration,
		Analytics: f.Integration,
		Publisher: f.Publisher,
		AuditSvc:  f.Audit,
	})
	f.Certificates = certificateservice.New(certificateservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      certificaterepository.Provide(),
		BoqRepo:   f.BoqRepo,
		Locker:    f.Locker,
		Sequence:  f.Sequence,
		Partners:  f.Partners,
		Invoices:  f.Integration,
		Publisher: f.Publisher,
		PDF:       pdf.New(),
		AuditSvc:  f.Audit,
	})
	f.Variations = variationservice.New(variationservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      variationrepository.Provide(),
		BoqRepo:   f.BoqRepo,
		Locker:    f.Locker,
		Sequence:  f.Sequence,
		Products:  f.Products,
		Publisher: f.Publisher,
		AuditSvc:  f.Audit,
	})
	f.AdvancePayments = advanceservice.New(advanceservice.Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		BoqRepo:   f.BoqRepo,
		Locker:    f.Locker,
		Invoices:  f.Integration,
		Publisher: f.Publisher,
		AuditSvc:  f.Audit,
	})
	f.Margins = marginservice.New(marginservice.Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		BoqRepo:   f.BoqRepo,
		Locker:    f.Locker,
		Publisher: f.Publisher,
		AuditSvc:  f.Audit,
	})
	f.Subcontracts = subcontractservice.New(subcontractservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		BoqRepo:   f.BoqRepo,
		Locker:    f.Locker,
		Partners:  f.Partners,
		Purchases: f.Integration,
		Publisher: f.Publisher,
		AuditSvc:  f.Audit,
	})
	return f
}

// RequireLockedLoads asserts that every aggregate load since the last Reset
// took a row lock inside a transaction.
func (f *Fixture) RequireLockedLoads(t *testing.T) {
	t.Helper()
	loads := f.BoqLoads.Loads()
	require.NotEmpty(t, loads)
	for _, load := range loads {
		require.True(t, load.ForUpdate, "boq %s loaded without a row lock", load.BoqID)
		require.True(t, load.InTx, "boq %s loaded outside the write transaction", load.BoqID)
	}
}

func (f *Fixture) Customer(t *testing.T, name string) snowflake.ID {
	t.Helper()
	partner, err := f.Partners.Create(f.Ctx, partnerdomain.CreatePartnerRequest{Name: name, IsCustomer: true, IsVendor: true})
	require.NoError(t, err)
	return partner.ID
}

func (f *Fixture) Product(t *testing.T, code, name string, cost float64) *productdomain.Product {
	t.Helper()
	product, err := f.Products.Create(f.Ctx, productdomain.CreateRequest{Code: code, Name: name, StandardCost: cost})
	require.NoError(t, err)
	return product
}

// Line describes one sub-activity of a seeded BOQ.
type Line struct {
	Activity  string
	Product   *productdomain.Product
	MasterQty float64
	Cost      float64
	Margin    float64
}

// DraftBoq creates a draft client BOQ with the given lines, one activity per
// distinct activity name.
func (f *Fixture) DraftBoq(t *testing.T, customerID snowflake.ID, lines ...Line) *boqdomain.Project {
	t.Helper()
	p, err := f.Boq.Create(f.Ctx, boqdomain.CreateRequest{CustomerID: customerID})
	require.NoError(t, err)

	activities := map[string]snowflake.ID{}
	for _, line := range lines {
		activityID, ok := activities[line.Activity]
		if !ok {
			activity, err := f.Boq.AddActivity(f.Ctx, p.ID, boqdomain.ActivityInput{Name: line.Activity})
			require.NoError(t, err)
			activityID = activity.ID
			activities[line.Activity] = activityID
		}
		cost, margin := line.Cost, line.Margin
		_, err := f.Boq.AddSubActivity(f.Ctx, activityID, boqdomain.SubActivityInput{
			ProductID:     line.Product.ID,
			MasterQty:     line.MasterQty,
			ProductCost:   &cost,
			MarginPercent: &margin,
		})
		require.NoError(t, err)
	}

	p, err = f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	return p
}

// LiveBoq seeds a BOQ and moves it to in_progress through the quotation
// flow.
func (f *Fixture) LiveBoq(t *testing.T, customerID snowflake.ID, lines ...Line) *boqdomain.Project {
	t.Helper()
	p := f.DraftBoq(t, customerID, lines...)
	p, err := f.Boq.Submit(f.Ctx, p.ID)
	require.NoError(t, err)
	p, err = f.Boq.HandleOrderConfirmed(f.Ctx, *p.SaleOrderID)
	require.NoError(t, err)
	require.Equal(t, boqdomain.StatusInProgress, p.Status)
	return p
}

// SetCurrentQty records on-site progress on the named sub-activity.
func (f *Fixture) SetCurrentQty(t *testing.T, sub *boqdomain.SubActivity, qty float64) {
	t.Helper()
	_, err := f.Boq.UpdateSubActivity(f.Ctx, sub.ID, boqdomain.SubActivityUpdate{CurrentQty: &qty})
	require.NoError(t, err)
}
