package service_test

import (
	"testing"

	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/partner/domain"
	"github.com/smallbiznis/boqledger/internal/testutil/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateValidatesPartner(t *testing.T) {
	f := fixture.New(t)

	_, err := f.Partners.Create(f.Ctx, domain.CreatePartnerRequest{Name: " ", IsCustomer: true})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.Partners.Create(f.Ctx, domain.CreatePartnerRequest{Name: "PT Beton", Email: "nope", IsVendor: true})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.Partners.Create(f.Ctx, domain.CreatePartnerRequest{Name: "PT Beton"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestCreateAuditsWithMaskedEmail(t *testing.T) {
	f := fixture.New(t)

	partner, err := f.Partners.Create(f.Ctx, domain.CreatePartnerRequest{
		Name:     "PT Beton Jaya",
		Email:    "finance@betonjaya.co.id",
		IsVendor: true,
	})
	require.NoError(t, err)

	resp, err := f.Audit.List(f.Ctx, auditdomain.ListAuditLogRequest{
		TargetType: auditdomain.TargetPartner,
		TargetID:   partner.ID.String(),
	})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "partner.created", resp.AuditLogs[0].Action)
	assert.Equal(t, "f****@betonjaya.co.id", resp.AuditLogs[0].Metadata["email"])
	assert.Equal(t, "PT Beton Jaya", resp.AuditLogs[0].Metadata["name"])
}

func TestListFiltersByRole(t *testing.T) {
	f := fixture.New(t)

	_, err := f.Partners.Create(f.Ctx, domain.CreatePartnerRequest{Name: "Owner Co", IsCustomer: true})
	require.NoError(t, err)
	_, err = f.Partners.Create(f.Ctx, domain.CreatePartnerRequest{Name: "Rebar Supplier", IsVendor: true})
	require.NoError(t, err)

	vendors, err := f.Partners.List(f.Ctx, domain.ListPartnerRequest{Role: domain.RoleVendor})
	require.NoError(t, err)
	require.Len(t, vendors.Partners, 1)
	assert.Equal(t, "Rebar Supplier", vendors.Partners[0].Name)

	_, err = f.Partners.List(f.Ctx, domain.ListPartnerRequest{Role: "broker"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}
