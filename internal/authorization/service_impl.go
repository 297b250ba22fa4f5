package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectBoq            = "boq"
	ObjectCertificate    = "certificate"
	ObjectVariation      = "variation"
	ObjectAdvancePayment = "advance_payment"
	ObjectMargin         = "margin"
	ObjectSubcontract    = "subcontract"
	ObjectCatalog        = "catalog"
	ObjectIntegration    = "integration"
	ObjectAuditLog       = "audit_log"
	ObjectRole           = "role"
)

const (
	ActionBoqView       = "boq.view"
	ActionBoqEdit       = "boq.edit"
	ActionBoqTransition = "boq.transition"
	ActionBoqExport     = "boq.export"

	ActionCertificateView    = "certificate.view"
	ActionCertificateEdit    = "certificate.edit"
	ActionCertificateSubmit  = "certificate.submit"
	ActionCertificateApprove = "certificate.approve"
	ActionCertificateInvoice = "certificate.invoice"

	ActionVariationView    = "variation.view"
	ActionVariationEdit    = "variation.edit"
	ActionVariationSubmit  = "variation.submit"
	ActionVariationApprove = "variation.approve"
	ActionVariationApply   = "variation.apply"

	ActionAdvancePaymentView    = "advance_payment.view"
	ActionAdvancePaymentInvoice = "advance_payment.invoice"

	ActionMarginApply = "margin.apply"

	ActionSubcontractView  = "subcontract.view"
	ActionSubcontractOrder = "subcontract.order"

	ActionCatalogView = "catalog.view"
	ActionCatalogEdit = "catalog.edit"

	ActionIntegrationAct = "integration.act"

	ActionAuditLogView = "audit_log.view"

	ActionRoleAssign = "role.assign"
)

const (
	RoleViewer    = "viewer"
	RoleEstimator = "estimator"
	RoleManager   = "manager"
	RoleOwner     = "owner"
	RoleSystem    = "system"
)

var assignableRoles = map[string]bool{
	RoleViewer:    true,
	RoleEstimator: true,
	RoleManager:   true,
	RoleOwner:     true,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db          *gorm.DB
	log         *zap.Logger
	enforcer    *casbin.SyncedEnforcer
	defaultRole string
	auditSvc    auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	defaultRole := strings.ToLower(strings.TrimSpace(p.Cfg.AuthzDefaultRole))
	if !assignableRoles[defaultRole] {
		defaultRole = RoleViewer
	}
	return &ServiceImpl{
		db:          p.DB,
		log:         p.Log.Named("authorization.service"),
		enforcer:    p.Enforcer,
		defaultRole: defaultRole,
		auditSvc:    p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, actorType, actorID, err := resolveActor(actor)
	if err != nil {
		return err
	}

	domain := orgDomain(orgID)
	if actorType == RoleSystem {
		if err := s.ensureGrouping(subject, roleName(RoleSystem), domain); err != nil {
			return err
		}
	} else if err := s.ensureDefaultRole(subject, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("org_id", orgID),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.audit(ctx, "authorization.denied", actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.audit(ctx, "authorization.granted", actorType, actorID, orgID, object, action)
	}
	return nil
}

// AssignRole replaces the actor's role within the company.
func (s *ServiceImpl) AssignRole(ctx context.Context, actor string, orgID string, role string) error {
	subject, actorType, actorID, err := resolveActor(strings.TrimSpace(actor))
	if err != nil {
		return err
	}
	if actorType == RoleSystem {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !assignableRoles[role] {
		return ErrInvalidRole
	}

	if err := s.ensureGrouping(subject, roleName(role), orgDomain(orgID)); err != nil {
		return err
	}
	s.log.Info("role assigned", zap.String("subject", subject), zap.String("org_id", orgID), zap.String("role", role))
	s.audit(ctx, "authorization.role_assigned", actorType, actorID, orgID, ObjectRole, role)
	return nil
}

func (s *ServiceImpl) RoleOf(ctx context.Context, actor string, orgID string) (string, error) {
	subject, actorType, _, err := resolveActor(strings.TrimSpace(actor))
	if err != nil {
		return "", err
	}
	if actorType == RoleSystem {
		return RoleSystem, nil
	}
	roles, err := s.enforcer.GetRolesForUser(subject, orgDomain(strings.TrimSpace(orgID)))
	if err != nil {
		return "", err
	}
	if len(roles) == 0 {
		return s.defaultRole, nil
	}
	return strings.TrimPrefix(roles[0], "role:"), nil
}

// resolveActor returns the casbin subject, actor type and actor id for
// "system" or "user:{id}".
func resolveActor(actor string) (string, string, *string, error) {
	if actor == RoleSystem {
		return actor, RoleSystem, nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userID := strings.TrimSpace(strings.TrimPrefix(actor, "user:"))
		if userID == "" {
			return "", "", nil, ErrInvalidActor
		}
		return "user:" + userID, "user", &userID, nil
	}
	return "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) ensureDefaultRole(subject string, domain string) error {
	roles, err := s.enforcer.GetRolesForUser(subject, domain)
	if err != nil {
		return err
	}
	if len(roles) > 0 {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName(s.defaultRole), domain)
	return err
}

func (s *ServiceImpl) ensureGrouping(subject string, role string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != role {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role, domain)
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, auditAction string, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      parsedOrgID,
		ActorType:  actorType,
		Action:     auditAction,
		TargetType: auditdomain.TargetAuthorization,
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	}
	if actorID != nil {
		entry.ActorID = *actorID
	}
	_ = s.auditSvc.Record(ctx, entry)
}

func orgDomain(orgID string) string {
	return fmt.Sprintf("org:%s", orgID)
}

func roleName(role string) string {
	return "role:" + role
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionVariationApprove, ActionVariationApply, ActionCertificateApprove, ActionRoleAssign:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	viewer := [][]string{
		{ObjectBoq, ActionBoqView},
		{ObjectCertificate, ActionCertificateView},
		{ObjectVariation, ActionVariationView},
		{ObjectAdvancePayment, ActionAdvancePaymentView},
		{ObjectSubcontract, ActionSubcontractView},
		{ObjectCatalog, ActionCatalogView},
		{ObjectBoq, ActionBoqExport},
	}
	estimator := append([][]string{
		{ObjectBoq, ActionBoqEdit},
		{ObjectBoq, ActionBoqTransition},
		{ObjectCertificate, ActionCertificateEdit},
		{ObjectCertificate, ActionCertificateSubmit},
		{ObjectVariation, ActionVariationEdit},
		{ObjectVariation, ActionVariationSubmit},
		{ObjectMargin, ActionMarginApply},
		{ObjectCatalog, ActionCatalogEdit},
	}, viewer...)
	manager := append([][]string{
		{ObjectCertificate, ActionCertificateApprove},
		{ObjectCertificate, ActionCertificateInvoice},
		{ObjectVariation, ActionVariationApprove},
		{ObjectVariation, ActionVariationApply},
		{ObjectAdvancePayment, ActionAdvancePaymentInvoice},
		{ObjectSubcontract, ActionSubcontractOrder},
		{ObjectIntegration, ActionIntegrationAct},
	}, estimator...)
	owner := append([][]string{
		{ObjectAuditLog, ActionAuditLogView},
		{ObjectRole, ActionRoleAssign},
	}, manager...)

	grants := map[string][][]string{
		RoleViewer:    viewer,
		RoleEstimator: estimator,
		RoleManager:   manager,
		RoleOwner:     owner,
		RoleSystem:    owner,
	}
	for role, rules := range grants {
		for _, rule := range rules {
			if _, err := enforcer.AddPolicy(roleName(role), rule[0], rule[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
