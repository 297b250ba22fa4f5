package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/boqledger/internal/advancepayment"
	advancedomain "github.com/smallbiznis/boqledger/internal/advancepayment/domain"
	"github.com/smallbiznis/boqledger/internal/audit"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/authorization"
	"github.com/smallbiznis/boqledger/internal/boq"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/certificate"
	certificatedomain "github.com/smallbiznis/boqledger/internal/certificate/domain"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/integration"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/margin"
	margindomain "github.com/smallbiznis/boqledger/internal/margin/domain"
	"github.com/smallbiznis/boqledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/boqledger/internal/observability/logger"
	obstracing "github.com/smallbiznis/boqledger/internal/observability/tracing"
	"github.com/smallbiznis/boqledger/internal/partner"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	"github.com/smallbiznis/boqledger/internal/product"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	"github.com/smallbiznis/boqledger/internal/providers"
	"github.com/smallbiznis/boqledger/internal/ratelimit"
	"github.com/smallbiznis/boqledger/internal/sequence"
	"github.com/smallbiznis/boqledger/internal/subcontract"
	subcontractdomain "github.com/smallbiznis/boqledger/internal/subcontract/domain"
	"github.com/smallbiznis/boqledger/internal/variation"
	variationdomain "github.com/smallbiznis/boqledger/internal/variation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	providers.Module,
	integration.Module,
	sequence.Module,
	partner.Module,
	product.Module,
	boq.Module,
	certificate.Module,
	variation.Module,
	advancepayment.Module,
	margin.Module,
	subcontract.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	boqSvc         boqdomain.Service
	certificateSvc certificatedomain.Service
	variationSvc   variationdomain.Service
	advanceSvc     advancedomain.Service
	marginSvc      margindomain.Service
	subcontractSvc subcontractdomain.Service
	productSvc     productdomain.Service
	partnerSvc     partnerdomain.Service
	orders         integrationdomain.OrderService
	invoices       integrationdomain.InvoiceService
	purchases      integrationdomain.PurchaseService
	writeLimiter   *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	AuthzSvc       authorization.Service `optional:"true"`
	AuditSvc       auditdomain.Service
	BoqSvc         boqdomain.Service
	CertificateSvc certificatedomain.Service
	VariationSvc   variationdomain.Service
	AdvanceSvc     advancedomain.Service
	MarginSvc      margindomain.Service
	SubcontractSvc subcontractdomain.Service
	ProductSvc     productdomain.Service
	PartnerSvc     partnerdomain.Service
	Orders         integrationdomain.OrderService
	Invoices       integrationdomain.InvoiceService
	Purchases      integrationdomain.PurchaseService
	WriteLimiter   *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		boqSvc:         p.BoqSvc,
		certificateSvc: p.CertificateSvc,
		variationSvc:   p.VariationSvc,
		advanceSvc:     p.AdvanceSvc,
		marginSvc:      p.MarginSvc,
		subcontractSvc: p.SubcontractSvc,
		productSvc:     p.ProductSvc,
		partnerSvc:     p.PartnerSvc,
		orders:         p.Orders,
		invoices:       p.Invoices,
		purchases:      p.Purchases,
		writeLimiter:   p.WriteLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.OrgContext(), s.ActorContext(), s.WriteRateLimit())

	s.registerBoqRoutes(api)
	s.registerCertificateRoutes(api)
	s.registerVariationRoutes(api)
	s.registerWizardRoutes(api)
	s.registerIntegrationRoutes(api)
	s.registerCatalogRoutes(api)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	api.GET("/roles/me", s.GetMyRole)
	api.PUT("/roles/:actor_id", s.authorize(authorization.ObjectRole, authorization.ActionRoleAssign), s.AssignRole)
}

func (s *Server) registerBoqRoutes(api *gin.RouterGroup) {
	view := s.authorize(authorization.ObjectBoq, authorization.ActionBoqView)
	edit := s.authorize(authorization.ObjectBoq, authorization.ActionBoqEdit)
	transition := s.authorize(authorization.ObjectBoq, authorization.ActionBoqTransition)

	api.GET("/boqs", view, s.ListBoqs)
	api.POST("/boqs", edit, s.CreateBoq)
	api.GET("/boqs/:id", view, s.GetBoq)
	api.PATCH("/boqs/:id", edit, s.UpdateBoq)
	api.GET("/boqs/:id/export", s.authorize(authorization.ObjectBoq, authorization.ActionBoqExport), s.ExportBoq)

	api.POST("/boqs/:id/submit", transition, s.SubmitBoq)
	api.POST("/boqs/:id/approve", transition, s.ApproveBoq)
	api.POST("/boqs/:id/start", transition, s.StartBoq)
	api.POST("/boqs/:id/done", transition, s.MarkBoqDone)
	api.POST("/boqs/:id/cancel", transition, s.CancelBoq)
	api.POST("/boqs/:id/reset", transition, s.ResetBoq)

	api.POST("/boqs/:id/activities", edit, s.AddActivity)
	api.PATCH("/activities/:id", edit, s.UpdateActivity)
	api.DELETE("/activities/:id", edit, s.RemoveActivity)

	api.POST("/activities/:id/sub-activities", edit, s.AddSubActivity)
	api.PATCH("/sub-activities/:id", edit, s.UpdateSubActivity)
	api.DELETE("/sub-activities/:id", edit, s.RemoveSubActivity)

	api.POST("/sub-activities/:id/additional-costs", edit, s.AddAdditionalCost)
	api.DELETE("/additional-costs/:id", edit, s.RemoveAdditionalCost)
}

func (s *Server) registerCertificateRoutes(api *gin.RouterGroup) {
	view := s.authorize(authorization.ObjectCertificate, authorization.ActionCertificateView)
	edit := s.authorize(authorization.ObjectCertificate, authorization.ActionCertificateEdit)
	invoice := s.authorize(authorization.ObjectCertificate, authorization.ActionCertificateInvoice)

	api.GET("/certificates", view, s.ListCertificates)
	api.POST("/certificates", edit, s.CreateCertificate)
	api.POST("/boqs/:id/certificates", edit, s.CreateCertificateFromProgress)
	api.GET("/certificates/:id", view, s.GetCertificate)
	api.GET("/certificates/:id/invoice", view, s.ViewCertificateInvoice)
	api.GET("/certificates/:id/pdf", view, s.RenderCertificatePDF)

	api.POST("/certificates/:id/lines", edit, s.AddCertificateLine)
	api.PATCH("/certificate-lines/:id", edit, s.UpdateCertificateLine)
	api.DELETE("/certificate-lines/:id", edit, s.RemoveCertificateLine)
	api.POST("/certificates/:id/set-approved-amount", edit, s.SetCertificateApprovedAmount)

	api.POST("/certificates/:id/submit", s.authorize(authorization.ObjectCertificate, authorization.ActionCertificateSubmit), s.SubmitCertificate)
	api.POST("/certificates/:id/approve", s.authorize(authorization.ObjectCertificate, authorization.ActionCertificateApprove), s.ApproveCertificate)
	api.POST("/certificates/:id/invoice", invoice, s.InvoiceCertificate)
	api.POST("/certificates/:id/paid", invoice, s.MarkCertificatePaid)
}

func (s *Server) registerVariationRoutes(api *gin.RouterGroup) {
	view := s.authorize(authorization.ObjectVariation, authorization.ActionVariationView)
	edit := s.authorize(authorization.ObjectVariation, authorization.ActionVariationEdit)
	submit := s.authorize(authorization.ObjectVariation, authorization.ActionVariationSubmit)
	approve := s.authorize(authorization.ObjectVariation, authorization.ActionVariationApprove)

	api.GET("/variations", view, s.ListVariations)
	api.POST("/variations", edit, s.CreateVariation)
	api.GET("/variations/:id", view, s.GetVariation)
	api.PATCH("/variations/:id", edit, s.UpdateVariation)
	api.PUT("/variations/:id/approvers", edit, s.SetVariationApprovers)

	api.POST("/variations/:id/lines", edit, s.AddVariationLine)
	api.PATCH("/variation-lines/:id", edit, s.UpdateVariationLine)
	api.DELETE("/variation-lines/:id", edit, s.RemoveVariationLine)

	api.POST("/variations/:id/to-submit", submit, s.MarkVariationToSubmit)
	api.POST("/variations/:id/submit", submit, s.SubmitVariation)
	api.POST("/variations/:id/approve", approve, s.ApproveVariation)
	api.POST("/variations/:id/refuse", approve, s.RefuseVariation)
	api.POST("/variations/:id/cancel", edit, s.CancelVariation)
	api.POST("/variations/:id/apply", s.authorize(authorization.ObjectVariation, authorization.ActionVariationApply), s.ApplyVariation)
}

func (s *Server) registerWizardRoutes(api *gin.RouterGroup) {
	api.POST("/boqs/:id/advance-payment/preview", s.authorize(authorization.ObjectAdvancePayment, authorization.ActionAdvancePaymentView), s.PreviewAdvancePayment)
	api.POST("/boqs/:id/advance-payment", s.authorize(authorization.ObjectAdvancePayment, authorization.ActionAdvancePaymentInvoice), s.ConfirmAdvancePayment)

	api.POST("/boqs/:id/margin", s.authorize(authorization.ObjectMargin, authorization.ActionMarginApply), s.ApplyMargin)

	api.POST("/boqs/:id/subcontract/preview", s.authorize(authorization.ObjectSubcontract, authorization.ActionSubcontractView), s.PreviewSubcontract)
	api.POST("/boqs/:id/subcontract", s.authorize(authorization.ObjectSubcontract, authorization.ActionSubcontractOrder), s.CreateSubcontractOrder)
}

func (s *Server) registerIntegrationRoutes(api *gin.RouterGroup) {
	view := s.authorize(authorization.ObjectBoq, authorization.ActionBoqView)
	act := s.authorize(authorization.ObjectIntegration, authorization.ActionIntegrationAct)

	api.GET("/orders/:id", view, s.GetOrder)
	api.POST("/orders/:id/confirm", act, s.ConfirmOrder)

	api.GET("/invoices/:id", view, s.GetInvoice)
	api.POST("/invoices/:id/post", act, s.PostInvoice)
	api.POST("/invoices/:id/pay", act, s.PayInvoice)

	api.GET("/purchase-orders/:id", view, s.GetPurchaseOrder)
	api.POST("/purchase-orders/:id/confirm", s.authorize(authorization.ObjectSubcontract, authorization.ActionSubcontractOrder), s.ConfirmPurchaseOrder)
}

func (s *Server) registerCatalogRoutes(api *gin.RouterGroup) {
	view := s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogView)
	edit := s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogEdit)

	api.GET("/products", view, s.ListProducts)
	api.POST("/products", edit, s.CreateProduct)
	api.GET("/products/:id", view, s.GetProductByID)

	api.GET("/partners", view, s.ListPartners)
	api.POST("/partners", edit, s.CreatePartner)
	api.GET("/partners/:id", view, s.GetPartnerByID)

	api.GET("/cost-types", view, s.ListCostTypes)
	api.POST("/cost-types", edit, s.CreateCostType)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
