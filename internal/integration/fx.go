package integration

import (
	"github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/integration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("integration.local",
	fx.Provide(service.New),
	fx.Provide(
		func(l *service.Local) domain.OrderService { return l },
		func(l *service.Local) domain.InvoiceService { return l },
		func(l *service.Local) domain.ProjectService { return l },
		func(l *service.Local) domain.AnalyticService { return l },
		func(l *service.Local) domain.PurchaseService { return l },
	),
)
