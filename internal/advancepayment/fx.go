package advancepayment

import (
	"github.com/smallbiznis/boqledger/internal/advancepayment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("advancepayment.service",
	fx.Provide(service.New),
)
