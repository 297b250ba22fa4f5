package subcontract

import (
	"github.com/smallbiznis/boqledger/internal/subcontract/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subcontract.service",
	fx.Provide(service.New),
)
