package margin

import (
	"github.com/smallbiznis/boqledger/internal/margin/service"
	"go.uber.org/fx"
)

var Module = fx.Module("margin.service",
	fx.Provide(service.New),
)
