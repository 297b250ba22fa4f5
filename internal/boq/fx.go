package boq

import (
	"github.com/smallbiznis/boqledger/internal/boq/repository"
	"github.com/smallbiznis/boqledger/internal/boq/service"
	"go.uber.org/fx"
)

var Module = fx.Module("boq.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
