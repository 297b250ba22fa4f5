package variation

import (
	"github.com/smallbiznis/boqledger/internal/variation/repository"
	"github.com/smallbiznis/boqledger/internal/variation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("variation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
