package commissionrule

import (
	"github.com/smallbiznis/payora/internal/commissionrule/repository"
	"github.com/smallbiznis/payora/internal/commissionrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commissionrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
