package coupon

import (
	"github.com/natidev-sh/natiweb/internal/coupon/repository"
	"github.com/natidev-sh/natiweb/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
