package payment

import (
	"github.com/natidev-sh/natiweb/internal/payment/adapters/stripe"
	"github.com/natidev-sh/natiweb/internal/payment/repository"
	"github.com/natidev-sh/natiweb/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewGateway),
	fx.Provide(service.NewService),
)
