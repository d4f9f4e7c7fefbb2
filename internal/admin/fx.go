package admin

import "go.uber.org/fx"

var Module = fx.Module("admin.service",
	fx.Provide(NewService),
)
