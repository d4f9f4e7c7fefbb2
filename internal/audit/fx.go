package audit

import (
	"github.com/natidev-sh/natiweb/internal/audit/repository"
	"github.com/natidev-sh/natiweb/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
