package apikey

import (
	"github.com/natidev-sh/natiweb/internal/apikey/repository"
	"github.com/natidev-sh/natiweb/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
