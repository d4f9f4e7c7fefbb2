package identity

import (
	"github.com/natidev-sh/natiweb/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity.client",
	fx.Provide(
		NewClient,
		func(c *Client) Admin { return c },
		func(cfg config.Config, c *Client, log *zap.Logger) Verifier {
			return NewTokenVerifier(cfg.Identity.JWTSecret, c, log)
		},
	),
)
