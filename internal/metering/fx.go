package metering

import "go.uber.org/fx"

var Module = fx.Module("metering.client",
	fx.Provide(
		NewClient,
		func(c *Client) Gateway { return c },
	),
)
