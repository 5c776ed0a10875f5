package bus

import (
	"context"

	"go.uber.org/fx"
)

// Params are the optional dependencies Module draws from the container.
type Params struct {
	fx.In

	Options []Option `group:"bus.options"`
}

// Module returns the fx module providing a *Bus. opts are applied before
// any options supplied to the "bus.options" group. The bus starts with the
// application and is shut down with it.
func Module(opts ...Option) fx.Option {
	return fx.Module("msgbus",
		fx.Provide(func(p Params) (*Bus, error) {
			all := make([]Option, 0, len(opts)+len(p.Options))
			all = append(all, opts...)
			all = append(all, p.Options...)
			return New(all...)
		}),
		fx.Invoke(registerLifecycle),
	)
}

// AsOption annotates a constructor so its Option joins the "bus.options" group.
func AsOption(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"bus.options"`))
}

func registerLifecycle(lc fx.Lifecycle, b *Bus) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// The start context expires once startup completes; workers
			// live until OnStop.
			return b.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return b.Shutdown(ctx)
		},
	})
}
