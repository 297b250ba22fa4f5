package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewOutboxPublisher),
	fx.Provide(NewDispatcher),
)

// DispatcherModule runs the dispatcher for the lifetime of the application.
var DispatcherModule = fx.Module("events.dispatcher",
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				d.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				d.Stop()
				return nil
			},
		})
	}),
)
