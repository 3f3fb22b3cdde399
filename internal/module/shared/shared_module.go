package shared

import (
	"go.uber.org/fx"
)

var NewSharedModule = fx.Options(
	fx.Provide(NewKoanfInstance),
	fx.Provide(NewLogger),
	fx.Provide(NewRedisClient),
	fx.Provide(NewSlackClient),
	fx.Invoke(LoadEnv),
	fx.Provide(NewLaunchThrottler),
)
