package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/launchlens/launch-lens/internal/application"
	"github.com/launchlens/launch-lens/internal/bootstrap"
	"github.com/launchlens/launch-lens/internal/database"
	"github.com/launchlens/launch-lens/internal/module/launch"
	"github.com/launchlens/launch-lens/internal/module/scheduler"

	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/launchlens/launch-lens/internal/router"
	fxzerolog "github.com/efectn/fx-zerolog"
	_ "go.uber.org/automaxprocs"
)

func main() {
	fx.New(
		/* provide patterns */
		// basic
		shared.NewSharedModule,
		scheduler.NewSchedulerModule,
		// application
		fx.Provide(application.NewApplication),
		// database
		fx.Provide(database.NewDatabase),
		// router
		fx.Provide(router.NewRouter),
		/* provide modules */
		launch.NewLaunchModule,
		// start aplication
		fx.Invoke(bootstrap.Start),
		// define logger
		fx.WithLogger(fxzerolog.Init()),
		// invoke scheduler tasks
		fx.Invoke(func(s *scheduler.Scheduler) {
			go s.StartLaunchIngestion()
		}),
	).Run()

	fx.StartTimeout(10 * time.Minute)
}
