package launch

import (
	"github.com/launchlens/launch-lens/internal/application"
	"github.com/launchlens/launch-lens/internal/module/launch/controller"
	"github.com/launchlens/launch-lens/internal/module/launch/middleware"
	"github.com/launchlens/launch-lens/internal/module/launch/repository"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// struct of LaunchRouter
type LaunchRouter struct {
	App                *application.Application
	Controller         *controller.Controller
	RateLimiterService *service.RateLimiterService
	Logger             zerolog.Logger
}

// register bulky of launch module
var NewLaunchModule = fx.Options(
	// register repository of launch module
	fx.Provide(repository.NewLaunchRepository),

	fx.Provide(service.NewChainClients),
	fx.Provide(service.NewLinkGenerators),
	fx.Provide(service.NewContentFetcherService),
	fx.Provide(service.NewLaunchpadAPIService),
	fx.Provide(service.NewNormalizerService),
	fx.Provide(service.NewLLMService),
	fx.Provide(service.NewNotifierService),
	fx.Provide(service.NewLaunchGatewayService),
	fx.Provide(service.NewIngestionService),
	fx.Provide(service.NewRateLimiterService),

	// register controller of launch module
	fx.Provide(controller.NewController),

	fx.Provide(NewLaunchRouter),

	fx.Provide(func(repo repository.LaunchRepository) shared.LaunchChecker {
		return repo
	}),
	fx.Provide(func(redisClient *shared.RedisClient) service.LaunchSignalStore {
		return redisClient
	}),
	fx.Provide(func(throttler *shared.LaunchThrottler) service.LaunchThrottle {
		return throttler
	}),
	fx.Provide(func(slackClient *shared.SlackClient) service.ErrorAlerter {
		return slackClient
	}),
)

// init LaunchRouter
func NewLaunchRouter(app *application.Application, controller *controller.Controller, rateLimiterService *service.RateLimiterService, logger zerolog.Logger) *LaunchRouter {
	return &LaunchRouter{
		App:                app,
		Controller:         controller,
		RateLimiterService: rateLimiterService,
		Logger:             logger,
	}
}

// register routes of launch module
func (_i *LaunchRouter) RegisterLaunchRoutes() {
	launchController := _i.Controller.Launch

	rateLimitMiddleware := middleware.RateLimitMiddleware(_i.RateLimiterService, _i.Logger)

	_i.App.Router.GET("/launches", rateLimitMiddleware(launchController.ListLaunches))
	_i.App.Router.GET("/launches/{id}", rateLimitMiddleware(launchController.GetLaunchByID))

	_i.App.Router.POST("/launches/ingest/{externalId}", launchController.IngestLaunch)
	_i.App.Router.POST("/launches/delete", launchController.DeleteLaunch)
	_i.App.Router.POST("/launches/rescore/{id}", launchController.RescoreLaunch)
	_i.App.Router.POST("/launches/refreshStats/{id}", launchController.RefreshLaunchStats)

	_i.App.Router.GET("/k8s/healthz", launchController.CheckHealthz)
}
