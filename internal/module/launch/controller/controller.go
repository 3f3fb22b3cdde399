package controller

import (
	"github.com/launchlens/launch-lens/internal/module/launch/repository"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
)

type Controller struct {
	Launch LaunchController
}

func NewController(
	launchRepo repository.LaunchRepository,
	gateway service.LaunchGatewayService,
	ingestion service.IngestionService,
	redisClient *shared.RedisClient,
	logger zerolog.Logger) *Controller {
	return &Controller{
		Launch: NewLaunchController(launchRepo, gateway, ingestion, redisClient, logger),
	}
}
