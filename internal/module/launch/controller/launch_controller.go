package controller

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/launchlens/launch-lens/internal/module/launch/repository"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const listCacheTTL = 60 * time.Second

type LaunchController interface {
	ListLaunches(ctx *fasthttp.RequestCtx)
	GetLaunchByID(ctx *fasthttp.RequestCtx)
	IngestLaunch(ctx *fasthttp.RequestCtx)
	DeleteLaunch(ctx *fasthttp.RequestCtx)
	RescoreLaunch(ctx *fasthttp.RequestCtx)
	RefreshLaunchStats(ctx *fasthttp.RequestCtx)
	CheckHealthz(ctx *fasthttp.RequestCtx)
}

type launchController struct {
	launchRepo  repository.LaunchRepository
	gateway     service.LaunchGatewayService
	ingestion   service.IngestionService
	redisClient *shared.RedisClient
	logger      zerolog.Logger
}

func NewLaunchController(launchRepo repository.LaunchRepository, gateway service.LaunchGatewayService, ingestion service.IngestionService, redisClient *shared.RedisClient, logger zerolog.Logger) LaunchController {
	return &launchController{
		launchRepo:  launchRepo,
		gateway:     gateway,
		ingestion:   ingestion,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *launchController) respond(ctx *fasthttp.RequestCtx, code int, data interface{}, message string) {
	response := map[string]interface{}{
		"code":    code,
		"data":    data,
		"message": message,
	}

	responseBody, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Failed to serialize response ", fasthttp.StatusInternalServerError)
		return
	}

	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetBody(responseBody)
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
}

func (c *launchController) ListLaunches(ctx *fasthttp.RequestCtx) {
	filter := repository.LaunchFilter{
		Launchpad: string(ctx.QueryArgs().Peek("launchpad")),
		Chain:     string(ctx.QueryArgs().Peek("chain")),
		Status:    string(ctx.QueryArgs().Peek("status")),
	}
	if minRating, err := strconv.Atoi(string(ctx.QueryArgs().Peek("minRating"))); err == nil {
		filter.MinRating = &minRating
	}
	if limit, err := strconv.Atoi(string(ctx.QueryArgs().Peek("limit"))); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(string(ctx.QueryArgs().Peek("offset"))); err == nil {
		filter.Offset = offset
	}

	cacheKey := "list:" + string(ctx.QueryArgs().QueryString())
	if cached, err := c.redisClient.GetLaunchListCache(cacheKey); err == nil && cached != "" {
		ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
		ctx.Response.SetBody([]byte(cached))
		ctx.Response.SetStatusCode(fasthttp.StatusOK)
		return
	}

	records, total, err := c.launchRepo.List(filter)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to list launches")
		c.respond(ctx, 500, nil, "Failed to list launches")
		return
	}

	payload := map[string]interface{}{
		"code":    200,
		"data":    map[string]interface{}{"items": records, "total": total},
		"message": "Launches retrieved successfully",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.respond(ctx, 500, nil, "Failed to serialize response")
		return
	}
	c.redisClient.SetLaunchListCache(cacheKey, string(body), listCacheTTL)

	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetBody(body)
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
}

func (c *launchController) GetLaunchByID(ctx *fasthttp.RequestCtx) {
	id, err := strconv.ParseUint(ctx.UserValue("id").(string), 10, 64)
	if err != nil {
		c.respond(ctx, 400, nil, "Invalid launch id")
		return
	}

	record, err := c.launchRepo.GetByID(id)
	if err != nil {
		c.respond(ctx, 500, nil, "Failed to retrieve launch")
		return
	}
	if record == nil {
		c.respond(ctx, 404, nil, "Launch not found")
		return
	}

	c.respond(ctx, 200, record, "Launch retrieved successfully")
}

func (c *launchController) IngestLaunch(ctx *fasthttp.RequestCtx) {
	externalID := ctx.UserValue("externalId").(string)
	launchpad := string(ctx.QueryArgs().Peek("launchpad"))
	overwrite := string(ctx.QueryArgs().Peek("overwrite")) == "true"
	purge := string(ctx.QueryArgs().Peek("purge")) == "true"

	if launchpad == "" {
		c.respond(ctx, 400, nil, "launchpad query parameter is required")
		return
	}

	outcome, err := c.ingestion.ProcessOne(ctx, launchpad, externalID, overwrite, purge)
	if err != nil {
		if shared.IsNotFound(err) {
			c.respond(ctx, 404, nil, "Launch not found upstream")
			return
		}
		c.logger.Error().Err(err).Str("external_id", externalID).Msg("on-demand ingestion failed")
		c.respond(ctx, 500, nil, "Failed to ingest launch")
		return
	}

	c.respond(ctx, 200, map[string]interface{}{"action": outcome.Action, "record": outcome.Record}, "Launch ingested")
}

func (c *launchController) DeleteLaunch(ctx *fasthttp.RequestCtx) {
	var req struct {
		Title     string `json:"title"`
		Launchpad string `json:"launchpad"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Title == "" || req.Launchpad == "" {
		c.respond(ctx, 400, nil, "title and launchpad are required")
		return
	}

	if err := c.gateway.Delete(req.Title, req.Launchpad); err != nil {
		c.respond(ctx, 500, nil, "Failed to delete launch")
		return
	}

	c.respond(ctx, 200, nil, "Launch deleted successfully")
}

func (c *launchController) RescoreLaunch(ctx *fasthttp.RequestCtx) {
	id, err := strconv.ParseUint(ctx.UserValue("id").(string), 10, 64)
	if err != nil {
		c.respond(ctx, 400, nil, "Invalid launch id")
		return
	}

	record, err := c.gateway.Rescore(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			c.respond(ctx, 404, nil, "Launch not found")
			return
		}
		c.respond(ctx, 500, nil, "Failed to rescore launch")
		return
	}

	c.respond(ctx, 200, record, "Launch rescored successfully")
}

func (c *launchController) RefreshLaunchStats(ctx *fasthttp.RequestCtx) {
	id, err := strconv.ParseUint(ctx.UserValue("id").(string), 10, 64)
	if err != nil {
		c.respond(ctx, 400, nil, "Invalid launch id")
		return
	}

	record, err := c.gateway.RefreshTokenStats(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			c.respond(ctx, 404, nil, "Launch not found")
			return
		}
		c.logger.Error().Err(err).Uint64("id", id).Msg("token stats refresh failed")
		c.respond(ctx, 500, nil, "Failed to refresh token stats")
		return
	}

	c.respond(ctx, 200, record, "Token stats refreshed successfully")
}

func (c *launchController) CheckHealthz(ctx *fasthttp.RequestCtx) {
	c.respond(ctx, 200, "ok", "healthy")
}
