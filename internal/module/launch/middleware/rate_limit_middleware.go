package middleware

import (
	"context"

	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func RateLimitMiddleware(rateLimiterService *service.RateLimiterService, logger zerolog.Logger) func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Method()) == fasthttp.MethodOptions {
				handleCors(ctx)
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}
			apiKey := string(ctx.Request.Header.Peek("X-API-KEY"))

			if apiKey == "" {
				apiKey = string(ctx.QueryArgs().Peek("x_api_key"))
			}

			if apiKey == "" && !shared.AllowApiKeyNil {
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetBody([]byte("Forbidden"))
				return
			}

			allowed, err := rateLimiterService.Allow(context.Background(), apiKey)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to check rate limiter")
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBody([]byte("Api key invalid"))
				return
			}

			if !allowed {
				ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
				ctx.SetBody([]byte("Too Many Requests"))
				return
			}

			next(ctx)
		}
	}
}

func handleCors(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, X-Extra-Header, Content-Type, Accept, Authorization")
	ctx.Response.Header.Set("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Cache-Control, Content-Language, Content-Type")
	ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
	ctx.SetContentType("application/json")
}
