package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
)

// routeParamFields maps route parameters onto canonical log keys. The key
// depends on the route: /v1/servers/:id logs server_id, /v1/jobs/:id job_id.
var routeParamFields = map[string]string{
	"/v1/servers/:id/status":       logger.FieldServerID,
	"/v1/servers/:id/jobs":         logger.FieldServerID,
	"/v1/clusters/:id/jobs":        logger.FieldClusterID,
	"/v1/clusters/:id/keys/rotate": logger.FieldClusterID,
	"/v1/jobs/:id/retry":           logger.FieldJobID,
}

// CanonicalLoggerMiddleware writes one line per request. Handlers and usecases
// enrich it through logger.AddToContext; the acting owner and the server,
// cluster or job named in the path are added here.
func CanonicalLoggerMiddleware(log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logCtx := logger.NewLogContext()
		c.Locals("log_context", logCtx)
		c.SetUserContext(logger.WithLogContext(c.UserContext(), logCtx))

		if id, ok := c.Locals("requestid").(string); ok {
			logCtx.AddField(zap.String(logger.FieldRequestID, id))
		}

		start := time.Now()
		defer func() {
			duration := time.Since(start)
			status := c.Response().StatusCode()
			route := c.Route().Path

			fields := []zap.Field{
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			}
			if key, ok := routeParamFields[route]; ok {
				fields = append(fields, zap.String(key, c.Params("id")))
			}
			fields = append(fields, logCtx.Fields()...)

			switch {
			case status >= http.StatusInternalServerError:
				log.Error("http_request", fields...)
			case status == http.StatusUnauthorized && route == "/v1/heartbeats":
				// signature and key failures from agents
				log.Warn("heartbeat_rejected", fields...)
			case status >= http.StatusBadRequest:
				log.Info("http_request_client_error", fields...)
			default:
				log.Info("http_request", fields...)
			}
		}()

		return c.Next()
	}
}
