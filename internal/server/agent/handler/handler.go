package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/dto"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/usecase"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
)

const (
	StatusStarting = "starting"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// degradedAfter consecutive failed heartbeats turns /health into a 503.
const degradedAfter = 3

type Handler struct {
	useCase   usecase.IUseCase
	config    *config.AgentConfig
	startTime time.Time
}

func NewHandler(uc usecase.IUseCase, cfg *config.AgentConfig, startTime time.Time) *Handler {
	return &Handler{
		useCase:   uc,
		config:    cfg,
		startTime: startTime,
	}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "health_check"))

	s := h.useCase.State()
	response := dto.HealthResponse{
		Status:              StatusStarting,
		ServerID:            h.config.ServerID,
		ClusterID:           h.config.ClusterID,
		KeyVersion:          h.config.KeyVersion,
		Uptime:              time.Since(h.startTime).Truncate(time.Second).String(),
		LastNonce:           s.LastNonce,
		LastError:           s.LastError,
		Sent:                s.Sent,
		Failed:              s.Failed,
		ConsecutiveFailures: s.ConsecutiveFailures,
	}
	if s.LastSentAt != nil {
		response.LastSentAt = s.LastSentAt.Format(time.RFC3339)
	}

	statusCode := fiber.StatusAccepted
	switch {
	case s.ConsecutiveFailures >= degradedAfter:
		response.Status = StatusDegraded
		statusCode = fiber.StatusServiceUnavailable
	case s.LastSentAt != nil:
		response.Status = StatusHealthy
		statusCode = fiber.StatusOK
	}

	return c.Status(statusCode).JSON(response)
}
