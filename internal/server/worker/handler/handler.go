package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/worker/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/worker/usecase"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/deps"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
)

type Handler struct {
	Logger  *logger.CanonicalLogger
	UseCase usecase.UseCaseInterface
}

func NewHandler(d deps.App, q *queue.Queue, workerID string) *Handler {
	repo := repository.NewRepository(d.Database, q)
	uc := usecase.NewUseCase(repo, workerID)

	h := &Handler{
		UseCase: uc,
		Logger:  d.Logger,
	}

	d.Fiber.Get("/health", h.healthCheck)

	return h
}

// healthCheck godoc
// @Summary     Health check
// @Description Worker liveness with database reachability and queue depth
// @Tags        health
// @Produce     json
// @Success     200 {object} dto.HealthCheckResponse
// @Failure     503 {object} dto.HealthCheckResponse
// @Router      /health [get]
func (h *Handler) healthCheck(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "health_check"))

	res := h.UseCase.Health(c.UserContext())
	return c.Status(res.Code).JSON(res.Data)
}
