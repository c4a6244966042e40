package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/keys"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/ingest/dto"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/ingest/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/ingest/usecase"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/verifier"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/deps"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/middleware"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/validator"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/wrapper"
)

type Handler struct {
	Logger     *logger.CanonicalLogger
	UseCase    usecase.UseCaseInterface
	Config     *config.IngestConfig
	Middleware *middleware.AuthMiddleware
}

func NewHandler(d deps.App, cfg *config.IngestConfig) *Handler {
	km := keys.NewManager(d.Database, cfg.KeyGrace)
	v := verifier.NewVerifier(d.Database, km, cfg.ClockSkew)
	q := queue.New(d.Database, 0)
	repo := repository.NewRepository(d.Database, d.Pub, km, v, q)

	uc := usecase.NewUseCase(usecase.UseCase{
		Repo:   repo,
		Config: cfg,
		Logger: d.Logger,
	})

	return Register(d, cfg, uc)
}

// Register mounts the routes on d.Fiber using uc.
func Register(d deps.App, cfg *config.IngestConfig, uc usecase.UseCaseInterface) *Handler {
	h := &Handler{
		Logger:     d.Logger,
		UseCase:    uc,
		Config:     cfg,
		Middleware: d.Middleware,
	}

	// Health check endpoint (no auth required)
	d.Fiber.Get("/health", h.health)

	v1 := d.Fiber.Group("/v1")

	// Agents authenticate with the payload signature
	v1.Post("/heartbeats", h.submitHeartbeat)

	// Owner dashboard endpoints. Middleware is attached per route: a group
	// would mount it on every /v1 path, operator routes included.
	basicAuth, ownerIdentity := d.Middleware.BasicAuth(), middleware.OwnerIdentity()
	owner := func(next fiber.Handler) []fiber.Handler {
		return []fiber.Handler{basicAuth, ownerIdentity, next}
	}
	v1.Post("/clusters/:id/keys/rotate", owner(h.rotateKey)...)
	v1.Get("/clusters/:id/jobs", owner(h.clusterJobs)...)
	v1.Get("/servers/:id/status", owner(h.serverStatus)...)
	v1.Get("/servers/:id/jobs", owner(h.serverJobs)...)
	v1.Post("/jobs/:id/retry", owner(h.retryJob)...)

	// Operator endpoints
	v1.Get("/queue/stats", d.Middleware.BasicAuthAdmin(), h.queueStats)

	return h
}

// submitHeartbeat godoc
// @Summary      Submit a signed heartbeat
// @Description  Verify a heartbeat signed with the cluster key and queue it for processing. Replayed payloads are answered as accepted.
// @Tags         heartbeats
// @Accept       json
// @Produce      json
// @Param        request body dto.HeartbeatRequest true "Signed heartbeat"
// @Success      202 {object} dto.HeartbeatResponse "Heartbeat accepted"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body"
// @Failure      401 {object} wrapper.JSONResult "unknown_key or invalid_signature"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /v1/heartbeats [post]
func (h *Handler) submitHeartbeat(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "submit_heartbeat"))

	req := new(dto.HeartbeatRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return respond(c, wrapper.ResponseFailed(fiber.StatusBadRequest, "invalid request body", nil))
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return respond(c, wrapper.ResponseFailed(fiber.StatusBadRequest, "validation failed", validator.TranslateError(err)))
	}

	return respond(c, h.UseCase.SubmitHeartbeat(c.UserContext(), req))
}

// rotateKey godoc
// @Summary      Rotate a cluster signing key
// @Description  Issue a new key version for the cluster. The private key is returned once and never stored.
// @Tags         clusters
// @Produce      json
// @Param        id path string true "Cluster ID"
// @Param        X-Owner-ID header string true "Acting owner account"
// @Success      200 {object} dto.RotateKeyResponse "New key issued"
// @Failure      403 {object} wrapper.JSONResult "Cluster belongs to another owner"
// @Failure      404 {object} wrapper.JSONResult "Cluster not found"
// @Failure      409 {object} wrapper.JSONResult "Concurrent rotation"
// @Router       /v1/clusters/{id}/keys/rotate [post]
// @Security     BasicAuth
func (h *Handler) rotateKey(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "rotate_key"))
	return respond(c, h.UseCase.RotateKey(c.UserContext(), middleware.OwnerID(c), c.Params("id")))
}

// serverStatus godoc
// @Summary      Server liveness
// @Description  Stored status and confidence plus a live re-resolution
// @Tags         servers
// @Produce      json
// @Param        id path string true "Server ID"
// @Param        X-Owner-ID header string true "Acting owner account"
// @Success      200 {object} dto.ServerStatusResponse
// @Failure      403 {object} wrapper.JSONResult
// @Failure      404 {object} wrapper.JSONResult
// @Router       /v1/servers/{id}/status [get]
// @Security     BasicAuth
func (h *Handler) serverStatus(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "server_status"))
	return respond(c, h.UseCase.ServerStatus(c.UserContext(), middleware.OwnerID(c), c.Params("id")))
}

// serverJobs godoc
// @Summary      Server job history
// @Tags         servers
// @Produce      json
// @Param        id path string true "Server ID"
// @Param        limit query int false "Maximum jobs to return"
// @Param        X-Owner-ID header string true "Acting owner account"
// @Success      200 {object} dto.ListJobsResponse
// @Failure      403 {object} wrapper.JSONResult
// @Failure      404 {object} wrapper.JSONResult
// @Router       /v1/servers/{id}/jobs [get]
// @Security     BasicAuth
func (h *Handler) serverJobs(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "server_jobs"))
	return respond(c, h.UseCase.ServerJobs(c.UserContext(), middleware.OwnerID(c), c.Params("id"), c.QueryInt("limit")))
}

// clusterJobs godoc
// @Summary      Cluster job history
// @Tags         clusters
// @Produce      json
// @Param        id path string true "Cluster ID"
// @Param        limit query int false "Maximum jobs to return"
// @Param        X-Owner-ID header string true "Acting owner account"
// @Success      200 {object} dto.ListJobsResponse
// @Failure      403 {object} wrapper.JSONResult
// @Failure      404 {object} wrapper.JSONResult
// @Router       /v1/clusters/{id}/jobs [get]
// @Security     BasicAuth
func (h *Handler) clusterJobs(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "cluster_jobs"))
	return respond(c, h.UseCase.ClusterJobs(c.UserContext(), middleware.OwnerID(c), c.Params("id"), c.QueryInt("limit")))
}

// retryJob godoc
// @Summary      Retry a flagged job
// @Description  Clear the failure flag so workers pick the job up again
// @Tags         jobs
// @Produce      json
// @Param        id path string true "Job ID"
// @Param        X-Owner-ID header string true "Acting owner account"
// @Success      200 {object} dto.RetryJobResponse
// @Failure      404 {object} wrapper.JSONResult
// @Failure      409 {object} wrapper.JSONResult "Job is not flagged"
// @Router       /v1/jobs/{id}/retry [post]
// @Security     BasicAuth
func (h *Handler) retryJob(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "retry_job"))
	return respond(c, h.UseCase.RetryJob(c.UserContext(), middleware.OwnerID(c), c.Params("id")))
}

// queueStats godoc
// @Summary      Queue depth
// @Description  Pending, claimed, flagged and processed job counts (admin only)
// @Tags         jobs
// @Produce      json
// @Success      200 {object} dto.QueueStatsResponse
// @Router       /v1/queue/stats [get]
// @Security     BasicAuth
func (h *Handler) queueStats(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "queue_stats"))
	return respond(c, h.UseCase.QueueStats(c.UserContext()))
}

// health godoc
// @Summary     Health check
// @Description Get ingest health status (unauthenticated)
// @Tags        health
// @Produce     json
// @Success     200 {object} map[string]string
// @Router      /health [get]
func (h *Handler) health(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "health_check"))

	return c.JSON(fiber.Map{"status": "healthy"})
}

// respond writes successes as their bare payload and failures as the full
// envelope so clients can read the rejection code.
func respond(c *fiber.Ctx, res wrapper.JSONResult) error {
	if res.Success {
		return c.Status(res.Code).JSON(res.Data)
	}
	return c.Status(res.Code).JSON(res)
}
