package usecase

import (
	"context"
	"net/http"
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/worker/dto"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/worker/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/wrapper"
)

type UseCaseInterface interface {
	Health(ctx context.Context) wrapper.JSONResult
}

type UseCase struct {
	repo     repository.IRepository
	workerID string
}

func NewUseCase(repo repository.IRepository, workerID string) *UseCase {
	return &UseCase{repo: repo, workerID: workerID}
}

// Health reports 503 when the database is unreachable, since no loop can
// claim work without it.
func (uc *UseCase) Health(ctx context.Context) wrapper.JSONResult {
	res := dto.HealthCheckResponse{
		Status:    "healthy",
		WorkerID:  uc.workerID,
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := uc.repo.Ping(ctx); err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		res.Status = "unhealthy"
		res.Database = err.Error()
		return wrapper.ResponseSuccess(http.StatusServiceUnavailable, res)
	}

	stats, err := uc.repo.QueueStats(ctx)
	if err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		res.Status = "degraded"
		return wrapper.ResponseSuccess(http.StatusOK, res)
	}
	res.Pending = stats.Pending
	res.Claimed = stats.Claimed
	res.Flagged = stats.Flagged
	res.OldestPendingAgeMs = stats.OldestPendingAge.Milliseconds()
	return wrapper.ResponseSuccess(http.StatusOK, res)
}
