package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/keys"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/ingest/dto"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/ingest/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/status"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/verifier"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/wrapper"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
)

type UseCase struct {
	Repo   repository.IRepository
	Config *config.IngestConfig
	Logger *logger.CanonicalLogger
	Now    func() time.Time
}

type UseCaseInterface interface {
	SubmitHeartbeat(ctx context.Context, req *dto.HeartbeatRequest) wrapper.JSONResult
	RotateKey(ctx context.Context, ownerID, clusterID string) wrapper.JSONResult
	ServerStatus(ctx context.Context, ownerID, serverID string) wrapper.JSONResult
	ServerJobs(ctx context.Context, ownerID, serverID string, limit int) wrapper.JSONResult
	ClusterJobs(ctx context.Context, ownerID, clusterID string, limit int) wrapper.JSONResult
	RetryJob(ctx context.Context, ownerID, jobID string) wrapper.JSONResult
	QueueStats(ctx context.Context) wrapper.JSONResult
}

func NewUseCase(uc UseCase) *UseCase {
	if uc.Now == nil {
		uc.Now = time.Now
	}
	return &uc
}

// SubmitHeartbeat answers 202 for accepted and replayed payloads alike.
// Replays are only visible in logs; authentication failures get a 401 with
// the rejection code.
func (uc *UseCase) SubmitHeartbeat(ctx context.Context, req *dto.HeartbeatRequest) wrapper.JSONResult {
	logger.AddToContext(ctx,
		logger.String(logger.FieldServerID, req.ServerID),
		logger.String(logger.FieldClusterID, req.ClusterID),
		logger.Int(logger.FieldKeyVersion, req.KeyVersion),
		logger.Int64(logger.FieldNonce, req.Nonce),
	)

	res, err := uc.Repo.IngestHeartbeat(ctx, req.Payload())
	if err != nil {
		reason := verifier.Reason(err)
		switch {
		case verifier.IsAuthenticationError(err):
			logger.AddToContext(ctx, logger.String(logger.FieldRejection, reason), logger.Err(err))
			return wrapper.ResponseRejected(http.StatusUnauthorized, reason, "heartbeat rejected")
		case errors.Is(err, verifier.ErrStaleOrReplayed):
			logger.AddToContext(ctx, logger.String(logger.FieldRejection, reason))
			uc.Logger.Warn("heartbeat dropped as stale or replayed",
				logger.String(logger.FieldServerID, req.ServerID),
				logger.Int64(logger.FieldNonce, req.Nonce),
				logger.Err(err),
			)
			return wrapper.ResponseSuccess(http.StatusAccepted, dto.HeartbeatResponse{Status: "accepted"})
		}
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to ingest heartbeat", nil)
	}

	logger.AddToContext(ctx,
		logger.String(logger.FieldJobID, res.JobID),
		logger.Bool(logger.FieldCoalesced, res.Coalesced),
	)
	if !res.Coalesced {
		if err := uc.Repo.PublishJobEnqueued(ctx, res.JobID); err != nil {
			uc.Logger.Warn("failed to publish job notification", logger.String(logger.FieldJobID, res.JobID), logger.Err(err))
		}
	}
	return wrapper.ResponseSuccess(http.StatusAccepted, dto.HeartbeatResponse{Status: "accepted"})
}

func (uc *UseCase) RotateKey(ctx context.Context, ownerID, clusterID string) wrapper.JSONResult {
	logger.AddToContext(ctx, logger.String(logger.FieldClusterID, clusterID))

	kp, err := uc.Repo.RotateKey(ctx, clusterID, ownerID)
	switch {
	case errors.Is(err, keys.ErrNotFound):
		return wrapper.ResponseFailed(http.StatusNotFound, "cluster not found", nil)
	case errors.Is(err, keys.ErrForbidden):
		return wrapper.ResponseFailed(http.StatusForbidden, "cluster belongs to another owner", nil)
	case errors.Is(err, keys.ErrRotationConflict):
		return wrapper.ResponseFailed(http.StatusConflict, "concurrent key rotation, retry", nil)
	case err != nil:
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to rotate key", nil)
	}

	// never log the private key
	logger.AddToContext(ctx, logger.Int(logger.FieldKeyVersion, kp.Version), logger.String("fingerprint", kp.Fingerprint))
	return wrapper.ResponseSuccess(http.StatusOK, dto.RotateKeyResponse{
		ClusterID:   kp.ClusterID,
		KeyVersion:  kp.Version,
		PublicKey:   kp.PublicKey,
		Fingerprint: kp.Fingerprint,
		PrivateKey:  string(kp.PrivateKeyPEM),
		Warning:     kp.Warning,
		RotatedAt:   uc.Now().UTC(),
	})
}

func (uc *UseCase) ServerStatus(ctx context.Context, ownerID, serverID string) wrapper.JSONResult {
	server, res := uc.ownedServer(ctx, ownerID, serverID)
	if server == nil {
		return res
	}

	var cluster *models.Cluster
	if server.ClusterID != nil {
		c, err := uc.Repo.GetCluster(ctx, *server.ClusterID)
		if err != nil && !errors.Is(err, repository.ErrClusterNotFound) {
			logger.AddToContext(ctx, logger.Err(err))
			return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to load cluster", nil)
		}
		cluster = c
	}
	live := status.Resolve(server.LastSeenAt, uc.Now().UTC(), status.ForCluster(cluster, uc.Config.Status))

	out := dto.ServerStatusResponse{
		ServerID:        server.ID,
		Status:          string(server.Status),
		Confidence:      string(server.Confidence),
		LastSeenAt:      server.LastSeenAt,
		StatusChangedAt: server.StatusChangedAt,
		PlayerCount:     server.PlayerCount,
		Capacity:        server.Capacity,
		LiveStatus:      string(live.Status),
		LiveConfidence:  string(live.Confidence),
	}
	if server.ClusterID != nil {
		out.ClusterID = *server.ClusterID
	}
	return wrapper.ResponseSuccess(http.StatusOK, out)
}

func (uc *UseCase) ServerJobs(ctx context.Context, ownerID, serverID string, limit int) wrapper.JSONResult {
	if server, res := uc.ownedServer(ctx, ownerID, serverID); server == nil {
		return res
	}
	jobs, err := uc.Repo.ListServerJobs(ctx, serverID, clampLimit(limit))
	if err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to list jobs", nil)
	}
	return wrapper.ResponseSuccess(http.StatusOK, toJobList(jobs))
}

func (uc *UseCase) ClusterJobs(ctx context.Context, ownerID, clusterID string, limit int) wrapper.JSONResult {
	logger.AddToContext(ctx, logger.String(logger.FieldClusterID, clusterID))

	cluster, err := uc.Repo.GetCluster(ctx, clusterID)
	switch {
	case errors.Is(err, repository.ErrClusterNotFound):
		return wrapper.ResponseFailed(http.StatusNotFound, "cluster not found", nil)
	case err != nil:
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to load cluster", nil)
	case cluster.OwnerID != ownerID:
		return wrapper.ResponseFailed(http.StatusForbidden, "cluster belongs to another owner", nil)
	}

	jobs, err := uc.Repo.ListClusterJobs(ctx, clusterID, clampLimit(limit))
	if err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to list jobs", nil)
	}
	return wrapper.ResponseSuccess(http.StatusOK, toJobList(jobs))
}

func (uc *UseCase) RetryJob(ctx context.Context, ownerID, jobID string) wrapper.JSONResult {
	logger.AddToContext(ctx, logger.String(logger.FieldJobID, jobID))

	job, err := uc.Repo.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		return wrapper.ResponseFailed(http.StatusNotFound, "job not found", nil)
	case err != nil:
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to load job", nil)
	}
	if server, res := uc.ownedServer(ctx, ownerID, job.ServerID); server == nil {
		return res
	}

	err = uc.Repo.RetryJob(ctx, jobID)
	switch {
	case errors.Is(err, queue.ErrNotFlagged):
		return wrapper.ResponseFailed(http.StatusConflict, "job is not flagged", nil)
	case errors.Is(err, queue.ErrJobNotFound):
		return wrapper.ResponseFailed(http.StatusNotFound, "job not found", nil)
	case err != nil:
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to retry job", nil)
	}
	return wrapper.ResponseSuccess(http.StatusOK, dto.RetryJobResponse{JobID: jobID, Status: "requeued"})
}

func (uc *UseCase) QueueStats(ctx context.Context) wrapper.JSONResult {
	s, err := uc.Repo.QueueStats(ctx)
	if err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to read queue stats", nil)
	}
	return wrapper.ResponseSuccess(http.StatusOK, dto.QueueStatsResponse{
		Pending:            s.Pending,
		Claimed:            s.Claimed,
		Flagged:            s.Flagged,
		Processed:          s.Processed,
		OldestPendingAgeMs: s.OldestPendingAge.Milliseconds(),
	})
}

// ownedServer loads a server and checks ownership. On failure the server is
// nil and the result is the response to send.
func (uc *UseCase) ownedServer(ctx context.Context, ownerID, serverID string) (*models.Server, wrapper.JSONResult) {
	logger.AddToContext(ctx, logger.String(logger.FieldServerID, serverID))

	server, err := uc.Repo.GetServer(ctx, serverID)
	switch {
	case errors.Is(err, repository.ErrServerNotFound):
		return nil, wrapper.ResponseFailed(http.StatusNotFound, "server not found", nil)
	case err != nil:
		logger.AddToContext(ctx, logger.Err(err))
		return nil, wrapper.ResponseFailed(http.StatusInternalServerError, "failed to load server", nil)
	case server.OwnerID != ownerID:
		return nil, wrapper.ResponseFailed(http.StatusForbidden, "server belongs to another owner", nil)
	}
	return server, wrapper.JSONResult{}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultJobLimit
	}
	if limit > maxJobLimit {
		return maxJobLimit
	}
	return limit
}

func toJobList(jobs []models.HeartbeatJob) dto.ListJobsResponse {
	out := dto.ListJobsResponse{Jobs: make([]dto.JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, dto.JobResponse{
			ID:          j.ID,
			ServerID:    j.ServerID,
			Nonce:       j.Nonce,
			EnqueuedAt:  j.EnqueuedAt,
			ClaimedAt:   j.ClaimedAt,
			ProcessedAt: j.ProcessedAt,
			Attempts:    j.Attempts,
			Coalesced:   j.Coalesced,
			LastError:   j.LastError,
			FlaggedAt:   j.FlaggedAt,
		})
	}
	return out
}
