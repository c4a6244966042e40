package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/keys"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/verifier"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
)

var (
	ErrServerNotFound  = errors.New("server not found")
	ErrClusterNotFound = errors.New("cluster not found")
)

type Repository struct {
	DB       *gorm.DB
	Pub      pubsub.Publisher
	Keys     *keys.Manager
	Verifier *verifier.Verifier
	Queue    *queue.Queue
}

func NewRepository(db *gorm.DB, publisher pubsub.Publisher, km *keys.Manager, v *verifier.Verifier, q *queue.Queue) *Repository {
	return &Repository{DB: db, Pub: publisher, Keys: km, Verifier: v, Queue: q}
}

type IRepository interface {
	IngestHeartbeat(ctx context.Context, p *heartbeat.Payload) (*queue.EnqueueResult, error)
	PublishJobEnqueued(ctx context.Context, jobID string) error
	RotateKey(ctx context.Context, clusterID, ownerID string) (*keys.KeyPair, error)
	GetServer(ctx context.Context, serverID string) (*models.Server, error)
	GetCluster(ctx context.Context, clusterID string) (*models.Cluster, error)
	GetJob(ctx context.Context, jobID string) (*models.HeartbeatJob, error)
	ListServerJobs(ctx context.Context, serverID string, limit int) ([]models.HeartbeatJob, error)
	ListClusterJobs(ctx context.Context, clusterID string, limit int) ([]models.HeartbeatJob, error)
	RetryJob(ctx context.Context, jobID string) error
	QueueStats(ctx context.Context) (*queue.Stats, error)
}

// IngestHeartbeat authenticates p, then advances the nonce watermark and
// enqueues in one transaction so a failed enqueue leaves the watermark where
// it was and the agent's retry is not mistaken for a replay.
func (r *Repository) IngestHeartbeat(ctx context.Context, p *heartbeat.Payload) (*queue.EnqueueResult, error) {
	if err := r.Verifier.Authenticate(ctx, p); err != nil {
		return nil, err
	}

	var res *queue.EnqueueResult
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		facts, err := r.Verifier.WithDB(tx).Accept(ctx, p)
		if err != nil {
			return err
		}
		res, err = r.Queue.WithDB(tx).EnqueueOrCoalesce(ctx, facts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository) PublishJobEnqueued(ctx context.Context, jobID string) error {
	if r.Pub == nil {
		return nil
	}
	return r.Pub.Publish(ctx, pubsub.ChannelHeartbeatJobs, jobID)
}

func (r *Repository) RotateKey(ctx context.Context, clusterID, ownerID string) (*keys.KeyPair, error) {
	return r.Keys.GenerateKeyPair(ctx, clusterID, ownerID)
}

func (r *Repository) GetServer(ctx context.Context, serverID string) (*models.Server, error) {
	var server models.Server
	if err := r.DB.WithContext(ctx).Where("id = ?", serverID).Take(&server).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return &server, nil
}

func (r *Repository) GetCluster(ctx context.Context, clusterID string) (*models.Cluster, error) {
	var cluster models.Cluster
	if err := r.DB.WithContext(ctx).Where("id = ?", clusterID).Take(&cluster).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClusterNotFound
		}
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return &cluster, nil
}

func (r *Repository) GetJob(ctx context.Context, jobID string) (*models.HeartbeatJob, error) {
	return r.Queue.Get(ctx, jobID)
}

func (r *Repository) ListServerJobs(ctx context.Context, serverID string, limit int) ([]models.HeartbeatJob, error) {
	return r.Queue.ListByServer(ctx, serverID, limit)
}

func (r *Repository) ListClusterJobs(ctx context.Context, clusterID string, limit int) ([]models.HeartbeatJob, error) {
	return r.Queue.ListByCluster(ctx, clusterID, limit)
}

func (r *Repository) RetryJob(ctx context.Context, jobID string) error {
	if err := r.Queue.Retry(ctx, jobID); err != nil {
		return err
	}
	return r.PublishJobEnqueued(ctx, jobID)
}

func (r *Repository) QueueStats(ctx context.Context) (*queue.Stats, error) {
	return r.Queue.Stats(ctx)
}
