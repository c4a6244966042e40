// Package processor applies claimed heartbeat jobs to server records.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/status"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
)

const msgServerGone = "server no longer exists"

type Processor struct {
	DB          *gorm.DB
	Queue       *queue.Queue
	Status      config.StatusConfig
	MaxAttempts int
	Pub         pubsub.Publisher
	Logger      *logger.CanonicalLogger
	Now         func() time.Time
}

func New(db *gorm.DB, q *queue.Queue, statusCfg config.StatusConfig, maxAttempts int, pub pubsub.Publisher, log *logger.CanonicalLogger) *Processor {
	return &Processor{
		DB:          db,
		Queue:       q,
		Status:      statusCfg,
		MaxAttempts: maxAttempts,
		Pub:         pub,
		Logger:      log,
		Now:         time.Now,
	}
}

// Process applies the job's current payload, re-resolves status and marks the
// job processed in one transaction. A failure rolls everything back and is
// recorded against the job through Queue.Fail. ErrLeaseLost means another
// worker owns the job now; nothing is recorded.
func (p *Processor) Process(ctx context.Context, lease *queue.Lease) error {
	event, err := p.apply(ctx, lease)
	if err == nil {
		if event != nil {
			p.publish(ctx, event)
		}
		return nil
	}
	if errors.Is(err, queue.ErrLeaseLost) {
		return err
	}

	flagged, failErr := p.Queue.Fail(ctx, lease, err, p.MaxAttempts)
	if failErr != nil {
		return fmt.Errorf("%w (recording failure: %v)", err, failErr)
	}
	if flagged {
		p.Logger.Error("heartbeat job flagged after max attempts",
			logger.String(logger.FieldJobID, lease.JobID),
			logger.String(logger.FieldServerID, lease.ServerID),
			logger.Int(logger.FieldAttempts, p.MaxAttempts),
			logger.Err(err),
		)
	}
	return err
}

func (p *Processor) apply(ctx context.Context, lease *queue.Lease) (*pubsub.StatusEvent, error) {
	var event *pubsub.StatusEvent
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := p.Queue.WithDB(tx)

		job, err := q.Load(ctx, lease)
		if err != nil {
			return err
		}
		facts, err := heartbeat.UnmarshalFacts([]byte(job.Payload))
		if err != nil {
			return err
		}

		var server models.Server
		err = database.LockForUpdate(tx).Where("id = ?", job.ServerID).Take(&server).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			msg := msgServerGone
			return q.Complete(ctx, lease, &msg)
		}
		if err != nil {
			return fmt.Errorf("failed to load server: %w", err)
		}

		var cluster *models.Cluster
		if server.ClusterID != nil {
			var c models.Cluster
			err := tx.Where("id = ?", *server.ClusterID).Take(&c).Error
			switch {
			case err == nil:
				cluster = &c
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to load cluster: %w", err)
			}
		}

		lastSeen := facts.ReceivedAt.UTC()
		if server.LastSeenAt != nil && server.LastSeenAt.After(lastSeen) {
			lastSeen = server.LastSeenAt.UTC()
		}
		now := p.Now().UTC()
		res := status.Resolve(&lastSeen, now, status.ForCluster(cluster, p.Status))

		fields, err := encodeStatusFields(facts.Status)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"last_seen_at":  lastSeen,
			"player_count":  facts.PlayerCount,
			"capacity":      facts.Capacity,
			"status_fields": fields,
			"status":        res.Status,
			"confidence":    res.Confidence,
		}
		if res.Status != server.Status {
			updates["status_changed_at"] = now
			event = &pubsub.StatusEvent{
				ServerID:       server.ID,
				Status:         string(res.Status),
				Confidence:     string(res.Confidence),
				PreviousStatus: string(server.Status),
				LastSeenAt:     lastSeen,
				ChangedAt:      now,
			}
			if server.ClusterID != nil {
				event.ClusterID = *server.ClusterID
			}
		}
		if err := tx.Model(&models.Server{}).Where("id = ?", server.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update server: %w", err)
		}

		return q.Complete(ctx, lease, nil)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (p *Processor) publish(ctx context.Context, event *pubsub.StatusEvent) {
	if p.Pub == nil {
		return
	}
	if err := p.Pub.Publish(ctx, pubsub.ChannelServerStatus, event.Encode()); err != nil {
		p.Logger.Warn("failed to publish status change",
			logger.String(logger.FieldServerID, event.ServerID),
			logger.Err(err),
		)
	}
}

func encodeStatusFields(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode status fields: %w", err)
	}
	return string(b), nil
}
