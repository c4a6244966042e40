package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/status"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
)

// Sweeper decays the stored status of servers that stopped sending
// heartbeats. Status is a function of elapsed time, so without it a silent
// server would keep the tier its last heartbeat gave it.
type Sweeper struct {
	DB     *gorm.DB
	Status config.StatusConfig
	Batch  int
	Pub    pubsub.Publisher
	Logger *logger.CanonicalLogger
	Now    func() time.Time
}

func NewSweeper(db *gorm.DB, statusCfg config.StatusConfig, batch int, pub pubsub.Publisher, log *logger.CanonicalLogger) *Sweeper {
	return &Sweeper{DB: db, Status: statusCfg, Batch: batch, Pub: pub, Logger: log, Now: time.Now}
}

// Sweep walks every server whose tier can still change, in id order, and
// writes new tiers with a compare-and-swap so a heartbeat processed
// meanwhile always wins.
func (s *Sweeper) Sweep(ctx context.Context) error {
	batch := s.Batch
	if batch <= 0 {
		batch = 500
	}
	now := s.Now().UTC()
	clusters := map[string]*models.Cluster{}

	var scanned, changed int
	lastID := ""
	for {
		var servers []models.Server
		err := s.DB.WithContext(ctx).
			Where("id > ? AND last_seen_at IS NOT NULL AND NOT (status = ? AND confidence = ?)",
				lastID, models.StatusOffline, models.ConfidenceRed).
			Order("id ASC").
			Limit(batch).
			Find(&servers).Error
		if err != nil {
			return fmt.Errorf("failed to scan servers: %w", err)
		}
		if len(servers) == 0 {
			break
		}

		for i := range servers {
			srv := &servers[i]
			scanned++
			cluster, err := s.cluster(ctx, clusters, srv.ClusterID)
			if err != nil {
				return err
			}
			res := status.Resolve(srv.LastSeenAt, now, status.ForCluster(cluster, s.Status))
			if res.Status == srv.Status && res.Confidence == srv.Confidence {
				continue
			}
			ok, err := s.write(ctx, srv, res, now)
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		lastID = servers[len(servers)-1].ID
		if len(servers) < batch {
			break
		}
	}

	logger.AddToContext(ctx, logger.Int("servers_scanned", scanned), logger.Int("servers_changed", changed))
	return nil
}

func (s *Sweeper) cluster(ctx context.Context, cache map[string]*models.Cluster, id *string) (*models.Cluster, error) {
	if id == nil {
		return nil, nil
	}
	if c, ok := cache[*id]; ok {
		return c, nil
	}
	var c models.Cluster
	err := s.DB.WithContext(ctx).Where("id = ?", *id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cache[*id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}
	cache[*id] = &c
	return &c, nil
}

func (s *Sweeper) write(ctx context.Context, srv *models.Server, res status.Result, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     res.Status,
		"confidence": res.Confidence,
	}
	if res.Status != srv.Status {
		updates["status_changed_at"] = now
	}
	result := s.DB.WithContext(ctx).Model(&models.Server{}).
		Where("id = ? AND last_seen_at = ? AND status = ? AND confidence = ?",
			srv.ID, srv.LastSeenAt, srv.Status, srv.Confidence).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update server status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if res.Status != srv.Status && s.Pub != nil {
		event := pubsub.StatusEvent{
			ServerID:       srv.ID,
			Status:         string(res.Status),
			Confidence:     string(res.Confidence),
			PreviousStatus: string(srv.Status),
			LastSeenAt:     *srv.LastSeenAt,
			ChangedAt:      now,
		}
		if srv.ClusterID != nil {
			event.ClusterID = *srv.ClusterID
		}
		if err := s.Pub.Publish(ctx, pubsub.ChannelServerStatus, event.Encode()); err != nil {
			s.Logger.Warn("failed to publish status change", logger.String(logger.FieldServerID, srv.ID), logger.Err(err))
		}
	}
	return true, nil
}

// Purger drops processed jobs past the retention window. A zero Retention
// keeps every job, which is the default.
type Purger struct {
	Queue     *queue.Queue
	Retention time.Duration
}

func (p *Purger) Enabled() bool {
	return p.Retention > 0
}

func (p *Purger) Purge(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	n, err := p.Queue.PurgeProcessed(ctx, p.Queue.Now().Add(-p.Retention))
	if err != nil {
		return err
	}
	logger.AddToContext(ctx, logger.Int64("jobs_purged", n))
	return nil
}
