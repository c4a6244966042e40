package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
)

type Stats struct {
	Pending   int64 `json:"pending"`
	Claimed   int64 `json:"claimed"`
	Flagged   int64 `json:"flagged"`
	Processed int64 `json:"processed"`
	// OldestPendingAge is zero when nothing is pending.
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
}

func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	db := q.DB.WithContext(ctx).Model(&models.HeartbeatJob{})
	now := q.now()

	var s Stats
	counts := []struct {
		dst   *int64
		where string
		args  []interface{}
	}{
		{&s.Pending, "processed_at IS NULL AND flagged_at IS NULL AND (claimed_at IS NULL OR lease_expires_at < ?)", []interface{}{now}},
		{&s.Claimed, "processed_at IS NULL AND claimed_at IS NOT NULL AND lease_expires_at >= ?", []interface{}{now}},
		{&s.Flagged, "processed_at IS NULL AND flagged_at IS NOT NULL", nil},
		{&s.Processed, "processed_at IS NOT NULL", nil},
	}
	for _, c := range counts {
		if err := db.Session(&gorm.Session{}).Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count jobs: %w", err)
		}
	}

	var oldest models.HeartbeatJob
	err := q.DB.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("enqueued_at ASC").
		Take(&oldest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to find oldest job: %w", err)
	default:
		s.OldestPendingAge = now.Sub(oldest.EnqueuedAt)
	}
	return &s, nil
}

func (q *Queue) Get(ctx context.Context, jobID string) (*models.HeartbeatJob, error) {
	var job models.HeartbeatJob
	if err := q.DB.WithContext(ctx).Where("id = ?", jobID).Take(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListByServer returns a server's jobs, newest first.
func (q *Queue) ListByServer(ctx context.Context, serverID string, limit int) ([]models.HeartbeatJob, error) {
	var jobs []models.HeartbeatJob
	if err := q.DB.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("enqueued_at DESC, id DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListByCluster returns jobs of every server in the cluster, newest first.
func (q *Queue) ListByCluster(ctx context.Context, clusterID string, limit int) ([]models.HeartbeatJob, error) {
	var jobs []models.HeartbeatJob
	if err := q.DB.WithContext(ctx).
		Joins("JOIN servers ON servers.id = heartbeat_jobs.server_id").
		Where("servers.cluster_id = ?", clusterID).
		Order("heartbeat_jobs.enqueued_at DESC, heartbeat_jobs.id DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Retry clears the failure flag and the attempt count so the job can be
// claimed again with a full set of tries. last_error is kept for the record.
func (q *Queue) Retry(ctx context.Context, jobID string) error {
	result := q.DB.WithContext(ctx).Model(&models.HeartbeatJob{}).
		Where("id = ? AND processed_at IS NULL AND flagged_at IS NOT NULL", jobID).
		Updates(map[string]interface{}{
			"flagged_at": nil,
			"attempts":   0,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to retry job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := q.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrNotFlagged
	}
	return nil
}

// PurgeProcessed deletes processed jobs older than before and returns the count.
func (q *Queue) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	result := q.DB.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before.UTC()).
		Delete(&models.HeartbeatJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
