package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
)

type EnqueueResult struct {
	JobID string
	// Coalesced is true when an existing unprocessed job absorbed the heartbeat.
	Coalesced bool
}

// EnqueueOrCoalesce records facts as the server's pending work.
//
// Inside one transaction it locks the server's unprocessed job, if any, and
// replaces its payload when facts carry a newer nonce. The job keeps its
// enqueued_at so FIFO position is unchanged. Attempts, last_error and any
// flag survive a coalesce; only Retry resets them. With no
// pending job a new row is inserted. Losing an insert race to the partial
// unique index is retried and never returned to the caller.
func (q *Queue) EnqueueOrCoalesce(ctx context.Context, facts *heartbeat.Facts) (*EnqueueResult, error) {
	payload, err := facts.Marshal()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxEnqueueAttempts; attempt++ {
		res, err := q.enqueueOnce(ctx, facts, string(payload))
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, ErrEnqueueConflict
}

func (q *Queue) enqueueOnce(ctx context.Context, facts *heartbeat.Facts, payload string) (*EnqueueResult, error) {
	var res EnqueueResult
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.HeartbeatJob
		err := database.LockForUpdate(tx).
			Where("server_id = ? AND processed_at IS NULL", facts.ServerID).
			Take(&job).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			job = models.HeartbeatJob{
				ID:         uuid.Must(uuid.NewV7()).String(),
				ServerID:   facts.ServerID,
				Payload:    payload,
				Nonce:      facts.Nonce,
				EnqueuedAt: q.now(),
			}
			if err := tx.Create(&job).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return err
				}
				return fmt.Errorf("failed to insert job: %w", err)
			}
			res = EnqueueResult{JobID: job.ID}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load pending job: %w", err)
		}

		res = EnqueueResult{JobID: job.ID, Coalesced: true}
		if facts.Nonce <= job.Nonce {
			return nil
		}
		if err := tx.Model(&models.HeartbeatJob{}).
			Where("id = ? AND processed_at IS NULL", job.ID).
			Updates(map[string]interface{}{
				"payload":   payload,
				"nonce":     facts.Nonce,
				"coalesced": gorm.Expr("coalesced + 1"),
			}).Error; err != nil {
			return fmt.Errorf("failed to coalesce job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
