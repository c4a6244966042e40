package queue

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
)

const claimablePredicate = "processed_at IS NULL AND flagged_at IS NULL AND (claimed_at IS NULL OR lease_expires_at < ?)"

// Claim leases the oldest eligible job to holder. It never waits on another
// worker: PostgreSQL skips locked rows and a lost compare-and-swap is retried
// against the next candidate. ErrNoJob means the queue had nothing to give.
func (q *Queue) Claim(ctx context.Context, holder string) (*Lease, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		lease, err := q.claimOnce(ctx, holder)
		if errors.Is(err, errClaimConflict) {
			continue
		}
		return lease, err
	}
	return nil, ErrNoJob
}

var errClaimConflict = errors.New("claim conflict")

func (q *Queue) claimOnce(ctx context.Context, holder string) (*Lease, error) {
	var lease *Lease
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := q.now()

		var job models.HeartbeatJob
		err := database.LockSkipLocked(tx).
			Where(claimablePredicate, now).
			Order("enqueued_at ASC, id ASC").
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoJob
		}
		if err != nil {
			return fmt.Errorf("failed to select job: %w", err)
		}

		expires := now.Add(q.LeaseTimeout)
		result := tx.Model(&models.HeartbeatJob{}).
			Where("id = ? AND "+claimablePredicate, job.ID, now).
			Updates(map[string]interface{}{
				"claimed_at":       now,
				"lease_holder":     holder,
				"lease_expires_at": expires,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to claim job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errClaimConflict
		}

		lease = &Lease{
			JobID:     job.ID,
			ServerID:  job.ServerID,
			Holder:    holder,
			ClaimedAt: now,
			ExpiresAt: expires,
			Attempts:  job.Attempts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// Renew extends an owned lease by LeaseTimeout from now.
func (q *Queue) Renew(ctx context.Context, lease *Lease) error {
	expires := q.now().Add(q.LeaseTimeout)
	result := q.DB.WithContext(ctx).Model(&models.HeartbeatJob{}).
		Where("id = ? AND lease_holder = ? AND processed_at IS NULL", lease.JobID, lease.Holder).
		Update("lease_expires_at", expires)
	if result.Error != nil {
		return fmt.Errorf("failed to renew lease: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	lease.ExpiresAt = expires
	return nil
}

// Release gives the job back without counting an attempt.
func (q *Queue) Release(ctx context.Context, lease *Lease) error {
	result := q.DB.WithContext(ctx).Model(&models.HeartbeatJob{}).
		Where("id = ? AND lease_holder = ? AND processed_at IS NULL", lease.JobID, lease.Holder).
		Updates(map[string]interface{}{
			"claimed_at":       nil,
			"lease_holder":     nil,
			"lease_expires_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release lease: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Load re-reads the leased job under a row lock. The caller's lease must still
// be the current one.
func (q *Queue) Load(ctx context.Context, lease *Lease) (*models.HeartbeatJob, error) {
	var job models.HeartbeatJob
	err := database.LockForUpdate(q.DB.WithContext(ctx)).
		Where("id = ?", lease.JobID).
		Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLeaseLost
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.ProcessedAt != nil || job.LeaseHolder == nil || *job.LeaseHolder != lease.Holder {
		return nil, ErrLeaseLost
	}
	return &job, nil
}

// Complete marks the leased job processed. lastError is kept for jobs that
// finished without effect, such as a deleted server.
func (q *Queue) Complete(ctx context.Context, lease *Lease, lastError *string) error {
	result := q.DB.WithContext(ctx).Model(&models.HeartbeatJob{}).
		Where("id = ? AND lease_holder = ? AND processed_at IS NULL", lease.JobID, lease.Holder).
		Updates(map[string]interface{}{
			"processed_at": q.now(),
			"last_error":   lastError,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Fail records cause, counts the attempt and clears the claim so the job is
// eligible again. maxAttempts is the total number of tries a job gets: the
// failure that brings attempts to maxAttempts flags it, since no try is left.
// Flagged jobs are kept but skipped by Claim until Retry resets them. Zero
// disables flagging.
func (q *Queue) Fail(ctx context.Context, lease *Lease, cause error, maxAttempts int) (flagged bool, err error) {
	err = q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.HeartbeatJob
		if err := database.LockForUpdate(tx).Where("id = ?", lease.JobID).Take(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLeaseLost
			}
			return fmt.Errorf("failed to load job: %w", err)
		}
		if job.ProcessedAt != nil || job.LeaseHolder == nil || *job.LeaseHolder != lease.Holder {
			return ErrLeaseLost
		}

		attempts := job.Attempts + 1
		msg := cause.Error()
		updates := map[string]interface{}{
			"attempts":         attempts,
			"last_error":       msg,
			"claimed_at":       nil,
			"lease_holder":     nil,
			"lease_expires_at": nil,
		}
		if maxAttempts > 0 && attempts >= maxAttempts {
			updates["flagged_at"] = q.now()
			flagged = true
		}
		if err := tx.Model(&models.HeartbeatJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to record job failure: %w", err)
		}
		return nil
	})
	return flagged, err
}
