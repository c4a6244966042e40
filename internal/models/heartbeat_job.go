package models

import "time"

// HeartbeatJob is one unit of queued work. For a given server at most one row
// has a NULL ProcessedAt; see pkg/database for the partial unique index.
type HeartbeatJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:text"`
	ServerID       string     `gorm:"column:server_id;type:text;not null;index"`
	Payload        string     `gorm:"column:payload;type:text;not null"`
	Nonce          int64      `gorm:"column:nonce;not null"`
	EnqueuedAt     time.Time  `gorm:"column:enqueued_at;not null"`
	ClaimedAt      *time.Time `gorm:"column:claimed_at"`
	LeaseHolder    *string    `gorm:"column:lease_holder;type:text"`
	LeaseExpiresAt *time.Time `gorm:"column:lease_expires_at"`
	ProcessedAt    *time.Time `gorm:"column:processed_at"`
	Attempts       int        `gorm:"column:attempts;not null;default:0"`
	LastError      *string    `gorm:"column:last_error;type:text"`
	FlaggedAt      *time.Time `gorm:"column:flagged_at"`
	Coalesced      int        `gorm:"column:coalesced;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (HeartbeatJob) TableName() string {
	return "heartbeat_jobs"
}

// Pending reports whether the job still occupies its server's unprocessed slot.
func (j *HeartbeatJob) Pending() bool {
	return j.ProcessedAt == nil
}

// AllModels lists every table managed by migrations.
func AllModels() []interface{} {
	return []interface{}{
		&Cluster{},
		&ClusterKey{},
		&Server{},
		&HeartbeatJob{},
	}
}
