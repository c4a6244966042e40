package dto

import "time"

type JobResponse struct {
	ID          string     `json:"id"`
	ServerID    string     `json:"server_id"`
	Nonce       int64      `json:"nonce"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	Coalesced   int        `json:"coalesced"`
	LastError   *string    `json:"last_error,omitempty"`
	FlaggedAt   *time.Time `json:"flagged_at,omitempty"`
}

type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ServerStatusResponse struct {
	ServerID        string     `json:"server_id"`
	ClusterID       string     `json:"cluster_id,omitempty"`
	Status          string     `json:"status"`
	Confidence      string     `json:"confidence"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
	PlayerCount     int        `json:"player_count"`
	Capacity        int        `json:"capacity"`
	// Live is the status re-resolved at request time; the stored one may lag
	// until the next sweep.
	LiveStatus     string `json:"live_status"`
	LiveConfidence string `json:"live_confidence"`
}

type QueueStatsResponse struct {
	Pending            int64 `json:"pending"`
	Claimed            int64 `json:"claimed"`
	Flagged            int64 `json:"flagged"`
	Processed          int64 `json:"processed"`
	OldestPendingAgeMs int64 `json:"oldest_pending_age_ms"`
}

type RetryJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
