package dto

type HealthCheckResponse struct {
	Status             string `json:"status" example:"healthy"`
	WorkerID           string `json:"worker_id" example:"host-0192f1a2"`
	Database           string `json:"database" example:"ok"`
	Pending            int64  `json:"pending" example:"3"`
	Claimed            int64  `json:"claimed" example:"4"`
	Flagged            int64  `json:"flagged" example:"0"`
	OldestPendingAgeMs int64  `json:"oldest_pending_age_ms" example:"1200"`
	Timestamp          string `json:"timestamp" example:"2026-01-27T12:30:45Z"`
}
