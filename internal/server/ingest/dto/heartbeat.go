package dto

import "github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"

// HeartbeatRequest is the signed body posted by agents.
type HeartbeatRequest struct {
	ServerID    string            `json:"server_id" validate:"required,max=64" example:"srv-01"`
	ClusterID   string            `json:"cluster_id" validate:"required,max=64" example:"cl-eu-west"`
	KeyVersion  int               `json:"key_version" validate:"required,min=1" example:"1"`
	Nonce       int64             `json:"nonce" validate:"required,min=1" example:"1767225600000000000"`
	SentAt      int64             `json:"sent_at" validate:"required" example:"1767225600"`
	PlayerCount int               `json:"player_count" validate:"min=0" example:"12"`
	Capacity    int               `json:"capacity" validate:"min=0" example:"32"`
	Status      map[string]string `json:"status,omitempty" validate:"max=32"`
	Signature   string            `json:"signature" validate:"required,base64"`
}

func (r *HeartbeatRequest) Payload() *heartbeat.Payload {
	return &heartbeat.Payload{
		ServerID:    r.ServerID,
		ClusterID:   r.ClusterID,
		KeyVersion:  r.KeyVersion,
		Nonce:       r.Nonce,
		SentAt:      r.SentAt,
		PlayerCount: r.PlayerCount,
		Capacity:    r.Capacity,
		Status:      r.Status,
		Signature:   r.Signature,
	}
}

type HeartbeatResponse struct {
	Status string `json:"status" example:"accepted"`
}
