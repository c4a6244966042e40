package pubsub

import (
	"encoding/json"
	"time"
)

// StatusEvent is published on ChannelServerStatus.
type StatusEvent struct {
	ServerID       string    `json:"server_id"`
	ClusterID      string    `json:"cluster_id,omitempty"`
	Status         string    `json:"status"`
	Confidence     string    `json:"confidence"`
	PreviousStatus string    `json:"previous_status"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	ChangedAt      time.Time `json:"changed_at"`
}

func (e StatusEvent) Encode() string {
	b, _ := json.Marshal(e)
	return string(b)
}

func DecodeStatusEvent(payload string) (StatusEvent, error) {
	var e StatusEvent
	err := json.Unmarshal([]byte(payload), &e)
	return e, err
}
