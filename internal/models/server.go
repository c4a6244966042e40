package models

import "time"

type ServerStatus string

const (
	StatusOnline  ServerStatus = "online"
	StatusOffline ServerStatus = "offline"
	StatusUnknown ServerStatus = "unknown"
)

type Confidence string

const (
	ConfidenceGreen  Confidence = "green"
	ConfidenceYellow Confidence = "yellow"
	ConfidenceRed    Confidence = "red"
)

// Server is a registered game-server listing. The pipeline only writes the
// liveness columns; listing CRUD belongs to the directory application.
type Server struct {
	ID              string       `gorm:"primaryKey;column:id;type:text"`
	ClusterID       *string      `gorm:"column:cluster_id;type:text;index"`
	OwnerID         string       `gorm:"column:owner_id;type:text;not null;index"`
	Name            string       `gorm:"column:name;type:text;not null"`
	LastSeenAt      *time.Time   `gorm:"column:last_seen_at"`
	Status          ServerStatus `gorm:"column:status;type:text;not null;default:unknown;index"`
	Confidence      Confidence   `gorm:"column:confidence;type:text;not null;default:red"`
	PlayerCount     int          `gorm:"column:player_count;not null;default:0"`
	Capacity        int          `gorm:"column:capacity;not null;default:0"`
	StatusFields    string       `gorm:"column:status_fields;type:text;not null;default:'{}'"`
	LastNonce       int64        `gorm:"column:last_nonce;not null;default:0"`
	StatusChangedAt *time.Time   `gorm:"column:status_changed_at"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Server) TableName() string {
	return "servers"
}
