package models

import "time"

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Cluster is an ownership group whose servers share one heartbeat signing key.
type Cluster struct {
	ID                   string     `gorm:"primaryKey;column:id;type:text"`
	OwnerID              string     `gorm:"column:owner_id;type:text;not null;index"`
	Name                 string     `gorm:"column:name;type:text;not null"`
	Visibility           Visibility `gorm:"column:visibility;type:text;not null;default:public"`
	KeyVersion           int        `gorm:"column:key_version;not null;default:0"`
	PublicKey            string     `gorm:"column:public_key;type:text"`
	KeyFingerprint       string     `gorm:"column:key_fingerprint;type:text"`
	KeyRotatedAt         *time.Time `gorm:"column:key_rotated_at"`
	GraceSeconds         int        `gorm:"column:heartbeat_grace_seconds;not null;default:0"`
	ConfidenceMultiplier float64    `gorm:"column:confidence_multiplier;not null;default:0"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Cluster) TableName() string {
	return "clusters"
}

// ClusterKey is one issued public key. Rows are immutable except RetiredAt,
// which is set when a newer version supersedes the key.
type ClusterKey struct {
	ID          int64      `gorm:"primaryKey;autoIncrement;column:id"`
	ClusterID   string     `gorm:"column:cluster_id;type:text;not null;uniqueIndex:idx_cluster_keys_version"`
	Version     int        `gorm:"column:version;not null;uniqueIndex:idx_cluster_keys_version"`
	PublicKey   string     `gorm:"column:public_key;type:text;not null"`
	Fingerprint string     `gorm:"column:fingerprint;type:text;not null"`
	RetiredAt   *time.Time `gorm:"column:retired_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (ClusterKey) TableName() string {
	return "cluster_keys"
}
