package dto

import "time"

type RotateKeyResponse struct {
	ClusterID   string    `json:"cluster_id"`
	KeyVersion  int       `json:"key_version"`
	PublicKey   string    `json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	PrivateKey  string    `json:"private_key"`
	Warning     string    `json:"warning"`
	RotatedAt   time.Time `json:"rotated_at"`
}
