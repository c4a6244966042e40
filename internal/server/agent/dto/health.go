package dto

type HealthResponse struct {
	Status              string `json:"status"`
	ServerID            string `json:"server_id"`
	ClusterID           string `json:"cluster_id"`
	KeyVersion          int    `json:"key_version"`
	Uptime              string `json:"uptime"`
	LastNonce           int64  `json:"last_nonce,omitempty"`
	LastSentAt          string `json:"last_sent_at,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	Sent                int64  `json:"sent"`
	Failed              int64  `json:"failed"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}
