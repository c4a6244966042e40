package dto

// StatusSnapshot is the document the game server writes to its status file.
type StatusSnapshot struct {
	PlayerCount int               `json:"player_count"`
	Capacity    int               `json:"capacity"`
	Status      map[string]string `json:"status,omitempty"`
}
