package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/dto"
)

type fileProbe struct {
	path string
}

// NewStatusProbe reads the status file at path on every probe. An empty path
// reports an empty server, which still proves liveness.
func NewStatusProbe(path string) IStatusProbe {
	return &fileProbe{path: path}
}

func (f *fileProbe) Probe(_ context.Context) (*dto.StatusSnapshot, error) {
	if f.path == "" {
		return &dto.StatusSnapshot{}, nil
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}
	var s dto.StatusSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode status file: %w", err)
	}
	if s.PlayerCount < 0 || s.Capacity < 0 {
		return nil, fmt.Errorf("status file has negative counts: players=%d capacity=%d", s.PlayerCount, s.Capacity)
	}
	return &s, nil
}
