package repository

import (
	"context"
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/dto"
)

// IIngestClient delivers signed heartbeats to the ingest service
type IIngestClient interface {
	// SendHeartbeat posts one signed payload. Rejections that retrying
	// cannot fix are wrapped in ErrRejected.
	SendHeartbeat(ctx context.Context, p *heartbeat.Payload) error
}

// IStatusProbe reads the local game server's state
type IStatusProbe interface {
	Probe(ctx context.Context) (*dto.StatusSnapshot, error)
}

type IRepository interface {
	// NextNonce returns a nonce strictly greater than every previous one
	NextNonce(now time.Time) int64
	// RecordSuccess stores the outcome of a delivered heartbeat
	RecordSuccess(at time.Time)
	// RecordFailure stores the outcome of a heartbeat that was not delivered
	RecordFailure(err error)
	// State returns a copy of the delivery state
	State() State
}
