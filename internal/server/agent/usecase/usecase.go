package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/retry"
)

// IUseCase defines the business logic interface for the agent service
type IUseCase interface {
	// SendHeartbeat probes, signs and delivers one heartbeat
	SendHeartbeat(ctx context.Context) error
	// State returns the delivery bookkeeping for the health endpoint
	State() repository.State
}

type UseCase struct {
	Ingest repository.IIngestClient
	Probe  repository.IStatusProbe
	Repo   repository.IRepository
	Signer ssh.Signer
	Config *config.AgentConfig
	Logger *logger.CanonicalLogger
	Now    func() time.Time
}

func NewUseCase(uc UseCase) *UseCase {
	if uc.Now == nil {
		uc.Now = time.Now
	}
	return &uc
}

// LoadSigner parses the OpenSSH private key issued at rotation.
func LoadSigner(pemBytes []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// SendHeartbeat retries transport failures with backoff, resending the same
// signed payload so a delivery that succeeded but lost its response is
// answered as a replay. Rejections are not retried.
func (uc *UseCase) SendHeartbeat(ctx context.Context) error {
	snap, err := uc.Probe.Probe(ctx)
	if err != nil {
		uc.Repo.RecordFailure(err)
		return err
	}

	now := uc.Now()
	p := &heartbeat.Payload{
		ServerID:    uc.Config.ServerID,
		ClusterID:   uc.Config.ClusterID,
		KeyVersion:  uc.Config.KeyVersion,
		Nonce:       uc.Repo.NextNonce(now),
		SentAt:      now.Unix(),
		PlayerCount: snap.PlayerCount,
		Capacity:    snap.Capacity,
		Status:      snap.Status,
	}
	if err := p.Sign(uc.Signer); err != nil {
		uc.Repo.RecordFailure(err)
		return err
	}

	cfg := retry.Config{
		MaxRetries:     uc.Config.SendMaxRetries,
		InitialBackoff: uc.Config.SendInitialBackoff,
		MaxBackoff:     uc.Config.SendMaxBackoff,
		Multiplier:     uc.Config.SendBackoffMultiplier,
		Jitter:         true,
	}

	var attempts int
	err = retry.WithExponentialBackoff(ctx, cfg, func(ctx context.Context) error {
		attempts++
		err := uc.Ingest.SendHeartbeat(ctx, p)
		if errors.Is(err, repository.ErrRejected) {
			return retry.Permanent(err)
		}
		if err != nil {
			uc.Logger.Info("heartbeat attempt failed",
				logger.Int("attempt", attempts),
				logger.Int("max_retries", uc.Config.SendMaxRetries),
				logger.Err(err),
			)
		}
		return err
	})
	if err != nil {
		uc.Repo.RecordFailure(err)
		uc.Logger.WithError(err).Error("heartbeat not delivered",
			logger.Int64(logger.FieldNonce, p.Nonce),
			logger.Int("total_attempts", attempts),
		)
		return err
	}

	uc.Repo.RecordSuccess(uc.Now())
	uc.Logger.Debug("heartbeat delivered",
		logger.Int64(logger.FieldNonce, p.Nonce),
		logger.Int("players", p.PlayerCount),
		logger.Int("attempts", attempts),
	)
	return nil
}

func (uc *UseCase) State() repository.State {
	return uc.Repo.State()
}
