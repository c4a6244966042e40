// Package verifier authenticates heartbeat payloads and advances the
// per-server nonce watermark used for replay detection.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/keys"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
)

var (
	ErrUnknownKey       = errors.New("unknown key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStaleOrReplayed  = errors.New("stale or replayed heartbeat")
)

// Rejection codes returned to agents and written to logs.
const (
	ReasonUnknownKey       = "unknown_key"
	ReasonInvalidSignature = "invalid_signature"
	ReasonStaleOrReplayed  = "stale_or_replayed"
)

// IsAuthenticationError reports errors that must be surfaced to the agent.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrUnknownKey) || errors.Is(err, ErrInvalidSignature)
}

// Reason maps a Verify error to its rejection code, or "" for internal errors.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownKey):
		return ReasonUnknownKey
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrStaleOrReplayed):
		return ReasonStaleOrReplayed
	}
	return ""
}

type KeyResolver interface {
	CurrentPublicKey(ctx context.Context, clusterID string, version int) (*keys.PublicKey, error)
}

type Verifier struct {
	DB   *gorm.DB
	Keys KeyResolver
	// Skew bounds |now - sent_at|.
	Skew time.Duration
	Now  func() time.Time
}

func NewVerifier(db *gorm.DB, resolver KeyResolver, skew time.Duration) *Verifier {
	return &Verifier{DB: db, Keys: resolver, Skew: skew, Now: time.Now}
}

// WithDB returns a copy bound to db, typically a transaction shared with the
// enqueue. Keys keeps its own handle.
func (v *Verifier) WithDB(db *gorm.DB) *Verifier {
	c := *v
	c.DB = db
	return &c
}

// Verify runs Authenticate then Accept. A nonce equal to the stored watermark
// loses, so the first arrival wins.
func (v *Verifier) Verify(ctx context.Context, p *heartbeat.Payload) (*heartbeat.Facts, error) {
	if err := v.Authenticate(ctx, p); err != nil {
		return nil, err
	}
	return v.Accept(ctx, p)
}

// Authenticate checks key version, server ownership, signature and clock
// skew, in that order. It only reads.
func (v *Verifier) Authenticate(ctx context.Context, p *heartbeat.Payload) error {
	key, err := v.Keys.CurrentPublicKey(ctx, p.ClusterID, p.KeyVersion)
	if err != nil {
		switch {
		case errors.Is(err, keys.ErrKeyVersionExpired):
			return fmt.Errorf("%w: %w", ErrUnknownKey, err)
		case errors.Is(err, keys.ErrNotFound):
			return ErrUnknownKey
		}
		return fmt.Errorf("failed to resolve key: %w", err)
	}

	var server models.Server
	if err := v.DB.WithContext(ctx).Select("id", "cluster_id").Where("id = ?", p.ServerID).Take(&server).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownKey
		}
		return fmt.Errorf("failed to load server: %w", err)
	}
	if server.ClusterID == nil || *server.ClusterID != p.ClusterID {
		return ErrUnknownKey
	}

	if err := p.VerifySignature(key.Key); err != nil {
		if errors.Is(err, heartbeat.ErrMalformedKey) {
			return fmt.Errorf("%w: %w", ErrUnknownKey, err)
		}
		return ErrInvalidSignature
	}

	skew := v.Now().UTC().Sub(p.SentTime())
	if skew < 0 {
		skew = -skew
	}
	if skew > v.Skew {
		return fmt.Errorf("%w: sent_at outside allowed skew", ErrStaleOrReplayed)
	}
	return nil
}

// Accept advances the server's nonce watermark with a single conditional
// update and returns the fact set stamped with the receive time. Call it only
// for payloads that passed Authenticate.
func (v *Verifier) Accept(ctx context.Context, p *heartbeat.Payload) (*heartbeat.Facts, error) {
	result := v.DB.WithContext(ctx).Model(&models.Server{}).
		Where("id = ? AND last_nonce < ?", p.ServerID, p.Nonce).
		Update("last_nonce", p.Nonce)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to advance nonce watermark: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: nonce %d not above watermark", ErrStaleOrReplayed, p.Nonce)
	}

	return heartbeat.FactsFrom(p, v.Now()), nil
}
