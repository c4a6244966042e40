// Package keys issues and resolves per-cluster heartbeat signing keys.
// Only public halves are persisted; the private key leaves GenerateKeyPair
// exactly once.
package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
)

const (
	PrivateKeyWarning = "Store this private key now. It cannot be retrieved again."

	maxRotationAttempts = 3
)

var (
	ErrNotFound          = errors.New("cluster not found")
	ErrForbidden         = errors.New("caller does not own cluster")
	ErrKeyVersionExpired = errors.New("key version expired")
	ErrRotationConflict  = errors.New("concurrent key rotation")

	errVersionMoved = errors.New("key version moved")
)

// KeyPair is the result of a rotation. PrivateKeyPEM is OpenSSH formatted.
type KeyPair struct {
	ClusterID     string
	Version       int
	PublicKey     string
	Fingerprint   string
	PrivateKeyPEM []byte
	Warning       string
}

type PublicKey struct {
	ClusterID   string
	Version     int
	Key         string
	Fingerprint string
}

type Manager struct {
	DB *gorm.DB
	// Grace is how long a superseded version keeps verifying after rotation.
	Grace time.Duration
	Now   func() time.Time
}

func NewManager(db *gorm.DB, grace time.Duration) *Manager {
	return &Manager{DB: db, Grace: grace, Now: time.Now}
}

// GenerateKeyPair rotates the cluster to a fresh Ed25519 key. Concurrent
// rotations of one cluster are serialised by a compare-and-swap on
// clusters.key_version; the loser retries against the new version.
func (m *Manager) GenerateKeyPair(ctx context.Context, clusterID, callerID string) (*KeyPair, error) {
	rawPub, rawPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(rawPub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(rawPriv, "cluster "+clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	fingerprint := ssh.FingerprintSHA256(sshPub)

	for attempt := 0; attempt < maxRotationAttempts; attempt++ {
		version, err := m.rotate(ctx, clusterID, callerID, authorized, fingerprint)
		if errors.Is(err, errVersionMoved) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &KeyPair{
			ClusterID:     clusterID,
			Version:       version,
			PublicKey:     authorized,
			Fingerprint:   fingerprint,
			PrivateKeyPEM: pem.EncodeToMemory(block),
			Warning:       PrivateKeyWarning,
		}, nil
	}
	return nil, ErrRotationConflict
}

func (m *Manager) rotate(ctx context.Context, clusterID, callerID, publicKey, fingerprint string) (int, error) {
	var next int
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cluster models.Cluster
		if err := tx.Where("id = ?", clusterID).First(&cluster).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load cluster: %w", err)
		}
		if cluster.OwnerID != callerID {
			return ErrForbidden
		}

		now := m.Now().UTC()
		next = cluster.KeyVersion + 1

		if err := tx.Model(&models.ClusterKey{}).
			Where("cluster_id = ? AND retired_at IS NULL", clusterID).
			Update("retired_at", now).Error; err != nil {
			return fmt.Errorf("failed to retire key: %w", err)
		}

		key := models.ClusterKey{
			ClusterID:   clusterID,
			Version:     next,
			PublicKey:   publicKey,
			Fingerprint: fingerprint,
		}
		if err := tx.Create(&key).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errVersionMoved
			}
			return fmt.Errorf("failed to store key: %w", err)
		}

		result := tx.Model(&models.Cluster{}).
			Where("id = ? AND key_version = ?", clusterID, cluster.KeyVersion).
			Updates(map[string]interface{}{
				"key_version":     next,
				"public_key":      publicKey,
				"key_fingerprint": fingerprint,
				"key_rotated_at":  now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update cluster key: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errVersionMoved
		}
		return nil
	})
	return next, err
}

// CurrentPublicKey returns the key for version when it is current, or when it
// was retired less than Grace ago.
func (m *Manager) CurrentPublicKey(ctx context.Context, clusterID string, version int) (*PublicKey, error) {
	var cluster models.Cluster
	if err := m.DB.WithContext(ctx).Where("id = ?", clusterID).First(&cluster).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}

	if version < 1 || version > cluster.KeyVersion {
		return nil, ErrKeyVersionExpired
	}
	if version == cluster.KeyVersion {
		return &PublicKey{
			ClusterID:   clusterID,
			Version:     version,
			Key:         cluster.PublicKey,
			Fingerprint: cluster.KeyFingerprint,
		}, nil
	}

	var key models.ClusterKey
	if err := m.DB.WithContext(ctx).
		Where("cluster_id = ? AND version = ?", clusterID, version).
		First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyVersionExpired
		}
		return nil, fmt.Errorf("failed to load key version: %w", err)
	}
	if key.RetiredAt == nil || !m.Now().Before(key.RetiredAt.Add(m.Grace)) {
		return nil, ErrKeyVersionExpired
	}
	return &PublicKey{
		ClusterID:   clusterID,
		Version:     key.Version,
		Key:         key.PublicKey,
		Fingerprint: key.Fingerprint,
	}, nil
}

// History lists every issued version for a cluster, newest first.
func (m *Manager) History(ctx context.Context, clusterID string) ([]models.ClusterKey, error) {
	var out []models.ClusterKey
	if err := m.DB.WithContext(ctx).
		Where("cluster_id = ?", clusterID).
		Order("version DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return out, nil
}
