package verifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/keys"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database/dbtest"
)

type fixture struct {
	db       *gorm.DB
	keys     *keys.Manager
	verifier *Verifier
	signer   ssh.Signer
	now      time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clusterID := "cl-1"
	seed := []interface{}{
		&models.Cluster{ID: clusterID, OwnerID: "owner-1", Name: "EU"},
		&models.Cluster{ID: "cl-2", OwnerID: "owner-2", Name: "US"},
		&models.Server{ID: "srv-1", ClusterID: &clusterID, OwnerID: "owner-1", Name: "one"},
		&models.Server{ID: "srv-orphan", OwnerID: "owner-1", Name: "orphan"},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	f := &fixture{db: db, now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.keys = keys.NewManager(db, 10*time.Minute)
	f.keys.Now = f.clock
	kp, err := f.keys.GenerateKeyPair(context.Background(), clusterID, "owner-1")
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f.signer, err = ssh.ParsePrivateKey(kp.PrivateKeyPEM)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	f.verifier = NewVerifier(db, f.keys, 5*time.Minute)
	f.verifier.Now = f.clock
	return f
}

func (f *fixture) payload(t *testing.T, nonce int64) *heartbeat.Payload {
	t.Helper()
	p := &heartbeat.Payload{
		ServerID:    "srv-1",
		ClusterID:   "cl-1",
		KeyVersion:  1,
		Nonce:       nonce,
		SentAt:      f.now.Unix(),
		PlayerCount: 7,
		Capacity:    16,
	}
	if err := p.Sign(f.signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return p
}

func (f *fixture) watermark(t *testing.T) int64 {
	t.Helper()
	var s models.Server
	if err := f.db.First(&s, "id = ?", "srv-1").Error; err != nil {
		t.Fatalf("load server: %v", err)
	}
	return s.LastNonce
}

func TestVerifyAcceptsAndAdvancesWatermark(t *testing.T) {
	f := newFixture(t)
	facts, err := f.verifier.Verify(context.Background(), f.payload(t, 100))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if facts.Nonce != 100 || facts.PlayerCount != 7 || !facts.ReceivedAt.Equal(f.now) {
		t.Fatalf("unexpected facts: %+v", facts)
	}
	if got := f.watermark(t); got != 100 {
		t.Fatalf("watermark = %d, want 100", got)
	}
}

func TestVerifyRejectsReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.payload(t, 100)
	if _, err := f.verifier.Verify(ctx, p); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	if _, err := f.verifier.Verify(ctx, p); !errors.Is(err, ErrStaleOrReplayed) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if _, err := f.verifier.Verify(ctx, f.payload(t, 99)); !errors.Is(err, ErrStaleOrReplayed) {
		t.Fatalf("expected older nonce rejection, got %v", err)
	}
	if got := f.watermark(t); got != 100 {
		t.Fatalf("watermark changed by replay: %d", got)
	}
}

func TestVerifyRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(p *heartbeat.Payload)
		resign bool
		want   error
	}{
		{"unknown cluster", func(p *heartbeat.Payload) { p.ClusterID = "missing" }, true, ErrUnknownKey},
		{"server in other cluster", func(p *heartbeat.Payload) { p.ClusterID = "cl-2" }, true, ErrUnknownKey},
		{"server without cluster", func(p *heartbeat.Payload) { p.ServerID = "srv-orphan" }, true, ErrUnknownKey},
		{"unknown server", func(p *heartbeat.Payload) { p.ServerID = "nope" }, true, ErrUnknownKey},
		{"future key version", func(p *heartbeat.Payload) { p.KeyVersion = 2 }, true, ErrUnknownKey},
		{"tampered body", func(p *heartbeat.Payload) { p.PlayerCount = 99 }, false, ErrInvalidSignature},
		{"garbage signature", func(p *heartbeat.Payload) { p.Signature = "AAAA" }, false, ErrInvalidSignature},
		{"too old", func(p *heartbeat.Payload) { p.SentAt = f.now.Add(-6 * time.Minute).Unix() }, true, ErrStaleOrReplayed},
		{"too far ahead", func(p *heartbeat.Payload) { p.SentAt = f.now.Add(6 * time.Minute).Unix() }, true, ErrStaleOrReplayed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.payload(t, 500)
			tt.mutate(p)
			if tt.resign {
				if err := p.Sign(f.signer); err != nil {
					t.Fatalf("sign: %v", err)
				}
			}
			_, err := f.verifier.Verify(ctx, p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if got := f.watermark(t); got != 0 {
		t.Fatalf("rejected payloads moved the watermark to %d", got)
	}
}

func TestVerifyRotationGraceWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.now = f.now.Add(time.Hour)
	kp, err := f.keys.GenerateKeyPair(ctx, "cl-1", "owner-1")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if kp.Version != 2 {
		t.Fatalf("expected version 2, got %d", kp.Version)
	}

	f.now = f.now.Add(5 * time.Minute)
	p := f.payload(t, 1)
	if _, err := f.verifier.Verify(ctx, p); err != nil {
		t.Fatalf("old key inside grace should verify: %v", err)
	}

	f.now = f.now.Add(6 * time.Minute)
	p = f.payload(t, 2)
	_, err = f.verifier.Verify(ctx, p)
	if !errors.Is(err, ErrUnknownKey) || !errors.Is(err, keys.ErrKeyVersionExpired) {
		t.Fatalf("expected expired key rejection, got %v", err)
	}
	if !IsAuthenticationError(err) || Reason(err) != ReasonUnknownKey {
		t.Fatalf("expired key should be an authentication error")
	}
}

func TestConcurrentSameNonceAcceptedOnce(t *testing.T) {
	f := newFixture(t)
	p := f.payload(t, 42)

	var accepted, replayed int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *p
			_, err := f.verifier.Verify(context.Background(), &cp)
			switch {
			case err == nil:
				atomic.AddInt32(&accepted, 1)
			case errors.Is(err, ErrStaleOrReplayed):
				atomic.AddInt32(&replayed, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 || replayed != 9 {
		t.Fatalf("accepted=%d replayed=%d, want 1/9", accepted, replayed)
	}
}
