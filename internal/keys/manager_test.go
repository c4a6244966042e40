package keys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database/dbtest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	cluster := models.Cluster{ID: "cl-1", OwnerID: "owner-1", Name: "EU West"}
	if err := db.Create(&cluster).Error; err != nil {
		t.Fatalf("seed cluster: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := NewManager(db, 10*time.Minute)
	m.Now = clock.Now
	return m, clock
}

func TestGenerateKeyPair(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	kp, err := m.GenerateKeyPair(ctx, "cl-1", "owner-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if kp.Version != 1 || kp.Warning != PrivateKeyWarning {
		t.Fatalf("unexpected key pair: %+v", kp)
	}

	signer, err := ssh.ParsePrivateKey(kp.PrivateKeyPEM)
	if err != nil {
		t.Fatalf("private key should parse: %v", err)
	}
	if got := ssh.FingerprintSHA256(signer.PublicKey()); got != kp.Fingerprint {
		t.Fatalf("fingerprint mismatch: %s vs %s", got, kp.Fingerprint)
	}

	var cluster models.Cluster
	if err := m.DB.First(&cluster, "id = ?", "cl-1").Error; err != nil {
		t.Fatalf("load cluster: %v", err)
	}
	if cluster.KeyVersion != 1 || cluster.PublicKey != kp.PublicKey || cluster.KeyRotatedAt == nil {
		t.Fatalf("cluster not updated: %+v", cluster)
	}
}

func TestGenerateKeyPairErrors(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	if _, err := m.GenerateKeyPair(ctx, "missing", "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.GenerateKeyPair(ctx, "cl-1", "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCurrentPublicKeyGraceWindow(t *testing.T) {
	m, clock := setup(t)
	ctx := context.Background()

	v1, err := m.GenerateKeyPair(ctx, "cl-1", "owner-1")
	if err != nil {
		t.Fatalf("generate v1: %v", err)
	}
	clock.Advance(time.Hour)
	v2, err := m.GenerateKeyPair(ctx, "cl-1", "owner-1")
	if err != nil {
		t.Fatalf("generate v2: %v", err)
	}

	got, err := m.CurrentPublicKey(ctx, "cl-1", 2)
	if err != nil || got.Key != v2.PublicKey {
		t.Fatalf("current version: %+v %v", got, err)
	}

	clock.Advance(9 * time.Minute)
	got, err = m.CurrentPublicKey(ctx, "cl-1", 1)
	if err != nil || got.Key != v1.PublicKey {
		t.Fatalf("previous version inside grace: %+v %v", got, err)
	}

	clock.Advance(time.Minute)
	if _, err := m.CurrentPublicKey(ctx, "cl-1", 1); !errors.Is(err, ErrKeyVersionExpired) {
		t.Fatalf("expected ErrKeyVersionExpired at grace boundary, got %v", err)
	}
}

func TestCurrentPublicKeyUnknownVersions(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	if _, err := m.CurrentPublicKey(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.CurrentPublicKey(ctx, "cl-1", 1); !errors.Is(err, ErrKeyVersionExpired) {
		t.Fatalf("cluster without keys: expected ErrKeyVersionExpired, got %v", err)
	}
	if _, err := m.GenerateKeyPair(ctx, "cl-1", "owner-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, v := range []int{0, 2, 7} {
		if _, err := m.CurrentPublicKey(ctx, "cl-1", v); !errors.Is(err, ErrKeyVersionExpired) {
			t.Fatalf("version %d: expected ErrKeyVersionExpired, got %v", v, err)
		}
	}
}

func TestConcurrentRotationsAreSerialised(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	versions := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kp, err := m.GenerateKeyPair(ctx, "cl-1", "owner-1")
			if err != nil {
				t.Errorf("rotate: %v", err)
				return
			}
			versions <- kp.Version
		}()
	}
	wg.Wait()
	close(versions)

	seen := map[int]bool{}
	for v := range versions {
		if seen[v] {
			t.Fatalf("version %d issued twice", v)
		}
		seen[v] = true
	}

	history, err := m.History(ctx, "cl-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != n || history[0].Version != n {
		t.Fatalf("unexpected history: %d rows, newest %d", len(history), history[0].Version)
	}
	active := 0
	for _, k := range history {
		if k.RetiredAt == nil {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active key, got %d", active)
	}
}
