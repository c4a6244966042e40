package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database/dbtest"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
)

type memoryPub struct {
	mu     sync.Mutex
	events []pubsub.StatusEvent
}

func (m *memoryPub) Publish(_ context.Context, _ string, message string) error {
	ev, err := pubsub.DecodeStatusEvent(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *memoryPub) Close() error { return nil }

func TestSweepDecaysSilentServers(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	fast := "fast"
	if err := db.Create(&models.Cluster{ID: fast, OwnerID: "o", Name: "fast", GraceSeconds: 10, ConfidenceMultiplier: 2}).Error; err != nil {
		t.Fatalf("seed cluster: %v", err)
	}

	servers := []models.Server{
		{ID: "a-fresh", OwnerID: "o", Name: "a", LastSeenAt: ago(30 * time.Second), Status: models.StatusOnline, Confidence: models.ConfidenceGreen},
		{ID: "b-lapsed", OwnerID: "o", Name: "b", LastSeenAt: ago(90 * time.Second), Status: models.StatusOnline, Confidence: models.ConfidenceGreen},
		{ID: "c-gone", OwnerID: "o", Name: "c", LastSeenAt: ago(10 * time.Minute), Status: models.StatusOffline, Confidence: models.ConfidenceYellow},
		{ID: "d-never", OwnerID: "o", Name: "d"},
		{ID: "e-fast-cluster", ClusterID: &fast, OwnerID: "o", Name: "e", LastSeenAt: ago(30 * time.Second), Status: models.StatusOnline, Confidence: models.ConfidenceGreen},
	}
	for i := range servers {
		if err := db.Create(&servers[i]).Error; err != nil {
			t.Fatalf("seed server: %v", err)
		}
	}

	pub := &memoryPub{}
	s := NewSweeper(db, config.StatusConfig{DefaultGrace: time.Minute, DefaultConfidenceMultiplier: 3}, 2, pub, logger.NewNop())
	s.Now = func() time.Time { return now }
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	want := map[string][2]string{
		"a-fresh":        {"online", "green"},
		"b-lapsed":       {"offline", "yellow"},
		"c-gone":         {"offline", "red"},
		"d-never":        {"unknown", "red"},
		"e-fast-cluster": {"offline", "red"},
	}
	for id, w := range want {
		var got models.Server
		if err := db.First(&got, "id = ?", id).Error; err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		if string(got.Status) != w[0] || string(got.Confidence) != w[1] {
			t.Errorf("%s = %s/%s, want %s/%s", id, got.Status, got.Confidence, w[0], w[1])
		}
	}

	// c-gone only changed confidence; events are for status transitions
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 status events, got %+v", pub.events)
	}
}

func completedJob(t *testing.T) (*queue.Queue, *time.Time) {
	t.Helper()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	q := queue.New(dbtest.Open(t), time.Minute)
	q.Now = func() time.Time { return now }

	enqueue(t, q, "srv-1")
	lease, err := q.Claim(context.Background(), "w")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Complete(context.Background(), lease, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return q, &now
}

func processedCount(t *testing.T, q *queue.Queue) int64 {
	t.Helper()
	stats, err := q.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	return stats.Processed
}

func TestPurgerUsesRetention(t *testing.T) {
	q, now := completedJob(t)
	purger := &Purger{Queue: q, Retention: time.Hour}

	*now = now.Add(30 * time.Minute)
	if err := purger.Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if processedCount(t, q) != 1 {
		t.Fatalf("job inside retention was purged")
	}

	*now = now.Add(time.Hour)
	if err := purger.Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if processedCount(t, q) != 0 {
		t.Fatalf("expired job was not purged")
	}
}

func TestDefaultConfigKeepsProcessedJobs(t *testing.T) {
	t.Setenv("JOB_RETENTION_HOURS", "")
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	q, now := completedJob(t)
	purger := &Purger{Queue: q, Retention: cfg.JobRetention}
	if purger.Enabled() {
		t.Fatalf("purging must be off by default, retention %s", cfg.JobRetention)
	}

	*now = now.Add(5 * 365 * 24 * time.Hour)
	if err := purger.Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if processedCount(t, q) != 1 {
		t.Fatalf("processed job deleted under default config")
	}
}
