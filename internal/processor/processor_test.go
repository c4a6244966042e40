package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database/dbtest"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
)

type recordingPub struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (r *recordingPub) Publish(_ context.Context, channel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, pubsub.Message{Channel: channel, Payload: message})
	return nil
}

func (r *recordingPub) Close() error { return nil }

type harness struct {
	db    *gorm.DB
	queue *queue.Queue
	proc  *Processor
	pub   *recordingPub
	now   time.Time
	// failServers makes every UPDATE on servers fail while set.
	failServers atomic.Bool
}

func (h *harness) clock() time.Time { return h.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{db: dbtest.Open(t), pub: &recordingPub{}, now: time.Date(2026, 8, 1, 15, 0, 0, 0, time.UTC)}

	clusterID := "cl-1"
	for _, row := range []interface{}{
		&models.Cluster{ID: clusterID, OwnerID: "owner-1", Name: "EU", GraceSeconds: 60, ConfidenceMultiplier: 3},
		&models.Server{ID: "srv-1", ClusterID: &clusterID, OwnerID: "owner-1", Name: "one"},
	} {
		if err := h.db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	err := h.db.Callback().Update().Before("gorm:update").Register("test:fail_servers", func(db *gorm.DB) {
		if h.failServers.Load() && db.Statement.Table == "servers" {
			_ = db.AddError(errors.New("store unavailable"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	h.queue = queue.New(h.db, 2*time.Minute)
	h.queue.Now = h.clock
	h.proc = New(h.db, h.queue, config.StatusConfig{DefaultGrace: time.Minute, DefaultConfidenceMultiplier: 3}, 3, h.pub, logger.NewNop())
	h.proc.Now = h.clock
	return h
}

func (h *harness) enqueue(t *testing.T, nonce int64, players int) string {
	t.Helper()
	res, err := h.queue.EnqueueOrCoalesce(context.Background(), &heartbeat.Facts{
		ServerID:    "srv-1",
		ClusterID:   "cl-1",
		KeyVersion:  1,
		Nonce:       nonce,
		SentAt:      h.now,
		ReceivedAt:  h.now,
		PlayerCount: players,
		Capacity:    32,
		Status:      map[string]string{"map": "arena"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return res.JobID
}

func (h *harness) server(t *testing.T) models.Server {
	t.Helper()
	var s models.Server
	if err := h.db.First(&s, "id = ?", "srv-1").Error; err != nil {
		t.Fatalf("load server: %v", err)
	}
	return s
}

func TestCoalescedHeartbeatsProcessOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	jobID := h.enqueue(t, 1, 5)
	h.now = h.now.Add(time.Second)
	if again := h.enqueue(t, 2, 8); again != jobID {
		t.Fatalf("second heartbeat created job %s, want coalesce into %s", again, jobID)
	}

	lease, err := h.queue.Claim(ctx, "w1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := h.proc.Process(ctx, lease); err != nil {
		t.Fatalf("process: %v", err)
	}

	s := h.server(t)
	if s.PlayerCount != 8 || s.Capacity != 32 {
		t.Fatalf("server not updated from latest facts: %+v", s)
	}
	if s.Status != models.StatusOnline || s.Confidence != models.ConfidenceGreen {
		t.Fatalf("status = %s/%s, want online/green", s.Status, s.Confidence)
	}
	if s.StatusFields != `{"map":"arena"}` {
		t.Fatalf("status fields = %s", s.StatusFields)
	}

	var processed int64
	h.db.Model(&models.HeartbeatJob{}).Where("processed_at IS NOT NULL").Count(&processed)
	if processed != 1 {
		t.Fatalf("processed rows = %d, want 1", processed)
	}
	if _, err := h.queue.Claim(ctx, "w1"); !errors.Is(err, queue.ErrNoJob) {
		t.Fatalf("queue should be drained: %v", err)
	}

	if len(h.pub.messages) != 1 || h.pub.messages[0].Channel != pubsub.ChannelServerStatus {
		t.Fatalf("expected one status event, got %+v", h.pub.messages)
	}
	ev, err := pubsub.DecodeStatusEvent(h.pub.messages[0].Payload)
	if err != nil || ev.Status != "online" || ev.PreviousStatus != "unknown" {
		t.Fatalf("unexpected event %+v %v", ev, err)
	}
}

func TestLastSeenNeverMovesBackwards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	later := h.now.Add(10 * time.Second)
	if err := h.db.Model(&models.Server{}).Where("id = ?", "srv-1").Update("last_seen_at", later).Error; err != nil {
		t.Fatalf("seed last seen: %v", err)
	}
	h.enqueue(t, 1, 3)
	lease, _ := h.queue.Claim(ctx, "w1")
	if err := h.proc.Process(ctx, lease); err != nil {
		t.Fatalf("process: %v", err)
	}
	s := h.server(t)
	if s.LastSeenAt == nil || !s.LastSeenAt.Equal(later) {
		t.Fatalf("last_seen_at = %v, want %v", s.LastSeenAt, later)
	}
}

func TestFailureRollsBackAndRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID := h.enqueue(t, 1, 4)

	h.failServers.Store(true)
	for i := 1; i <= 3; i++ {
		lease, err := h.queue.Claim(ctx, "w1")
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if err := h.proc.Process(ctx, lease); err == nil {
			t.Fatalf("attempt %d should fail", i)
		}
		job, _ := h.queue.Get(ctx, jobID)
		if job.Attempts != i || job.ProcessedAt != nil || job.ClaimedAt != nil {
			t.Fatalf("attempt %d left job %+v", i, job)
		}
	}

	job, _ := h.queue.Get(ctx, jobID)
	if job.FlaggedAt == nil || job.LastError == nil {
		t.Fatalf("job should be flagged with an error: %+v", job)
	}
	if s := h.server(t); s.PlayerCount != 0 || s.LastSeenAt != nil {
		t.Fatalf("failed processing changed server: %+v", s)
	}

	h.failServers.Store(false)
	if err := h.queue.Retry(ctx, jobID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	lease, err := h.queue.Claim(ctx, "w1")
	if err != nil {
		t.Fatalf("claim after retry: %v", err)
	}
	if err := h.proc.Process(ctx, lease); err != nil {
		t.Fatalf("process after retry: %v", err)
	}
	if s := h.server(t); s.PlayerCount != 4 {
		t.Fatalf("server not updated after retry: %+v", s)
	}
}

func TestDeletedServerCompletesJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jobID := h.enqueue(t, 1, 4)

	if err := h.db.Delete(&models.Server{}, "id = ?", "srv-1").Error; err != nil {
		t.Fatalf("delete server: %v", err)
	}
	lease, _ := h.queue.Claim(ctx, "w1")
	if err := h.proc.Process(ctx, lease); err != nil {
		t.Fatalf("process: %v", err)
	}
	job, _ := h.queue.Get(ctx, jobID)
	if job.ProcessedAt == nil || job.LastError == nil || *job.LastError != msgServerGone {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestLostLeaseDoesNotApply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enqueue(t, 1, 4)

	stale, _ := h.queue.Claim(ctx, "w1")
	h.now = h.now.Add(3 * time.Minute)
	current, err := h.queue.Claim(ctx, "w2")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}

	if err := h.proc.Process(ctx, stale); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if s := h.server(t); s.LastSeenAt != nil {
		t.Fatalf("stale worker applied heartbeat")
	}
	if err := h.proc.Process(ctx, current); err != nil {
		t.Fatalf("current holder: %v", err)
	}
}
