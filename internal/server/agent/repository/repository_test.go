package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
)

func TestNextNonceStrictlyIncreases(t *testing.T) {
	repo := NewRepository()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := repo.NextNonce(now)
	if first != now.UnixNano() {
		t.Fatalf("expected wall-clock nonce, got %d", first)
	}
	// same instant and a clock step back must still move forward
	second := repo.NextNonce(now)
	third := repo.NextNonce(now.Add(-time.Hour))
	if !(first < second && second < third) {
		t.Fatalf("nonces not increasing: %d %d %d", first, second, third)
	}
}

func TestRecordOutcome(t *testing.T) {
	repo := NewRepository()
	repo.RecordFailure(errors.New("timeout"))
	repo.RecordFailure(errors.New("timeout"))

	s := repo.State()
	if s.Failed != 2 || s.ConsecutiveFailures != 2 || s.LastError != "timeout" {
		t.Fatalf("unexpected state after failures: %+v", s)
	}

	repo.RecordSuccess(time.Now())
	s = repo.State()
	if s.Sent != 1 || s.ConsecutiveFailures != 0 || s.LastError != "" || s.LastSentAt == nil {
		t.Fatalf("unexpected state after success: %+v", s)
	}
}

func TestSendHeartbeat(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  bool
		rejected bool
	}{
		{"accepted", http.StatusAccepted, `{"status":"accepted"}`, false, false},
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"message":"heartbeat rejected","code":"invalid_signature"}`, true, true},
		{"bad request", http.StatusBadRequest, `{"success":false,"message":"validation failed"}`, true, true},
		{"server error", http.StatusInternalServerError, `{}`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got heartbeat.Payload
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/heartbeats" || r.Method != http.MethodPost {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			cfg := &config.AgentConfig{IngestURL: ts.URL, RequestTimeout: 2 * time.Second}
			client := NewIngestClient(cfg, logger.NewNop())

			p := &heartbeat.Payload{ServerID: "srv-1", ClusterID: "cl-1", KeyVersion: 1, Nonce: 42, SentAt: 1, Signature: "c2ln"}
			err := client.SendHeartbeat(context.Background(), p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if errors.Is(err, ErrRejected) != tt.rejected {
				t.Fatalf("rejected=%v, got %v", tt.rejected, err)
			}
			if got.Nonce != 42 || got.Signature != "c2ln" {
				t.Fatalf("payload not forwarded: %+v", got)
			}
		})
	}
}

func TestStatusProbe(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	valid := write("ok.json", `{"player_count":5,"capacity":20,"status":{"map":"arena"}}`)
	snap, err := NewStatusProbe(valid).Probe(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if snap.PlayerCount != 5 || snap.Capacity != 20 || snap.Status["map"] != "arena" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	snap, err = NewStatusProbe("").Probe(context.Background())
	if err != nil || snap.PlayerCount != 0 {
		t.Fatalf("empty path should report an empty server: %+v %v", snap, err)
	}

	for _, path := range []string{
		filepath.Join(dir, "missing.json"),
		write("bad.json", `{not json`),
		write("negative.json", `{"player_count":-1}`),
	} {
		if _, err := NewStatusProbe(path).Probe(context.Background()); err == nil {
			t.Fatalf("expected error for %s", path)
		}
	}
}
