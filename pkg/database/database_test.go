package database_test

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/models"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database/dbtest"
)

func TestPendingJobIndexAllowsOnePerServer(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now().UTC()

	first := models.HeartbeatJob{ID: "job-1", ServerID: "srv-1", Payload: "{}", Nonce: 1, EnqueuedAt: now}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create first job: %v", err)
	}

	second := models.HeartbeatJob{ID: "job-2", ServerID: "srv-1", Payload: "{}", Nonce: 2, EnqueuedAt: now}
	err := db.Create(&second).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected duplicated key for second pending job, got %v", err)
	}

	if err := db.Model(&first).Update("processed_at", now).Error; err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := db.Create(&second).Error; err != nil {
		t.Fatalf("expected insert after first job processed, got %v", err)
	}
}

func TestSqliteDSN(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"", ":memory:?_x=1"},
		{"./data/a.db", "./data/a.db?_x=1"},
		{"file:a.db?cache=shared", "file:a.db?cache=shared&_x=1"},
	}
	for _, c := range cases {
		if got := database.SqliteDSN(c.path, "_x=1"); got != c.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
