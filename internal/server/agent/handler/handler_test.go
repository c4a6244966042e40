package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/dto"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/usecase"
)

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		record func(repository.IRepository)
		code   int
		status string
	}{
		{"starting", func(repository.IRepository) {}, http.StatusAccepted, StatusStarting},
		{"healthy", func(r repository.IRepository) { r.RecordSuccess(time.Now()) }, http.StatusOK, StatusHealthy},
		{"degraded", func(r repository.IRepository) {
			r.RecordSuccess(time.Now())
			for i := 0; i < degradedAfter; i++ {
				r.RecordFailure(errors.New("connection refused"))
			}
		}, http.StatusServiceUnavailable, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewRepository()
			tt.record(repo)
			uc := usecase.NewUseCase(usecase.UseCase{Repo: repo})
			cfg := &config.AgentConfig{ServerID: "srv-1", ClusterID: "cl-1", KeyVersion: 1}

			app := fiber.New()
			NewHandler(uc, cfg, time.Now()).RegisterRoutes(app)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, resp.StatusCode)
			}
			var body dto.HealthResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.status || body.ServerID != "srv-1" {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}
