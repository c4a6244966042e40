package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/heartbeat"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
)

// ErrRejected means the ingest service refused the heartbeat outright.
var ErrRejected = errors.New("heartbeat rejected")

type ingestClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.CanonicalLogger
}

// NewIngestClient creates a new ingest client repository
func NewIngestClient(cfg *config.AgentConfig, log *logger.CanonicalLogger) IIngestClient {
	return &ingestClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.IngestURL,
		logger:     log,
	}
}

type rejection struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *ingestClient) SendHeartbeat(ctx context.Context, p *heartbeat.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/heartbeats", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Set GetBody for retry support
	buf := body
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}

	c.logger.Debug("sending heartbeat",
		logger.String(logger.FieldServerID, p.ServerID),
		logger.Int64(logger.FieldNonce, p.Nonce),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		var r rejection
		_ = json.NewDecoder(resp.Body).Decode(&r)
		return fmt.Errorf("%w: status %d code %q: %s", ErrRejected, resp.StatusCode, r.Code, r.Message)
	default:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ingest returned status %d: %s", resp.StatusCode, string(b))
	}
}
