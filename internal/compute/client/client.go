package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/compute/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type pool struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func Provide(p Params) domain.Pool {
	return &pool{
		baseURL: p.Config.Compute.BaseURL,
		apiKey:  p.Config.Compute.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     p.Log.Named("compute.client"),
	}
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *pool) Submit(ctx context.Context, input domain.JobInput) (string, error) {
	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPoolRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn("pool submit rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return "", fmt.Errorf("%w: status %d", domain.ErrPoolRequest, resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPoolRequest, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: empty job id", domain.ErrPoolRequest)
	}
	return out.ID, nil
}

func (c *pool) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+jobID, nil)
	if err != nil {
		return domain.JobStatus{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("%w: %v", domain.ErrPoolRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.JobStatus{}, fmt.Errorf("%w: status %d", domain.ErrPoolRequest, resp.StatusCode)
	}

	var status domain.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return domain.JobStatus{}, fmt.Errorf("%w: %v", domain.ErrPoolRequest, err)
	}
	if status.ID == "" {
		status.ID = jobID
	}
	return status, nil
}
