package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PlottingService handles communication with the sidecar plotting application
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	config     PlottingServiceConfig
	logger     *zap.Logger
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotID    string `json:"plot_id,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	BatchID      string             `json:"batch_id,omitempty"`
	Results      []PlottingResponse `json:"results,omitempty"`
	DashboardURL string             `json:"dashboard_url,omitempty"`
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates a new plotting service client
func NewPlottingService(config PlottingServiceConfig, logger *zap.Logger) *PlottingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	return &PlottingService{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger,
	}
}

// SendPlotData posts one plot to /api/plot
func (ps *PlottingService) SendPlotData(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	var resp PlottingResponse
	if err := ps.post(ctx, "/api/plot", plotData, &resp); err != nil {
		return &resp, err
	}
	return &resp, nil
}

// SendPlotDataWithRetry sends plot data, retrying failed attempts after the
// configured delay.
func (ps *PlottingService) SendPlotDataWithRetry(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	var lastErr error
	for attempt := 0; attempt < ps.config.RetryAttempts; attempt++ {
		resp, err := ps.SendPlotData(ctx, plotData)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		ps.logger.Debug("plot upload failed",
			zap.Int("attempt", attempt+1),
			zap.String("plot_type", string(plotData.PlotType)),
			zap.Error(err),
		)

		if attempt < ps.config.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ps.config.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to send plot data after %d attempts: %w", ps.config.RetryAttempts, lastErr)
}

// BatchSendPlots sends multiple plots in a single request
func (ps *PlottingService) BatchSendPlots(ctx context.Context, plots []PlotData) (*BatchPlottingResponse, error) {
	payload := map[string]interface{}{
		"plots": plots,
		"batch": true,
	}
	var resp BatchPlottingResponse
	if err := ps.post(ctx, "/api/batch-plot", payload, &resp); err != nil {
		return &resp, err
	}
	return &resp, nil
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (ps *PlottingService) post(ctx context.Context, path string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal plot data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ps.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-latent")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response JSON (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}
	return nil
}
