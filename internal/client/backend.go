// Package client provides the HTTP client for the backend origin.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"coap-bridge/internal/config"
	"coap-bridge/internal/metrics"
	"coap-bridge/internal/model"
	"coap-bridge/internal/observe"
)

// BackendClient executes translated requests against the backend origin.
// It is safe for concurrent use; one instance is shared across all in-flight
// gateway invocations.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable backend metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Backend.IdleConnections,
		MaxIdleConnsPerHost: cfg.Backend.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}
}

// Do executes exactly one attempt against the backend and reads the full
// response body into memory. There is no retry and no per-call timeout
// beyond the client-level one.
//
// A reachable backend is a success regardless of HTTP status: 4xx/5xx
// responses are returned as Outcomes with the status recorded on the span.
// Only transport-level failures (dial, timeout, TLS, body read) are errors.
func (c *BackendClient) Do(ctx context.Context, req *model.OutboundRequest, span *observe.Span) (*model.Outcome, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	c.logger.Debug("backend request",
		"method", req.Method,
		"url", req.URL,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.BackendDuration.WithLabelValues(req.Method).Observe(duration)
	}

	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetStatus(resp.StatusCode)
	if c.metrics != nil {
		c.metrics.BackendResponses.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}

	return &model.Outcome{Status: resp.StatusCode, Body: body}, nil
}
