// Package client is an HTTP client for the log-analyzer dashboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Config configures the API client.
type Config struct {
	BaseURL   string        // e.g. http://localhost:8080/api
	Token     string        // optional bearer credential
	Timeout   time.Duration // per-request timeout (default: 10s)
	UserAgent string
}

// Client talks to the dashboard REST endpoints.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	http      *http.Client
}

// New creates a client for the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "blazewatch"
	}

	return &Client{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Stats fetches aggregate statistics and the tailing status.
func (c *Client) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// Alerts fetches the current alert snapshot, most recent last. Entries are
// decoded one by one; malformed ones are dropped without failing the rest.
func (c *Client) Alerts(ctx context.Context) ([]models.AlertRecord, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tail/alerts", nil, &raw); err != nil {
		return nil, err
	}

	return decodeAlerts(raw, "poll"), nil
}

// Analyze asks the server to classify the given files in one pass, or every
// enabled file when files is empty. Nothing is added to the live session.
func (c *Client) Analyze(ctx context.Context, files []string) (models.AnalyzeResult, error) {
	if files == nil {
		files = []string{}
	}
	var resp struct {
		Entries []json.RawMessage `json:"entries"`
		Count   int               `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, "/analyze", tailRequest{Files: files}, &resp); err != nil {
		return models.AnalyzeResult{}, err
	}
	return models.AnalyzeResult{
		Entries: decodeAlerts(resp.Entries, "analyze"),
		Count:   resp.Count,
	}, nil
}

// decodeAlerts parses each entry on its own so one bad record cannot
// reject the list.
func decodeAlerts(raw []json.RawMessage, origin string) []models.AlertRecord {
	alerts := make([]models.AlertRecord, 0, len(raw))
	for _, data := range raw {
		rec, err := models.ParseAlert(data)
		if err != nil {
			metrics.MalformedDroppedTotal.WithLabelValues(origin).Inc()
			continue
		}
		alerts = append(alerts, rec)
	}
	return alerts
}

// LogFiles fetches the configured log files.
func (c *Client) LogFiles(ctx context.Context) ([]models.LogFile, error) {
	var files []models.LogFile
	if err := c.do(ctx, http.MethodGet, "/logfiles", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

type tailRequest struct {
	Files []string `json:"files"`
}

// StartTailing asks the server to tail files.
func (c *Client) StartTailing(ctx context.Context, files []string) (models.TailStartResult, error) {
	var res models.TailStartResult
	err := c.do(ctx, http.MethodPost, "/tail/start", tailRequest{Files: files}, &res)
	return res, err
}

// StopTailing asks the server to stop tailing files.
func (c *Client) StopTailing(ctx context.Context, files []string) error {
	return c.do(ctx, http.MethodPost, "/tail/stop", tailRequest{Files: files}, nil)
}

// StreamURL returns the websocket URL of the real-time alert channel.
// The credential is attached as a token query parameter when set.
func (c *Client) StreamURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/tail/ws"
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String()[:8])
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

const maxBodySize = 16 << 20
