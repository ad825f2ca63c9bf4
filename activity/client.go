package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrServer is returned when the server answers with a non-2xx status.
var ErrServer = errors.New("activity server error")

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string

	// HTTPClient defaults to a client with a 5s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the activity endpoints of the server. It implements both
// Logger and StatsSource.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   hc,
		logger: logger,
	}
}

type logRequest struct {
	UserID    string `json:"user_id"`
	Category  string `json:"category"`
	Algorithm string `json:"algorithm"`
}

// Log posts e in the background. Failures are logged and dropped.
func (c *Client) Log(ctx context.Context, e Entry) {
	if e.UserID == "" {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.LogActivity(context.WithoutCancel(ctx), e); err != nil {
			c.logger.Warn("activity log failed",
				"user_id", e.UserID,
				"algorithm", e.Algorithm.String(),
				"error", err,
			)
		}
	}()
}

// Flush waits for in-flight Log calls to finish.
func (c *Client) Flush() {
	c.wg.Wait()
}

// LogActivity posts e and waits for the answer.
func (c *Client) LogActivity(ctx context.Context, e Entry) error {
	if e.UserID == "" {
		return ErrUserRequired
	}
	body, err := json.Marshal(logRequest{
		UserID:    e.UserID,
		Category:  e.Category.Label(),
		Algorithm: e.Algorithm.String(),
	})
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/activity", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting activity: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Stats fetches the dashboard statistics for userID.
func (c *Client) Stats(ctx context.Context, userID string) (Stats, error) {
	if userID == "" {
		return Stats{}, ErrUserRequired
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/stats/"+url.PathEscape(userID), nil)
	if err != nil {
		return Stats{}, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return Stats{}, err
	}
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Stats{}, fmt.Errorf("decoding stats: %w", err)
	}
	return st, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return fmt.Errorf("%w: %d %s: %s", ErrServer, resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("%w: %d", ErrServer, resp.StatusCode)
}
