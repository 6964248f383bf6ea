package callcontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dispo-crm/internal/metrics"
	"dispo-crm/pkg/logger"

	"golang.org/x/time/rate"
)

// Config controls the provider client.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds each provider request. A timeout is reported like any other failure.
	Timeout time.Duration

	// RPS and Burst size the token bucket shared by all actions of this client.
	RPS   float64
	Burst int

	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

func (c Config) withDefaults() Config {
	out := c
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.RPS <= 0 {
		out.RPS = 10
	}
	if out.Burst <= 0 {
		out.Burst = 20
	}
	return out
}

// Client issues call-control actions. It holds no call state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	newID      func() string
}

func New(cfg Config, newID func() string) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("callcontrol: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("callcontrol: api key is required")
	}
	if newID == nil {
		return nil, errors.New("callcontrol: id generator is required")
	}
	// The caller's client is copied, never mutated.
	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	hc.Timeout = cfg.Timeout

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		metrics:    cfg.Metrics,
		newID:      newID,
	}, nil
}

// do sends one JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, action, method, path string, body, out any) error {
	start := time.Now()
	err := c.send(ctx, action, method, path, body, out)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		var perr *Error
		if errors.As(err, &perr) {
			outcome = fmt.Sprintf("http_%d", perr.StatusCode)
		}
		logger.From(ctx).Debug("call-control request failed", "action", action, "path", path, "err", err)
	}
	c.metrics.ObserveProviderRequest(action, outcome, time.Since(start))
	return err
}

func (c *Client) send(ctx context.Context, action, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("callcontrol: %s rate limit wait: %w", action, err)
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("callcontrol: %s marshal: %w", action, err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("callcontrol: %s build request: %w", action, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callcontrol: %s request: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("callcontrol: %s read response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(action, resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("callcontrol: %s decode response: %w", action, err)
	}
	return nil
}

func parseError(action string, status int, raw []byte) error {
	e := &Error{Action: action, StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && len(eb.Errors) > 0 {
		e.Code = eb.Errors[0].Code
		e.Detail = eb.Errors[0].Detail
		if e.Detail == "" {
			e.Detail = eb.Errors[0].Title
		}
		return e
	}
	e.Detail = strings.TrimSpace(string(raw))
	if e.Detail == "" {
		e.Detail = http.StatusText(status)
	}
	return e
}

func legPath(legID, action string) string {
	return "/calls/" + url.PathEscape(legID) + "/actions/" + action
}
