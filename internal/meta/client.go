package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v20.0"

	// maxRetries counts retries after the first attempt, so a transient
	// error is tried 3 times in total before giving up.
	maxRetries = 2
)

// Config carries the credentials and tuning for one ad account.
type Config struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	AccountID   string // with or without the "act_" prefix
	Timeout     time.Duration
	// RequestsPerSecond throttles outgoing calls client-side, ahead of the
	// platform's own rate limits. Zero means the default of 5/s.
	RequestsPerSecond float64
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	if out.APIVersion == "" {
		out.APIVersion = DefaultAPIVersion
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	if out.RequestsPerSecond <= 0 {
		out.RequestsPerSecond = 5
	}
	return out
}

// Client talks to the Marketing API over plain HTTP. It is stateless apart
// from its credentials and limiter, so one client serves concurrent cycles.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)*2),
		log:     log,
	}
}

// AccountID returns the configured account ID with the act_ prefix the API
// expects.
func (c *Client) AccountID() string {
	if strings.HasPrefix(c.cfg.AccountID, "act_") {
		return c.cfg.AccountID
	}
	return "act_" + c.cfg.AccountID
}

// get issues a GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, out)
}

// post issues a POST with form params and decodes the JSON body into out.
func (c *Client) post(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, params, out)
}

// do runs one API call with client-side rate limiting and bounded
// exponential-backoff retry. Only transient platform errors are retried;
// semantic rejections and auth failures pass through immediately.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.once(ctx, method, path, params, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		c.log.Warn("platform call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

func (c *Client) once(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.cfg.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.APIVersion, strings.TrimPrefix(path, "/"))

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling platform: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
			return envelope.Error
		}
		return fmt.Errorf("platform returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
