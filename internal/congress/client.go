// Package congress is a rate-limited, retrying client for the Congress.gov v3 API.
package congress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/metrics"
)

const (
	// DefaultBaseURL is the public Congress.gov API root.
	DefaultBaseURL = "https://api.congress.gov/v3"
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 64 << 20
)

// ErrResponseTooLarge reports a body over the client's size limit.
var ErrResponseTooLarge = errors.New("response too large")

// Endpoint labels used in logs and metrics.
const (
	EndpointList       = "list"
	EndpointDetail     = "detail"
	EndpointCommittees = "committees"
)

// Acquirer hands out permission to issue one request.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Config controls the client.
type Config struct {
	BaseURL  string
	APIKey   string
	Congress int
	Timeout  time.Duration
	Retry    RetryPolicy
}

// Client issues GET requests, every one of them gated by the shared limiter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    Acquirer
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
	maxBody    int64
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New constructs a Client.
func New(cfg Config, limiter Acquirer, logger *zap.Logger, opts ...Option) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Congress <= 0 {
		return nil, fmt.Errorf("congress number must be > 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.Retry = cfg.Retry.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
		sleep:      pause,
		maxBody:    maxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Congress returns the session number the client is bound to.
func (c *Client) Congress() int {
	return c.cfg.Congress
}

// ListBills fetches one page of the bill list for billType.
func (c *Client) ListBills(ctx context.Context, billType string, limit, offset int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	return c.GetJSON(ctx, EndpointList, c.billPath(billType), params)
}

// BillDetail fetches the detail document for one bill.
func (c *Client) BillDetail(ctx context.Context, billType, number string) (json.RawMessage, error) {
	return c.GetJSON(ctx, EndpointDetail, c.billPath(billType, number), nil)
}

// BillCommittees fetches the committees sub-resource for one bill.
func (c *Client) BillCommittees(ctx context.Context, billType, number string) (json.RawMessage, error) {
	return c.GetJSON(ctx, EndpointCommittees, c.billPath(billType, number, "committees"), nil)
}

func (c *Client) billPath(segments ...string) string {
	parts := append([]string{"bill", strconv.Itoa(c.cfg.Congress)}, segments...)
	for i := range parts {
		parts[i] = url.PathEscape(strings.ToLower(parts[i]))
	}
	return strings.Join(parts, "/")
}

// GetJSON performs a GET against path (relative to the base URL) and returns the raw JSON body.
// format=json and the API key are appended to every request. Transient failures are retried
// following the configured policy; anything else, or exhausting the attempts, yields a *FetchError.
func (c *Client) GetJSON(ctx context.Context, endpoint, path string, params url.Values) (json.RawMessage, error) {
	target, err := c.buildURL(path, params)
	if err != nil {
		return nil, &FetchError{Endpoint: path, Err: err}
	}

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, &FetchError{Endpoint: path, Attempts: attempt - 1, Err: err}
		}

		body, err := c.do(ctx, endpoint, target)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !c.cfg.Retry.ShouldRetry(err, attempt) {
			return nil, &FetchError{Endpoint: path, Attempts: attempt, Err: err}
		}

		delay := c.cfg.Retry.Backoff(attempt)
		metrics.ObserveAPIRetry(endpoint)
		c.logger.Warn("transient upstream failure; retrying",
			zap.String("endpoint", endpoint),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &FetchError{Endpoint: path, Attempts: attempt, Err: err}
		}
	}
}

func (c *Client) buildURL(path string, params url.Values) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	query := url.Values{}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}
	query.Set("format", "json")
	query.Set("api_key", c.cfg.APIKey)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (c *Client) do(ctx context.Context, endpoint, target string) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(endpoint, metrics.OutcomeTransient, time.Since(start))
		return nil, &TransientError{Err: redact(err)}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		metrics.ObserveAPIRequest(endpoint, metrics.OutcomeTransient, time.Since(start))
		return nil, &TransientError{Err: fmt.Errorf("read body: %w", redact(err))}
	}
	if int64(len(body)) > c.maxBody {
		metrics.ObserveAPIRequest(endpoint, metrics.OutcomePermanent, time.Since(start))
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", req.URL.Path, ErrResponseTooLarge, c.maxBody)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.ObserveAPIRequest(endpoint, metrics.OutcomeOK, time.Since(start))
		return json.RawMessage(body), nil
	case isTransientStatus(resp.StatusCode):
		metrics.ObserveAPIRequest(endpoint, metrics.OutcomeTransient, time.Since(start))
		return nil, &TransientError{StatusCode: resp.StatusCode}
	default:
		metrics.ObserveAPIRequest(endpoint, metrics.OutcomePermanent, time.Since(start))
		return nil, &PermanentHTTPError{StatusCode: resp.StatusCode, Endpoint: req.URL.Path}
	}
}

// redact drops the query string, which carries api_key, from URL errors.
func redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	target := ""
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		u.RawQuery = ""
		target = u.String()
	}
	return &url.Error{Op: urlErr.Op, URL: target, Err: urlErr.Err}
}
